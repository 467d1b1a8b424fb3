package jobqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	N int `json:"n"`
}

func newTestService(t *testing.T, store Store) *Service {
	t.Helper()
	svc := NewService(store, Options{Workers: 4, PollTimeout: 50 * time.Millisecond}, log.DefaultLogger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Stop(ctx)
	})
	return svc
}

func waitForState(t *testing.T, svc *Service, id string, state State) *Job {
	t.Helper()
	var job *Job
	require.Eventually(t, func() bool {
		var err error
		job, err = svc.Get(context.Background(), id)
		return err == nil && job.State == state
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestService_ProcessesJob(t *testing.T) {
	svc := newTestService(t, NewMemoryStore())
	ctx := context.Background()

	q := svc.CreateQueue("double", func(ctx context.Context, job *Job) (any, error) {
		var p payload
		if err := job.Decode(&p); err != nil {
			return nil, err
		}
		if err := job.SetProgress(ctx, 50); err != nil {
			return nil, err
		}
		return payload{N: p.N * 2}, nil
	})
	require.NoError(t, svc.Start(ctx))

	job, err := q.Add(ctx, "p1", payload{N: 21})
	require.NoError(t, err)
	assert.Equal(t, StatePending, job.State)

	done := waitForState(t, svc, job.ID, StateCompleted)
	assert.JSONEq(t, `{"n":42}`, string(done.Result))
	assert.Equal(t, 100, done.Progress)
	assert.Equal(t, 1, done.Attempts)
	assert.NotNil(t, done.SettledAt)
}

func TestService_PartitionConcurrencyIsOne(t *testing.T) {
	svc := newTestService(t, NewMemoryStore())
	ctx := context.Background()

	var mu sync.Mutex
	running := map[string]int{}
	maxRunning := map[string]int{}

	q := svc.CreateQueue("serial", func(ctx context.Context, job *Job) (any, error) {
		mu.Lock()
		running[job.Partition]++
		if running[job.Partition] > maxRunning[job.Partition] {
			maxRunning[job.Partition] = running[job.Partition]
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		running[job.Partition]--
		mu.Unlock()
		return nil, nil
	})
	require.NoError(t, svc.Start(ctx))

	var ids []string
	for i := 0; i < 6; i++ {
		for _, p := range []string{"a", "b"} {
			job, err := q.Add(ctx, p, payload{N: i})
			require.NoError(t, err)
			ids = append(ids, job.ID)
		}
	}
	for _, id := range ids {
		waitForState(t, svc, id, StateCompleted)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxRunning["a"])
	assert.Equal(t, 1, maxRunning["b"])
}

func TestService_CancelPendingJob(t *testing.T) {
	svc := newTestService(t, NewMemoryStore())
	ctx := context.Background()

	var calls atomic.Int32
	q := svc.CreateQueue("cancel", func(ctx context.Context, job *Job) (any, error) {
		calls.Add(1)
		return nil, nil
	})

	job, err := q.Add(ctx, "p", payload{})
	require.NoError(t, err)
	cancelled, err := svc.Cancel(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, cancelled.State)

	other, err := q.Add(ctx, "p", payload{})
	require.NoError(t, err)
	require.NoError(t, svc.Start(ctx))
	waitForState(t, svc, other.ID, StateCompleted)

	assert.Equal(t, int32(1), calls.Load())
	got, err := svc.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, got.State)
}

func TestService_CancelRunningJob(t *testing.T) {
	svc := newTestService(t, NewMemoryStore())
	ctx := context.Background()

	started := make(chan struct{})
	q := svc.CreateQueue("long", func(ctx context.Context, job *Job) (any, error) {
		close(started)
		for !job.Cancelled(ctx) {
			time.Sleep(5 * time.Millisecond)
		}
		return nil, ErrCancelled
	})
	require.NoError(t, svc.Start(ctx))

	job, err := q.Add(ctx, "p", payload{})
	require.NoError(t, err)
	<-started
	_, err = svc.Cancel(ctx, job.ID)
	require.NoError(t, err)

	got := waitForState(t, svc, job.ID, StateCancelled)
	assert.Equal(t, ErrCancelled.Error(), got.Error)
}

func TestService_FailedAndPanickingJobs(t *testing.T) {
	svc := newTestService(t, NewMemoryStore())
	ctx := context.Background()

	q := svc.CreateQueue("bad", func(ctx context.Context, job *Job) (any, error) {
		var p payload
		_ = job.Decode(&p)
		if p.N == 1 {
			panic("boom")
		}
		return nil, errors.New("broken")
	})
	require.NoError(t, svc.Start(ctx))

	failed, err := q.Add(ctx, "p", payload{N: 0})
	require.NoError(t, err)
	panicked, err := q.Add(ctx, "p", payload{N: 1})
	require.NoError(t, err)

	assert.Equal(t, "broken", waitForState(t, svc, failed.ID, StateFailed).Error)
	assert.Contains(t, waitForState(t, svc, panicked.ID, StateFailed).Error, "boom")
}

func TestService_GetUnknownJob(t *testing.T) {
	svc := newTestService(t, NewMemoryStore())
	_, err := svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = svc.Cancel(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func testTransitionAndLease(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	job := &Job{ID: "j1", Queue: "q", Partition: "p", State: StatePending}
	require.NoError(t, store.Save(ctx, job))

	job.State = StateRunning
	ok, err := store.Transition(ctx, job, StatePending)
	require.NoError(t, err)
	assert.True(t, ok)

	stale := &Job{ID: "j1", Queue: "q", Partition: "p", State: StateCancelled}
	ok, err = store.Transition(ctx, stale, StatePending)
	require.NoError(t, err)
	assert.False(t, ok)
	got, err := store.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, got.State)

	_, err = store.Transition(ctx, &Job{ID: "missing"}, StatePending)
	assert.ErrorIs(t, err, ErrJobNotFound)

	ok, err = store.AcquireLease(ctx, "q", "p", "host-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.AcquireLease(ctx, "q", "p", "host-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = store.AcquireLease(ctx, "q", "p", "host-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "owner renews its own lease")
	ok, err = store.AcquireLease(ctx, "q", "other", "host-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "partitions lease independently")

	require.NoError(t, store.ReleaseLease(ctx, "q", "p", "host-b"))
	ok, err = store.AcquireLease(ctx, "q", "p", "host-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "only the owner releases")

	require.NoError(t, store.ReleaseLease(ctx, "q", "p", "host-a"))
	ok, err = store.AcquireLease(ctx, "q", "p", "host-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_TransitionAndLease(t *testing.T) {
	testTransitionAndLease(t, NewMemoryStore())
}

func TestMemoryStore_LeaseExpires(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ok, err := store.AcquireLease(ctx, "q", "p", "host-a", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	time.Sleep(20 * time.Millisecond)
	ok, err = store.AcquireLease(ctx, "q", "p", "host-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestService_CancelNeverOverwritesClaimedJob(t *testing.T) {
	svc := newTestService(t, NewMemoryStore())
	ctx := context.Background()

	var mu sync.Mutex
	ran := map[string]bool{}
	q := svc.CreateQueue("race", func(ctx context.Context, job *Job) (any, error) {
		mu.Lock()
		ran[job.ID] = true
		mu.Unlock()
		return nil, nil
	})
	require.NoError(t, svc.Start(ctx))

	for i := 0; i < 30; i++ {
		job, err := q.Add(ctx, "p", payload{N: i})
		require.NoError(t, err)
		cancelled, err := svc.Cancel(ctx, job.ID)
		require.NoError(t, err)

		var final *Job
		require.Eventually(t, func() bool {
			final, err = svc.Get(ctx, job.ID)
			return err == nil && final.State.Terminal()
		}, 5*time.Second, 5*time.Millisecond)

		mu.Lock()
		processed := ran[job.ID]
		mu.Unlock()
		if cancelled.State == StateCancelled {
			assert.False(t, processed, "job %d ran after it was cancelled", i)
			assert.Equal(t, StateCancelled, final.State)
		} else {
			assert.True(t, processed, "job %d", i)
			assert.Equal(t, StateCompleted, final.State)
		}
	}
}

func TestJob_SetProgressKeepsSettledState(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	job := &Job{ID: "j1", Queue: "q", State: StateRunning, store: store}
	require.NoError(t, store.Save(ctx, job))

	settled := *job
	settled.settle(StateCancelled)
	require.NoError(t, store.Save(ctx, &settled))

	require.NoError(t, job.SetProgress(ctx, 40))
	got, err := store.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, got.State)
	assert.Equal(t, 0, got.Progress)
}
