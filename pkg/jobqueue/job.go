package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// State 任务状态
type State string

const (
	StatePending   State = "PENDING"
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

// Terminal 是否终态
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

var (
	ErrJobNotFound = errors.New("job not found")
	ErrCancelled   = errors.New("job cancelled")
)

// Job 队列中的任务
type Job struct {
	ID        string          `json:"id"`
	Queue     string          `json:"queue"`
	Partition string          `json:"partition"`
	Data      json.RawMessage `json:"data"`
	State     State           `json:"state"`
	Progress  int             `json:"progress"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Attempts  int             `json:"attempts"`
	CreatedAt time.Time       `json:"createdAt"`
	StartedAt *time.Time      `json:"startedAt,omitempty"`
	SettledAt *time.Time      `json:"settledAt,omitempty"`

	store     Store
	messageID string
}

// Decode 解析任务载荷
func (j *Job) Decode(v any) error {
	return json.Unmarshal(j.Data, v)
}

// SetProgress 更新进度 (0-100)
func (j *Job) SetProgress(ctx context.Context, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	j.Progress = percent
	if j.store == nil {
		return nil
	}
	// 已离开运行态的任务不再覆盖
	_, err := j.store.Transition(ctx, j, StateRunning)
	return err
}

// Cancelled 协作式取消检查
func (j *Job) Cancelled(ctx context.Context) bool {
	if j.store == nil {
		return false
	}
	cancelled, err := j.store.IsCancelled(ctx, j.ID)
	return err == nil && cancelled
}

func (j *Job) settle(state State) {
	now := time.Now().UTC()
	j.State = state
	j.SettledAt = &now
}
