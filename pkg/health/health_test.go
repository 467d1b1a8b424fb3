package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealthChecker_AllHealthy(t *testing.T) {
	h := NewHealthChecker(time.Second)
	h.Register(NewPingChecker("database", func(context.Context) error { return nil }))
	h.Register(NewPingChecker("redis", func(context.Context) error { return nil }))

	status, results := h.GetStatus(context.Background())
	assert.Equal(t, StatusHealthy, status)
	assert.Len(t, results, 2)
}

func TestHealthChecker_OneUnhealthy(t *testing.T) {
	h := NewHealthChecker(time.Second)
	h.Register(NewPingChecker("database", func(context.Context) error { return nil }))
	h.Register(NewPingChecker("redis", func(context.Context) error { return errors.New("connection refused") }))

	status, results := h.GetStatus(context.Background())
	assert.Equal(t, StatusUnhealthy, status)
	assert.Equal(t, "connection refused", results["redis"].Error)
	assert.Equal(t, StatusHealthy, results["database"].Status)
}

func TestHealthChecker_Timeout(t *testing.T) {
	h := NewHealthChecker(10 * time.Millisecond)
	h.Register(NewPingChecker("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	status, results := h.GetStatus(context.Background())
	assert.Equal(t, StatusUnhealthy, status)
	assert.Contains(t, results["slow"].Error, "deadline")
}
