package biz

import (
	"context"
	"sync"
	"time"
)

type pendingTrigger[T any] struct {
	firstAt time.Time
	lastAt  time.Time
	payload T
}

// Coalescer 按 key 合并短时间内的多次通知
//
// 某个 key 在 window 内没有新通知，或距第一次通知已超过 maxWait 时触发一次 fire，
// 并清除该 key 的状态。多次通知只保留最后一次的 payload。
type Coalescer[T any] struct {
	window  time.Duration
	maxWait time.Duration
	fire    func(key string, payload T)
	now     func() time.Time

	mu      sync.Mutex
	pending map[string]*pendingTrigger[T]
}

// NewCoalescer 创建合并器
func NewCoalescer[T any](window, maxWait time.Duration, fire func(key string, payload T)) *Coalescer[T] {
	if maxWait < window {
		maxWait = window
	}
	return &Coalescer[T]{
		window:  window,
		maxWait: maxWait,
		fire:    fire,
		now:     time.Now,
		pending: make(map[string]*pendingTrigger[T]),
	}
}

// Notify 记录一次通知
func (c *Coalescer[T]) Notify(key string, payload T) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.pending[key]; ok {
		p.lastAt = now
		p.payload = payload
		return
	}
	c.pending[key] = &pendingTrigger[T]{firstAt: now, lastAt: now, payload: payload}
}

// Flush 触发所有到期的 key，返回触发数量
func (c *Coalescer[T]) Flush() int {
	return c.flush(false)
}

// FlushAll 立即触发所有等待中的 key
func (c *Coalescer[T]) FlushAll() int {
	return c.flush(true)
}

func (c *Coalescer[T]) flush(all bool) int {
	now := c.now()

	type due struct {
		key     string
		payload T
	}
	var ready []due

	c.mu.Lock()
	for key, p := range c.pending {
		if all || now.Sub(p.lastAt) >= c.window || now.Sub(p.firstAt) >= c.maxWait {
			ready = append(ready, due{key, p.payload})
			delete(c.pending, key)
		}
	}
	c.mu.Unlock()

	for _, d := range ready {
		c.fire(d.key, d.payload)
	}
	return len(ready)
}

// Pending 等待中的 key 数量
func (c *Coalescer[T]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Run 以 window/5 的间隔检查到期的 key，直到 ctx 结束
func (c *Coalescer[T]) Run(ctx context.Context) {
	interval := c.window / 5
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Flush()
		}
	}
}
