package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrAttemptsExhausted 尝试次数用尽，返回的错误同时包含最后一次失败
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Policy 重试策略
type Policy struct {
	Attempts  int           // 总尝试次数，含第一次
	Delay     time.Duration // 第一次重试前的等待
	MaxDelay  time.Duration // 大于 Delay 时按 2 倍指数退避，否则固定间隔
	Retryable func(error) bool
	OnRetry   func(err error, next time.Duration)
}

// Fixed 固定间隔，共 attempts 次尝试
func Fixed(attempts int, delay time.Duration) Policy {
	return Policy{Attempts: attempts, Delay: delay}
}

// Exponential 指数退避
func Exponential(attempts int, delay, maxDelay time.Duration) Policy {
	return Policy{Attempts: attempts, Delay: delay, MaxDelay: maxDelay}
}

func (p Policy) backOff() backoff.BackOff {
	if p.MaxDelay <= p.Delay {
		return backoff.NewConstantBackOff(p.Delay)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Delay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// Do 执行 fn 直到成功、遇到不可重试的错误、次数用尽或 ctx 结束
func Do[T any](ctx context.Context, p Policy, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(attempts)),
	}
	if p.OnRetry != nil {
		opts = append(opts, backoff.WithNotify(p.OnRetry))
	}

	permanent := false
	res, err := backoff.Retry[T](ctx, func() (T, error) {
		v, err := fn()
		if err != nil && p.Retryable != nil && !p.Retryable(err) {
			permanent = true
			return v, backoff.Permanent(err)
		}
		return v, err
	}, opts...)
	if err == nil || permanent || ctx.Err() != nil {
		return res, err
	}
	return res, errors.Join(ErrAttemptsExhausted, err)
}

// Run 无返回值版本的 Do
func Run(ctx context.Context, p Policy, fn func() error) error {
	_, err := Do(ctx, p, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
