// Package retry 提供带指数退避的重试策略。
package retry

import (
	"context"
	"time"
)

// Policy 完整描述一次可重试操作的策略：最大尝试次数、初始退避时长、
// 退避倍增系数与上限，以及判定错误是否值得重试的谓词。
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// Retryable 返回 true 时才会重试；为 nil 时重试所有错误。
	Retryable func(error) bool
}

// Do 依照策略执行 fn：成功立即返回 nil；遇到不可重试的错误或
// 尝试次数耗尽时返回最后一次错误；退避等待期间 ctx 被取消则返回 ctx.Err()。
func (p Policy) Do(ctx context.Context, fn func() error) error {
	backoff := p.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * p.Multiplier)
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}
	return lastErr
}
