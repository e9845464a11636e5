// Package retry 提供了一个显式的重试策略值，用于包裹对外部协作方的调用。
// 策略独立于调用点存在，便于单独测试。
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy 描述一次重试策略：最大尝试次数与随机指数退避的上下界。
type Policy struct {
	MaxAttempts uint64
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

// Default 返回检索与向量化调用使用的缺省策略：
// 最多 3 次尝试，退避区间 1s..60s。
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		MinBackoff:  1 * time.Second,
		MaxBackoff:  60 * time.Second,
	}
}

// Do 按策略执行 op，全部尝试失败后返回最后一次的错误。
// ctx 取消时立即停止，不再发起新的尝试。
func (p Policy) Do(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.MinBackoff
	bo.MaxInterval = p.MaxBackoff
	bo.MaxElapsedTime = 0 // 由 MaxAttempts 终止，不按耗时终止

	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	wrapped := backoff.WithContext(backoff.WithMaxRetries(bo, attempts-1), ctx)
	return backoff.Retry(op, wrapped)
}
