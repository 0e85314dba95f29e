package resilience

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker/v2"

	"shopease/internal/pkg/logger"
)

// ErrCircuitOpen 表示熔断器处于打开状态，逻辑操作被直接短路。
var ErrCircuitOpen = errors.New("circuit breaker is open, service degraded")

// Options 控制重试与熔断行为。
type Options struct {
	Name string

	// 重试：对整个逻辑操作重试，仅在 Transient 判定为真时触发
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// 熔断：按逻辑操作的失败率开断
	FailureRatio float64
	MinRequests  uint32
	OpenTimeout  time.Duration

	// Transient 判定错误是否为瞬时依赖故障。
	// 业务性错误（校验、权限、库存不足等）既不重试也不计入熔断统计。
	Transient func(error) bool
}

// Policy 将熔断器套在重试循环外侧：一次逻辑操作（含其内部重试）
// 只计入熔断统计一次。熔断打开期间新请求被立即短路。
type Policy struct {
	opts    Options
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// New 创建一个弹性策略。
func New(opts Options) *Policy {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 100 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 2 * time.Second
	}
	if opts.FailureRatio <= 0 {
		opts.FailureRatio = 0.5
	}
	if opts.MinRequests == 0 {
		opts.MinRequests = 10
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}

	p := &Policy{opts: opts}
	p.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    opts.Name,
		Timeout: opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < opts.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= opts.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			// 业务性失败不触发熔断
			return err == nil || (opts.Transient != nil && !opts.Transient(err))
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Logger().Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
	return p
}

// Execute 执行 op，失败时按指数退避重试瞬时错误。
// 熔断器打开时返回 ErrCircuitOpen，op 完全不被调用。
func (p *Policy) Execute(ctx context.Context, op func(context.Context) error) error {
	_, err := p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.executeWithRetry(ctx, op)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Wrap(ErrCircuitOpen, p.opts.Name)
	}
	return err
}

func (p *Policy) executeWithRetry(ctx context.Context, op func(context.Context) error) error {
	backoff := p.opts.InitialBackoff
	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if p.opts.Transient == nil || !p.opts.Transient(lastErr) {
			return lastErr
		}
		if attempt >= p.opts.MaxAttempts {
			return lastErr
		}

		logger.Ctx(ctx).Warn().
			Err(lastErr).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msgf("Transient failure in %s, retrying", p.opts.Name)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > p.opts.MaxBackoff {
			backoff = p.opts.MaxBackoff
		}
	}
}
