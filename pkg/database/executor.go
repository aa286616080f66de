package database

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"payflow/pkg/metrics"

	"go.uber.org/zap"
)

const (
	DefaultRetries    = 3
	DefaultMaxBackoff = 5 * time.Second
	DefaultTag        = "DB"

	// ProbeTimeout 每次尝试前健康检查的超时时间
	ProbeTimeout = time.Second

	baseBackoff = 100 * time.Millisecond
	maxJitter   = 300 * time.Millisecond
)

var (
	// ErrQueryExhausted 重试耗尽，配合 errors.Is 使用
	ErrQueryExhausted = errors.New("query exhausted")
	// ErrProbeTimeout 健康检查超时
	ErrProbeTimeout = errors.New("DB health check timeout")
)

// QueryExhaustedError 重试耗尽后的最终错误，携带最后一次失败原因
type QueryExhaustedError struct {
	Tag      string
	Attempts int
	Err      error
}

func (e *QueryExhaustedError) Error() string {
	return fmt.Sprintf("%s query failed after %d attempts: %v", e.Tag, e.Attempts, e.Err)
}

func (e *QueryExhaustedError) Unwrap() error {
	return e.Err
}

func (e *QueryExhaustedError) Is(target error) bool {
	return target == ErrQueryExhausted
}

// ErrorKind 供 apperr 分类使用
func (e *QueryExhaustedError) ErrorKind() string {
	return "query_exhausted"
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent 标记为不可重试的错误，Execute 会立即返回被包装的原始错误
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// QueryOptions 单次执行的重试参数
type QueryOptions struct {
	Retries    int
	MaxBackoff time.Duration
	Tag        string
}

type QueryOption func(*QueryOptions)

func WithRetries(n int) QueryOption {
	return func(o *QueryOptions) { o.Retries = n }
}

func WithMaxBackoff(d time.Duration) QueryOption {
	return func(o *QueryOptions) { o.MaxBackoff = d }
}

func WithTag(tag string) QueryOption {
	return func(o *QueryOptions) { o.Tag = tag }
}

// Executor 带健康检查与指数退避的查询执行器
type Executor struct {
	prober       Prober
	log          *zap.Logger
	metrics      *metrics.MetricsCollector
	defaults     QueryOptions
	probeTimeout time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
	jitter       func() time.Duration
}

type ExecutorOption func(*Executor)

// WithMetrics 记录重试与失败指标
func WithMetrics(m *metrics.MetricsCollector) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// WithQueryDefaults 覆盖默认重试次数与最大退避
func WithQueryDefaults(retries int, maxBackoff time.Duration) ExecutorOption {
	return func(e *Executor) {
		if retries > 0 {
			e.defaults.Retries = retries
		}
		if maxBackoff > 0 {
			e.defaults.MaxBackoff = maxBackoff
		}
	}
}

func WithProbeTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.probeTimeout = d }
}

// WithSleep 替换退避等待函数（测试用）
func WithSleep(fn func(ctx context.Context, d time.Duration) error) ExecutorOption {
	return func(e *Executor) { e.sleep = fn }
}

// WithJitter 替换随机抖动（测试用）
func WithJitter(fn func() time.Duration) ExecutorOption {
	return func(e *Executor) { e.jitter = fn }
}

// NewExecutor 创建执行器
func NewExecutor(prober Prober, log *zap.Logger, opts ...ExecutorOption) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Executor{
		prober: prober,
		log:    log,
		defaults: QueryOptions{
			Retries:    DefaultRetries,
			MaxBackoff: DefaultMaxBackoff,
			Tag:        DefaultTag,
		},
		probeTimeout: ProbeTimeout,
		sleep:        sleepOrDone,
		jitter: func() time.Duration {
			return time.Duration(rand.Int63n(int64(maxJitter)))
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Prober 返回执行器使用的健康检查
func (e *Executor) Prober() Prober {
	return e.prober
}

// Execute 执行 op，失败时按指数退避重试
//
// 每次尝试先做健康检查（超时 1s），检查失败视为本次尝试失败且不执行 op。
// 两次尝试之间等待 min(MaxBackoff, 2^attempt*100ms + jitter[0,300ms))。
// 重试耗尽返回 *QueryExhaustedError。
func Execute[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (T, error), opts ...QueryOption) (T, error) {
	o := e.defaults
	for _, opt := range opts {
		opt(&o)
	}
	if o.Retries < 1 {
		o.Retries = 1
	}

	var zero T
	var lastErr error
	start := time.Now()

	for attempt := 1; attempt <= o.Retries; attempt++ {
		if err := e.probe(ctx); err != nil {
			lastErr = fmt.Errorf("health check: %w", err)
		} else {
			result, err := op(ctx)
			if err == nil {
				e.metrics.RecordDBQuery(o.Tag, time.Since(start), true)
				return result, nil
			}

			var perm *permanentError
			if errors.As(err, &perm) {
				e.metrics.RecordDBQuery(o.Tag, time.Since(start), false)
				return zero, perm.err
			}
			lastErr = err
		}

		e.metrics.RecordQueryRetry(o.Tag)

		if attempt == o.Retries {
			e.log.Warn(fmt.Sprintf("[%s] attempt %d failed", o.Tag, attempt),
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
			break
		}

		delay := e.backoff(attempt, o.MaxBackoff)
		e.log.Warn(fmt.Sprintf("[%s] attempt %d failed, retrying in %s", o.Tag, attempt, delay),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(lastErr),
		)

		if err := e.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	e.metrics.RecordDBQuery(o.Tag, time.Since(start), false)
	e.metrics.RecordDBError(o.Tag, "exhausted")

	return zero, &QueryExhaustedError{Tag: o.Tag, Attempts: o.Retries, Err: lastErr}
}

func (e *Executor) backoff(attempt int, maxDelay time.Duration) time.Duration {
	d := time.Duration(1<<attempt)*baseBackoff + e.jitter()
	if maxDelay > 0 && d > maxDelay {
		return maxDelay
	}
	return d
}

// probe 在独立 goroutine 中执行健康检查，超时立即返回
func (e *Executor) probe(ctx context.Context) error {
	if e.prober == nil {
		return nil
	}

	pctx, cancel := context.WithTimeout(ctx, e.probeTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- e.prober.Probe(pctx)
	}()

	select {
	case err := <-done:
		return err
	case <-pctx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrProbeTimeout
	}
}

// sleepOrDone 等待 d 或在 ctx 取消时提前返回
func sleepOrDone(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
