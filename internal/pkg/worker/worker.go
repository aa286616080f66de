package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"payflow/internal/domain/payment/model"
	"payflow/pkg/database"

	"go.uber.org/zap"
)

// CallbackTask 待持久化的网关回调
type CallbackTask struct {
	Callback *model.PaymentCallback
	Retry    int // 重试次数
}

// CallbackStore 回调审计存储
type CallbackStore interface {
	CreateCallback(ctx context.Context, cb *model.PaymentCallback) error
}

var ErrPoolStopped = errors.New("worker pool stopped")

// redactedFields 死信日志中不输出的网关字段
var redactedFields = []string{"hash"}

type WorkerPool struct {
	TaskQueue  chan CallbackTask
	Store      CallbackStore
	WorkerNum  int
	MaxRetry   int           // 最大重试次数
	RetryDelay time.Duration // 第 n 次重试前等待 n*RetryDelay

	exec    *database.Executor
	log     *zap.Logger
	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewWorkerPool exec 为 nil 时直接写入 store
func NewWorkerPool(store CallbackStore, exec *database.Executor, log *zap.Logger, workerNum int, bufferSize int) *WorkerPool {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		TaskQueue:  make(chan CallbackTask, bufferSize),
		Store:      store,
		WorkerNum:  workerNum,
		MaxRetry:   3, // 最多重试3次
		RetryDelay: time.Second,
		exec:       exec,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (p *WorkerPool) Start() {
	for i := 0; i < p.WorkerNum; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.log.Info("Worker pool started", zap.Int("workers", p.WorkerNum))
}

// Stop 停止接收任务并等待队列排空，ctx 到期时放弃剩余任务
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.TaskQueue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for task := range p.TaskQueue {
		p.process(id, task)
	}
}

// process 写入失败时在当前协程内退避重试
func (p *WorkerPool) process(id int, task CallbackTask) {
	for {
		err := p.persist(task.Callback)
		if err == nil {
			return
		}

		if task.Retry >= p.MaxRetry {
			p.logFailedTask(task, err)
			return
		}
		task.Retry++
		p.log.Warn("Failed to persist callback, retrying",
			zap.Int("worker", id),
			zap.String("txn_id", task.Callback.TxnID),
			zap.Int("attempt", task.Retry),
			zap.Error(err),
		)

		t := time.NewTimer(time.Duration(task.Retry) * p.RetryDelay)
		select {
		case <-t.C:
		case <-p.ctx.Done():
			t.Stop()
			p.logFailedTask(task, err)
			return
		}
	}
}

// persist 经执行器写入，库不可用时先退避重试
func (p *WorkerPool) persist(cb *model.PaymentCallback) error {
	if p.exec == nil {
		return p.Store.CreateCallback(p.ctx, cb)
	}
	_, err := database.Execute(p.ctx, p.exec, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.Store.CreateCallback(ctx, cb)
	}, database.WithTag("callback.create"))
	return err
}

func (p *WorkerPool) logFailedTask(task CallbackTask, err error) {
	p.log.Error("[DeadLetter] Callback audit dropped",
		zap.String("txn_id", task.Callback.TxnID),
		zap.String("outcome", task.Callback.Outcome),
		zap.ByteString("metadata", redact(task.Callback.Metadata)),
		zap.Error(err),
	)
}

// redact 去掉回调参数中的签名字段，无法解析时整体不输出
func redact(metadata json.RawMessage) []byte {
	if len(metadata) == 0 {
		return nil
	}
	var params map[string]json.RawMessage
	if err := json.Unmarshal(metadata, &params); err != nil {
		return nil
	}
	for _, k := range redactedFields {
		delete(params, k)
	}
	out, err := json.Marshal(params)
	if err != nil {
		return nil
	}
	return out
}

// AddTask 非阻塞入队，队列满或已停止时丢弃并记录
func (p *WorkerPool) AddTask(task CallbackTask) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		p.logFailedTask(task, ErrPoolStopped)
		return
	}

	select {
	case p.TaskQueue <- task:
	default:
		p.logFailedTask(task, errors.New("queue full"))
	}
}
