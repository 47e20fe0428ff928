package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"relay_bot/internal/logger"
	"relay_bot/internal/metrics"
)

// ErrWorkerPoolClosed 工作池已关闭
var ErrWorkerPoolClosed = errors.New("worker pool is closed")

// Task 工作池任务
type Task struct {
	Name string
	Ctx  context.Context
	Run  func(ctx context.Context)
}

// WorkerPoolStats 工作池状态
type WorkerPoolStats struct {
	Workers       int
	QueueLength   int
	QueueCapacity int
}

// WorkerPool 入站消息工作池
// 同一时刻最多 workers 条消息在做过滤、AI 改写和入队
type WorkerPool struct {
	mu        sync.RWMutex
	closed    bool
	taskQueue chan Task
	wg        sync.WaitGroup
	workers   int
}

// NewWorkerPool 创建工作池
func NewWorkerPool(workers int, queueSize int) *WorkerPool {
	pool := &WorkerPool{
		taskQueue: make(chan Task, queueSize),
		workers:   workers,
	}

	for i := 0; i < workers; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	logger.L().Infof("Worker pool started with %d workers, queue size %d", workers, queueSize)
	return pool
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for task := range p.taskQueue {
		metrics.WorkerPoolQueued.Set(float64(len(p.taskQueue)))
		p.run(id, task)
	}

	logger.L().Debugf("Worker %d stopped", id)
}

// run 执行任务，panic 只影响当前任务
func (p *WorkerPool) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			logger.L().Errorf("Worker %d: task %s panic recovered: %v", id, task.Name, r)
		}
	}()

	ctx := task.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	task.Run(ctx)
}

// Submit 提交命令任务；队列已满或已关闭时丢弃并返回 false
func (p *WorkerPool) Submit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		logger.L().Warnf("Worker pool is closed, task %s dropped", task.Name)
		return false
	}

	select {
	case p.taskQueue <- task:
		metrics.WorkerPoolQueued.Set(float64(len(p.taskQueue)))
		return true
	default:
		logger.L().Warnf("Worker pool queue is full, task %s dropped", task.Name)
		return false
	}
}

// SubmitWait 提交任务；队列已满时阻塞等待空位，直到 ctx 结束
// 入站消息走这里，队列满时对更新循环形成背压而不是丢弃
func (p *WorkerPool) SubmitWait(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrWorkerPoolClosed
	}

	select {
	case p.taskQueue <- task:
		metrics.WorkerPoolQueued.Set(float64(len(p.taskQueue)))
		return nil
	default:
	}

	logger.L().Debugf("Worker pool queue is full, task %s waiting", task.Name)
	select {
	case p.taskQueue <- task:
		metrics.WorkerPoolQueued.Set(float64(len(p.taskQueue)))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for worker pool slot: %w", ctx.Err())
	}
}

// Stats 当前状态
func (p *WorkerPool) Stats() WorkerPoolStats {
	return WorkerPoolStats{
		Workers:       p.workers,
		QueueLength:   len(p.taskQueue),
		QueueCapacity: cap(p.taskQueue),
	}
}

// Shutdown 停止接收新任务并等待已提交的任务完成（可重复调用）
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.closed = true
	close(p.taskQueue)
	p.mu.Unlock()

	logger.L().Info("Shutting down worker pool...")
	p.wg.Wait()
	logger.L().Info("Worker pool shut down successfully")
}
