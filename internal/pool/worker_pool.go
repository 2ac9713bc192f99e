package pool

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// WorkerPool 固定大小的协程池。
//
// 清理任务删除附件对象时使用，避免一次大扫除压垮对象存储。
type WorkerPool struct {
	maxWorkers int
	taskQueue  chan func()
	log        *zap.Logger
	wg         sync.WaitGroup
}

// NewWorkerPool 创建协程池。
func NewWorkerPool(maxWorkers, queueSize int, log *zap.Logger) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &WorkerPool{
		maxWorkers: maxWorkers,
		taskQueue:  make(chan func(), queueSize),
		log:        log,
	}
}

// Start 启动工作协程。ctx 取消后不再接收新任务。
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Submit 提交任务，队列满时阻塞。
func (p *WorkerPool) Submit(task func()) {
	p.taskQueue <- task
}

// TrySubmit 尝试提交任务，队列满时立即返回 false。
func (p *WorkerPool) TrySubmit(task func()) bool {
	select {
	case p.taskQueue <- task:
		return true
	default:
		return false
	}
}

// Stop 关闭队列并等待所有在途任务结束。
func (p *WorkerPool) Stop() {
	close(p.taskQueue)
	p.wg.Wait()
}

func (p *WorkerPool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.run(task)
		}
	}
}

// run 执行单个任务并吞掉 panic，单个任务不应拖垮整个池。
func (p *WorkerPool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("worker task panicked", zap.Any("panic", r))
		}
	}()
	task()
}
