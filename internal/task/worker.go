package task

import (
	"context"
	"log/slog"
	"sync"
)

// WorkerPool 工作协程池
type WorkerPool struct {
	workerCount int
	taskChan    chan *Task
	done        func(*Task)
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	logger      *slog.Logger
}

// NewWorkerPool 创建工作协程池，done 在每次执行后回调（可为 nil）
func NewWorkerPool(workerCount int, done func(*Task)) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 4
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		workerCount: workerCount,
		taskChan:    make(chan *Task, workerCount*2),
		done:        done,
		ctx:         ctx,
		cancel:      cancel,
		logger:      slog.Default(),
	}
}

// Start 启动工作协程池
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	wp.logger.Info("Worker pool started", "workerCount", wp.workerCount)
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.ctx.Done():
			return
		case task := <-wp.taskChan:
			if task == nil {
				continue
			}
			wp.executeTask(id, task)
			if wp.done != nil {
				wp.done(task)
			}
		}
	}
}

// executeTask 执行任务，panic 会被恢复
func (wp *WorkerPool) executeTask(workerID int, task *Task) {
	defer func() {
		if r := recover(); r != nil {
			wp.logger.Error("Task panicked",
				"workerID", workerID,
				"taskID", task.ID,
				"target", task.Target,
				"panic", r)
		}
	}()

	task.Runs++
	if err := task.Execute(wp.ctx); err != nil {
		wp.logger.Error("Task failed",
			"workerID", workerID,
			"taskID", task.ID,
			"target", task.Target,
			"error", err)
		return
	}
	wp.logger.Debug("Task finished",
		"workerID", workerID,
		"taskID", task.ID,
		"target", task.Target)
}

// Submit 提交任务，通道已满时阻塞直到关闭
func (wp *WorkerPool) Submit(task *Task) {
	select {
	case wp.taskChan <- task:
	case <-wp.ctx.Done():
		wp.logger.Warn("Worker pool closed, task dropped", "taskID", task.ID)
	default:
		wp.logger.Warn("Worker pool queue full, task delayed", "taskID", task.ID)
		select {
		case wp.taskChan <- task:
		case <-wp.ctx.Done():
		}
	}
}

// Stop 停止工作协程池，正在执行的任务收到取消信号
func (wp *WorkerPool) Stop() {
	wp.cancel()
	wp.wg.Wait()
	wp.logger.Info("Worker pool stopped")
}
