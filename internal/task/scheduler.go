package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrSchedulerRunning    = errors.New("task: scheduler already running")
	ErrSchedulerNotRunning = errors.New("task: scheduler not running")
	ErrInvalidTask         = errors.New("task: task id required")
	ErrTaskNotFound        = errors.New("task: task not found")
)

// Scheduler 任务调度器
type Scheduler struct {
	wheel      *TimeWheel
	workerPool *WorkerPool
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     *slog.Logger
	running    bool
	runningMu  sync.RWMutex
}

// NewScheduler 创建任务调度器，tick 为时间轮每格时长
func NewScheduler(workerCount int, tick time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		wheel:  NewTimeWheel(tick),
		ctx:    ctx,
		cancel: cancel,
		logger: slog.Default(),
	}
	s.workerPool = NewWorkerPool(workerCount, s.reschedule)
	return s
}

// Start 启动调度器
func (s *Scheduler) Start() error {
	s.runningMu.Lock()
	if s.running {
		s.runningMu.Unlock()
		return ErrSchedulerRunning
	}
	s.running = true
	s.runningMu.Unlock()

	s.workerPool.Start()

	s.wg.Add(1)
	go s.tickLoop()

	s.logger.Info("Task scheduler started", "tick", s.wheel.Interval())
	return nil
}

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.wheel.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.onTick()
		}
	}
}

func (s *Scheduler) onTick() {
	tasks := s.wheel.Tick()
	if len(tasks) == 0 {
		return
	}

	s.logger.Debug("Tick",
		"currentSlot", s.wheel.CurrentSlot(),
		"taskCount", len(tasks))

	for _, task := range tasks {
		s.workerPool.Submit(task)
	}
}

// reschedule 周期任务执行完后重新入轮
func (s *Scheduler) reschedule(task *Task) {
	if !task.Recurring() {
		return
	}

	s.runningMu.RLock()
	defer s.runningMu.RUnlock()
	if !s.running {
		return
	}

	task.Delay = task.Every
	s.wheel.AddTask(task)
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	s.runningMu.Lock()
	if !s.running {
		s.runningMu.Unlock()
		return
	}
	s.running = false
	s.runningMu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.workerPool.Stop()

	s.logger.Info("Task scheduler stopped")
}

// AddTask 添加任务
func (s *Scheduler) AddTask(task *Task) error {
	s.runningMu.RLock()
	defer s.runningMu.RUnlock()

	if !s.running {
		return ErrSchedulerNotRunning
	}
	if task == nil || task.ID == "" {
		return ErrInvalidTask
	}

	s.wheel.AddTask(task)
	return nil
}

// RemoveTask 删除任务，正在执行的周期任务在本次执行后仍会重新入轮
func (s *Scheduler) RemoveTask(taskID string) error {
	s.runningMu.RLock()
	defer s.runningMu.RUnlock()

	if !s.running {
		return ErrSchedulerNotRunning
	}
	if taskID == "" {
		return ErrInvalidTask
	}
	if !s.wheel.RemoveTask(taskID) {
		return ErrTaskNotFound
	}
	return nil
}

// IsRunning 检查调度器是否运行中
func (s *Scheduler) IsRunning() bool {
	s.runningMu.RLock()
	defer s.runningMu.RUnlock()

	return s.running
}

// Stats 调度器统计信息
func (s *Scheduler) Stats() map[string]any {
	return map[string]any{
		"running":        s.IsRunning(),
		"currentSlot":    s.wheel.CurrentSlot(),
		"totalTaskCount": s.wheel.TotalTaskCount(),
		"workerCount":    s.workerPool.workerCount,
	}
}
