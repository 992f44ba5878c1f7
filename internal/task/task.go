// Package task 基于时间轮的后台任务调度，支持一次性与周期性任务。
package task

import (
	"context"
	"time"
)

// TaskFunc 任务执行函数类型
type TaskFunc func(ctx context.Context, target string) error

// Task 任务定义
type Task struct {
	ID        string    `json:"id"`        // 任务唯一ID
	Target    string    `json:"target"`    // 操作对象标识
	Delay     int       `json:"delay"`     // 首次延迟格数 (1-SlotCount)
	Every     int       `json:"every"`     // 重复间隔格数，0 表示只执行一次
	Runs      int64     `json:"runs"`      // 已执行次数
	Fn        TaskFunc  `json:"-"`         // 执行函数
	CreatedAt time.Time `json:"createdAt"` // 创建时间
}

// NewTask 创建一次性任务
func NewTask(id, target string, delay int, fn TaskFunc) *Task {
	return &Task{
		ID:        id,
		Target:    target,
		Delay:     delay,
		Fn:        fn,
		CreatedAt: time.Now(),
	}
}

// NewRecurringTask 创建周期任务，首次在 every 格后执行
func NewRecurringTask(id, target string, every int, fn TaskFunc) *Task {
	t := NewTask(id, target, every, fn)
	t.Every = every
	return t
}

// Recurring 是否为周期任务
func (t *Task) Recurring() bool {
	return t.Every > 0
}

// Execute 执行任务
func (t *Task) Execute(ctx context.Context) error {
	if t.Fn == nil {
		return nil
	}
	return t.Fn(ctx, t.Target)
}
