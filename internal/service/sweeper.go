package service

import (
	"context"
	"log/slog"

	"sudooom.im.group/internal/task"
)

// sweepTaskID 周期清理任务 ID
const sweepTaskID = "invitation-sweep"

// InvitationSweeper 周期性把过期的 pending 邀请标记为 expired
type InvitationSweeper struct {
	invitations *InvitationService
	scheduler   *task.Scheduler
	every       int
	batch       int
	logger      *slog.Logger
}

// NewInvitationSweeper 创建清理器，every 为时间轮格数（每格一个 tick）
func NewInvitationSweeper(invitations *InvitationService, scheduler *task.Scheduler, every, batch int) *InvitationSweeper {
	return &InvitationSweeper{
		invitations: invitations,
		scheduler:   scheduler,
		every:       every,
		batch:       batch,
		logger:      slog.Default(),
	}
}

// Start 注册周期任务，调度器需已启动
func (w *InvitationSweeper) Start() error {
	t := task.NewRecurringTask(sweepTaskID, "group_invitations", w.every, w.sweep)
	if err := w.scheduler.AddTask(t); err != nil {
		return err
	}
	w.logger.Info("Invitation sweeper started", "every", w.every, "batch", w.batch)
	return nil
}

// Stop 取消周期任务
func (w *InvitationSweeper) Stop() {
	if err := w.scheduler.RemoveTask(sweepTaskID); err != nil {
		w.logger.Debug("Invitation sweeper task not removed", "error", err)
	}
}

func (w *InvitationSweeper) sweep(ctx context.Context, _ string) error {
	_, err := w.invitations.SweepExpired(ctx, w.batch)
	return err
}
