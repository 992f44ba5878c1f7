// Package service 群组成员、邀请与私聊配对的核心业务。
//
// 每个公开操作都在一次存储事务内完成；事务提交后才失效成员缓存并发布事件，
// 这两步失败只记录日志，不影响已提交的结果。
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sudooom.im.group/internal/model"
	"sudooom.im.group/internal/store"
	"sudooom.im.group/pkg/snowflake"
	apperrors "sudooom.im.group/pkg/errors"
)

// DefaultInvitationTTL 邀请默认有效期
const DefaultInvitationTTL = 7 * 24 * time.Hour

// Publisher 领域事件发布
type Publisher interface {
	Publish(ctx context.Context, event *model.Event) error
}

// MembershipCache 在群成员缓存，只用于对外的成员查询，不参与权限判定。
// 回源前先取 Generation，SetMembers 只在代数未被 Invalidate 推进时写入
type MembershipCache interface {
	GetMembers(ctx context.Context, groupId int64) (members []string, ok bool, err error)
	Generation(ctx context.Context, groupId int64) (int64, error)
	SetMembers(ctx context.Context, groupId, generation int64, members []string) (stored bool, err error)
	Invalidate(ctx context.Context, groupIds ...int64) error
}

// Options 服务依赖
type Options struct {
	Store         store.Store
	IDs           snowflake.Generator
	Publisher     Publisher       // 可选
	Cache         MembershipCache // 可选
	InvitationTTL time.Duration
	Clock         func() time.Time // 测试用，默认 time.Now
}

// base 各服务共享的依赖
type base struct {
	store     store.Store
	ids       snowflake.Generator
	publisher Publisher
	cache     MembershipCache
	clock     func() time.Time
	tracer    trace.Tracer
	logger    *slog.Logger
}

func newBase(opts Options) *base {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &base{
		store:     opts.Store,
		ids:       opts.IDs,
		publisher: opts.Publisher,
		cache:     opts.Cache,
		clock:     clock,
		tracer:    otel.Tracer("sudooom.im.group/service"),
		logger:    slog.Default(),
	}
}

// now 毫秒精度 UTC 时间，与存储精度一致
func (b *base) now() time.Time {
	return b.clock().UTC().Truncate(time.Millisecond)
}

func (b *base) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return b.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// finish 结束 span，失败时记录错误分类
func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.kind", apperrors.KindOf(err).String()))
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// afterCommit 失效缓存并发布事件
func (b *base) afterCommit(ctx context.Context, event *model.Event, groupIds ...int64) {
	if b.cache != nil && len(groupIds) > 0 {
		if err := b.cache.Invalidate(ctx, groupIds...); err != nil {
			b.logger.Warn("Failed to invalidate membership cache", "groupIds", groupIds, "error", err)
		}
	}
	if b.publisher != nil && event != nil {
		if event.OccurredAt.IsZero() {
			event.OccurredAt = b.now()
		}
		if err := b.publisher.Publish(ctx, event); err != nil {
			b.logger.Warn("Failed to publish group event", "type", event.Type, "groupId", event.GroupId, "error", err)
		}
	}
}

// internalError 非业务错误统一包装为数据库错误
func internalError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperrors.ErrDBError.Wrap(err)
}

// loadActiveGroup 锁定群组，不存在或已归档返回 ErrGroupNotFound
func loadActiveGroup(ctx context.Context, tx store.Tx, groupId int64) (*model.Group, error) {
	group, err := tx.LockGroup(ctx, groupId)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}
	if !group.Active {
		return nil, apperrors.ErrGroupNotFound
	}
	return group, nil
}

// getActiveGroup 只读获取群组，不加锁
func getActiveGroup(ctx context.Context, tx store.Tx, groupId int64) (*model.Group, error) {
	group, err := tx.GetGroup(ctx, groupId)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}
	if !group.Active {
		return nil, apperrors.ErrGroupNotFound
	}
	return group, nil
}

// activeMember 获取在群成员，不存在或已退出返回 nil
func activeMember(ctx context.Context, tx store.Tx, groupId int64, userId string) (*model.GroupMember, error) {
	member, err := tx.GetMember(ctx, groupId, userId)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !member.Active {
		return nil, nil
	}
	return member, nil
}

// requireMember 调用方必须是在群成员
func requireMember(ctx context.Context, tx store.Tx, groupId int64, userId string) (*model.GroupMember, error) {
	member, err := activeMember(ctx, tx, groupId, userId)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, apperrors.ErrNotGroupMember
	}
	return member, nil
}

func groupAttr(groupId int64) attribute.KeyValue {
	return attribute.Int64("group.id", groupId)
}

func userAttr(userId string) attribute.KeyValue {
	return attribute.String("user.id", userId)
}
