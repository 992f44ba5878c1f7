// Package store 定义群组服务的事务型存储抽象。
//
// 所有业务操作都在一次 WithTransaction 调用中完成，唯一约束冲突以
// ErrUniqueViolation 暴露给上层，用于私聊配对和待处理邀请的并发去重。
package store

import (
	"context"
	"errors"
	"time"

	"sudooom.im.group/internal/model"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("store: record not found")
	// ErrUniqueViolation 唯一约束冲突
	ErrUniqueViolation = errors.New("store: unique constraint violation")
	// ErrStateChanged 条件更新未命中（状态已被其他事务修改）
	ErrStateChanged = errors.New("store: state changed concurrently")
)

// TxFunc 事务内执行的函数，返回错误时整个事务回滚
type TxFunc func(ctx context.Context, tx Tx) error

// Store 事务型存储
type Store interface {
	// WithTransaction 在单个事务中执行 fn，fn 返回 nil 时提交
	WithTransaction(ctx context.Context, fn TxFunc) error
	Ping(ctx context.Context) error
	Close() error
}

// ExpireFilter 批量过期条件，零值字段表示不限制。
// IgnoreDeadline 为 true 时不看 expires_at，过期全部符合条件的 pending 邀请
type ExpireFilter struct {
	Now            time.Time
	GroupId        int64
	InvitedUser    string
	Limit          int
	IgnoreDeadline bool
}

// Tx 事务内可用的类型化读写操作
type Tx interface {
	GroupTx
	MemberTx
	InvitationTx
	DirectMessageTx
}

// GroupTx 群组读写
type GroupTx interface {
	InsertGroup(ctx context.Context, group *model.Group) error
	GetGroup(ctx context.Context, id int64) (*model.Group, error)
	// LockGroup 读取并锁定群组行，同一群的成员变更在此串行化
	LockGroup(ctx context.Context, id int64) (*model.Group, error)
	UpdateGroup(ctx context.Context, group *model.Group) error
	DeleteGroup(ctx context.Context, id int64) error
	// TouchGroupActivity 单调推进 last_message_at
	TouchGroupActivity(ctx context.Context, id int64, at time.Time) error
	ListUserGroups(ctx context.Context, userId string) ([]model.GroupSummary, error)
}

// MemberTx 成员读写
type MemberTx interface {
	InsertMember(ctx context.Context, member *model.GroupMember) error
	GetMember(ctx context.Context, groupId int64, userId string) (*model.GroupMember, error)
	UpdateMember(ctx context.Context, member *model.GroupMember) error
	ListActiveMembers(ctx context.Context, groupId int64) ([]model.GroupMember, error)
	CountActiveMembers(ctx context.Context, groupId int64) (int, error)
}

// InvitationTx 邀请读写
type InvitationTx interface {
	InsertInvitation(ctx context.Context, invitation *model.GroupInvitation) error
	GetInvitation(ctx context.Context, id int64) (*model.GroupInvitation, error)
	GetPendingInvitation(ctx context.Context, groupId int64, invitedUser string) (*model.GroupInvitation, error)
	// TransitionInvitation 仅当当前状态为 pending 时迁移，否则返回 ErrStateChanged
	TransitionInvitation(ctx context.Context, id int64, to model.InvitationStatus, at time.Time) error
	// ExpireInvitations 把已过期的 pending 邀请标记为 expired，返回影响行数
	ExpireInvitations(ctx context.Context, filter ExpireFilter) (int64, error)
	ListPendingInvitations(ctx context.Context, invitedUser string) ([]model.InvitationView, error)
}

// DirectMessageTx 私聊映射读写
type DirectMessageTx interface {
	InsertDirectMessage(ctx context.Context, dm *model.DirectMessageGroup) error
	GetDirectMessage(ctx context.Context, user1Id, user2Id string) (*model.DirectMessageGroup, error)
	ListUserDirectMessages(ctx context.Context, userId string) ([]model.DirectMessageView, error)
}
