package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"sudooom.im.group/internal/authz"
	"sudooom.im.group/internal/model"
	"sudooom.im.group/internal/store"
	apperrors "sudooom.im.group/pkg/errors"
)

// ChangeRoleRequest 修改角色请求
type ChangeRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// MarkReadRequest 已读请求，At 为空时取当前时间
type MarkReadRequest struct {
	At *time.Time `json:"at"`
}

// MemberService 成员生命周期与角色管理
type MemberService struct {
	*base
}

// NewMemberService 创建成员服务
func NewMemberService(opts Options) *MemberService {
	return &MemberService{base: newBase(opts)}
}

// LeaveGroup 主动退群（软退出）。群主在还有其他成员时必须先转让
func (s *MemberService) LeaveGroup(ctx context.Context, groupId int64, callerId string) (err error) {
	ctx, span := s.start(ctx, "MemberService.LeaveGroup", groupAttr(groupId), userAttr(callerId))
	defer func() { finish(span, err) }()

	var voided int64
	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := loadActiveGroup(ctx, tx, groupId); err != nil {
			return err
		}
		member, err := activeMember(ctx, tx, groupId, callerId)
		if err != nil {
			return err
		}
		if member == nil {
			return apperrors.ErrMemberNotFound
		}

		count, err := tx.CountActiveMembers(ctx, groupId)
		if err != nil {
			return err
		}
		if err := authz.CheckLeave(member.Role, count-1); err != nil {
			return err
		}

		leftAt := s.now()
		member.Active = false
		member.LeftAt = &leftAt
		if err := tx.UpdateMember(ctx, member); err != nil {
			return err
		}

		// 最后一人退出后群内没有群主，未处理的邀请一并作废
		if count == 1 {
			expired, err := tx.ExpireInvitations(ctx, store.ExpireFilter{Now: leftAt, GroupId: groupId, IgnoreDeadline: true})
			if err != nil {
				return err
			}
			voided = expired
		}
		return nil
	})
	if err != nil {
		return internalError(err)
	}

	s.logger.Info("Member left group", "groupId", groupId, "userId", callerId, "voidedInvitations", voided)
	s.afterCommit(ctx, &model.Event{
		Type:     model.EventMemberLeft,
		GroupId:  groupId,
		ActorId:  callerId,
		TargetId: callerId,
	}, groupId)
	return nil
}

// RemoveMember 移除成员：群主可移除管理员和成员，管理员只能移除普通成员
func (s *MemberService) RemoveMember(ctx context.Context, groupId int64, callerId, targetUserId string) (err error) {
	ctx, span := s.start(ctx, "MemberService.RemoveMember",
		groupAttr(groupId), userAttr(callerId), attribute.String("target.id", targetUserId))
	defer func() { finish(span, err) }()

	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := loadActiveGroup(ctx, tx, groupId); err != nil {
			return err
		}
		caller, err := requireMember(ctx, tx, groupId, callerId)
		if err != nil {
			return err
		}
		if err := authz.Require(caller.Role, authz.OpRemoveMember); err != nil {
			return err
		}

		target, err := activeMember(ctx, tx, groupId, targetUserId)
		if err != nil {
			return err
		}
		if target == nil {
			return apperrors.ErrMemberNotFound
		}
		if err := authz.CheckRemove(caller.Role, target.Role); err != nil {
			return err
		}

		leftAt := s.now()
		target.Active = false
		target.LeftAt = &leftAt
		return tx.UpdateMember(ctx, target)
	})
	if err != nil {
		return internalError(err)
	}

	s.logger.Info("Member removed", "groupId", groupId, "callerId", callerId, "targetId", targetUserId)
	s.afterCommit(ctx, &model.Event{
		Type:     model.EventMemberRemoved,
		GroupId:  groupId,
		ActorId:  callerId,
		TargetId: targetUserId,
	}, groupId)
	return nil
}

// ChangeRole 修改成员角色，仅群主。newRole 为 owner 时在同一事务内完成转让：
// 先把调用方降为 admin，再把目标升为 owner
func (s *MemberService) ChangeRole(ctx context.Context, groupId int64, callerId, targetUserId string, newRole model.Role) (updated *model.GroupMember, err error) {
	ctx, span := s.start(ctx, "MemberService.ChangeRole",
		groupAttr(groupId), userAttr(callerId),
		attribute.String("target.id", targetUserId), attribute.String("role", string(newRole)))
	defer func() { finish(span, err) }()

	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := loadActiveGroup(ctx, tx, groupId); err != nil {
			return err
		}
		caller, err := requireMember(ctx, tx, groupId, callerId)
		if err != nil {
			return err
		}
		if err := authz.CheckRoleChange(caller.Role, callerId == targetUserId, newRole); err != nil {
			return err
		}

		target, err := activeMember(ctx, tx, groupId, targetUserId)
		if err != nil {
			return err
		}
		if target == nil {
			return apperrors.ErrMemberNotFound
		}

		if newRole == model.RoleOwner {
			caller.Role = model.RoleAdmin
			if err := tx.UpdateMember(ctx, caller); err != nil {
				return err
			}
		}
		target.Role = newRole
		if err := tx.UpdateMember(ctx, target); err != nil {
			return err
		}
		updated = target
		return nil
	})
	if err != nil {
		return nil, internalError(err)
	}

	eventType := model.EventMemberRoleChanged
	if newRole == model.RoleOwner {
		eventType = model.EventOwnershipTransfer
		s.logger.Info("Group ownership transferred", "groupId", groupId, "from", callerId, "to", targetUserId)
	}
	s.afterCommit(ctx, &model.Event{
		Type:     eventType,
		GroupId:  groupId,
		ActorId:  callerId,
		TargetId: targetUserId,
		Role:     newRole,
	}, groupId)
	return updated, nil
}

// UpdateMemberSettings 修改自己的群昵称与免打扰。空昵称表示清除
func (s *MemberService) UpdateMemberSettings(ctx context.Context, groupId int64, callerId string, settings model.MemberSettings) (member *model.GroupMember, err error) {
	ctx, span := s.start(ctx, "MemberService.UpdateMemberSettings", groupAttr(groupId), userAttr(callerId))
	defer func() { finish(span, err) }()

	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := getActiveGroup(ctx, tx, groupId); err != nil {
			return err
		}
		current, err := requireMember(ctx, tx, groupId, callerId)
		if err != nil {
			return err
		}

		if settings.Nickname != nil {
			nickname := strings.TrimSpace(*settings.Nickname)
			if nickname == "" {
				current.Nickname = nil
			} else {
				current.Nickname = &nickname
			}
		}
		if settings.Muted != nil {
			current.Muted = *settings.Muted
		}
		if err := tx.UpdateMember(ctx, current); err != nil {
			return err
		}
		member = current
		return nil
	})
	if err != nil {
		return nil, internalError(err)
	}
	return member, nil
}

// ListGroupMembers 获取在群成员，仅在群成员可见
func (s *MemberService) ListGroupMembers(ctx context.Context, groupId int64, callerId string) (members []model.GroupMember, err error) {
	ctx, span := s.start(ctx, "MemberService.ListGroupMembers", groupAttr(groupId), userAttr(callerId))
	defer func() { finish(span, err) }()

	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := getActiveGroup(ctx, tx, groupId); err != nil {
			return err
		}
		if _, err := requireMember(ctx, tx, groupId, callerId); err != nil {
			return err
		}
		list, err := tx.ListActiveMembers(ctx, groupId)
		if err != nil {
			return err
		}
		members = list
		return nil
	})
	if err != nil {
		return nil, internalError(err)
	}
	return members, nil
}

// MarkRead 更新已读位置，只前进不后退
func (s *MemberService) MarkRead(ctx context.Context, groupId int64, callerId string, at time.Time) (err error) {
	ctx, span := s.start(ctx, "MemberService.MarkRead", groupAttr(groupId), userAttr(callerId))
	defer func() { finish(span, err) }()

	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC().Truncate(time.Millisecond)

	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := getActiveGroup(ctx, tx, groupId); err != nil {
			return err
		}
		member, err := requireMember(ctx, tx, groupId, callerId)
		if err != nil {
			return err
		}
		if member.LastReadAt != nil && !at.After(*member.LastReadAt) {
			return nil
		}
		member.LastReadAt = &at
		return tx.UpdateMember(ctx, member)
	})
	return internalError(err)
}

// IsActiveMember 用户是否为在群成员。优先读缓存，未命中时回源并回填
func (s *MemberService) IsActiveMember(ctx context.Context, groupId int64, userId string) (ok bool, err error) {
	ctx, span := s.start(ctx, "MemberService.IsActiveMember", groupAttr(groupId), userAttr(userId))
	defer func() { finish(span, err) }()

	fill := false
	var generation int64
	if s.cache != nil {
		members, hit, cacheErr := s.cache.GetMembers(ctx, groupId)
		if cacheErr != nil {
			s.logger.Warn("Membership cache read failed", "groupId", groupId, "error", cacheErr)
		} else if hit {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return slices.Contains(members, userId), nil
		}
		// 代数必须在回源之前读取
		gen, genErr := s.cache.Generation(ctx, groupId)
		if genErr != nil {
			s.logger.Warn("Membership cache generation read failed", "groupId", groupId, "error", genErr)
		} else {
			generation, fill = gen, true
		}
	}

	var userIds []string
	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		group, err := tx.GetGroup(ctx, groupId)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !group.Active {
			return nil
		}
		members, err := tx.ListActiveMembers(ctx, groupId)
		if err != nil {
			return err
		}
		userIds = make([]string, 0, len(members))
		for _, m := range members {
			userIds = append(userIds, m.UserId)
		}
		return nil
	})
	if err != nil {
		return false, internalError(err)
	}

	if fill && userIds != nil {
		stored, err := s.cache.SetMembers(ctx, groupId, generation, userIds)
		if err != nil {
			s.logger.Warn("Membership cache write failed", "groupId", groupId, "error", err)
		} else if !stored {
			s.logger.Debug("Membership cache fill skipped, invalidated during read", "groupId", groupId)
		}
	}
	return slices.Contains(userIds, userId), nil
}
