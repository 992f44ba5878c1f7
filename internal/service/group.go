package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"sudooom.im.group/internal/authz"
	"sudooom.im.group/internal/model"
	"sudooom.im.group/internal/store"
	apperrors "sudooom.im.group/pkg/errors"
)

// CreateGroupRequest 创建群组请求
type CreateGroupRequest struct {
	Name        *string `json:"name" binding:"required"`
	Avatar      *string `json:"avatar"`
	Description *string `json:"description"`
}

// GroupService 群组生命周期
type GroupService struct {
	*base
}

// NewGroupService 创建群组服务
func NewGroupService(opts Options) *GroupService {
	return &GroupService{base: newBase(opts)}
}

// CreateGroup 创建群组，群组与群主成员在同一事务内写入
func (s *GroupService) CreateGroup(ctx context.Context, creatorId string, req *CreateGroupRequest) (detail *model.GroupDetail, err error) {
	ctx, span := s.start(ctx, "GroupService.CreateGroup", userAttr(creatorId))
	defer func() { finish(span, err) }()

	if strings.TrimSpace(creatorId) == "" || req == nil {
		return nil, apperrors.ErrInvalidParams
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		return nil, apperrors.ErrGroupNameRequired
	}
	name := strings.TrimSpace(*req.Name)

	now := s.now()
	group := &model.Group{
		Id:          s.ids.NextID(),
		Name:        &name,
		Avatar:      req.Avatar,
		Description: req.Description,
		Kind:        model.GroupKindGroup,
		CreatedBy:   creatorId,
		CreatedAt:   now,
		Active:      true,
	}
	owner := model.GroupMember{
		GroupId:  group.Id,
		UserId:   creatorId,
		Role:     model.RoleOwner,
		JoinedAt: now,
		Active:   true,
	}

	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertGroup(ctx, group); err != nil {
			return err
		}
		return tx.InsertMember(ctx, &owner)
	})
	if err != nil {
		return nil, internalError(err)
	}

	span.SetAttributes(groupAttr(group.Id))
	s.logger.Info("Group created", "groupId", group.Id, "creatorId", creatorId)
	s.afterCommit(ctx, &model.Event{
		Type:    model.EventGroupCreated,
		GroupId: group.Id,
		ActorId: creatorId,
	}, group.Id)

	return &model.GroupDetail{
		Group:       *group,
		MemberCount: 1,
		Members:     []model.GroupMember{owner},
	}, nil
}

// GetGroup 获取群详情（含在群成员），仅在群成员可见
func (s *GroupService) GetGroup(ctx context.Context, groupId int64, callerId string) (detail *model.GroupDetail, err error) {
	ctx, span := s.start(ctx, "GroupService.GetGroup", groupAttr(groupId), userAttr(callerId))
	defer func() { finish(span, err) }()

	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		group, err := tx.GetGroup(ctx, groupId)
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.ErrGroupNotFound
		}
		if err != nil {
			return err
		}
		if !group.Active {
			return apperrors.ErrGroupNotFound
		}

		member, err := requireMember(ctx, tx, groupId, callerId)
		if err != nil {
			return err
		}
		if err := authz.Require(member.Role, authz.OpViewGroup); err != nil {
			return err
		}

		members, err := tx.ListActiveMembers(ctx, groupId)
		if err != nil {
			return err
		}
		detail = &model.GroupDetail{
			Group:       *group,
			MemberCount: len(members),
			Members:     members,
		}
		return nil
	})
	if err != nil {
		return nil, internalError(err)
	}
	return detail, nil
}

// UpdateGroup 更新群资料，仅群主和管理员
func (s *GroupService) UpdateGroup(ctx context.Context, groupId int64, callerId string, patch model.GroupPatch) (detail *model.GroupDetail, err error) {
	ctx, span := s.start(ctx, "GroupService.UpdateGroup", groupAttr(groupId), userAttr(callerId))
	defer func() { finish(span, err) }()

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, apperrors.ErrInvalidGroupUpdate
		}
		patch.Name = &name
	}

	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		group, err := loadActiveGroup(ctx, tx, groupId)
		if err != nil {
			return err
		}
		member, err := requireMember(ctx, tx, groupId, callerId)
		if err != nil {
			return err
		}
		if err := authz.Require(member.Role, authz.OpUpdateGroup); err != nil {
			return err
		}

		if patch.Name != nil {
			group.Name = patch.Name
		}
		if patch.Avatar != nil {
			group.Avatar = patch.Avatar
		}
		if patch.Description != nil {
			group.Description = patch.Description
		}
		updatedAt := s.now()
		group.UpdatedAt = &updatedAt

		if err := tx.UpdateGroup(ctx, group); err != nil {
			return err
		}
		count, err := tx.CountActiveMembers(ctx, groupId)
		if err != nil {
			return err
		}
		detail = &model.GroupDetail{Group: *group, MemberCount: count}
		return nil
	})
	if err != nil {
		return nil, internalError(err)
	}

	s.afterCommit(ctx, &model.Event{
		Type:    model.EventGroupUpdated,
		GroupId: groupId,
		ActorId: callerId,
	})
	return detail, nil
}

// ArchiveGroup 归档群组（软删除），仅群主和管理员
func (s *GroupService) ArchiveGroup(ctx context.Context, groupId int64, callerId string) (err error) {
	ctx, span := s.start(ctx, "GroupService.ArchiveGroup", groupAttr(groupId), userAttr(callerId))
	defer func() { finish(span, err) }()

	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		group, err := loadActiveGroup(ctx, tx, groupId)
		if err != nil {
			return err
		}
		member, err := requireMember(ctx, tx, groupId, callerId)
		if err != nil {
			return err
		}
		if err := authz.Require(member.Role, authz.OpArchiveGroup); err != nil {
			return err
		}

		updatedAt := s.now()
		group.Active = false
		group.UpdatedAt = &updatedAt
		return tx.UpdateGroup(ctx, group)
	})
	if err != nil {
		return internalError(err)
	}

	s.logger.Info("Group archived", "groupId", groupId, "callerId", callerId)
	s.afterCommit(ctx, &model.Event{
		Type:    model.EventGroupArchived,
		GroupId: groupId,
		ActorId: callerId,
	}, groupId)
	return nil
}

// DeleteGroup 删除群组，仅群主；成员、邀请、私聊映射级联删除。已归档的群组也可删除
func (s *GroupService) DeleteGroup(ctx context.Context, groupId int64, callerId string) (err error) {
	ctx, span := s.start(ctx, "GroupService.DeleteGroup", groupAttr(groupId), userAttr(callerId))
	defer func() { finish(span, err) }()

	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockGroup(ctx, groupId); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperrors.ErrGroupNotFound
			}
			return err
		}
		member, err := requireMember(ctx, tx, groupId, callerId)
		if err != nil {
			return err
		}
		if err := authz.Require(member.Role, authz.OpDeleteGroup); err != nil {
			return err
		}
		return tx.DeleteGroup(ctx, groupId)
	})
	if err != nil {
		return internalError(err)
	}

	s.logger.Info("Group deleted", "groupId", groupId, "callerId", callerId)
	s.afterCommit(ctx, &model.Event{
		Type:    model.EventGroupDeleted,
		GroupId: groupId,
		ActorId: callerId,
	}, groupId)
	return nil
}

// ListUserGroups 获取用户所在的活跃群组，最近活跃的在前
func (s *GroupService) ListUserGroups(ctx context.Context, userId string) (groups []model.GroupSummary, err error) {
	ctx, span := s.start(ctx, "GroupService.ListUserGroups", userAttr(userId))
	defer func() { finish(span, err) }()

	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		groups, err = tx.ListUserGroups(ctx, userId)
		return err
	})
	if err != nil {
		return nil, internalError(err)
	}
	if groups == nil {
		groups = []model.GroupSummary{}
	}
	span.SetAttributes(attribute.Int("group.count", len(groups)))
	return groups, nil
}

// RecordActivity 推进群组最后消息时间，只前进不后退
func (s *GroupService) RecordActivity(ctx context.Context, groupId int64, at time.Time) (err error) {
	ctx, span := s.start(ctx, "GroupService.RecordActivity", groupAttr(groupId))
	defer func() { finish(span, err) }()

	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC().Truncate(time.Millisecond)

	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		err := tx.TouchGroupActivity(ctx, groupId, at)
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.ErrGroupNotFound
		}
		return err
	})
	return internalError(err)
}
