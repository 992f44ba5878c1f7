package service

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"sudooom.im.group/internal/model"
	"sudooom.im.group/internal/store"
	apperrors "sudooom.im.group/pkg/errors"
)

// CreateDirectMessageRequest 私聊请求
type CreateDirectMessageRequest struct {
	UserId string `json:"userId" binding:"required"`
}

// DirectMessageService 私聊配对：每对用户最多一个私聊群组
type DirectMessageService struct {
	*base
}

// NewDirectMessageService 创建私聊服务
func NewDirectMessageService(opts Options) *DirectMessageService {
	return &DirectMessageService{base: newBase(opts)}
}

// CreateOrGetDirectMessage 获取或创建与 otherUserId 的私聊。
// 并发创建同一用户对时只有一个事务能写入配对行，失败方重试一次纯查询
func (s *DirectMessageService) CreateOrGetDirectMessage(ctx context.Context, callerId, otherUserId string) (view *model.DirectMessageView, err error) {
	ctx, span := s.start(ctx, "DirectMessageService.CreateOrGetDirectMessage",
		userAttr(callerId), attribute.String("other.id", otherUserId))
	defer func() { finish(span, err) }()

	callerId = strings.TrimSpace(callerId)
	otherUserId = strings.TrimSpace(otherUserId)
	if callerId == "" || otherUserId == "" {
		return nil, apperrors.ErrDirectPairInvalid
	}
	if callerId == otherUserId {
		return nil, apperrors.ErrCannotMessageSelf
	}
	user1, user2 := model.CanonicalPair(callerId, otherUserId)

	view, created, err := s.resolve(ctx, callerId, user1, user2, true)
	if errors.Is(err, store.ErrUniqueViolation) {
		s.logger.Debug("Direct message pair created concurrently, retrying lookup", "user1", user1, "user2", user2)
		span.AddEvent("retry_lookup")
		view, _, err = s.resolve(ctx, callerId, user1, user2, false)
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Error("Direct message pair missing after unique violation", "user1", user1, "user2", user2)
			return nil, apperrors.ErrDirectPairLost
		}
	}
	if err != nil {
		return nil, internalError(err)
	}

	span.SetAttributes(groupAttr(view.GroupId), attribute.Bool("created", created))
	if created {
		s.logger.Info("Direct message group created", "groupId", view.GroupId, "user1", user1, "user2", user2)
		s.afterCommit(ctx, &model.Event{
			Type:     model.EventDirectCreated,
			GroupId:  view.GroupId,
			ActorId:  callerId,
			TargetId: otherUserId,
		}, view.GroupId)
	}
	return view, nil
}

// resolve 在一个事务内查找配对；create 为 true 时未找到则写入群组、两名成员与配对行
func (s *DirectMessageService) resolve(ctx context.Context, callerId, user1, user2 string, create bool) (*model.DirectMessageView, bool, error) {
	var (
		view    *model.DirectMessageView
		created bool
	)
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		dm, err := tx.GetDirectMessage(ctx, user1, user2)
		if err == nil {
			view, err = s.lookupView(ctx, tx, dm, callerId)
			return err
		}
		if !errors.Is(err, store.ErrNotFound) || !create {
			return err
		}

		now := s.now()
		group := &model.Group{
			Id:        s.ids.NextID(),
			Kind:      model.GroupKindDirect,
			CreatedBy: callerId,
			CreatedAt: now,
			Active:    true,
		}
		if err := tx.InsertGroup(ctx, group); err != nil {
			return err
		}
		for _, userId := range []string{user1, user2} {
			if err := tx.InsertMember(ctx, &model.GroupMember{
				GroupId:  group.Id,
				UserId:   userId,
				Role:     model.RoleMember,
				JoinedAt: now,
				Active:   true,
			}); err != nil {
				return err
			}
		}
		if err := tx.InsertDirectMessage(ctx, &model.DirectMessageGroup{
			User1Id:   user1,
			User2Id:   user2,
			GroupId:   group.Id,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		created = true
		view = &model.DirectMessageView{
			GroupId:     group.Id,
			OtherUserId: (&model.DirectMessageGroup{User1Id: user1, User2Id: user2}).Other(callerId),
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return view, created, nil
}

// lookupView 读取已存在私聊的调用方视图；调用方曾退出时重新激活
func (s *DirectMessageService) lookupView(ctx context.Context, tx store.Tx, dm *model.DirectMessageGroup, callerId string) (*model.DirectMessageView, error) {
	group, err := tx.GetGroup(ctx, dm.GroupId)
	if err != nil {
		return nil, err
	}
	view := &model.DirectMessageView{
		GroupId:       dm.GroupId,
		OtherUserId:   dm.Other(callerId),
		LastMessageAt: group.LastMessageAt,
	}

	member, err := tx.GetMember(ctx, dm.GroupId, callerId)
	if errors.Is(err, store.ErrNotFound) {
		return view, nil
	}
	if err != nil {
		return nil, err
	}
	if !member.Active {
		member.Active = true
		member.JoinedAt = s.now()
		member.LeftAt = nil
		if err := tx.UpdateMember(ctx, member); err != nil {
			return nil, err
		}
	}
	view.Muted = member.Muted
	return view, nil
}

// ListUserDirectMessages 获取用户的私聊列表，最近活跃的在前
func (s *DirectMessageService) ListUserDirectMessages(ctx context.Context, userId string) (views []model.DirectMessageView, err error) {
	ctx, span := s.start(ctx, "DirectMessageService.ListUserDirectMessages", userAttr(userId))
	defer func() { finish(span, err) }()

	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		list, err := tx.ListUserDirectMessages(ctx, userId)
		if err != nil {
			return err
		}
		views = list
		return nil
	})
	if err != nil {
		return nil, internalError(err)
	}
	if views == nil {
		views = []model.DirectMessageView{}
	}
	return views, nil
}
