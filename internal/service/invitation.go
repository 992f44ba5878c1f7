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

// CreateInvitationRequest 邀请请求
type CreateInvitationRequest struct {
	UserId string `json:"userId" binding:"required"`
}

// InvitationService 群邀请生命周期。过期在访问时惰性判定，也可由 SweepExpired 批量处理
type InvitationService struct {
	*base
	ttl time.Duration
}

// NewInvitationService 创建邀请服务
func NewInvitationService(opts Options) *InvitationService {
	ttl := opts.InvitationTTL
	if ttl <= 0 {
		ttl = DefaultInvitationTTL
	}
	return &InvitationService{
		base: newBase(opts),
		ttl:  ttl,
	}
}

// CreateInvitation 邀请用户入群，仅群主和管理员。
// 同一用户同一群只能有一条 pending 邀请，由部分唯一索引保证
func (s *InvitationService) CreateInvitation(ctx context.Context, groupId int64, inviterId, invitedUserId string) (invitation *model.GroupInvitation, err error) {
	ctx, span := s.start(ctx, "InvitationService.CreateInvitation",
		groupAttr(groupId), userAttr(inviterId), attribute.String("invited.id", invitedUserId))
	defer func() { finish(span, err) }()

	invitedUserId = strings.TrimSpace(invitedUserId)
	if invitedUserId == "" {
		return nil, apperrors.ErrInvitedUserRequired
	}
	if invitedUserId == inviterId {
		return nil, apperrors.ErrCannotInviteSelf
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	invitation = &model.GroupInvitation{
		Id:          s.ids.NextID(),
		GroupId:     groupId,
		InvitedBy:   inviterId,
		InvitedUser: invitedUserId,
		Status:      model.InvitationPending,
		CreatedAt:   now,
		ExpiresAt:   &expiresAt,
	}

	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := loadActiveGroup(ctx, tx, groupId); err != nil {
			return err
		}
		inviter, err := requireMember(ctx, tx, groupId, inviterId)
		if err != nil {
			return err
		}
		if err := authz.Require(inviter.Role, authz.OpInviteMember); err != nil {
			return err
		}

		existing, err := activeMember(ctx, tx, groupId, invitedUserId)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperrors.ErrAlreadyMember
		}

		// 已过期的 pending 邀请不应阻止重新邀请
		if _, err := tx.ExpireInvitations(ctx, store.ExpireFilter{
			Now:         now,
			GroupId:     groupId,
			InvitedUser: invitedUserId,
		}); err != nil {
			return err
		}

		_, err = tx.GetPendingInvitation(ctx, groupId, invitedUserId)
		if err == nil {
			return apperrors.ErrInvitationPending
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		err = tx.InsertInvitation(ctx, invitation)
		if errors.Is(err, store.ErrUniqueViolation) {
			return apperrors.ErrInvitationPending
		}
		return err
	})
	if err != nil {
		return nil, internalError(err)
	}

	span.SetAttributes(attribute.Int64("invitation.id", invitation.Id))
	s.logger.Info("Invitation created",
		"invitationId", invitation.Id,
		"groupId", groupId,
		"inviterId", inviterId,
		"invitedUser", invitedUserId)
	s.afterCommit(ctx, &model.Event{
		Type:         model.EventInvitationCreated,
		GroupId:      groupId,
		ActorId:      inviterId,
		TargetId:     invitedUserId,
		InvitationId: invitation.Id,
	})
	return invitation, nil
}

// respondResult 处理邀请的事务结果
type respondResult struct {
	invitation *model.GroupInvitation
	member     *model.GroupMember
	expired    bool
}

// loadRespondable 校验邀请归属与状态，已过期的在本事务内标记为 expired
func (s *InvitationService) loadRespondable(ctx context.Context, tx store.Tx, invitationId int64, callerId string, now time.Time) (*model.GroupInvitation, bool, error) {
	inv, err := tx.GetInvitation(ctx, invitationId)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, apperrors.ErrInvitationNotFound
	}
	if err != nil {
		return nil, false, err
	}
	if inv.InvitedUser != callerId {
		return nil, false, apperrors.ErrNotYourInvitation
	}
	if inv.Status != model.InvitationPending {
		return nil, false, apperrors.ErrInvitationProcessed
	}

	if inv.ExpiredAt(now) {
		if err := transition(ctx, tx, inv, model.InvitationExpired, now); err != nil {
			return nil, false, err
		}
		return inv, true, nil
	}
	return inv, false, nil
}

// transition 条件迁移邀请状态，并发修改映射为已处理
func transition(ctx context.Context, tx store.Tx, inv *model.GroupInvitation, to model.InvitationStatus, at time.Time) error {
	if !inv.Status.CanTransition(to) {
		return apperrors.ErrInvitationProcessed
	}
	err := tx.TransitionInvitation(ctx, inv.Id, to, at)
	if errors.Is(err, store.ErrStateChanged) {
		return apperrors.ErrInvitationProcessed
	}
	if err != nil {
		return err
	}
	inv.Status = to
	if to != model.InvitationExpired {
		inv.RespondedAt = &at
	}
	return nil
}

// AcceptInvitation 接受邀请：加入群组（或重新激活原成员行）并标记 accepted，同一事务完成
func (s *InvitationService) AcceptInvitation(ctx context.Context, invitationId int64, callerId string) (member *model.GroupMember, err error) {
	ctx, span := s.start(ctx, "InvitationService.AcceptInvitation",
		attribute.Int64("invitation.id", invitationId), userAttr(callerId))
	defer func() { finish(span, err) }()

	now := s.now()
	var result respondResult
	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		inv, expired, err := s.loadRespondable(ctx, tx, invitationId, callerId, now)
		if err != nil {
			return err
		}
		result.invitation = inv
		if expired {
			// 提交过期状态后再返回错误
			result.expired = true
			return nil
		}

		if _, err := loadActiveGroup(ctx, tx, inv.GroupId); err != nil {
			return err
		}
		joined, err := join(ctx, tx, inv.GroupId, callerId, now)
		if err != nil {
			return err
		}
		if err := transition(ctx, tx, inv, model.InvitationAccepted, now); err != nil {
			return err
		}
		result.member = joined
		return nil
	})
	if err != nil {
		return nil, internalError(err)
	}

	if result.expired {
		s.logger.Info("Invitation expired on accept", "invitationId", invitationId, "groupId", result.invitation.GroupId)
		s.afterCommit(ctx, &model.Event{
			Type:         model.EventInvitationExpired,
			GroupId:      result.invitation.GroupId,
			TargetId:     callerId,
			InvitationId: invitationId,
		})
		return nil, apperrors.ErrInvitationExpired
	}

	s.logger.Info("Invitation accepted", "invitationId", invitationId, "groupId", result.member.GroupId, "userId", callerId)
	s.afterCommit(ctx, &model.Event{
		Type:         model.EventMemberJoined,
		GroupId:      result.member.GroupId,
		ActorId:      callerId,
		TargetId:     callerId,
		Role:         result.member.Role,
		InvitationId: invitationId,
	}, result.member.GroupId)
	return result.member, nil
}

// join 新增成员行或重新激活已退出的成员行
func join(ctx context.Context, tx store.Tx, groupId int64, userId string, now time.Time) (*model.GroupMember, error) {
	member, err := tx.GetMember(ctx, groupId, userId)
	if errors.Is(err, store.ErrNotFound) {
		member = &model.GroupMember{
			GroupId:  groupId,
			UserId:   userId,
			Role:     model.RoleMember,
			JoinedAt: now,
			Active:   true,
		}
		if err := tx.InsertMember(ctx, member); err != nil {
			return nil, err
		}
		return member, nil
	}
	if err != nil {
		return nil, err
	}
	if member.Active {
		return member, nil
	}

	member.Active = true
	member.Role = model.RoleMember
	member.JoinedAt = now
	member.LeftAt = nil
	if err := tx.UpdateMember(ctx, member); err != nil {
		return nil, err
	}
	return member, nil
}

// DeclineInvitation 拒绝邀请
func (s *InvitationService) DeclineInvitation(ctx context.Context, invitationId int64, callerId string) (err error) {
	ctx, span := s.start(ctx, "InvitationService.DeclineInvitation",
		attribute.Int64("invitation.id", invitationId), userAttr(callerId))
	defer func() { finish(span, err) }()

	now := s.now()
	var result respondResult
	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		inv, expired, err := s.loadRespondable(ctx, tx, invitationId, callerId, now)
		if err != nil {
			return err
		}
		result.invitation = inv
		if expired {
			result.expired = true
			return nil
		}
		return transition(ctx, tx, inv, model.InvitationDeclined, now)
	})
	if err != nil {
		return internalError(err)
	}

	eventType := model.EventInvitationDeclined
	if result.expired {
		eventType = model.EventInvitationExpired
	}
	s.afterCommit(ctx, &model.Event{
		Type:         eventType,
		GroupId:      result.invitation.GroupId,
		ActorId:      callerId,
		TargetId:     callerId,
		InvitationId: invitationId,
	})
	if result.expired {
		return apperrors.ErrInvitationExpired
	}
	return nil
}

// ListUserInvitations 获取用户待处理的邀请，最新的在前；先把已过期的标记为 expired
func (s *InvitationService) ListUserInvitations(ctx context.Context, userId string) (invitations []model.InvitationView, err error) {
	ctx, span := s.start(ctx, "InvitationService.ListUserInvitations", userAttr(userId))
	defer func() { finish(span, err) }()

	now := s.now()
	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.ExpireInvitations(ctx, store.ExpireFilter{Now: now, InvitedUser: userId}); err != nil {
			return err
		}
		list, err := tx.ListPendingInvitations(ctx, userId)
		if err != nil {
			return err
		}
		invitations = list
		return nil
	})
	if err != nil {
		return nil, internalError(err)
	}
	if invitations == nil {
		invitations = []model.InvitationView{}
	}
	return invitations, nil
}

// SweepExpired 批量把过期的 pending 邀请标记为 expired，幂等；batch <= 0 表示不限
func (s *InvitationService) SweepExpired(ctx context.Context, batch int) (expired int64, err error) {
	ctx, span := s.start(ctx, "InvitationService.SweepExpired", attribute.Int("batch", batch))
	defer func() { finish(span, err) }()

	now := s.now()
	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		n, err := tx.ExpireInvitations(ctx, store.ExpireFilter{Now: now, Limit: batch})
		expired = n
		return err
	})
	if err != nil {
		return 0, internalError(err)
	}

	span.SetAttributes(attribute.Int64("invitation.expired", expired))
	if expired > 0 {
		s.logger.Info("Expired stale invitations", "count", expired)
	}
	return expired, nil
}
