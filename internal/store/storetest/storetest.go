// Package storetest 存储实现的一致性测试，PostgreSQL 与 SQLite 共用。
package storetest

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.im.group/internal/model"
	"sudooom.im.group/internal/store"
)

// Factory 为每个子测试创建一个空存储
type Factory func(t *testing.T) store.Store

var nextId atomic.Int64

func init() {
	nextId.Store(time.Now().UnixMilli() << 8)
}

func newId() int64 {
	return nextId.Add(1)
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func strPtr(s string) *string {
	return &s
}

// Run 执行全部一致性测试
func Run(t *testing.T, factory Factory) {
	t.Run("GroupRoundTrip", func(t *testing.T) { testGroupRoundTrip(t, factory(t)) })
	t.Run("GroupNotFound", func(t *testing.T) { testGroupNotFound(t, factory(t)) })
	t.Run("RollbackOnError", func(t *testing.T) { testRollbackOnError(t, factory(t)) })
	t.Run("MemberLifecycle", func(t *testing.T) { testMemberLifecycle(t, factory(t)) })
	t.Run("SingleActiveOwner", func(t *testing.T) { testSingleActiveOwner(t, factory(t)) })
	t.Run("PendingInvitationUnique", func(t *testing.T) { testPendingInvitationUnique(t, factory(t)) })
	t.Run("TransitionInvitation", func(t *testing.T) { testTransitionInvitation(t, factory(t)) })
	t.Run("ExpireInvitations", func(t *testing.T) { testExpireInvitations(t, factory(t)) })
	t.Run("ExpireGroupInvitations", func(t *testing.T) { testExpireGroupInvitations(t, factory(t)) })
	t.Run("DirectMessageUnique", func(t *testing.T) { testDirectMessageUnique(t, factory(t)) })
	t.Run("ListOrdering", func(t *testing.T) { testListOrdering(t, factory(t)) })
	t.Run("DeleteCascades", func(t *testing.T) { testDeleteCascades(t, factory(t)) })
}

func inTx(t *testing.T, s store.Store, fn store.TxFunc) {
	t.Helper()
	require.NoError(t, s.WithTransaction(context.Background(), fn))
}

func seedGroup(t *testing.T, s store.Store, kind model.GroupKind, owner string, members ...string) *model.Group {
	t.Helper()
	at := now()
	group := &model.Group{
		Id:        newId(),
		Name:      strPtr("team"),
		Kind:      kind,
		CreatedBy: owner,
		CreatedAt: at,
		Active:    true,
	}
	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertGroup(ctx, group); err != nil {
			return err
		}
		ownerRole := model.RoleOwner
		if kind == model.GroupKindDirect {
			ownerRole = model.RoleMember
		}
		if err := tx.InsertMember(ctx, &model.GroupMember{GroupId: group.Id, UserId: owner, Role: ownerRole, JoinedAt: at, Active: true}); err != nil {
			return err
		}
		for _, userId := range members {
			if err := tx.InsertMember(ctx, &model.GroupMember{GroupId: group.Id, UserId: userId, Role: model.RoleMember, JoinedAt: at, Active: true}); err != nil {
				return err
			}
		}
		return nil
	})
	return group
}

func testGroupRoundTrip(t *testing.T, s store.Store) {
	group := seedGroup(t, s, model.GroupKindGroup, "alice")

	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetGroup(ctx, group.Id)
		require.NoError(t, err)
		assert.Equal(t, group.Id, got.Id)
		assert.Equal(t, "team", got.DisplayName())
		assert.Nil(t, got.Avatar)
		assert.Equal(t, model.GroupKindGroup, got.Kind)
		assert.True(t, got.CreatedAt.Equal(group.CreatedAt))
		assert.True(t, got.Active)

		updated := now()
		got.Description = strPtr("desc")
		got.UpdatedAt = &updated
		got.Active = false
		require.NoError(t, tx.UpdateGroup(ctx, got))

		locked, err := tx.LockGroup(ctx, group.Id)
		require.NoError(t, err)
		assert.Equal(t, "desc", *locked.Description)
		assert.False(t, locked.Active)
		require.NotNil(t, locked.UpdatedAt)
		assert.True(t, locked.UpdatedAt.Equal(updated))
		return nil
	})
}

func testGroupNotFound(t *testing.T, s store.Store) {
	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetGroup(ctx, newId())
		assert.ErrorIs(t, err, store.ErrNotFound)

		_, err = tx.LockGroup(ctx, newId())
		assert.ErrorIs(t, err, store.ErrNotFound)

		assert.ErrorIs(t, tx.DeleteGroup(ctx, newId()), store.ErrNotFound)
		assert.ErrorIs(t, tx.TouchGroupActivity(ctx, newId(), now()), store.ErrNotFound)

		_, err = tx.GetMember(ctx, newId(), "nobody")
		assert.ErrorIs(t, err, store.ErrNotFound)

		_, err = tx.GetInvitation(ctx, newId())
		assert.ErrorIs(t, err, store.ErrNotFound)

		_, err = tx.GetDirectMessage(ctx, "a", "b")
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	})
}

func testRollbackOnError(t *testing.T, s store.Store) {
	id := newId()
	boom := errors.New("boom")

	err := s.WithTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.InsertGroup(ctx, &model.Group{Id: id, Kind: model.GroupKindGroup, CreatedBy: "alice", CreatedAt: now(), Active: true}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetGroup(ctx, id)
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	})
}

func testMemberLifecycle(t *testing.T, s store.Store) {
	group := seedGroup(t, s, model.GroupKindGroup, "alice", "bob", "carol")

	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		count, err := tx.CountActiveMembers(ctx, group.Id)
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		bob, err := tx.GetMember(ctx, group.Id, "bob")
		require.NoError(t, err)
		left := now()
		bob.Active = false
		bob.LeftAt = &left
		bob.Nickname = strPtr("bobby")
		bob.Muted = true
		require.NoError(t, tx.UpdateMember(ctx, bob))

		carol, err := tx.GetMember(ctx, group.Id, "carol")
		require.NoError(t, err)
		carol.Role = model.RoleAdmin
		require.NoError(t, tx.UpdateMember(ctx, carol))
		return nil
	})

	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		members, err := tx.ListActiveMembers(ctx, group.Id)
		require.NoError(t, err)
		require.Len(t, members, 2)
		assert.Equal(t, "alice", members[0].UserId)
		assert.Equal(t, model.RoleOwner, members[0].Role)
		assert.Equal(t, "carol", members[1].UserId)
		assert.Equal(t, model.RoleAdmin, members[1].Role)

		bob, err := tx.GetMember(ctx, group.Id, "bob")
		require.NoError(t, err)
		assert.False(t, bob.Active)
		assert.True(t, bob.Muted)
		require.NotNil(t, bob.LeftAt)
		require.NotNil(t, bob.Nickname)
		assert.Equal(t, "bobby", *bob.Nickname)

		err = tx.InsertMember(ctx, &model.GroupMember{GroupId: group.Id, UserId: "bob", Role: model.RoleMember, JoinedAt: now(), Active: true})
		assert.ErrorIs(t, err, store.ErrUniqueViolation)
		return nil
	})
}

func testSingleActiveOwner(t *testing.T, s store.Store) {
	group := seedGroup(t, s, model.GroupKindGroup, "alice", "bob")

	err := s.WithTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		bob, err := tx.GetMember(ctx, group.Id, "bob")
		if err != nil {
			return err
		}
		bob.Role = model.RoleOwner
		return tx.UpdateMember(ctx, bob)
	})
	require.ErrorIs(t, err, store.ErrUniqueViolation)

	// 先降级原群主再提升
	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		alice, err := tx.GetMember(ctx, group.Id, "alice")
		require.NoError(t, err)
		alice.Role = model.RoleAdmin
		require.NoError(t, tx.UpdateMember(ctx, alice))

		bob, err := tx.GetMember(ctx, group.Id, "bob")
		require.NoError(t, err)
		bob.Role = model.RoleOwner
		return tx.UpdateMember(ctx, bob)
	})
}

func newInvitation(groupId int64, invitedBy, invitedUser string, expiresAt *time.Time) *model.GroupInvitation {
	return &model.GroupInvitation{
		Id:          newId(),
		GroupId:     groupId,
		InvitedBy:   invitedBy,
		InvitedUser: invitedUser,
		Status:      model.InvitationPending,
		CreatedAt:   now(),
		ExpiresAt:   expiresAt,
	}
}

func testPendingInvitationUnique(t *testing.T, s store.Store) {
	group := seedGroup(t, s, model.GroupKindGroup, "alice")
	first := newInvitation(group.Id, "alice", "dave", nil)
	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertInvitation(ctx, first)
	})

	err := s.WithTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.InsertInvitation(ctx, newInvitation(group.Id, "alice", "dave", nil))
	})
	require.ErrorIs(t, err, store.ErrUniqueViolation)

	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		pending, err := tx.GetPendingInvitation(ctx, group.Id, "dave")
		require.NoError(t, err)
		assert.Equal(t, first.Id, pending.Id)

		require.NoError(t, tx.TransitionInvitation(ctx, first.Id, model.InvitationDeclined, now()))
		// 终态邀请不占用唯一索引
		return tx.InsertInvitation(ctx, newInvitation(group.Id, "alice", "dave", nil))
	})
}

func testTransitionInvitation(t *testing.T, s store.Store) {
	group := seedGroup(t, s, model.GroupKindGroup, "alice")
	inv := newInvitation(group.Id, "alice", "dave", nil)
	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertInvitation(ctx, inv)
	})

	respondedAt := now()
	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.TransitionInvitation(ctx, inv.Id, model.InvitationAccepted, respondedAt))
		assert.ErrorIs(t, tx.TransitionInvitation(ctx, inv.Id, model.InvitationDeclined, now()), store.ErrStateChanged)

		got, err := tx.GetInvitation(ctx, inv.Id)
		require.NoError(t, err)
		assert.Equal(t, model.InvitationAccepted, got.Status)
		require.NotNil(t, got.RespondedAt)
		assert.True(t, got.RespondedAt.Equal(respondedAt))

		_, err = tx.GetPendingInvitation(ctx, group.Id, "dave")
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	})
}

func testExpireInvitations(t *testing.T, s store.Store) {
	group := seedGroup(t, s, model.GroupKindGroup, "alice")
	other := seedGroup(t, s, model.GroupKindGroup, "alice")
	past := now().Add(-time.Hour)
	future := now().Add(time.Hour)

	stale := newInvitation(group.Id, "alice", "dave", &past)
	fresh := newInvitation(group.Id, "alice", "erin", &future)
	noExpiry := newInvitation(group.Id, "alice", "frank", nil)
	otherStale := newInvitation(other.Id, "alice", "dave", &past)
	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		for _, inv := range []*model.GroupInvitation{stale, fresh, noExpiry, otherStale} {
			if err := tx.InsertInvitation(ctx, inv); err != nil {
				return err
			}
		}
		return nil
	})

	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		n, err := tx.ExpireInvitations(ctx, store.ExpireFilter{Now: now(), GroupId: group.Id, InvitedUser: "dave"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		views, err := tx.ListPendingInvitations(ctx, "dave")
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, otherStale.Id, views[0].Id)
		assert.Equal(t, "team", views[0].GroupName)

		n, err = tx.ExpireInvitations(ctx, store.ExpireFilter{Now: now()})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		got, err := tx.GetInvitation(ctx, stale.Id)
		require.NoError(t, err)
		assert.Equal(t, model.InvitationExpired, got.Status)
		assert.Nil(t, got.RespondedAt)

		for _, id := range []int64{fresh.Id, noExpiry.Id} {
			got, err := tx.GetInvitation(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, model.InvitationPending, got.Status)
		}
		return nil
	})
}

func testExpireGroupInvitations(t *testing.T, s store.Store) {
	group := seedGroup(t, s, model.GroupKindGroup, "alice")
	other := seedGroup(t, s, model.GroupKindGroup, "alice")
	future := now().Add(time.Hour)

	fresh := newInvitation(group.Id, "alice", "erin", &future)
	noExpiry := newInvitation(group.Id, "alice", "frank", nil)
	otherFresh := newInvitation(other.Id, "alice", "erin", &future)
	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		for _, inv := range []*model.GroupInvitation{fresh, noExpiry, otherFresh} {
			if err := tx.InsertInvitation(ctx, inv); err != nil {
				return err
			}
		}
		return nil
	})

	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		n, err := tx.ExpireInvitations(ctx, store.ExpireFilter{Now: now(), GroupId: group.Id, IgnoreDeadline: true})
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		for _, id := range []int64{fresh.Id, noExpiry.Id} {
			got, err := tx.GetInvitation(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, model.InvitationExpired, got.Status)
		}
		got, err := tx.GetInvitation(ctx, otherFresh.Id)
		require.NoError(t, err)
		assert.Equal(t, model.InvitationPending, got.Status)
		return nil
	})
}

func testDirectMessageUnique(t *testing.T, s store.Store) {
	first := seedGroup(t, s, model.GroupKindDirect, "u-a", "u-b")
	second := seedGroup(t, s, model.GroupKindDirect, "u-a", "u-b")
	user1, user2 := model.CanonicalPair("u-b", "u-a")

	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertDirectMessage(ctx, &model.DirectMessageGroup{User1Id: user1, User2Id: user2, GroupId: first.Id, CreatedAt: now()})
	})

	err := s.WithTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.InsertDirectMessage(ctx, &model.DirectMessageGroup{User1Id: user1, User2Id: user2, GroupId: second.Id, CreatedAt: now()})
	})
	require.ErrorIs(t, err, store.ErrUniqueViolation)

	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		dm, err := tx.GetDirectMessage(ctx, user1, user2)
		require.NoError(t, err)
		assert.Equal(t, first.Id, dm.GroupId)
		assert.Equal(t, "u-b", dm.Other("u-a"))

		views, err := tx.ListUserDirectMessages(ctx, "u-b")
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, first.Id, views[0].GroupId)
		assert.Equal(t, "u-a", views[0].OtherUserId)
		return nil
	})
}

func testListOrdering(t *testing.T, s store.Store) {
	quiet := seedGroup(t, s, model.GroupKindGroup, "alice")
	older := seedGroup(t, s, model.GroupKindGroup, "alice")
	newer := seedGroup(t, s, model.GroupKindGroup, "alice")
	base := now()

	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.TouchGroupActivity(ctx, older.Id, base.Add(-time.Minute)))
		require.NoError(t, tx.TouchGroupActivity(ctx, newer.Id, base))
		// 更早的时间不会回退
		require.NoError(t, tx.TouchGroupActivity(ctx, newer.Id, base.Add(-time.Hour)))
		return nil
	})

	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		groups, err := tx.ListUserGroups(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, groups, 3)
		assert.Equal(t, newer.Id, groups[0].Id)
		assert.Equal(t, older.Id, groups[1].Id)
		assert.Equal(t, quiet.Id, groups[2].Id)
		assert.Nil(t, groups[2].LastMessageAt)
		assert.Equal(t, model.RoleOwner, groups[0].Role)
		assert.Equal(t, 1, groups[0].MemberCount)
		require.NotNil(t, groups[0].LastMessageAt)
		assert.True(t, groups[0].LastMessageAt.Equal(base))
		return nil
	})
}

func testDeleteCascades(t *testing.T, s store.Store) {
	group := seedGroup(t, s, model.GroupKindGroup, "alice", "bob")
	inv := newInvitation(group.Id, "alice", "dave", nil)
	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertInvitation(ctx, inv)
	})

	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteGroup(ctx, group.Id)
	})

	inTx(t, s, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetMember(ctx, group.Id, "bob")
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = tx.GetInvitation(ctx, inv.Id)
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	})
}
