package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.im.group/internal/model"
	"sudooom.im.group/internal/store"
	"sudooom.im.group/internal/task"
	apperrors "sudooom.im.group/pkg/errors"
)

func TestInvitationFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	groupId := f.createGroup(t, "alice", "team")

	inv, err := f.invitations.CreateInvitation(ctx, groupId, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, model.InvitationPending, inv.Status)
	require.NotNil(t, inv.ExpiresAt)
	assert.True(t, inv.ExpiresAt.Equal(f.clock.Now().Add(DefaultInvitationTTL)))

	_, err = f.invitations.CreateInvitation(ctx, groupId, "alice", "bob")
	assert.ErrorIs(t, err, apperrors.ErrInvitationPending)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))

	member, err := f.invitations.AcceptInvitation(ctx, inv.Id, "bob")
	require.NoError(t, err)
	assert.Equal(t, model.RoleMember, member.Role)
	assert.True(t, member.Active)

	stored := f.invitation(t, inv.Id)
	assert.Equal(t, model.InvitationAccepted, stored.Status)
	require.NotNil(t, stored.RespondedAt)

	_, err = f.invitations.AcceptInvitation(ctx, inv.Id, "bob")
	assert.ErrorIs(t, err, apperrors.ErrInvitationProcessed)
	assert.Equal(t, apperrors.KindInvalidState, apperrors.KindOf(err))

	_, err = f.invitations.CreateInvitation(ctx, groupId, "alice", "bob")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyMember)

	assert.Equal(t, []model.EventType{
		model.EventGroupCreated,
		model.EventInvitationCreated,
		model.EventMemberJoined,
	}, f.publisher.Types())
}

func TestCreateInvitation_Checks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	groupId := f.createGroup(t, "alice", "team")
	f.addMember(t, groupId, "alice", "bob")

	_, err := f.invitations.CreateInvitation(ctx, groupId, "alice", " ")
	assert.ErrorIs(t, err, apperrors.ErrInvitedUserRequired)

	_, err = f.invitations.CreateInvitation(ctx, groupId, "alice", "alice")
	assert.ErrorIs(t, err, apperrors.ErrCannotInviteSelf)
	assert.Equal(t, apperrors.KindInvalidArgument, apperrors.KindOf(err))

	_, err = f.invitations.CreateInvitation(ctx, groupId+5, "alice", "carol")
	assert.ErrorIs(t, err, apperrors.ErrGroupNotFound)

	_, err = f.invitations.CreateInvitation(ctx, groupId, "mallory", "carol")
	assert.ErrorIs(t, err, apperrors.ErrNotGroupMember)

	_, err = f.invitations.CreateInvitation(ctx, groupId, "bob", "carol")
	assert.ErrorIs(t, err, apperrors.ErrNoInvitePermission)
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))

	require.NoError(t, f.groups.ArchiveGroup(ctx, groupId, "alice"))
	_, err = f.invitations.CreateInvitation(ctx, groupId, "alice", "carol")
	assert.ErrorIs(t, err, apperrors.ErrGroupNotFound)
}

func TestRespondInvitation_Checks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	groupId := f.createGroup(t, "alice", "team")
	inv, err := f.invitations.CreateInvitation(ctx, groupId, "alice", "bob")
	require.NoError(t, err)

	_, err = f.invitations.AcceptInvitation(ctx, inv.Id+1, "bob")
	assert.ErrorIs(t, err, apperrors.ErrInvitationNotFound)

	_, err = f.invitations.AcceptInvitation(ctx, inv.Id, "carol")
	assert.ErrorIs(t, err, apperrors.ErrNotYourInvitation)
	assert.ErrorIs(t, f.invitations.DeclineInvitation(ctx, inv.Id, "carol"), apperrors.ErrNotYourInvitation)

	require.NoError(t, f.invitations.DeclineInvitation(ctx, inv.Id, "bob"))
	assert.Equal(t, model.InvitationDeclined, f.invitation(t, inv.Id).Status)

	assert.ErrorIs(t, f.invitations.DeclineInvitation(ctx, inv.Id, "bob"), apperrors.ErrInvitationProcessed)
	_, err = f.invitations.AcceptInvitation(ctx, inv.Id, "bob")
	assert.ErrorIs(t, err, apperrors.ErrInvitationProcessed)

	// 拒绝后可以重新邀请
	again, err := f.invitations.CreateInvitation(ctx, groupId, "alice", "bob")
	require.NoError(t, err)
	assert.NotEqual(t, inv.Id, again.Id)
}

func TestAcceptInvitation_ArchivedGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	groupId := f.createGroup(t, "alice", "team")
	inv, err := f.invitations.CreateInvitation(ctx, groupId, "alice", "bob")
	require.NoError(t, err)
	require.NoError(t, f.groups.ArchiveGroup(ctx, groupId, "alice"))

	_, err = f.invitations.AcceptInvitation(ctx, inv.Id, "bob")
	assert.ErrorIs(t, err, apperrors.ErrGroupNotFound)
	assert.Equal(t, model.InvitationPending, f.invitation(t, inv.Id).Status)
}

func TestAcceptInvitation_LazyExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	groupId := f.createGroup(t, "alice", "team")
	inv, err := f.invitations.CreateInvitation(ctx, groupId, "alice", "bob")
	require.NoError(t, err)

	f.clock.Advance(DefaultInvitationTTL + time.Second)

	_, err = f.invitations.AcceptInvitation(ctx, inv.Id, "bob")
	assert.ErrorIs(t, err, apperrors.ErrInvitationExpired)

	// 过期状态已落库
	stored := f.invitation(t, inv.Id)
	assert.Equal(t, model.InvitationExpired, stored.Status)
	assert.Nil(t, stored.RespondedAt)

	_, err = f.invitations.AcceptInvitation(ctx, inv.Id, "bob")
	assert.ErrorIs(t, err, apperrors.ErrInvitationProcessed)
	assert.Nil(t, f.memberOrNil(t, groupId, "bob"))
	assert.Contains(t, f.publisher.Types(), model.EventInvitationExpired)
}

func TestDeclineInvitation_LazyExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	groupId := f.createGroup(t, "alice", "team")
	inv, err := f.invitations.CreateInvitation(ctx, groupId, "alice", "bob")
	require.NoError(t, err)

	f.clock.Advance(DefaultInvitationTTL + time.Millisecond)

	assert.ErrorIs(t, f.invitations.DeclineInvitation(ctx, inv.Id, "bob"), apperrors.ErrInvitationExpired)
	assert.Equal(t, model.InvitationExpired, f.invitation(t, inv.Id).Status)
}

func TestCreateInvitation_ReplacesExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	groupId := f.createGroup(t, "alice", "team")
	first, err := f.invitations.CreateInvitation(ctx, groupId, "alice", "bob")
	require.NoError(t, err)

	f.clock.Advance(DefaultInvitationTTL + time.Second)

	second, err := f.invitations.CreateInvitation(ctx, groupId, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, model.InvitationExpired, f.invitation(t, first.Id).Status)
	assert.Equal(t, model.InvitationPending, f.invitation(t, second.Id).Status)
}

func TestListUserInvitations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	older := f.createGroup(t, "alice", "older")
	newer := f.createGroup(t, "carol", "newer")
	stale := f.createGroup(t, "dave", "stale")

	staleInv, err := f.invitations.CreateInvitation(ctx, stale, "dave", "bob")
	require.NoError(t, err)
	f.clock.Advance(DefaultInvitationTTL - time.Hour)
	_, err = f.invitations.CreateInvitation(ctx, older, "alice", "bob")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.invitations.CreateInvitation(ctx, newer, "carol", "bob")
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)

	list, err := f.invitations.ListUserInvitations(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer, list[0].GroupId)
	assert.Equal(t, "newer", list[0].GroupName)
	assert.Equal(t, older, list[1].GroupId)
	assert.Equal(t, model.InvitationExpired, f.invitation(t, staleInv.Id).Status)

	empty, err := f.invitations.ListUserInvitations(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestCreateInvitation_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	groupId := f.createGroup(t, "alice", "team")
	f.addAdmin(t, groupId, "alice", "bob")

	const attempts = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < attempts; i++ {
		inviter := "alice"
		if i%2 == 1 {
			inviter = "bob"
		}
		wg.Add(1)
		go func(inviter string) {
			defer wg.Done()
			_, err := f.invitations.CreateInvitation(ctx, groupId, inviter, "carol")
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, apperrors.ErrInvitationPending)
		}(inviter)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	list, err := f.invitations.ListUserInvitations(ctx, "carol")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAcceptInvitation_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	groupId := f.createGroup(t, "alice", "team")
	inv, err := f.invitations.CreateInvitation(ctx, groupId, "alice", "bob")
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.invitations.AcceptInvitation(ctx, inv.Id, "bob")
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, apperrors.ErrInvitationProcessed)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	groupId := f.createGroup(t, "alice", "team")
	var ids []int64
	for _, userId := range []string{"bob", "carol", "dave"} {
		inv, err := f.invitations.CreateInvitation(ctx, groupId, "alice", userId)
		require.NoError(t, err)
		ids = append(ids, inv.Id)
	}
	fresh, err := f.invitations.CreateInvitation(ctx, groupId, "alice", "erin")
	require.NoError(t, err)
	_, err = f.invitations.AcceptInvitation(ctx, fresh.Id, "erin")
	require.NoError(t, err)

	n, err := f.invitations.SweepExpired(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(DefaultInvitationTTL + time.Second)

	n, err = f.invitations.SweepExpired(ctx, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = f.invitations.SweepExpired(ctx, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = f.invitations.SweepExpired(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	for _, id := range ids {
		assert.Equal(t, model.InvitationExpired, f.invitation(t, id).Status)
	}
	assert.Equal(t, model.InvitationAccepted, f.invitation(t, fresh.Id).Status)
}

func TestInvitationSweeper(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	groupId := f.createGroup(t, "alice", "team")
	inv, err := f.invitations.CreateInvitation(ctx, groupId, "alice", "bob")
	require.NoError(t, err)
	f.clock.Advance(DefaultInvitationTTL + time.Second)

	scheduler := task.NewScheduler(1, 10*time.Millisecond)
	require.NoError(t, scheduler.Start())
	t.Cleanup(scheduler.Stop)

	sweeper := NewInvitationSweeper(f.invitations, scheduler, 1, 100)
	require.NoError(t, sweeper.Start())

	assert.Eventually(t, func() bool {
		var status model.InvitationStatus
		err := f.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			stored, err := tx.GetInvitation(ctx, inv.Id)
			if err == nil {
				status = stored.Status
			}
			return err
		})
		return err == nil && status == model.InvitationExpired
	}, 2*time.Second, 10*time.Millisecond)

	sweeper.Stop()
}
