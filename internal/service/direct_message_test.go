package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.im.group/internal/model"
	"sudooom.im.group/internal/store"
	apperrors "sudooom.im.group/pkg/errors"
)

// stalePairStore 前 misses 次配对查询返回未找到，模拟并发创建时读到旧快照
type stalePairStore struct {
	store.Store
	misses atomic.Int32
}

func (s *stalePairStore) WithTransaction(ctx context.Context, fn store.TxFunc) error {
	return s.Store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, &stalePairTx{Tx: tx, misses: &s.misses})
	})
}

type stalePairTx struct {
	store.Tx
	misses *atomic.Int32
}

func (t *stalePairTx) GetDirectMessage(ctx context.Context, user1, user2 string) (*model.DirectMessageGroup, error) {
	if t.misses.Add(-1) >= 0 {
		return nil, store.ErrNotFound
	}
	return t.Tx.GetDirectMessage(ctx, user1, user2)
}

func TestCreateOrGetDirectMessage_SymmetricPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.dms.CreateOrGetDirectMessage(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, "u2", first.OtherUserId)

	second, err := f.dms.CreateOrGetDirectMessage(ctx, "u2", "u1")
	require.NoError(t, err)
	assert.Equal(t, first.GroupId, second.GroupId)
	assert.Equal(t, "u1", second.OtherUserId)

	for _, userId := range []string{"u1", "u2"} {
		list, err := f.dms.ListUserDirectMessages(ctx, userId)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, first.GroupId, list[0].GroupId)

		member := f.member(t, first.GroupId, userId)
		assert.True(t, member.Active)
		assert.Equal(t, model.RoleMember, member.Role)
	}

	var created int
	for _, typ := range f.publisher.Types() {
		if typ == model.EventDirectCreated {
			created++
		}
	}
	assert.Equal(t, 1, created)
}

func TestCreateOrGetDirectMessage_Invalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.dms.CreateOrGetDirectMessage(ctx, "u1", "u1")
	assert.ErrorIs(t, err, apperrors.ErrCannotMessageSelf)
	assert.Equal(t, apperrors.KindInvalidArgument, apperrors.KindOf(err))

	_, err = f.dms.CreateOrGetDirectMessage(ctx, "u1", "  ")
	assert.ErrorIs(t, err, apperrors.ErrDirectPairInvalid)
}

func TestCreateOrGetDirectMessage_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const attempts = 20
	ids := make([]int64, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		caller, other := "u1", "u2"
		if i%2 == 1 {
			caller, other = other, caller
		}
		wg.Add(1)
		go func(i int, caller, other string) {
			defer wg.Done()
			view, err := f.dms.CreateOrGetDirectMessage(ctx, caller, other)
			if assert.NoError(t, err) {
				ids[i] = view.GroupId
			}
		}(i, caller, other)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	list, err := f.dms.ListUserDirectMessages(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateOrGetDirectMessage_RetriesAfterUniqueViolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	existing, err := f.dms.CreateOrGetDirectMessage(ctx, "u1", "u2")
	require.NoError(t, err)

	stale := &stalePairStore{Store: f.store}
	stale.misses.Store(1)
	opts := f.opts
	opts.Store = stale
	dms := NewDirectMessageService(opts)

	view, err := dms.CreateOrGetDirectMessage(ctx, "u2", "u1")
	require.NoError(t, err)
	assert.Equal(t, existing.GroupId, view.GroupId)

	// 失败的创建事务已回滚，不会留下孤立群组
	groups, err := f.groups.ListUserGroups(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, groups, 1)
}

func TestCreateOrGetDirectMessage_PairLost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.dms.CreateOrGetDirectMessage(ctx, "u1", "u2")
	require.NoError(t, err)

	stale := &stalePairStore{Store: f.store}
	stale.misses.Store(100)
	opts := f.opts
	opts.Store = stale
	dms := NewDirectMessageService(opts)

	_, err = dms.CreateOrGetDirectMessage(ctx, "u1", "u2")
	assert.ErrorIs(t, err, apperrors.ErrDirectPairLost)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestCreateOrGetDirectMessage_ReactivatesCaller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.dms.CreateOrGetDirectMessage(ctx, "u1", "u2")
	require.NoError(t, err)
	require.NoError(t, f.members.LeaveGroup(ctx, view.GroupId, "u1"))
	assert.False(t, f.member(t, view.GroupId, "u1").Active)

	again, err := f.dms.CreateOrGetDirectMessage(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, view.GroupId, again.GroupId)

	u1 := f.member(t, view.GroupId, "u1")
	assert.True(t, u1.Active)
	assert.Nil(t, u1.LeftAt)
}

func TestCreateOrGetDirectMessage_ReflectsMuted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.dms.CreateOrGetDirectMessage(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.False(t, view.Muted)

	_, err = f.members.UpdateMemberSettings(ctx, view.GroupId, "u1", model.MemberSettings{Muted: boolPtr(true)})
	require.NoError(t, err)

	mine, err := f.dms.CreateOrGetDirectMessage(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.True(t, mine.Muted)

	theirs, err := f.dms.CreateOrGetDirectMessage(ctx, "u2", "u1")
	require.NoError(t, err)
	assert.False(t, theirs.Muted)
}

func TestListUserDirectMessages_OrderedByActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	quiet, err := f.dms.CreateOrGetDirectMessage(ctx, "u1", "u2")
	require.NoError(t, err)
	busy, err := f.dms.CreateOrGetDirectMessage(ctx, "u1", "u3")
	require.NoError(t, err)
	_, err = f.dms.CreateOrGetDirectMessage(ctx, "u2", "u3")
	require.NoError(t, err)

	require.NoError(t, f.groups.RecordActivity(ctx, busy.GroupId, f.clock.Now().Add(time.Minute)))

	list, err := f.dms.ListUserDirectMessages(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, busy.GroupId, list[0].GroupId)
	assert.Equal(t, "u3", list[0].OtherUserId)
	require.NotNil(t, list[0].LastMessageAt)
	assert.Equal(t, quiet.GroupId, list[1].GroupId)
	assert.Nil(t, list[1].LastMessageAt)

	empty, err := f.dms.ListUserDirectMessages(ctx, "u9")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}
