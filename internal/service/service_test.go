package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sudooom.im.group/internal/model"
	"sudooom.im.group/internal/store"
	"sudooom.im.group/internal/store/sqlite"
	"sudooom.im.group/pkg/snowflake"
)

// fakeClock 可手动推进的时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingPublisher 记录发布的事件
type recordingPublisher struct {
	mu     sync.Mutex
	events []model.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event *model.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *event)
	return nil
}

func (p *recordingPublisher) Types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]model.EventType, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}

// memoryCache 进程内成员缓存，按代数拒绝过期回填
type memoryCache struct {
	mu          sync.Mutex
	members     map[int64][]string
	generations map[int64]int64
	hits        int
	invalidated []int64
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		members:     make(map[int64][]string),
		generations: make(map[int64]int64),
	}
}

func (c *memoryCache) GetMembers(_ context.Context, groupId int64) ([]string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	members, ok := c.members[groupId]
	if ok {
		c.hits++
	}
	return members, ok, nil
}

func (c *memoryCache) Generation(_ context.Context, groupId int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[groupId], nil
}

func (c *memoryCache) SetMembers(_ context.Context, groupId, generation int64, members []string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[groupId] != generation {
		return false, nil
	}
	c.members[groupId] = members
	return true, nil
}

func (c *memoryCache) Invalidate(_ context.Context, groupIds ...int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range groupIds {
		delete(c.members, id)
		c.generations[id]++
		c.invalidated = append(c.invalidated, id)
	}
	return nil
}

type fixture struct {
	store       store.Store
	clock       *fakeClock
	publisher   *recordingPublisher
	cache       *memoryCache
	opts        Options
	groups      *GroupService
	members     *MemberService
	invitations *InvitationService
	dms         *DirectMessageService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s, err := sqlite.Open(filepath.Join(t.TempDir(), "group.db"), 10*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &fixture{
		store:     s,
		clock:     &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		publisher: &recordingPublisher{},
		cache:     newMemoryCache(),
	}
	f.opts = Options{
		Store:         s,
		IDs:           node,
		Publisher:     f.publisher,
		Cache:         f.cache,
		InvitationTTL: DefaultInvitationTTL,
		Clock:         f.clock.Now,
	}
	f.groups = NewGroupService(f.opts)
	f.members = NewMemberService(f.opts)
	f.invitations = NewInvitationService(f.opts)
	f.dms = NewDirectMessageService(f.opts)
	return f
}

func strPtr(s string) *string {
	return &s
}

func boolPtr(b bool) *bool {
	return &b
}

// createGroup 创建群组并返回 ID
func (f *fixture) createGroup(t *testing.T, ownerId, name string) int64 {
	t.Helper()
	detail, err := f.groups.CreateGroup(context.Background(), ownerId, &CreateGroupRequest{Name: strPtr(name)})
	require.NoError(t, err)
	return detail.Id
}

// addMember 通过邀请把用户加入群组
func (f *fixture) addMember(t *testing.T, groupId int64, inviterId, userId string) {
	t.Helper()
	ctx := context.Background()
	inv, err := f.invitations.CreateInvitation(ctx, groupId, inviterId, userId)
	require.NoError(t, err)
	_, err = f.invitations.AcceptInvitation(ctx, inv.Id, userId)
	require.NoError(t, err)
}

// addAdmin 加入群组并提升为管理员
func (f *fixture) addAdmin(t *testing.T, groupId int64, ownerId, userId string) {
	t.Helper()
	f.addMember(t, groupId, ownerId, userId)
	_, err := f.members.ChangeRole(context.Background(), groupId, ownerId, userId, model.RoleAdmin)
	require.NoError(t, err)
}

// member 直接读取成员行（含已退出）
func (f *fixture) member(t *testing.T, groupId int64, userId string) *model.GroupMember {
	t.Helper()
	var member *model.GroupMember
	require.NoError(t, f.store.WithTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		member, err = tx.GetMember(ctx, groupId, userId)
		return err
	}))
	return member
}

// memberOrNil 读取在群成员，不存在或已退出返回 nil
func (f *fixture) memberOrNil(t *testing.T, groupId int64, userId string) *model.GroupMember {
	t.Helper()
	var member *model.GroupMember
	require.NoError(t, f.store.WithTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		member, err = activeMember(ctx, tx, groupId, userId)
		return err
	}))
	return member
}

// invitation 直接读取邀请
func (f *fixture) invitation(t *testing.T, id int64) *model.GroupInvitation {
	t.Helper()
	var inv *model.GroupInvitation
	require.NoError(t, f.store.WithTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		inv, err = tx.GetInvitation(ctx, id)
		return err
	}))
	return inv
}

// owners 在群的群主列表
func (f *fixture) owners(t *testing.T, groupId int64) []string {
	t.Helper()
	var owners []string
	require.NoError(t, f.store.WithTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		members, err := tx.ListActiveMembers(ctx, groupId)
		for _, m := range members {
			if m.Role == model.RoleOwner {
				owners = append(owners, m.UserId)
			}
		}
		return err
	}))
	return owners
}
