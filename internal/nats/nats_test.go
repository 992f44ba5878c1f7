package nats

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.im.group/internal/config"
	"sudooom.im.group/internal/model"
	apperrors "sudooom.im.group/pkg/errors"
)

type fakeRecorder struct {
	mu    sync.Mutex
	calls []ActivityMessage
	err   error
}

func (r *fakeRecorder) RecordActivity(_ context.Context, groupId int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, ActivityMessage{GroupId: groupId, At: at})
	return r.err
}

func (r *fakeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type fakeChecker struct {
	members map[int64][]string
	err     error
}

func (c *fakeChecker) IsActiveMember(_ context.Context, groupId int64, userId string) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	for _, m := range c.members[groupId] {
		if m == userId {
			return true, nil
		}
	}
	return false, nil
}

func TestBuildEventSubject(t *testing.T) {
	assert.Equal(t, "im.group.event.member.joined", BuildEventSubject(model.EventMemberJoined))
}

func TestHandleActivity(t *testing.T) {
	rec := &fakeRecorder{}
	s := NewSubscriber(nil, rec, &fakeChecker{}, SubscriberConfig{})
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	data, err := json.Marshal(ActivityMessage{GroupId: 7, At: at})
	require.NoError(t, err)
	s.handleActivity(ctx, data)

	s.handleActivity(ctx, []byte("{"))
	s.handleActivity(ctx, []byte(`{"at":"2026-05-01T12:00:00Z"}`))

	require.Len(t, rec.calls, 1)
	assert.Equal(t, int64(7), rec.calls[0].GroupId)
	assert.True(t, rec.calls[0].At.Equal(at))
}

func TestHandleActivity_UnknownGroupIgnored(t *testing.T) {
	rec := &fakeRecorder{err: apperrors.ErrGroupNotFound}
	s := NewSubscriber(nil, rec, &fakeChecker{}, SubscriberConfig{})

	s.handleActivity(context.Background(), []byte(`{"groupId":9}`))
	assert.Equal(t, 1, rec.count())
}

func TestHandleMembershipCheck(t *testing.T) {
	checker := &fakeChecker{members: map[int64][]string{1: {"alice"}}}
	s := NewSubscriber(nil, &fakeRecorder{}, checker, SubscriberConfig{})
	ctx := context.Background()

	reply := s.handleMembershipCheck(ctx, []byte(`{"groupId":1,"userId":"alice"}`))
	assert.Equal(t, MembershipReply{Member: true}, reply)

	reply = s.handleMembershipCheck(ctx, []byte(`{"groupId":1,"userId":"bob"}`))
	assert.Equal(t, MembershipReply{Member: false}, reply)

	reply = s.handleMembershipCheck(ctx, []byte(`{"groupId":1}`))
	assert.NotEmpty(t, reply.Error)

	reply = s.handleMembershipCheck(ctx, []byte(`not json`))
	assert.Equal(t, "invalid request", reply.Error)

	checker.err = apperrors.ErrDBError.Wrap(errors.New("boom"))
	reply = s.handleMembershipCheck(ctx, []byte(`{"groupId":1,"userId":"alice"}`))
	assert.False(t, reply.Member)
	assert.Equal(t, "database error", reply.Error)
}

func TestNewSubscriber_Defaults(t *testing.T) {
	s := NewSubscriber(nil, &fakeRecorder{}, &fakeChecker{}, SubscriberConfig{})
	assert.Equal(t, 8, s.config.WorkerCount)
	assert.Equal(t, 1024, s.config.BufferSize)
	assert.Equal(t, 5*time.Second, s.config.HandlerTimeout)

	current, capacity := s.GetBufferUsage()
	assert.Zero(t, current)
	assert.Zero(t, capacity)
}

// connect 连接测试用 NATS，不可用时跳过
func connect(t *testing.T) *Client {
	t.Helper()

	url := os.Getenv("GROUP_TEST_NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}
	client, err := NewClient(config.NATSConfig{URL: url, MaxReconnects: 1, ReconnectWait: 100 * time.Millisecond}, "group-service-test")
	if err != nil {
		t.Skipf("跳过 NATS 测试: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestEventPublisher_Integration(t *testing.T) {
	client := connect(t)

	sub, err := client.Conn().SubscribeSync(SubjectEventPrefix + ">")
	require.NoError(t, err)
	require.NoError(t, client.Conn().Flush())

	publisher := NewEventPublisher(client.Conn())
	event := &model.Event{
		Type:       model.EventInvitationCreated,
		GroupId:    11,
		ActorId:    "alice",
		TargetId:   "bob",
		OccurredAt: time.Now().UTC(),
	}
	require.NoError(t, publisher.Publish(context.Background(), event))
	assert.NotEmpty(t, event.Id)

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "im.group.event.invitation.created", msg.Subject)

	var got model.Event
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, event.Id, got.Id)
	assert.Equal(t, int64(11), got.GroupId)
	assert.Equal(t, "bob", got.TargetId)
}

func TestSubscriber_Integration(t *testing.T) {
	client := connect(t)
	rec := &fakeRecorder{}
	checker := &fakeChecker{members: map[int64][]string{3: {"carol"}}}

	s := NewSubscriber(client.Conn(), rec, checker, SubscriberConfig{WorkerCount: 2})
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop() })
	require.NoError(t, client.Conn().Flush())

	data, err := json.Marshal(MembershipRequest{GroupId: 3, UserId: "carol"})
	require.NoError(t, err)
	msg, err := client.Conn().Request(SubjectMembershipCheck, data, 2*time.Second)
	require.NoError(t, err)

	var reply MembershipReply
	require.NoError(t, json.Unmarshal(msg.Data, &reply))
	assert.True(t, reply.Member)

	require.NoError(t, client.Conn().Publish(SubjectActivity, []byte(`{"groupId":3}`)))
	assert.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestClientPing_Integration(t *testing.T) {
	client := connect(t)
	assert.True(t, client.IsConnected())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(ctx))

	client.Close()
	assert.False(t, client.IsConnected())
	assert.Error(t, client.Ping(ctx))
}
