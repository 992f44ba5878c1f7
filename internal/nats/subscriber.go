package nats

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	apperrors "sudooom.im.group/pkg/errors"
)

// ActivityRecorder 群活跃时间记录
type ActivityRecorder interface {
	RecordActivity(ctx context.Context, groupId int64, at time.Time) error
}

// MembershipChecker 成员资格查询
type MembershipChecker interface {
	IsActiveMember(ctx context.Context, groupId int64, userId string) (bool, error)
}

// ActivityMessage 活跃时间上报，At 为空时以处理时刻为准
type ActivityMessage struct {
	GroupId int64     `json:"groupId"`
	At      time.Time `json:"at"`
}

// MembershipRequest 成员资格查询请求
type MembershipRequest struct {
	GroupId int64  `json:"groupId"`
	UserId  string `json:"userId"`
}

// MembershipReply 成员资格查询响应
type MembershipReply struct {
	Member bool   `json:"member"`
	Error  string `json:"error,omitempty"`
}

// SubscriberConfig Worker Pool 配置
type SubscriberConfig struct {
	WorkerCount    int           // Worker 数量
	BufferSize     int           // 消息缓冲区大小
	HandlerTimeout time.Duration // 单条消息处理超时
}

// Subscriber 活跃时间与成员资格订阅器
type Subscriber struct {
	nc            *nats.Conn
	activity      ActivityRecorder
	members       MembershipChecker
	logger        *slog.Logger
	config        SubscriberConfig
	subscriptions []*nats.Subscription
	msgChan       chan *nats.Msg
	wg            sync.WaitGroup
	cancelFunc    context.CancelFunc
}

// NewSubscriber 创建订阅器
func NewSubscriber(nc *nats.Conn, activity ActivityRecorder, members MembershipChecker, config SubscriberConfig) *Subscriber {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 8
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 1024
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = 5 * time.Second
	}

	return &Subscriber{
		nc:       nc,
		activity: activity,
		members:  members,
		logger:   slog.Default(),
		config:   config,
	}
}

// Start 启动订阅，两个 subject 都使用队列组实现负载均衡
func (s *Subscriber) Start(ctx context.Context) error {
	s.msgChan = make(chan *nats.Msg, s.config.BufferSize)

	workerCtx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	for i := 0; i < s.config.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(workerCtx)
	}

	enqueue := func(msg *nats.Msg) {
		select {
		case s.msgChan <- msg:
		default:
			s.logger.Warn("Message buffer full, dropping message", "subject", msg.Subject, "bufferSize", s.config.BufferSize)
		}
	}

	for _, subject := range []string{SubjectActivity, SubjectMembershipCheck} {
		sub, err := s.nc.QueueSubscribe(subject, QueueGroupService, enqueue)
		if err != nil {
			s.Stop()
			return err
		}
		s.subscriptions = append(s.subscriptions, sub)
	}

	s.logger.Info("NATS subscriber started",
		"subjects", []string{SubjectActivity, SubjectMembershipCheck},
		"workerCount", s.config.WorkerCount,
		"bufferSize", s.config.BufferSize,
	)
	return nil
}

// worker 工作协程
func (s *Subscriber) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.msgChan:
			if !ok {
				return
			}
			s.dispatch(ctx, msg)
		}
	}
}

func (s *Subscriber) dispatch(ctx context.Context, msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(ctx, s.config.HandlerTimeout)
	defer cancel()

	switch msg.Subject {
	case SubjectActivity:
		s.handleActivity(ctx, msg.Data)
	case SubjectMembershipCheck:
		reply := s.handleMembershipCheck(ctx, msg.Data)
		if msg.Reply == "" {
			return
		}
		data, err := json.Marshal(reply)
		if err != nil {
			s.logger.Error("Failed to marshal membership reply", "error", err)
			return
		}
		if err := msg.Respond(data); err != nil {
			s.logger.Warn("Failed to respond membership check", "error", err)
		}
	default:
		s.logger.Warn("Unexpected subject", "subject", msg.Subject)
	}
}

// handleActivity 处理活跃时间上报
func (s *Subscriber) handleActivity(ctx context.Context, data []byte) {
	var message ActivityMessage
	if err := json.Unmarshal(data, &message); err != nil {
		s.logger.Error("Failed to unmarshal activity message", "error", err)
		return
	}
	if message.GroupId == 0 {
		s.logger.Warn("Activity message without groupId")
		return
	}

	err := s.activity.RecordActivity(ctx, message.GroupId, message.At)
	if errors.Is(err, apperrors.ErrGroupNotFound) {
		s.logger.Debug("Activity for unknown group", "groupId", message.GroupId)
		return
	}
	if err != nil {
		s.logger.Error("Failed to record group activity", "groupId", message.GroupId, "error", err)
	}
}

// handleMembershipCheck 处理成员资格查询
func (s *Subscriber) handleMembershipCheck(ctx context.Context, data []byte) MembershipReply {
	var req MembershipRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return MembershipReply{Error: "invalid request"}
	}
	if req.GroupId == 0 || req.UserId == "" {
		return MembershipReply{Error: "groupId and userId are required"}
	}

	ok, err := s.members.IsActiveMember(ctx, req.GroupId, req.UserId)
	if err != nil {
		s.logger.Error("Membership check failed", "groupId", req.GroupId, "userId", req.UserId, "error", err)
		return MembershipReply{Error: apperrors.GetMessage(err)}
	}
	return MembershipReply{Member: ok}
}

// Stop 停止订阅
func (s *Subscriber) Stop() error {
	for _, sub := range s.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Error("Failed to unsubscribe", "subject", sub.Subject, "error", err)
		}
	}
	s.subscriptions = nil

	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.wg.Wait()

	s.logger.Info("NATS subscriber stopped")
	return nil
}

// GetBufferUsage 获取缓冲区使用情况（用于监控）
func (s *Subscriber) GetBufferUsage() (current int, capacity int) {
	if s.msgChan == nil {
		return 0, 0
	}
	return len(s.msgChan), cap(s.msgChan)
}
