package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"sudooom.im.group/internal/model"
)

// EventPublisher 领域事件发布器
type EventPublisher struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewEventPublisher 创建事件发布器
func NewEventPublisher(nc *nats.Conn) *EventPublisher {
	return &EventPublisher{
		nc:     nc,
		logger: slog.Default(),
	}
}

// Publish 发布事件到 im.group.event.{type}，缺省事件 ID 时生成 UUID
func (p *EventPublisher) Publish(ctx context.Context, event *model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.Id == "" {
		event.Id = uuid.NewString()
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal event", "type", event.Type, "error", err)
		return err
	}

	subject := BuildEventSubject(event.Type)
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Error("Failed to publish event", "subject", subject, "groupId", event.GroupId, "error", err)
		return err
	}

	p.logger.Debug("Published group event", "subject", subject, "eventId", event.Id, "groupId", event.GroupId)
	return nil
}
