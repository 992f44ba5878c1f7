package model

import "time"

// EventType 群组领域事件类型
type EventType string

const (
	EventGroupCreated       EventType = "group.created"
	EventGroupUpdated       EventType = "group.updated"
	EventGroupArchived      EventType = "group.archived"
	EventGroupDeleted       EventType = "group.deleted"
	EventMemberJoined       EventType = "member.joined"
	EventMemberLeft         EventType = "member.left"
	EventMemberRemoved      EventType = "member.removed"
	EventMemberRoleChanged  EventType = "member.role_changed"
	EventOwnershipTransfer  EventType = "member.ownership_transferred"
	EventInvitationCreated  EventType = "invitation.created"
	EventInvitationDeclined EventType = "invitation.declined"
	EventInvitationExpired  EventType = "invitation.expired"
	EventDirectCreated      EventType = "direct.created"
)

// Event 提交成功后发布的领域事件
type Event struct {
	Id           string    `json:"id"`
	Type         EventType `json:"type"`
	GroupId      int64     `json:"groupId"`
	ActorId      string    `json:"actorId,omitempty"`
	TargetId     string    `json:"targetId,omitempty"`
	Role         Role      `json:"role,omitempty"`
	InvitationId int64     `json:"invitationId,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
}
