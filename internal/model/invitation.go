package model

import "time"

// InvitationStatus 邀请状态
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
	InvitationExpired  InvitationStatus = "expired"
)

// Terminal 是否为终态，终态不可再迁移
func (s InvitationStatus) Terminal() bool {
	return s == InvitationAccepted || s == InvitationDeclined || s == InvitationExpired
}

// CanTransition 状态只能从 pending 单向迁移到终态
func (s InvitationStatus) CanTransition(to InvitationStatus) bool {
	return s == InvitationPending && to.Terminal()
}

// GroupInvitation 群邀请
type GroupInvitation struct {
	Id          int64            `json:"id"`
	GroupId     int64            `json:"groupId"`
	InvitedBy   string           `json:"invitedBy"`
	InvitedUser string           `json:"invitedUser"`
	Status      InvitationStatus `json:"status"`
	CreatedAt   time.Time        `json:"createdAt"`
	RespondedAt *time.Time       `json:"respondedAt"`
	ExpiresAt   *time.Time       `json:"expiresAt"`
}

// ExpiredAt 在给定时刻是否已过期
func (i *GroupInvitation) ExpiredAt(now time.Time) bool {
	return i.ExpiresAt != nil && i.ExpiresAt.Before(now)
}

// InvitationView 邀请列表项（附带群名称）
type InvitationView struct {
	GroupInvitation
	GroupName string `json:"groupName"`
}
