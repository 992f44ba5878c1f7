package model

import "time"

// GroupKind 群组类型
type GroupKind string

const (
	GroupKindDirect GroupKind = "direct" // 一对一私聊
	GroupKindGroup  GroupKind = "group"  // 多人群组
)

// Valid 检查类型是否合法
func (k GroupKind) Valid() bool {
	return k == GroupKindDirect || k == GroupKindGroup
}

// Role 成员角色
type Role string

const (
	RoleOwner  Role = "owner"  // 群主
	RoleAdmin  Role = "admin"  // 管理员
	RoleMember Role = "member" // 普通成员
)

// Valid 检查角色是否合法
func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleAdmin || r == RoleMember
}

// Rank 角色等级，数值越大权限越高
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleMember:
		return 1
	default:
		return 0
	}
}

// Group 群组实体（群聊与私聊共用）
type Group struct {
	Id            int64      `json:"id"`
	Name          *string    `json:"name"`
	Avatar        *string    `json:"avatar"`
	Description   *string    `json:"description"`
	Kind          GroupKind  `json:"kind"`
	CreatedBy     string     `json:"createdBy"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     *time.Time `json:"updatedAt"`
	LastMessageAt *time.Time `json:"lastMessageAt"`
	Active        bool       `json:"active"`
}

// DisplayName 群名称，未命名时返回默认值
func (g *Group) DisplayName() string {
	if g.Name == nil || *g.Name == "" {
		return "Unnamed Group"
	}
	return *g.Name
}

// GroupMember 群成员
type GroupMember struct {
	GroupId    int64      `json:"groupId"`
	UserId     string     `json:"userId"`
	Role       Role       `json:"role"`
	Nickname   *string    `json:"nickname"`
	JoinedAt   time.Time  `json:"joinedAt"`
	LeftAt     *time.Time `json:"leftAt"`
	LastReadAt *time.Time `json:"lastReadAt"`
	Active     bool       `json:"active"`
	Muted      bool       `json:"muted"`
}

// GroupPatch 群资料更新，nil 字段保持不变
type GroupPatch struct {
	Name        *string `json:"name"`
	Avatar      *string `json:"avatar"`
	Description *string `json:"description"`
}

// IsEmpty 是否没有任何待更新字段
func (p GroupPatch) IsEmpty() bool {
	return p.Name == nil && p.Avatar == nil && p.Description == nil
}

// MemberSettings 成员个人设置，nil 字段保持不变
type MemberSettings struct {
	Nickname *string `json:"nickname"`
	Muted    *bool   `json:"muted"`
}

// GroupDetail 群详情
type GroupDetail struct {
	Group
	MemberCount int           `json:"memberCount"`
	Members     []GroupMember `json:"members,omitempty"`
}

// GroupSummary 用户群列表项
type GroupSummary struct {
	Group
	Role        Role `json:"role"`
	MemberCount int  `json:"memberCount"`
}
