package model

import "time"

// DirectMessageGroup 私聊映射，User1Id 按字节序小于 User2Id
type DirectMessageGroup struct {
	User1Id   string    `json:"user1Id"`
	User2Id   string    `json:"user2Id"`
	GroupId   int64     `json:"groupId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Other 返回另一方用户
func (d *DirectMessageGroup) Other(userId string) string {
	if d.User1Id == userId {
		return d.User2Id
	}
	return d.User1Id
}

// CanonicalPair 规范化用户对，(a,b) 与 (b,a) 结果一致
func CanonicalPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// DirectMessageView 私聊会话信息（从调用方视角）
type DirectMessageView struct {
	GroupId       int64      `json:"groupId"`
	OtherUserId   string     `json:"otherUserId"`
	LastMessageAt *time.Time `json:"lastMessageAt"`
	Muted         bool       `json:"muted"`
}
