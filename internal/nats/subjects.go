package nats

import "sudooom.im.group/internal/model"

// NATS Subject 常量定义
const (
	// SubjectEventPrefix 群组领域事件前缀，完整格式: im.group.event.{type}
	SubjectEventPrefix = "im.group.event."

	// SubjectActivity 聊天链路上报的群活跃时间
	SubjectActivity = "im.group.activity"

	// SubjectMembershipCheck 成员资格查询（request/reply）
	SubjectMembershipCheck = "im.group.membership.check"

	// QueueGroupService 群组服务队列组名称
	QueueGroupService = "group-service"
)

// BuildEventSubject 构建事件 Subject
func BuildEventSubject(eventType model.EventType) string {
	return SubjectEventPrefix + string(eventType)
}
