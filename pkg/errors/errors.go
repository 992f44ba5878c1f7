package errors

import (
	"errors"
	"fmt"
)

// Kind 错误分类，调用方据此映射到传输层状态码
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindConflict
	KindInvalidState
	KindInvalidArgument
)

// String 返回分类名称
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindInvalidState:
		return "invalid_state"
	case KindInvalidArgument:
		return "invalid_argument"
	default:
		return "internal"
	}
}

// AppError 应用错误类型
// 包含错误码、分类和错误消息
type AppError struct {
	Code    int    // 错误码
	Kind    Kind   // 错误分类
	Message string // 用户可见的错误消息
	Err     error  // 原始错误（可选，用于调试）
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 支持 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 让 errors.Is 按错误码比较
func (e *AppError) Is(target error) bool {
	var t *AppError
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// NewError 创建新错误
func NewError(code int, kind Kind, message string) *AppError {
	return &AppError{
		Code:    code,
		Kind:    kind,
		Message: message,
	}
}

// Wrap 包装原始错误
func (e *AppError) Wrap(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Kind:    e.Kind,
		Message: e.Message,
		Err:     err,
	}
}

// Is 判断是否为指定错误
func Is(err error, target *AppError) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

// KindOf 获取错误分类，非 AppError 视为内部错误
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// GetCode 获取错误码，如果不是 AppError 返回默认错误码
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeServerError
}

// GetMessage 获取错误消息
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}

// ============== 错误码定义 ==============

const (
	CodeSuccess = 0

	// 认证相关 10000-10999
	CodeTokenInvalid = 10003
	CodeTokenExpired = 10004

	// 参数 11000-11999
	CodeInvalidParams = 11002

	// 群组相关 13000-13999
	CodeGroupNotFound      = 13001
	CodeGroupNameRequired  = 13002
	CodeNoGroupPermission  = 13003
	CodeOwnerOnly          = 13004
	CodeNotGroupMember     = 13005
	CodeOwnerMustTransfer  = 13006
	CodeInvalidGroupUpdate = 13007

	// 成员相关 14000-14999
	CodeMemberNotFound      = 14001
	CodeCannotRemoveOwner   = 14002
	CodeAdminCannotRemove   = 14003
	CodeInvalidRole         = 14004
	CodeCannotChangeOwnRole = 14005

	// 邀请相关 15000-15999
	CodeInvitationNotFound  = 15001
	CodeNotYourInvitation   = 15002
	CodeInvitationProcessed = 15003
	CodeInvitationExpired   = 15004
	CodeAlreadyMember       = 15005
	CodeInvitationPending   = 15006
	CodeNoInvitePermission  = 15007
	CodeCannotInviteSelf    = 15008
	CodeInvitedUserRequired = 15009

	// 私聊相关 16000-16999
	CodeCannotMessageSelf = 16001
	CodeDirectPairInvalid = 16002
	CodeDirectPairLost    = 16003

	// 系统错误 50000-50999
	CodeServerError = 50001
	CodeDBError     = 50002
)

// ============== 预定义错误 ==============

// 认证相关
var (
	ErrTokenInvalid  = NewError(CodeTokenInvalid, KindForbidden, "token is invalid")
	ErrTokenExpired  = NewError(CodeTokenExpired, KindForbidden, "token has expired")
	ErrInvalidParams = NewError(CodeInvalidParams, KindInvalidArgument, "invalid parameters")
)

// 群组相关
var (
	ErrGroupNotFound      = NewError(CodeGroupNotFound, KindNotFound, "group not found")
	ErrGroupNameRequired  = NewError(CodeGroupNameRequired, KindInvalidArgument, "group name is required")
	ErrNoGroupPermission  = NewError(CodeNoGroupPermission, KindForbidden, "only owners and admins can manage the group")
	ErrOwnerOnly          = NewError(CodeOwnerOnly, KindForbidden, "only the owner can perform this action")
	ErrNotGroupMember     = NewError(CodeNotGroupMember, KindForbidden, "not a member")
	ErrOwnerMustTransfer  = NewError(CodeOwnerMustTransfer, KindInvalidState, "owner must transfer ownership first")
	ErrInvalidGroupUpdate = NewError(CodeInvalidGroupUpdate, KindInvalidArgument, "group name cannot be blank")
)

// 成员相关
var (
	ErrMemberNotFound      = NewError(CodeMemberNotFound, KindNotFound, "member not found")
	ErrCannotRemoveOwner   = NewError(CodeCannotRemoveOwner, KindInvalidState, "cannot remove owner")
	ErrAdminCannotRemove   = NewError(CodeAdminCannotRemove, KindForbidden, "admin cannot remove other admins")
	ErrInvalidRole         = NewError(CodeInvalidRole, KindInvalidArgument, "invalid role")
	ErrCannotChangeOwnRole = NewError(CodeCannotChangeOwnRole, KindInvalidArgument, "cannot change own role")
)

// 邀请相关
var (
	ErrInvitationNotFound  = NewError(CodeInvitationNotFound, KindNotFound, "invitation not found")
	ErrNotYourInvitation   = NewError(CodeNotYourInvitation, KindForbidden, "not your invitation")
	ErrInvitationProcessed = NewError(CodeInvitationProcessed, KindInvalidState, "invitation already processed")
	ErrInvitationExpired   = NewError(CodeInvitationExpired, KindInvalidState, "invitation expired")
	ErrAlreadyMember       = NewError(CodeAlreadyMember, KindConflict, "already a member")
	ErrInvitationPending   = NewError(CodeInvitationPending, KindConflict, "invitation already sent")
	ErrNoInvitePermission  = NewError(CodeNoInvitePermission, KindForbidden, "no permission")
	ErrCannotInviteSelf    = NewError(CodeCannotInviteSelf, KindInvalidArgument, "cannot invite yourself")
	ErrInvitedUserRequired = NewError(CodeInvitedUserRequired, KindInvalidArgument, "invited user is required")
)

// 私聊相关
var (
	ErrCannotMessageSelf = NewError(CodeCannotMessageSelf, KindInvalidArgument, "cannot create direct message with yourself")
	ErrDirectPairInvalid = NewError(CodeDirectPairInvalid, KindInvalidArgument, "both user ids are required")
	ErrDirectPairLost    = NewError(CodeDirectPairLost, KindConflict, "direct message pair vanished after conflict")
)

// 系统相关
var (
	ErrServerError = NewError(CodeServerError, KindInternal, "internal server error")
	ErrDBError     = NewError(CodeDBError, KindInternal, "database error")
)
