// Package authz 群组权限判定，纯函数，不做任何 I/O。
//
// 角色等级 owner > admin > member；移除成员、修改角色、退群另有专门规则。
package authz

import (
	apperrors "sudooom.im.group/pkg/errors"

	"sudooom.im.group/internal/model"
)

// Operation 受控操作
type Operation string

const (
	OpViewGroup      Operation = "view_group"
	OpUpdateGroup    Operation = "update_group"
	OpArchiveGroup   Operation = "archive_group"
	OpDeleteGroup    Operation = "delete_group"
	OpInviteMember   Operation = "invite_member"
	OpRemoveMember   Operation = "remove_member"
	OpChangeRole     Operation = "change_role"
	OpLeave          Operation = "leave"
	OpUpdateSettings Operation = "update_settings"
)

// minRole 每个操作要求的最低角色
var minRole = map[Operation]model.Role{
	OpViewGroup:      model.RoleMember,
	OpUpdateGroup:    model.RoleAdmin,
	OpArchiveGroup:   model.RoleAdmin,
	OpDeleteGroup:    model.RoleOwner,
	OpInviteMember:   model.RoleAdmin,
	OpRemoveMember:   model.RoleAdmin,
	OpChangeRole:     model.RoleOwner,
	OpLeave:          model.RoleMember,
	OpUpdateSettings: model.RoleMember,
}

// CanPerform 角色是否具备执行操作的基本权限
func CanPerform(role model.Role, op Operation) bool {
	required, ok := minRole[op]
	if !ok || !role.Valid() {
		return false
	}
	return role.Rank() >= required.Rank()
}

// Require 不具备权限时返回对应错误
func Require(role model.Role, op Operation) error {
	if CanPerform(role, op) {
		return nil
	}
	switch op {
	case OpDeleteGroup, OpChangeRole:
		return apperrors.ErrOwnerOnly
	case OpInviteMember:
		return apperrors.ErrNoInvitePermission
	case OpUpdateGroup, OpArchiveGroup, OpRemoveMember:
		return apperrors.ErrNoGroupPermission
	default:
		return apperrors.ErrNotGroupMember
	}
}

// CheckRemove 移除成员：群主不可移除，管理员之间不可互相移除
func CheckRemove(callerRole, targetRole model.Role) error {
	if err := Require(callerRole, OpRemoveMember); err != nil {
		return err
	}
	if targetRole == model.RoleOwner {
		return apperrors.ErrCannotRemoveOwner
	}
	if targetRole.Rank() >= callerRole.Rank() {
		return apperrors.ErrAdminCannotRemove
	}
	return nil
}

// CheckLeave 退群：群里还有其他在群成员时群主必须先转让
func CheckLeave(role model.Role, otherActive int) error {
	if role == model.RoleOwner && otherActive > 0 {
		return apperrors.ErrOwnerMustTransfer
	}
	return nil
}

// CheckRoleChange 修改角色：仅群主可操作，不能修改自己，目标角色必须合法
func CheckRoleChange(callerRole model.Role, self bool, newRole model.Role) error {
	if err := Require(callerRole, OpChangeRole); err != nil {
		return err
	}
	if !newRole.Valid() {
		return apperrors.ErrInvalidRole
	}
	if self {
		return apperrors.ErrCannotChangeOwnRole
	}
	return nil
}

// ParseRole 解析角色字符串
func ParseRole(s string) (model.Role, bool) {
	role := model.Role(s)
	return role, role.Valid()
}
