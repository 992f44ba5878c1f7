package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"sudooom.im.group/internal/middleware"
	"sudooom.im.group/internal/model"
	"sudooom.im.group/internal/service"
	"sudooom.im.group/pkg/response"
)

// MemberHandler 成员处理器
type MemberHandler struct {
	memberService *service.MemberService
}

// NewMemberHandler 创建成员处理器
func NewMemberHandler(memberService *service.MemberService) *MemberHandler {
	return &MemberHandler{memberService: memberService}
}

// ListGroupMembers 获取群成员
// @Summary      获取群成员
// @Tags         群成员
// @Security     BearerAuth
// @Produce      json
// @Param        id path int64 true "群组ID"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /groups/{id}/members [get]
func (h *MemberHandler) ListGroupMembers(c *gin.Context) {
	groupId, ok := parseID(c, "id")
	if !ok {
		return
	}

	members, err := h.memberService.ListGroupMembers(c.Request.Context(), groupId, middleware.GetCallerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"list": members})
}

// LeaveGroup 退出群组
// @Summary      退出群组
// @Tags         群成员
// @Security     BearerAuth
// @Produce      json
// @Param        id path int64 true "群组ID"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /groups/{id}/leave [post]
func (h *MemberHandler) LeaveGroup(c *gin.Context) {
	groupId, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.memberService.LeaveGroup(c.Request.Context(), groupId, middleware.GetCallerID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// RemoveMember 移除成员
// @Summary      移除成员
// @Tags         群成员
// @Security     BearerAuth
// @Produce      json
// @Param        id path int64 true "群组ID"
// @Param        userId path string true "目标用户ID"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /groups/{id}/members/{userId} [delete]
func (h *MemberHandler) RemoveMember(c *gin.Context) {
	groupId, ok := parseID(c, "id")
	if !ok {
		return
	}

	err := h.memberService.RemoveMember(c.Request.Context(), groupId, middleware.GetCallerID(c), c.Param("userId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// ChangeRole 修改成员角色（role 为 owner 时转让群主）
// @Summary      修改成员角色
// @Tags         群成员
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path int64 true "群组ID"
// @Param        userId path string true "目标用户ID"
// @Param        request body service.ChangeRoleRequest true "请求参数"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /groups/{id}/members/{userId}/role [put]
func (h *MemberHandler) ChangeRole(c *gin.Context) {
	groupId, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req service.ChangeRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	member, err := h.memberService.ChangeRole(c.Request.Context(), groupId, middleware.GetCallerID(c), c.Param("userId"), model.Role(req.Role))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, member)
}

// UpdateSettings 修改我的群设置
// @Summary      修改我的群设置
// @Tags         群成员
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path int64 true "群组ID"
// @Param        request body model.MemberSettings true "请求参数"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /groups/{id}/settings [put]
func (h *MemberHandler) UpdateSettings(c *gin.Context) {
	groupId, ok := parseID(c, "id")
	if !ok {
		return
	}
	var settings model.MemberSettings
	if !bindJSON(c, &settings) {
		return
	}

	member, err := h.memberService.UpdateMemberSettings(c.Request.Context(), groupId, middleware.GetCallerID(c), settings)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, member)
}

// MarkRead 标记已读，请求体可省略
// @Summary      标记已读
// @Tags         群成员
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path int64 true "群组ID"
// @Param        request body service.MarkReadRequest false "请求参数"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /groups/{id}/read [post]
func (h *MemberHandler) MarkRead(c *gin.Context) {
	groupId, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req service.MarkReadRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	var at time.Time
	if req.At != nil {
		at = *req.At
	}
	if err := h.memberService.MarkRead(c.Request.Context(), groupId, middleware.GetCallerID(c), at); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}
