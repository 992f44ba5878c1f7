package handler

import (
	"github.com/gin-gonic/gin"

	"sudooom.im.group/internal/middleware"
	"sudooom.im.group/internal/model"
	"sudooom.im.group/internal/service"
	apperrors "sudooom.im.group/pkg/errors"
	"sudooom.im.group/pkg/response"
)

// GroupHandler 群组处理器
type GroupHandler struct {
	groupService *service.GroupService
}

// NewGroupHandler 创建群组处理器
func NewGroupHandler(groupService *service.GroupService) *GroupHandler {
	return &GroupHandler{groupService: groupService}
}

// CreateGroup 创建群组
// @Summary      创建群组
// @Tags         群组
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body service.CreateGroupRequest true "请求参数"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /groups [post]
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	var req service.CreateGroupRequest
	if !bindJSON(c, &req) {
		return
	}

	detail, err := h.groupService.CreateGroup(c.Request.Context(), middleware.GetCallerID(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, detail)
}

// ListUserGroups 获取我的群组
// @Summary      获取我的群组
// @Tags         群组
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /groups [get]
func (h *GroupHandler) ListUserGroups(c *gin.Context) {
	groups, err := h.groupService.ListUserGroups(c.Request.Context(), middleware.GetCallerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"list": groups})
}

// GetGroup 获取群详情
// @Summary      获取群详情
// @Tags         群组
// @Security     BearerAuth
// @Produce      json
// @Param        id path int64 true "群组ID"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /groups/{id} [get]
func (h *GroupHandler) GetGroup(c *gin.Context) {
	groupId, ok := parseID(c, "id")
	if !ok {
		return
	}

	detail, err := h.groupService.GetGroup(c.Request.Context(), groupId, middleware.GetCallerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, detail)
}

// UpdateGroup 更新群资料
// @Summary      更新群资料
// @Tags         群组
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path int64 true "群组ID"
// @Param        request body model.GroupPatch true "请求参数"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /groups/{id} [put]
func (h *GroupHandler) UpdateGroup(c *gin.Context) {
	groupId, ok := parseID(c, "id")
	if !ok {
		return
	}
	var patch model.GroupPatch
	if !bindJSON(c, &patch) {
		return
	}
	if patch.IsEmpty() {
		response.Error(c, apperrors.ErrInvalidParams)
		return
	}

	detail, err := h.groupService.UpdateGroup(c.Request.Context(), groupId, middleware.GetCallerID(c), patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, detail)
}

// ArchiveGroup 归档群组
// @Summary      归档群组
// @Tags         群组
// @Security     BearerAuth
// @Produce      json
// @Param        id path int64 true "群组ID"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /groups/{id}/archive [post]
func (h *GroupHandler) ArchiveGroup(c *gin.Context) {
	groupId, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.groupService.ArchiveGroup(c.Request.Context(), groupId, middleware.GetCallerID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// DeleteGroup 删除群组
// @Summary      删除群组
// @Tags         群组
// @Security     BearerAuth
// @Produce      json
// @Param        id path int64 true "群组ID"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /groups/{id} [delete]
func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	groupId, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.groupService.DeleteGroup(c.Request.Context(), groupId, middleware.GetCallerID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}
