package handler

import (
	"github.com/gin-gonic/gin"

	"sudooom.im.group/internal/middleware"
	"sudooom.im.group/internal/service"
	"sudooom.im.group/pkg/response"
)

// InvitationHandler 群邀请处理器
type InvitationHandler struct {
	invitationService *service.InvitationService
}

// NewInvitationHandler 创建群邀请处理器
func NewInvitationHandler(invitationService *service.InvitationService) *InvitationHandler {
	return &InvitationHandler{invitationService: invitationService}
}

// CreateInvitation 邀请用户入群
// @Summary      邀请用户入群
// @Tags         群邀请
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path int64 true "群组ID"
// @Param        request body service.CreateInvitationRequest true "请求参数"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /groups/{id}/invitations [post]
func (h *InvitationHandler) CreateInvitation(c *gin.Context) {
	groupId, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req service.CreateInvitationRequest
	if !bindJSON(c, &req) {
		return
	}

	invitation, err := h.invitationService.CreateInvitation(c.Request.Context(), groupId, middleware.GetCallerID(c), req.UserId)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, invitation)
}

// ListUserInvitations 获取我的待处理邀请
// @Summary      获取我的待处理邀请
// @Tags         群邀请
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /invitations [get]
func (h *InvitationHandler) ListUserInvitations(c *gin.Context) {
	invitations, err := h.invitationService.ListUserInvitations(c.Request.Context(), middleware.GetCallerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"list": invitations})
}

// AcceptInvitation 接受邀请
// @Summary      接受邀请
// @Tags         群邀请
// @Security     BearerAuth
// @Produce      json
// @Param        id path int64 true "邀请ID"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /invitations/{id}/accept [post]
func (h *InvitationHandler) AcceptInvitation(c *gin.Context) {
	invitationId, ok := parseID(c, "id")
	if !ok {
		return
	}

	member, err := h.invitationService.AcceptInvitation(c.Request.Context(), invitationId, middleware.GetCallerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, member)
}

// DeclineInvitation 拒绝邀请
// @Summary      拒绝邀请
// @Tags         群邀请
// @Security     BearerAuth
// @Produce      json
// @Param        id path int64 true "邀请ID"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /invitations/{id}/decline [post]
func (h *InvitationHandler) DeclineInvitation(c *gin.Context) {
	invitationId, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.invitationService.DeclineInvitation(c.Request.Context(), invitationId, middleware.GetCallerID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}
