package handler

import (
	"github.com/gin-gonic/gin"

	"sudooom.im.group/internal/middleware"
	"sudooom.im.group/internal/service"
	"sudooom.im.group/pkg/response"
)

// DirectMessageHandler 私聊处理器
type DirectMessageHandler struct {
	directMessageService *service.DirectMessageService
}

// NewDirectMessageHandler 创建私聊处理器
func NewDirectMessageHandler(directMessageService *service.DirectMessageService) *DirectMessageHandler {
	return &DirectMessageHandler{directMessageService: directMessageService}
}

// CreateOrGet 获取或创建私聊
// @Summary      获取或创建私聊
// @Tags         私聊
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body service.CreateDirectMessageRequest true "请求参数"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /direct-messages [post]
func (h *DirectMessageHandler) CreateOrGet(c *gin.Context) {
	var req service.CreateDirectMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := h.directMessageService.CreateOrGetDirectMessage(c.Request.Context(), middleware.GetCallerID(c), req.UserId)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, view)
}

// ListUserDirectMessages 获取我的私聊列表
// @Summary      获取我的私聊列表
// @Tags         私聊
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /direct-messages [get]
func (h *DirectMessageHandler) ListUserDirectMessages(c *gin.Context) {
	views, err := h.directMessageService.ListUserDirectMessages(c.Request.Context(), middleware.GetCallerID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"list": views})
}
