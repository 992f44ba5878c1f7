package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"sudooom.im.group/internal/config"
	"sudooom.im.group/internal/handler"
	"sudooom.im.group/internal/jwt"
	"sudooom.im.group/internal/middleware"
)

// Handlers 路由依赖的处理器
type Handlers struct {
	Group         *handler.GroupHandler
	Member        *handler.MemberHandler
	Invitation    *handler.InvitationHandler
	DirectMessage *handler.DirectMessageHandler
}

// SetupRouter 设置路由
func SetupRouter(cfg *config.Config, jwtService *jwt.Service, h Handlers) *gin.Engine {
	gin.SetMode(cfg.App.Mode)

	r := gin.New()

	// 全局中间件
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())

	// Swagger 文档路由
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API v1，全部需要认证
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(jwtService))
	{
		// 群组接口
		groups := v1.Group("/groups")
		{
			groups.POST("", h.Group.CreateGroup)
			groups.GET("", h.Group.ListUserGroups)
			groups.GET("/:id", h.Group.GetGroup)
			groups.PUT("/:id", h.Group.UpdateGroup)
			groups.POST("/:id/archive", h.Group.ArchiveGroup)
			groups.DELETE("/:id", h.Group.DeleteGroup)

			// 成员接口
			groups.GET("/:id/members", h.Member.ListGroupMembers)
			groups.POST("/:id/leave", h.Member.LeaveGroup)
			groups.DELETE("/:id/members/:userId", h.Member.RemoveMember)
			groups.PUT("/:id/members/:userId/role", h.Member.ChangeRole)
			groups.PUT("/:id/settings", h.Member.UpdateSettings)
			groups.POST("/:id/read", h.Member.MarkRead)

			groups.POST("/:id/invitations", h.Invitation.CreateInvitation)
		}

		// 邀请接口
		invitations := v1.Group("/invitations")
		{
			invitations.GET("", h.Invitation.ListUserInvitations)
			invitations.POST("/:id/accept", h.Invitation.AcceptInvitation)
			invitations.POST("/:id/decline", h.Invitation.DeclineInvitation)
		}

		// 私聊接口
		directMessages := v1.Group("/direct-messages")
		{
			directMessages.POST("", h.DirectMessage.CreateOrGet)
			directMessages.GET("", h.DirectMessage.ListUserDirectMessages)
		}
	}

	return r
}
