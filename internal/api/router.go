package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/studyhive/studyhive/internal/handler"
)

// RegisterRoutes wires the HTTP surface. Group discovery and the member
// count are readable without auth; every mutation requires a valid token.
func RegisterRoutes(
	r *gin.Engine,
	mw *MiddlewareManager,
	groupHandler *handler.GroupHandler,
	membershipHandler *handler.MembershipHandler,
	messageHandler *handler.MessageHandler,
) {
	r.Use(mw.RequestID(), mw.Logger(), mw.Recovery(), mw.CORS())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	api.Use(mw.RateLimit(mw.rateLimitCfg.APIPerMinute))

	public := api.Group("/")
	public.Use(mw.OptionalAuth())
	{
		public.GET("/groups", groupHandler.ListGroups)
		public.GET("/groups/:id", groupHandler.GetGroup)
		public.GET("/groups/:id/members", membershipHandler.ListMembers)
		public.GET("/groups/:id/member-count", membershipHandler.MemberCount)
	}

	protected := api.Group("/")
	protected.Use(mw.JWTAuth())
	{
		groups := protected.Group("/groups")
		{
			groups.POST("", groupHandler.CreateGroup)
			groups.PATCH("/:id", groupHandler.UpdateGroup)
			groups.DELETE("/:id", groupHandler.DeleteGroup)

			groups.POST("/:id/join", membershipHandler.Join)
			groups.DELETE("/:id/leave", membershipHandler.Leave)
			groups.POST("/:id/members", membershipHandler.AddMember)
			groups.DELETE("/:id/members/:user_id", membershipHandler.RemoveMember)
			groups.PUT("/:id/members/:user_id/ban", membershipHandler.BanMember)
			groups.PUT("/:id/members/:user_id/role", membershipHandler.UpdateMemberRole)

			groups.POST("/:id/messages", mw.RateLimit(mw.rateLimitCfg.MessagePerMinute), messageHandler.Send)
			groups.GET("/:id/messages", messageHandler.List)
			groups.GET("/:id/messages/pinned", messageHandler.ListPinned)
			groups.GET("/:id/messages/search", messageHandler.Search)
		}

		messages := protected.Group("/messages")
		{
			messages.PATCH("/:message_id", messageHandler.Edit)
			messages.DELETE("/:message_id", messageHandler.Delete)
			messages.PUT("/:message_id/reactions/:emoji", messageHandler.React)
			messages.PUT("/:message_id/pin", messageHandler.TogglePin)
			messages.PUT("/:message_id/read", messageHandler.MarkRead)
			messages.GET("/:message_id/read-status", messageHandler.ReadStatus)
		}
	}
}
