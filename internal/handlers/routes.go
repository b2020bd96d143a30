package handlers

import (
	"github.com/gin-gonic/gin"

	"school-chat/internal/middleware"
	"school-chat/internal/models"
)

// Routes groups the REST handlers mounted by RegisterRoutes.
type Routes struct {
	Groups   *GroupHandler
	Messages *MessageHandler
	Uploads  *UploadHandler
	Auth     gin.HandlerFunc
}

// RegisterRoutes mounts the chat REST surface under /chat and the upload endpoint.
func RegisterRoutes(router gin.IRouter, r Routes) {
	staff := middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin)
	admin := middleware.RequireRoles(models.RoleAdmin)

	chat := router.Group("/chat", r.Auth)
	chat.POST("/groups", staff, r.Groups.CreateGroup)
	chat.GET("/groups", r.Groups.ListGroups)
	chat.GET("/groups/:group_id/messages", r.Groups.GetGroupMessages)
	chat.GET("/groups/:group_id/members", r.Groups.ListMembers)
	chat.POST("/groups/:group_id/add-members", admin, r.Groups.AddMembers)
	chat.DELETE("/groups/:group_id/remove-member/:user_id", admin, r.Groups.RemoveMember)
	chat.POST("/groups/:group_id/block/:user_id", admin, r.Groups.BlockUser)
	chat.DELETE("/groups/:group_id/unblock/:user_id", admin, r.Groups.UnblockUser)
	chat.POST("/groups/:group_id/restrict", admin, r.Groups.Restrict)
	chat.POST("/groups/:group_id/unrestrict", admin, r.Groups.Unrestrict)
	chat.DELETE("/messages/:message_id", r.Messages.DeleteMessage)

	if r.Uploads != nil {
		router.POST("/files/upload", r.Auth, r.Uploads.Upload)
	}
}
