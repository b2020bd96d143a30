package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"school-chat/internal/membership"
	"school-chat/internal/middleware"
	"school-chat/internal/models"
	"school-chat/internal/repositories"
	"school-chat/internal/telemetry"
)

// Resolver is the membership view the group endpoints rely on.
type Resolver interface {
	VisibleGroups(ctx context.Context, user models.User) ([]models.Group, error)
	Authorize(ctx context.Context, groupID int, user models.User) (models.Group, error)
	Roster(ctx context.Context, group models.Group) ([]models.GroupMember, error)
}

// HistorySource resolves a group's message history.
type HistorySource interface {
	History(ctx context.Context, groupID int) ([]models.HistoryEntry, error)
}

// GroupHandler manages group-related endpoints.
type GroupHandler struct {
	groupRepo repositories.GroupRepository
	blockRepo repositories.BlockRepository
	userRepo  repositories.UserRepository
	resolver  Resolver
	history   HistorySource
	audit     *telemetry.AuditEmitter
	logger    *zap.Logger
	now       func() time.Time
}

// NewGroupHandler constructs a GroupHandler.
func NewGroupHandler(
	groupRepo repositories.GroupRepository,
	blockRepo repositories.BlockRepository,
	userRepo repositories.UserRepository,
	resolver Resolver,
	history HistorySource,
	audit *telemetry.AuditEmitter,
	logger *zap.Logger,
) *GroupHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroupHandler{
		groupRepo: groupRepo,
		blockRepo: blockRepo,
		userRepo:  userRepo,
		resolver:  resolver,
		history:   history,
		audit:     audit,
		logger:    logger,
		now:       time.Now,
	}
}

type createGroupRequest struct {
	Name          string  `json:"name" binding:"required"`
	Level         *string `json:"level"`
	Department    *string `json:"department"`
	IsClassGroup  bool    `json:"is_class_group"`
	IsCustomGroup bool    `json:"is_custom_group"`
	StudentIDs    []int   `json:"student_ids"`
	TeacherIDs    []int   `json:"teacher_ids"`
}

// CreateGroup handles POST /chat/groups.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "group.create", "invalid request payload", 0, 0)
		badRequest(c, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		badRequest(c, "name is required")
		return
	}
	if req.IsClassGroup && req.IsCustomGroup {
		badRequest(c, "a group cannot be both a class group and a custom group")
		return
	}
	if !req.IsClassGroup {
		req.IsCustomGroup = true
	}
	if req.IsClassGroup && (req.Level == nil || strings.TrimSpace(*req.Level) == "") {
		badRequest(c, "class groups require a level")
		return
	}

	group, err := h.groupRepo.CreateGroup(c.Request.Context(), repositories.NewGroup{
		Name:          req.Name,
		Level:         req.Level,
		Department:    req.Department,
		CreatedBy:     user.ID,
		IsClassGroup:  req.IsClassGroup,
		IsCustomGroup: req.IsCustomGroup,
		StudentIDs:    req.StudentIDs,
		TeacherIDs:    req.TeacherIDs,
	})
	if err != nil {
		h.emitAudit(c, "ERROR", "group.create", "internal error", 0, 0)
		respondError(c, h.logger, err)
		return
	}

	h.emitAudit(c, "INFO", "group.create", "Group created", group.ID, 0)
	c.JSON(http.StatusCreated, group)
}

// ListGroups returns the groups visible to the caller.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	groups, err := h.resolver.VisibleGroups(c.Request.Context(), user)
	if errors.Is(err, membership.ErrNoProfile) {
		c.JSON(http.StatusOK, gin.H{"groups": []models.Group{}})
		return
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// GetGroupMessages returns the group's history after the same checks a connection gets.
func (h *GroupHandler) GetGroupMessages(c *gin.Context) {
	groupID, ok := parseID(c, "group_id")
	if !ok {
		return
	}
	user, _ := middleware.CurrentUser(c)

	if _, err := h.resolver.Authorize(c.Request.Context(), groupID, user); err != nil {
		if errors.Is(err, membership.ErrBlocked) || errors.Is(err, membership.ErrNotPermitted) {
			h.emitAudit(c, "ERROR", "group.history", "not allowed", groupID, 0)
		}
		respondError(c, h.logger, err)
		return
	}

	entries, err := h.history.History(c.Request.Context(), groupID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": entries})
}

// ListMembers returns the roster annotated with block state.
func (h *GroupHandler) ListMembers(c *gin.Context) {
	groupID, ok := parseID(c, "group_id")
	if !ok {
		return
	}
	group, err := h.groupRepo.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	members, err := h.resolver.Roster(c.Request.Context(), group)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

type addMembersRequest struct {
	StudentIDs []int `json:"student_ids"`
	TeacherIDs []int `json:"teacher_ids"`
}

// AddMembers enrolls users in a custom group.
func (h *GroupHandler) AddMembers(c *gin.Context) {
	groupID, ok := parseID(c, "group_id")
	if !ok {
		return
	}
	var req addMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if len(req.StudentIDs) == 0 && len(req.TeacherIDs) == 0 {
		badRequest(c, "student_ids or teacher_ids is required")
		return
	}

	group, err := h.groupRepo.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if group.IsClassGroup {
		badRequest(c, "class group membership is derived from level")
		return
	}
	if err := h.groupRepo.AddMembers(c.Request.Context(), groupID, req.StudentIDs, req.TeacherIDs); err != nil {
		h.emitAudit(c, "ERROR", "group.add_members", "internal error", groupID, 0)
		respondError(c, h.logger, err)
		return
	}

	h.emitAudit(c, "INFO", "group.add_members", "Members added", groupID, 0)
	c.JSON(http.StatusOK, gin.H{"status": "members added"})
}

// RemoveMember removes a user from a group. Removing a non-member succeeds.
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	groupID, userID, ok := parseGroupUser(c)
	if !ok {
		return
	}
	if _, err := h.groupRepo.GetGroup(c.Request.Context(), groupID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.groupRepo.RemoveMember(c.Request.Context(), groupID, userID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.emitAudit(c, "INFO", "group.remove_member", "Member removed", groupID, userID)
	c.JSON(http.StatusOK, gin.H{"status": "member removed"})
}

// BlockUser blocks a user in a group. A second block is a conflict.
func (h *GroupHandler) BlockUser(c *gin.Context) {
	groupID, userID, ok := parseGroupUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.groupRepo.GetGroup(ctx, groupID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if _, err := h.userRepo.GetUser(ctx, userID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.blockRepo.Block(ctx, groupID, userID); err != nil {
		if errors.Is(err, repositories.ErrAlreadyBlocked) {
			h.emitAudit(c, "ERROR", "group.block", "duplicate block", groupID, userID)
		}
		respondError(c, h.logger, err)
		return
	}
	h.emitAudit(c, "INFO", "group.block", "User blocked", groupID, userID)
	c.JSON(http.StatusCreated, gin.H{"status": "user blocked"})
}

// UnblockUser lifts a block. Absence is not an error.
func (h *GroupHandler) UnblockUser(c *gin.Context) {
	groupID, userID, ok := parseGroupUser(c)
	if !ok {
		return
	}
	if err := h.blockRepo.Unblock(c.Request.Context(), groupID, userID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.emitAudit(c, "INFO", "group.unblock", "User unblocked", groupID, userID)
	c.JSON(http.StatusOK, gin.H{"status": "user unblocked"})
}

type restrictRequest struct {
	DurationMinutes int `json:"duration_minutes"`
}

// Restrict mutes a group for duration_minutes.
func (h *GroupHandler) Restrict(c *gin.Context) {
	groupID, ok := parseID(c, "group_id")
	if !ok {
		return
	}
	var req restrictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.DurationMinutes <= 0 {
		badRequest(c, "duration_minutes must be positive")
		return
	}

	until := h.now().UTC().Add(time.Duration(req.DurationMinutes) * time.Minute)
	if err := h.groupRepo.SetMutedUntil(c.Request.Context(), groupID, &until); err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.emitAudit(c, "INFO", "group.restrict", "Group restricted", groupID, 0)
	c.JSON(http.StatusOK, gin.H{"muted_until": until})
}

// Unrestrict clears a group's mute.
func (h *GroupHandler) Unrestrict(c *gin.Context) {
	groupID, ok := parseID(c, "group_id")
	if !ok {
		return
	}
	if err := h.groupRepo.SetMutedUntil(c.Request.Context(), groupID, nil); err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.emitAudit(c, "INFO", "group.unrestrict", "Group restriction lifted", groupID, 0)
	c.JSON(http.StatusOK, gin.H{"status": "restriction lifted"})
}

func (h *GroupHandler) emitAudit(c *gin.Context, level, action, text string, groupID, targetUserID int) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), auditRecord(c, level, action, text, groupID, targetUserID))
}

func parseID(c *gin.Context, param string) (int, bool) {
	id, err := strconv.Atoi(c.Param(param))
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+strings.ReplaceAll(param, "_", " "))
		return 0, false
	}
	return id, true
}

func parseGroupUser(c *gin.Context) (int, int, bool) {
	groupID, ok := parseID(c, "group_id")
	if !ok {
		return 0, 0, false
	}
	userID, ok := parseID(c, "user_id")
	if !ok {
		return 0, 0, false
	}
	return groupID, userID, true
}
