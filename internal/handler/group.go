package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/studyhive/studyhive/internal/model"
	"github.com/studyhive/studyhive/internal/service"
)

type GroupHandler struct {
	groupService service.IGroupService
}

func NewGroupHandler(groupService service.IGroupService) *GroupHandler {
	return &GroupHandler{groupService: groupService}
}

// CreateGroup handles POST /groups.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	var req service.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.groupService.CreateGroup(c.Request.Context(), requesterID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// UpdateGroup handles PATCH /groups/:id.
func (h *GroupHandler) UpdateGroup(c *gin.Context) {
	var req service.UpdateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.groupService.UpdateGroup(c.Request.Context(), c.Param("id"), requesterID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// DeleteGroup handles DELETE /groups/:id.
func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	if err := h.groupService.DeleteGroup(c.Request.Context(), c.Param("id"), requesterID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "group deleted"})
}

// GetGroup handles GET /groups/:id. Auth is optional; anonymous viewers see
// public groups only.
func (h *GroupHandler) GetGroup(c *gin.Context) {
	view, err := h.groupService.GetGroup(c.Request.Context(), c.Param("id"), requesterID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ListGroups handles GET /groups.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	req := service.ListGroupsRequest{
		Category:   model.Category(c.Query("category")),
		Visibility: model.Visibility(c.Query("visibility")),
		Query:      c.Query("q"),
		Tag:        c.Query("tag"),
		HasSpace:   c.Query("has_space") == "true",
		SortBy:     c.Query("sort_by"),
		SortDesc:   c.Query("order") == "desc",
	}
	req.Page, _ = strconv.Atoi(c.Query("page"))
	req.Limit, _ = strconv.Atoi(c.Query("limit"))

	groups, total, err := h.groupService.ListGroups(c.Request.Context(), &req, requesterID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups, "total": total})
}
