package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/studyhive/studyhive/internal/model"
	"github.com/studyhive/studyhive/internal/service"
)

type MembershipHandler struct {
	membershipService service.IMembershipService
}

func NewMembershipHandler(membershipService service.IMembershipService) *MembershipHandler {
	return &MembershipHandler{membershipService: membershipService}
}

// Join handles POST /groups/:id/join.
func (h *MembershipHandler) Join(c *gin.Context) {
	var req struct {
		JoinCode string `json:"join_code"`
	}
	// The body is optional for public groups.
	_ = c.ShouldBindJSON(&req)

	membership, err := h.membershipService.Join(c.Request.Context(), c.Param("id"), requesterID(c), req.JoinCode)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, membership)
}

// Leave handles DELETE /groups/:id/leave.
func (h *MembershipHandler) Leave(c *gin.Context) {
	if err := h.membershipService.Leave(c.Request.Context(), c.Param("id"), requesterID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "left group"})
}

// AddMember handles POST /groups/:id/members.
func (h *MembershipHandler) AddMember(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	membership, err := h.membershipService.AddMember(c.Request.Context(), c.Param("id"), requesterID(c), req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, membership)
}

// RemoveMember handles DELETE /groups/:id/members/:user_id.
func (h *MembershipHandler) RemoveMember(c *gin.Context) {
	err := h.membershipService.RemoveMember(c.Request.Context(), c.Param("id"), requesterID(c), c.Param("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "member removed"})
}

// BanMember handles PUT /groups/:id/members/:user_id/ban.
func (h *MembershipHandler) BanMember(c *gin.Context) {
	err := h.membershipService.BanMember(c.Request.Context(), c.Param("id"), requesterID(c), c.Param("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "member banned"})
}

// UpdateMemberRole handles PUT /groups/:id/members/:user_id/role.
func (h *MembershipHandler) UpdateMemberRole(c *gin.Context) {
	var req struct {
		Role model.Role `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.membershipService.UpdateMemberRole(c.Request.Context(), c.Param("id"), requesterID(c), c.Param("user_id"), req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "role updated"})
}

// ListMembers handles GET /groups/:id/members. Auth is optional for public
// groups.
func (h *MembershipHandler) ListMembers(c *gin.Context) {
	members, err := h.membershipService.ListMembers(c.Request.Context(), c.Param("id"), requesterID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members, "count": len(members)})
}

// MemberCount handles GET /groups/:id/member-count. Public, no auth.
func (h *MembershipHandler) MemberCount(c *gin.Context) {
	view, err := h.membershipService.MemberCount(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
