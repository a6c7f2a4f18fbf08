package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/conorfennell/skillcards/internal/priority"
	"github.com/conorfennell/skillcards/internal/study"
)

// handleNextBatch returns the next cards to study.
func (s *Server) handleNextBatch() gin.HandlerFunc {
	return func(c *gin.Context) {
		size, ok := queryInt(c, "size")
		if !ok {
			s.badRequest(c, "size must be an integer")
			return
		}
		scope := study.Scope{TenantID: tenantOf(c), UserID: userOf(c), DeckID: c.Query("deck")}
		batch, err := s.deps.Study.NextBatch(c.Request.Context(), scope, size)
		if err != nil {
			s.fail(c, err)
			return
		}
		picks := batch.Picks
		if picks == nil {
			picks = []study.Pick{}
		}
		c.JSON(http.StatusOK, gin.H{
			"cards":     picks,
			"total_due": batch.TotalDue,
			"total_new": batch.TotalNew,
		})
	}
}

// handleReview records an answer and returns the updated progress.
func (s *Server) handleReview() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in study.ReviewInput
		if err := c.ShouldBindJSON(&in); err != nil {
			s.badRequest(c, "invalid body")
			return
		}
		in.TenantID, in.UserID = tenantOf(c), userOf(c)
		p, err := s.deps.Study.SubmitReview(c.Request.Context(), in)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// handleGetPriorities lists the effective priority of each category.
func (s *Server) handleGetPriorities() gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := s.deps.Study.EffectivePriorities(c.Request.Context(), tenantOf(c), userOf(c))
		if err != nil {
			s.fail(c, err)
			return
		}
		if out == nil {
			out = []study.CategoryPriority{}
		}
		c.JSON(http.StatusOK, out)
	}
}

type levelBody struct {
	Level *int `json:"level"`
}

func (s *Server) bindLevel(c *gin.Context) (int, bool) {
	var body levelBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Level == nil {
		s.badRequest(c, "level is required")
		return 0, false
	}
	return *body.Level, true
}

func (s *Server) handleSetAdminPriority() gin.HandlerFunc {
	return func(c *gin.Context) {
		level, ok := s.bindLevel(c)
		if !ok {
			return
		}
		if err := s.deps.Study.SetAdminPriority(c.Request.Context(), tenantOf(c), c.Param("category"), level); err != nil {
			s.fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) handleSetUserPriority() gin.HandlerFunc {
	return func(c *gin.Context) {
		level, ok := s.bindLevel(c)
		if !ok {
			return
		}
		if err := s.deps.Study.SetUserPriority(c.Request.Context(), tenantOf(c), userOf(c), c.Param("category"), level); err != nil {
			s.fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) handleClearUserPriority() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.deps.Study.ClearUserPriority(c.Request.Context(), tenantOf(c), userOf(c), c.Param("category")); err != nil {
			s.fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) handleSetOverrideMode() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Mode priority.OverrideMode `json:"mode"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			s.badRequest(c, "invalid body")
			return
		}
		if err := s.deps.Study.SetOverrideMode(c.Request.Context(), tenantOf(c), body.Mode); err != nil {
			s.fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
