package web

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/conorfennell/skillcards/internal/domain"
	"github.com/conorfennell/skillcards/internal/importer"
)

func (s *Server) handleListSources() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := s.deps.Importer.ListSources(c.Request.Context(), tenantOf(c))
		if err != nil {
			s.fail(c, err)
			return
		}
		if list == nil {
			list = []domain.Source{}
		}
		c.JSON(http.StatusOK, list)
	}
}

// handleAddSource registers a directory or git repository owned by the
// caller.
func (s *Server) handleAddSource() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Path       string `json:"path"`
			CategoryID string `json:"category_id"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			s.badRequest(c, "invalid body")
			return
		}
		src, err := s.deps.Importer.AddSource(c.Request.Context(), domain.Source{
			TenantID:   tenantOf(c),
			OwnerID:    userOf(c),
			CategoryID: body.CategoryID,
			Path:       body.Path,
		})
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, src)
	}
}

// handleDeleteSource removes a source and its cards. Only the owner or an
// admin may do that.
func (s *Server) handleDeleteSource() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			s.badRequest(c, "invalid source ID")
			return
		}
		by := importer.Caller{TenantID: tenantOf(c), UserID: userOf(c), Admin: isAdmin(c)}
		if err := s.deps.Importer.RemoveSource(c.Request.Context(), by, id); err != nil {
			s.fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// handleSync reconciles the tenant's sources in the foreground. Failures of
// single sources are reported in the body, not as an error status.
func (s *Server) handleSync() gin.HandlerFunc {
	return func(c *gin.Context) {
		results, err := s.deps.Importer.Sync(c.Request.Context(), tenantOf(c))
		if err != nil && results == nil {
			s.fail(c, err)
			return
		}
		body := gin.H{"results": results}
		if results == nil {
			body["results"] = []any{}
		}
		if err != nil {
			body["error"] = err.Error()
		}
		c.JSON(http.StatusOK, body)
	}
}
