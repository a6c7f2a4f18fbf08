package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/conorfennell/skillcards/internal/library"
)

// handleCreateCategory returns the tenant's category with the given name,
// creating it first if needed.
func (s *Server) handleCreateCategory() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Name string `json:"name"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			s.badRequest(c, "invalid body")
			return
		}
		cat, err := s.deps.Library.EnsureCategory(c.Request.Context(), tenantOf(c), body.Name)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, cat)
	}
}

// handleCreateCard stores a card. A duplicate answers 409 with the card
// the user already has.
func (s *Server) handleCreateCard() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in library.NewCard
		if err := c.ShouldBindJSON(&in); err != nil {
			s.badRequest(c, "invalid body")
			return
		}
		in.TenantID, in.OwnerID = tenantOf(c), userOf(c)
		card, err := s.deps.Library.CreateCard(c.Request.Context(), in)
		if errors.Is(err, library.ErrDuplicateCard) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "card": card})
			return
		}
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, card)
	}
}

func (s *Server) handleUpdateCard() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Question string `json:"question"`
			Answer   string `json:"answer"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			s.badRequest(c, "invalid body")
			return
		}
		card, err := s.deps.Library.UpdateCard(c.Request.Context(), tenantOf(c), userOf(c), c.Param("id"), body.Question, body.Answer)
		if errors.Is(err, library.ErrDuplicateCard) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "card": card})
			return
		}
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, card)
	}
}

func (s *Server) handleDeleteCard() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.deps.Library.DeleteCard(c.Request.Context(), tenantOf(c), userOf(c), c.Param("id")); err != nil {
			s.fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// handleCopyCard copies a shared or public card into the caller's
// collection. Copying twice returns the same card.
func (s *Server) handleCopyCard() gin.HandlerFunc {
	return func(c *gin.Context) {
		card, err := s.deps.Library.CopySharedCard(c.Request.Context(), tenantOf(c), userOf(c), c.Param("id"))
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, card)
	}
}

func (s *Server) handleShareCard() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			UserID string `json:"user_id"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			s.badRequest(c, "invalid body")
			return
		}
		if err := s.deps.Library.ShareCard(c.Request.Context(), tenantOf(c), userOf(c), c.Param("id"), body.UserID); err != nil {
			s.fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) handleAcceptShare() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.deps.Library.AcceptShare(c.Request.Context(), tenantOf(c), userOf(c), c.Param("id")); err != nil {
			s.fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) handleCreateDeck() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in library.NewDeck
		if err := c.ShouldBindJSON(&in); err != nil {
			s.badRequest(c, "invalid body")
			return
		}
		in.TenantID, in.OwnerID = tenantOf(c), userOf(c)
		deck, err := s.deps.Library.CreateDeck(c.Request.Context(), in)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, deck)
	}
}

func (s *Server) handleHideCard(hidden bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		op := s.deps.Library.UnhideCard
		if hidden {
			op = s.deps.Library.HideCard
		}
		if err := op(c.Request.Context(), tenantOf(c), userOf(c), c.Param("id"), c.Param("card")); err != nil {
			s.fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
