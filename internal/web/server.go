// Package web serves the JSON API over the study, library and importer
// services.
package web

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/conorfennell/skillcards/internal/domain"
	"github.com/conorfennell/skillcards/internal/importer"
	"github.com/conorfennell/skillcards/internal/library"
	"github.com/conorfennell/skillcards/internal/priority"
	"github.com/conorfennell/skillcards/internal/study"
)

// StudyService is the part of *study.Service the API exposes.
type StudyService interface {
	NextBatch(ctx context.Context, scope study.Scope, size int) (study.Batch, error)
	SubmitReview(ctx context.Context, in study.ReviewInput) (domain.Progress, error)
	EffectivePriorities(ctx context.Context, tenantID, userID string) ([]study.CategoryPriority, error)
	SetAdminPriority(ctx context.Context, tenantID, categoryID string, level int) error
	SetUserPriority(ctx context.Context, tenantID, userID, categoryID string, level int) error
	ClearUserPriority(ctx context.Context, tenantID, userID, categoryID string) error
	SetOverrideMode(ctx context.Context, tenantID string, mode priority.OverrideMode) error
}

// Library is the part of *library.Library the API exposes.
type Library interface {
	CreateCard(ctx context.Context, in library.NewCard) (domain.Card, error)
	UpdateCard(ctx context.Context, tenantID, userID, cardID, question, answer string) (domain.Card, error)
	CopySharedCard(ctx context.Context, tenantID, userID, cardID string) (domain.Card, error)
	DeleteCard(ctx context.Context, tenantID, userID, cardID string) error
	ShareCard(ctx context.Context, tenantID, ownerID, cardID, toUserID string) error
	AcceptShare(ctx context.Context, tenantID, userID, cardID string) error
	CreateDeck(ctx context.Context, in library.NewDeck) (domain.Deck, error)
	HideCard(ctx context.Context, tenantID, userID, deckID, cardID string) error
	UnhideCard(ctx context.Context, tenantID, userID, deckID, cardID string) error
	EnsureCategory(ctx context.Context, tenantID, name string) (domain.Category, error)
}

// Importer is the part of *importer.Importer the API exposes.
type Importer interface {
	AddSource(ctx context.Context, src domain.Source) (domain.Source, error)
	ListSources(ctx context.Context, tenantID string) ([]domain.Source, error)
	RemoveSource(ctx context.Context, by importer.Caller, id int64) error
	Sync(ctx context.Context, tenantID string) ([]importer.Result, error)
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of a Server.
type Deps struct {
	Study    StudyService
	Library  Library
	Importer Importer
	DB       Pinger
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	deps   Deps
	router *gin.Engine
	log    *zap.Logger
}

// NewServer creates and configures a new server.
func NewServer(deps Deps, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		deps:   deps,
		router: gin.New(),
		log:    log,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.Use(recoverer(s.log), requestLogger(s.log), corsPolicy())

	s.router.GET("/healthz", s.handleHealth())

	api := s.router.Group("/api", identity())

	api.GET("/study/next", s.handleNextBatch())
	api.POST("/study/review", s.handleReview())

	api.GET("/priorities", s.handleGetPriorities())
	api.PUT("/priorities/admin/:category", requireAdmin(), s.handleSetAdminPriority())
	api.PUT("/priorities/user/:category", s.handleSetUserPriority())
	api.DELETE("/priorities/user/:category", s.handleClearUserPriority())
	api.PUT("/settings/override-mode", requireAdmin(), s.handleSetOverrideMode())

	api.POST("/categories", s.handleCreateCategory())
	api.POST("/cards", s.handleCreateCard())
	api.PUT("/cards/:id", s.handleUpdateCard())
	api.DELETE("/cards/:id", s.handleDeleteCard())
	api.POST("/cards/:id/copy", s.handleCopyCard())
	api.POST("/cards/:id/shares", s.handleShareCard())
	api.POST("/cards/:id/accept", s.handleAcceptShare())

	api.POST("/decks", s.handleCreateDeck())
	api.PUT("/decks/:id/hidden/:card", s.handleHideCard(true))
	api.DELETE("/decks/:id/hidden/:card", s.handleHideCard(false))

	api.GET("/sources", s.handleListSources())
	api.POST("/sources", s.handleAddSource())
	api.DELETE("/sources/:id", s.handleDeleteSource())
	api.POST("/sync", s.handleSync())
}

// handleHealth pings the database.
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.DB != nil {
			if err := s.deps.DB.Ping(c.Request.Context()); err != nil {
				s.log.Warn("health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func queryInt(c *gin.Context, key string) (int, bool) {
	v := c.Query(key)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}
