package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conorfennell/skillcards/internal/domain"
	"github.com/conorfennell/skillcards/internal/importer"
	"github.com/conorfennell/skillcards/internal/library"
	"github.com/conorfennell/skillcards/internal/storage"
	"github.com/conorfennell/skillcards/internal/study"
)

var now = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "web.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := func() time.Time { return now }
	lib := library.New(db, library.Options{Now: clock}, nil)
	return NewServer(Deps{
		Study:    study.NewService(db, db, db, study.Options{Now: clock}, nil),
		Library:  lib,
		Importer: importer.New(db, lib, nil, importer.Options{Now: clock}, nil),
		DB:       db,
	}, nil)
}

type caller struct {
	tenant, user, role string
}

var (
	alice = caller{tenant: "acme", user: "alice"}
	bob   = caller{tenant: "acme", user: "bob"}
	admin = caller{tenant: "acme", user: "root", role: "admin"}
)

func do(t *testing.T, s *Server, who caller, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if who.tenant != "" {
		req.Header.Set(HeaderTenant, who.tenant)
	}
	if who.user != "" {
		req.Header.Set(HeaderUser, who.user)
	}
	if who.role != "" {
		req.Header.Set(HeaderRole, who.role)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createCategory(t *testing.T, s *Server, who caller, name string) domain.Category {
	t.Helper()
	rec := do(t, s, who, http.MethodPost, "/api/categories", map[string]string{"name": name})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[domain.Category](t, rec)
}

func createCard(t *testing.T, s *Server, who caller, in map[string]any) domain.Card {
	t.Helper()
	rec := do(t, s, who, http.MethodPost, "/api/cards", in)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[domain.Card](t, rec)
}

type nextBody struct {
	Cards    []study.Pick `json:"cards"`
	TotalDue int          `json:"total_due"`
	TotalNew int          `json:"total_new"`
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, caller{}, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAPI_RequiresIdentity(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, caller{tenant: "acme"}, http.MethodGet, "/api/study/next", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStudyFlow(t *testing.T) {
	s := newTestServer(t)
	cat := createCategory(t, s, alice, "Go")

	card := createCard(t, s, alice, map[string]any{
		"category_id": cat.ID,
		"question":    "What is a goroutine?",
		"answer":      "A lightweight thread.",
	})
	assert.Equal(t, domain.VisibilityPrivate, card.Visibility)

	// Same text after normalisation is a duplicate.
	rec := do(t, s, alice, http.MethodPost, "/api/cards", map[string]any{
		"category_id": cat.ID,
		"question":    "  what is a GOROUTINE? ",
		"answer":      "a lightweight thread.",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	dup := decode[struct {
		Card domain.Card `json:"card"`
	}](t, rec)
	assert.Equal(t, card.ID, dup.Card.ID)

	rec = do(t, s, alice, http.MethodGet, "/api/study/next", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	next := decode[nextBody](t, rec)
	require.Len(t, next.Cards, 1)
	assert.Equal(t, card.ID, next.Cards[0].CardID)
	assert.Equal(t, study.KindNew, next.Cards[0].Kind)
	assert.Equal(t, 1, next.TotalNew)

	rec = do(t, s, alice, http.MethodPost, "/api/study/review", map[string]any{
		"card_id":  card.ID,
		"feedback": "got_it",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decode[domain.Progress](t, rec)
	assert.Equal(t, 1, p.Repetitions)
	assert.Equal(t, 1, p.IntervalDays)
	assert.Equal(t, 1, p.ExposureCount)
	require.NotNil(t, p.NextReviewAt)
	assert.True(t, p.NextReviewAt.Equal(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)))

	// Reviewed and not yet due: nothing left for today.
	rec = do(t, s, alice, http.MethodGet, "/api/study/next?size=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	next = decode[nextBody](t, rec)
	assert.Empty(t, next.Cards)
	assert.Zero(t, next.TotalDue)
	assert.Zero(t, next.TotalNew)

	// Other users do not see a private card.
	rec = do(t, s, bob, http.MethodGet, "/api/study/next", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[nextBody](t, rec).Cards)
}

func TestReview_Errors(t *testing.T) {
	s := newTestServer(t)
	cat := createCategory(t, s, alice, "Go")
	card := createCard(t, s, alice, map[string]any{"category_id": cat.ID, "question": "Q", "answer": "A"})

	tests := []struct {
		name string
		body any
		want int
	}{
		{"quality out of range", map[string]any{"card_id": card.ID, "quality": 9}, http.StatusBadRequest},
		{"unknown feedback", map[string]any{"card_id": card.ID, "feedback": "meh"}, http.StatusBadRequest},
		{"no grade", map[string]any{"card_id": card.ID}, http.StatusBadRequest},
		{"unknown card", map[string]any{"card_id": "missing", "quality": 3}, http.StatusNotFound},
		{"not json", "{", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, alice, http.MethodPost, "/api/study/review", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	rec := do(t, s, alice, http.MethodGet, "/api/study/next?size=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// A private card is not reviewable by other users.
	rec = do(t, s, bob, http.MethodPost, "/api/study/review", map[string]any{"card_id": card.ID, "feedback": "got_it"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPriorities(t *testing.T) {
	s := newTestServer(t)
	cat := createCategory(t, s, alice, "Go")
	path := "/api/priorities/admin/" + cat.ID

	rec := do(t, s, alice, http.MethodPut, path, map[string]int{"level": 8})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, s, admin, http.MethodPut, path, map[string]int{"level": 8})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = do(t, s, alice, http.MethodPut, "/api/priorities/user/"+cat.ID, map[string]int{"level": 3})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	effective := func() study.CategoryPriority {
		rec := do(t, s, alice, http.MethodGet, "/api/priorities", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		list := decode[[]study.CategoryPriority](t, rec)
		require.Len(t, list, 1)
		return list[0]
	}

	// The default mode lets the user win.
	assert.Equal(t, 3, effective().Effective)

	rec = do(t, s, admin, http.MethodPut, "/api/settings/override-mode", map[string]string{"mode": "ADMIN_OVERRIDES_USER"})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.Equal(t, 8, effective().Effective)

	rec = do(t, s, admin, http.MethodPut, "/api/settings/override-mode", map[string]string{"mode": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, s, admin, http.MethodPut, path, map[string]int{"level": 11})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, s, admin, http.MethodPut, path, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, admin, http.MethodPut, "/api/settings/override-mode", map[string]string{"mode": "USER_ONLY"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, s, alice, http.MethodDelete, "/api/priorities/user/"+cat.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	got := effective()
	assert.Nil(t, got.User)
	assert.Equal(t, 5, got.Effective)
}

func TestCopyAndDeleteCards(t *testing.T) {
	s := newTestServer(t)
	cat := createCategory(t, s, alice, "Go")
	public := createCard(t, s, alice, map[string]any{
		"category_id": cat.ID, "question": "Q1", "answer": "A1", "visibility": "public",
	})
	private := createCard(t, s, alice, map[string]any{
		"category_id": cat.ID, "question": "Q2", "answer": "A2",
	})

	rec := do(t, s, bob, http.MethodPost, "/api/cards/"+public.ID+"/copy", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	copied := decode[domain.Card](t, rec)
	assert.Equal(t, "bob", copied.OwnerID)
	assert.Equal(t, public.Fingerprint, copied.Fingerprint)

	rec = do(t, s, bob, http.MethodPost, "/api/cards/"+public.ID+"/copy", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, copied.ID, decode[domain.Card](t, rec).ID)

	rec = do(t, s, bob, http.MethodPost, "/api/cards/"+private.ID+"/copy", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, s, alice, http.MethodPost, "/api/cards/"+private.ID+"/shares", map[string]string{"user_id": "bob"})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = do(t, s, bob, http.MethodPost, "/api/cards/"+private.ID+"/copy", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, bob, http.MethodDelete, "/api/cards/"+public.ID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(t, s, alice, http.MethodDelete, "/api/cards/"+public.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, s, alice, http.MethodDelete, "/api/cards/"+public.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDecks(t *testing.T) {
	s := newTestServer(t)
	cat := createCategory(t, s, alice, "Go")
	card := createCard(t, s, alice, map[string]any{"category_id": cat.ID, "question": "Q", "answer": "A"})

	rec := do(t, s, alice, http.MethodPost, "/api/decks", map[string]any{"name": "Go", "category_ids": []string{cat.ID}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	deck := decode[domain.Deck](t, rec)

	rec = do(t, s, alice, http.MethodPut, "/api/decks/"+deck.ID+"/hidden/"+card.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = do(t, s, alice, http.MethodGet, "/api/study/next?deck="+deck.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[nextBody](t, rec).Cards)

	rec = do(t, s, alice, http.MethodDelete, "/api/decks/"+deck.ID+"/hidden/"+card.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, s, alice, http.MethodGet, "/api/study/next?deck="+deck.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[nextBody](t, rec).Cards, 1)

	rec = do(t, s, alice, http.MethodGet, "/api/study/next?deck=missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, s, alice, http.MethodPost, "/api/decks", map[string]any{"name": "Empty"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSources(t *testing.T) {
	s := newTestServer(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.md"),
		[]byte("Q: What does defer do?\nA: Runs a call when the function returns.\nC: Go\n"), 0o600))

	rec := do(t, s, alice, http.MethodPost, "/api/sources", map[string]string{"path": dir})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	src := decode[domain.Source](t, rec)
	assert.Equal(t, domain.SourceLocal, src.Type)

	rec = do(t, s, alice, http.MethodPost, "/api/sources", map[string]string{"path": dir})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, s, alice, http.MethodGet, "/api/sources", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Source](t, rec), 1)

	rec = do(t, s, alice, http.MethodPost, "/api/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	synced := decode[struct {
		Results []importer.Result `json:"results"`
		Error   string            `json:"error"`
	}](t, rec)
	require.Len(t, synced.Results, 1)
	assert.Equal(t, 1, synced.Results[0].Added)
	assert.Empty(t, synced.Error)

	rec = do(t, s, alice, http.MethodGet, "/api/study/next", nil)
	assert.Len(t, decode[nextBody](t, rec).Cards, 1)

	rec = do(t, s, alice, http.MethodDelete, "/api/sources/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, s, alice, http.MethodDelete, "/api/sources/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	// Only the owner or an admin removes a source.
	rec = do(t, s, bob, http.MethodDelete, "/api/sources/"+jsonNumber(src.ID), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(t, s, alice, http.MethodGet, "/api/study/next", nil)
	assert.Equal(t, 1, decode[nextBody](t, rec).TotalNew)

	rec = do(t, s, alice, http.MethodDelete, "/api/sources/"+jsonNumber(src.ID), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Removing the source removed its cards.
	rec = do(t, s, alice, http.MethodGet, "/api/study/next", nil)
	assert.Empty(t, decode[nextBody](t, rec).Cards)
}

func TestRecoverer(t *testing.T) {
	s := newTestServer(t)
	s.router.GET("/boom", func(*gin.Context) { panic("boom") })

	rec := do(t, s, caller{}, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal"}`, rec.Body.String())
}

func jsonNumber(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
