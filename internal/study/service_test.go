package study

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/skillcards/internal/domain"
	"github.com/conorfennell/skillcards/internal/errs"
	"github.com/conorfennell/skillcards/internal/priority"
)

type memStore struct {
	cards      []domain.Card
	categories []domain.Category
	hidden     map[string]map[string]bool
	progress   map[string]*domain.Progress
	reviews    []domain.ReviewLog
	shares     map[string]domain.Share
	recordErr  error
	admin      map[string]int
	user       map[string]int
	mode       string
}

func newMemStore() *memStore {
	return &memStore{
		hidden:   map[string]map[string]bool{},
		progress: map[string]*domain.Progress{},
		shares:   map[string]domain.Share{},
		admin:    map[string]int{},
		user:     map[string]int{},
	}
}

func (m *memStore) CandidateCards(_ context.Context, scope Scope) ([]domain.Card, error) {
	var out []domain.Card
	for _, c := range m.cards {
		if c.TenantID == scope.TenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) HiddenCards(_ context.Context, deckID string) (map[string]bool, error) {
	return m.hidden[deckID], nil
}

func (m *memStore) Categories(_ context.Context, _ string) ([]domain.Category, error) {
	return m.categories, nil
}

func (m *memStore) GetCard(_ context.Context, _, cardID string) (*domain.Card, error) {
	for _, c := range m.cards {
		if c.ID == cardID {
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (m *memStore) ProgressForUser(_ context.Context, userID string) (map[string]*domain.Progress, error) {
	out := map[string]*domain.Progress{}
	for _, p := range m.progress {
		if p.UserID == userID {
			cp := *p
			out[p.CardID] = &cp
		}
	}
	return out, nil
}

func (m *memStore) GetProgress(_ context.Context, userID, cardID string) (*domain.Progress, error) {
	p, ok := m.progress[userID+"/"+cardID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) GetShare(_ context.Context, cardID, userID string) (*domain.Share, error) {
	sh, ok := m.shares[cardID+"/"+userID]
	if !ok {
		return nil, nil
	}
	return &sh, nil
}

func (m *memStore) RecordReview(_ context.Context, r domain.ReviewLog, p domain.Progress) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	m.reviews = append(m.reviews, r)
	m.progress[p.UserID+"/"+p.CardID] = &p
	return nil
}

func (m *memStore) RecentReviews(_ context.Context, userID, cardID string, limit int) ([]domain.ReviewLog, error) {
	var out []domain.ReviewLog
	for i := len(m.reviews) - 1; i >= 0 && len(out) < limit; i-- {
		r := m.reviews[i]
		if r.UserID == userID && r.CardID == cardID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) AdminPriorities(context.Context, string) (map[string]int, error) {
	return m.admin, nil
}

func (m *memStore) UserPriorities(context.Context, string, string) (map[string]int, error) {
	return m.user, nil
}

func (m *memStore) OverrideMode(context.Context, string) (string, error) {
	return m.mode, nil
}

func (m *memStore) SetAdminPriority(_ context.Context, _, categoryID string, level int) error {
	m.admin[categoryID] = level
	return nil
}

func (m *memStore) SetUserPriority(_ context.Context, _, _, categoryID string, level int) error {
	m.user[categoryID] = level
	return nil
}

func (m *memStore) DeleteUserPriority(_ context.Context, _, _, categoryID string) error {
	delete(m.user, categoryID)
	return nil
}

func (m *memStore) SetOverrideMode(_ context.Context, _ string, mode string) error {
	m.mode = mode
	return nil
}

func newTestService(store *memStore, opts Options) *Service {
	opts.Now = func() time.Time { return now }
	return NewService(store, store, store, opts, nil)
}

func seedCards(store *memStore, n int) {
	store.categories = []domain.Category{{ID: "cat", TenantID: "t1", Name: "Go"}}
	for i := 0; i < n; i++ {
		c := card(string(rune('a'+i)), "cat")
		c.TenantID = "t1"
		c.OwnerID = "u1"
		store.cards = append(store.cards, c)
	}
}

func TestService_NextBatchDefaultsAndCap(t *testing.T) {
	store := newMemStore()
	seedCards(store, 8)
	svc := newTestService(store, Options{BatchSize: 3, MaxBatchSize: 5})
	scope := Scope{TenantID: "t1", UserID: "u1"}

	batch, err := svc.NextBatch(context.Background(), scope, 0)
	require.NoError(t, err)
	assert.Len(t, batch.Picks, 3)
	assert.Equal(t, 8, batch.TotalNew)

	batch, err = svc.NextBatch(context.Background(), scope, 50)
	require.NoError(t, err)
	assert.Len(t, batch.Picks, 5)
}

func TestService_NextBatchRequiresUser(t *testing.T) {
	svc := newTestService(newMemStore(), Options{})

	_, err := svc.NextBatch(context.Background(), Scope{TenantID: "t1"}, 5)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestService_NextBatchHonorsHiddenCards(t *testing.T) {
	store := newMemStore()
	seedCards(store, 3)
	store.hidden["deck"] = map[string]bool{"a": true}
	svc := newTestService(store, Options{})

	batch, err := svc.NextBatch(context.Background(), Scope{TenantID: "t1", UserID: "u1", DeckID: "deck"}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, batch.CardIDs())
}

func TestService_SubmitReviewCreatesProgress(t *testing.T) {
	store := newMemStore()
	seedCards(store, 1)
	svc := newTestService(store, Options{})

	p, err := svc.SubmitReview(context.Background(), ReviewInput{
		TenantID: "t1", UserID: "u1", CardID: "a", Feedback: domain.FeedbackMastered,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, p.Repetitions)
	assert.Equal(t, 1, p.IntervalDays)
	assert.InDelta(t, 2.6, p.EaseFactor, 1e-9)
	assert.Equal(t, 1, p.ExposureCount)
	assert.Equal(t, 1.0, p.MasteryScore)
	require.NotNil(t, p.LastReviewedAt)
	assert.Equal(t, now, *p.LastReviewedAt)
	require.NotNil(t, p.NextReviewAt)
	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), *p.NextReviewAt)

	require.Len(t, store.reviews, 1)
	assert.Equal(t, 5, store.reviews[0].Quality)
	assert.Equal(t, p, *store.progress["u1/a"])
}

func TestService_SubmitReviewFailureResets(t *testing.T) {
	store := newMemStore()
	seedCards(store, 1)
	svc := newTestService(store, Options{})
	ctx := context.Background()

	for _, f := range []domain.Feedback{domain.FeedbackGotIt, domain.FeedbackGotIt} {
		_, err := svc.SubmitReview(ctx, ReviewInput{TenantID: "t1", UserID: "u1", CardID: "a", Feedback: f})
		require.NoError(t, err)
	}
	p, err := svc.SubmitReview(ctx, ReviewInput{TenantID: "t1", UserID: "u1", CardID: "a", Feedback: domain.FeedbackNeedsReview})
	require.NoError(t, err)

	assert.Equal(t, 0, p.Repetitions)
	assert.Equal(t, 0, p.IntervalDays)
	assert.Nil(t, p.NextReviewAt)
	assert.Equal(t, 3, p.ExposureCount)
	assert.InDelta(t, 2.0/3.0, p.MasteryScore, 1e-9)
}

func TestService_SubmitReviewQualityWinsOverFeedback(t *testing.T) {
	store := newMemStore()
	seedCards(store, 1)
	svc := newTestService(store, Options{})
	q := 1

	p, err := svc.SubmitReview(context.Background(), ReviewInput{
		TenantID: "t1", UserID: "u1", CardID: "a", Feedback: domain.FeedbackMastered, Quality: &q,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, p.Repetitions)
	assert.Equal(t, 1, store.reviews[0].Quality)
}

func TestService_SubmitReviewRejectsBadInput(t *testing.T) {
	store := newMemStore()
	seedCards(store, 1)
	svc := newTestService(store, Options{})
	tooHigh := 6

	testCases := []struct {
		name string
		in   ReviewInput
	}{
		{"no grade", ReviewInput{TenantID: "t1", UserID: "u1", CardID: "a"}},
		{"unknown feedback", ReviewInput{TenantID: "t1", UserID: "u1", CardID: "a", Feedback: "meh"}},
		{"quality out of range", ReviewInput{TenantID: "t1", UserID: "u1", CardID: "a", Quality: &tooHigh}},
		{"missing user", ReviewInput{TenantID: "t1", CardID: "a", Feedback: domain.FeedbackGotIt}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SubmitReview(context.Background(), tc.in)
			assert.ErrorIs(t, err, errs.ErrInvalidInput)
		})
	}
	assert.Empty(t, store.reviews)
}

func TestService_SubmitReviewUnknownCard(t *testing.T) {
	svc := newTestService(newMemStore(), Options{})

	_, err := svc.SubmitReview(context.Background(), ReviewInput{
		TenantID: "t1", UserID: "u1", CardID: "missing", Feedback: domain.FeedbackGotIt,
	})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestService_MasteryWindow(t *testing.T) {
	store := newMemStore()
	seedCards(store, 1)
	svc := newTestService(store, Options{MasteryWindow: 2})
	ctx := context.Background()

	for _, f := range []domain.Feedback{domain.FeedbackNeedsReview, domain.FeedbackGotIt, domain.FeedbackGotIt} {
		_, err := svc.SubmitReview(ctx, ReviewInput{TenantID: "t1", UserID: "u1", CardID: "a", Feedback: f})
		require.NoError(t, err)
	}

	assert.Equal(t, 1.0, store.progress["u1/a"].MasteryScore)
}

func TestService_SubmitReviewFailedSaveWritesNothing(t *testing.T) {
	store := newMemStore()
	seedCards(store, 1)
	store.recordErr = errors.New("disk full")
	svc := newTestService(store, Options{})
	ctx := context.Background()

	for range 3 {
		_, err := svc.SubmitReview(ctx, ReviewInput{TenantID: "t1", UserID: "u1", CardID: "a", Feedback: domain.FeedbackNeedsReview})
		require.ErrorContains(t, err, "disk full")
	}
	assert.Empty(t, store.reviews)
	assert.Empty(t, store.progress)

	store.recordErr = nil
	p, err := svc.SubmitReview(ctx, ReviewInput{TenantID: "t1", UserID: "u1", CardID: "a", Feedback: domain.FeedbackGotIt})
	require.NoError(t, err)
	assert.Equal(t, 1, p.ExposureCount)
	assert.Equal(t, 1.0, p.MasteryScore)
	assert.Len(t, store.reviews, 1)
}

func TestService_SubmitReviewVisibility(t *testing.T) {
	testCases := []struct {
		name       string
		visibility domain.Visibility
		share      *domain.Share
		wantErr    error
	}{
		{name: "private card of another user", visibility: domain.VisibilityPrivate, wantErr: errs.ErrForbidden},
		{name: "public card", visibility: domain.VisibilityPublic},
		{
			name:       "share not accepted yet",
			visibility: domain.VisibilityShared,
			share:      &domain.Share{CardID: "a", UserID: "u2"},
			wantErr:    errs.ErrForbidden,
		},
		{
			name:       "accepted share",
			visibility: domain.VisibilityShared,
			share:      &domain.Share{CardID: "a", UserID: "u2", Accepted: true},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore()
			seedCards(store, 1)
			store.cards[0].Visibility = tc.visibility
			if tc.share != nil {
				store.shares["a/u2"] = *tc.share
			}
			svc := newTestService(store, Options{})

			_, err := svc.SubmitReview(context.Background(), ReviewInput{
				TenantID: "t1", UserID: "u2", CardID: "a", Feedback: domain.FeedbackGotIt,
			})
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Empty(t, store.progress)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, store.progress, "u2/a")
		})
	}
}

func TestMasteryScore(t *testing.T) {
	assert.Equal(t, 0.0, MasteryScore(nil))
	assert.Equal(t, 0.5, MasteryScore([]domain.ReviewLog{{Quality: 4}, {Quality: 3}}))
}

func TestService_EffectivePriorities(t *testing.T) {
	store := newMemStore()
	store.categories = []domain.Category{
		{ID: "c2", Name: "Rust"},
		{ID: "c1", Name: "Go"},
		{ID: "c3", Name: "Bash"},
	}
	store.admin["c1"] = 8
	store.user["c1"] = 2
	store.admin["c2"] = 6
	store.mode = string(priority.AdminOverridesUser)
	svc := newTestService(store, Options{})

	got, err := svc.EffectivePriorities(context.Background(), "t1", "u1")
	require.NoError(t, err)
	require.Len(t, got, 3)

	names := make([]string, len(got))
	for i, cp := range got {
		names[i] = cp.Name
	}
	assert.True(t, sort.StringsAreSorted(names))
	assert.Equal(t, priority.DefaultLevel, got[0].Effective)
	assert.Equal(t, 8, got[1].Effective)
	assert.Equal(t, 6, got[2].Effective)
	assert.Equal(t, priority.AdminOverridesUser, got[1].Mode)
}

func TestService_PrioritySetters(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, Options{})
	ctx := context.Background()

	require.NoError(t, svc.SetAdminPriority(ctx, "t1", "c1", 9))
	require.NoError(t, svc.SetUserPriority(ctx, "t1", "u1", "c1", 2))
	assert.Equal(t, 9, store.admin["c1"])
	assert.Equal(t, 2, store.user["c1"])

	require.NoError(t, svc.ClearUserPriority(ctx, "t1", "u1", "c1"))
	assert.NotContains(t, store.user, "c1")

	assert.ErrorIs(t, svc.SetAdminPriority(ctx, "t1", "c1", 0), errs.ErrInvalidInput)
	assert.ErrorIs(t, svc.SetUserPriority(ctx, "t1", "u1", "c1", 11), errs.ErrInvalidInput)
}

func TestService_SetOverrideMode(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, Options{})

	require.NoError(t, svc.SetOverrideMode(context.Background(), "t1", priority.AdminOnly))
	assert.Equal(t, "ADMIN_ONLY", store.mode)

	err := svc.SetOverrideMode(context.Background(), "t1", "WHATEVER")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
	assert.Equal(t, "ADMIN_ONLY", store.mode)
}
