package library

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/skillcards/internal/domain"
	"github.com/conorfennell/skillcards/internal/errs"
	"github.com/conorfennell/skillcards/internal/fingerprint"
)

var now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type memStore struct {
	cards      map[string]domain.Card
	categories []domain.Category
	shares     map[string]domain.Share
	decks      map[string]domain.Deck
	hidden     map[string]bool
	deleted    []string

	// racing is stored right before the next insert, as a concurrent
	// writer would.
	racing *domain.Card
}

func newMemStore() *memStore {
	return &memStore{
		cards:  map[string]domain.Card{},
		shares: map[string]domain.Share{},
		decks:  map[string]domain.Deck{},
		hidden: map[string]bool{},
	}
}

func (m *memStore) InsertCard(_ context.Context, c domain.Card) error {
	if m.racing != nil {
		m.cards[m.racing.ID] = *m.racing
		m.racing = nil
	}
	for _, other := range m.cards {
		if other.TenantID == c.TenantID && other.OwnerID == c.OwnerID && other.Fingerprint == c.Fingerprint {
			return fmt.Errorf("card %s: %w", c.ID, errs.ErrAlreadyExists)
		}
	}
	m.cards[c.ID] = c
	return nil
}

func (m *memStore) GetCard(_ context.Context, tenantID, cardID string) (*domain.Card, error) {
	c, ok := m.cards[cardID]
	if !ok || c.TenantID != tenantID {
		return nil, errs.ErrNotFound
	}
	return &c, nil
}

func (m *memStore) FindByFingerprint(_ context.Context, tenantID, ownerID, fp string) (*domain.Card, error) {
	for _, c := range m.cards {
		if c.TenantID == tenantID && c.OwnerID == ownerID && c.Fingerprint == fp {
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memStore) UpdateCard(_ context.Context, c domain.Card) error {
	m.cards[c.ID] = c
	return nil
}

func (m *memStore) DeleteCard(_ context.Context, _, cardID string) error {
	delete(m.cards, cardID)
	m.deleted = append(m.deleted, cardID)
	return nil
}

func (m *memStore) EnsureCategory(_ context.Context, cat domain.Category) (domain.Category, error) {
	for _, c := range m.categories {
		if c.TenantID == cat.TenantID && c.Name == cat.Name {
			return c, nil
		}
	}
	m.categories = append(m.categories, cat)
	return cat, nil
}

func (m *memStore) GetShare(_ context.Context, cardID, userID string) (*domain.Share, error) {
	s, ok := m.shares[cardID+"/"+userID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memStore) UpsertShare(_ context.Context, s domain.Share) error {
	m.shares[s.CardID+"/"+s.UserID] = s
	return nil
}

func (m *memStore) InsertDeck(_ context.Context, d domain.Deck) error {
	m.decks[d.ID] = d
	return nil
}

func (m *memStore) GetDeck(_ context.Context, _, deckID string) (*domain.Deck, error) {
	d, ok := m.decks[deckID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &d, nil
}

func (m *memStore) SetHidden(_ context.Context, deckID, cardID string, hidden bool) error {
	m.hidden[deckID+"/"+cardID] = hidden
	return nil
}

func newTestLibrary(store *memStore) *Library {
	var n int
	return New(store, Options{
		Now: func() time.Time { return now },
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
	}, nil)
}

func newCard(owner, q, a string) NewCard {
	return NewCard{TenantID: "t1", OwnerID: owner, CategoryID: "cat", Question: q, Answer: a}
}

func TestCreateCard(t *testing.T) {
	store := newMemStore()
	lib := newTestLibrary(store)

	card, err := lib.CreateCard(context.Background(), newCard("u1", "What is Go?", "A language"))
	require.NoError(t, err)

	assert.Equal(t, "id-1", card.ID)
	assert.Equal(t, fingerprint.Compute("What is Go?", "A language"), card.Fingerprint)
	assert.Equal(t, domain.VisibilityPrivate, card.Visibility)
	assert.Equal(t, now, card.CreatedAt)
	assert.Contains(t, store.cards, "id-1")
}

func TestCreateCard_Duplicate(t *testing.T) {
	store := newMemStore()
	lib := newTestLibrary(store)
	ctx := context.Background()

	first, err := lib.CreateCard(ctx, newCard("u1", "What is Go?", "A language"))
	require.NoError(t, err)

	again, err := lib.CreateCard(ctx, newCard("u1", "  what IS go? ", "a   LANGUAGE"))
	assert.ErrorIs(t, err, ErrDuplicateCard)
	assert.ErrorIs(t, err, errs.ErrAlreadyExists)
	assert.Equal(t, first.ID, again.ID)
	assert.Len(t, store.cards, 1)

	// Another owner may hold the same card.
	_, err = lib.CreateCard(ctx, newCard("u2", "What is Go?", "A language"))
	require.NoError(t, err)
	assert.Len(t, store.cards, 2)
}

func TestCreateCard_Invalid(t *testing.T) {
	lib := newTestLibrary(newMemStore())

	testCases := []struct {
		name string
		in   NewCard
	}{
		{"missing question", newCard("u1", "", "a")},
		{"missing owner", newCard("", "q", "a")},
		{"bad visibility", NewCard{TenantID: "t1", OwnerID: "u1", CategoryID: "c", Question: "q", Answer: "a", Visibility: "secret"}},
		{"difficulty too high", NewCard{TenantID: "t1", OwnerID: "u1", CategoryID: "c", Question: "q", Answer: "a", Difficulty: 9}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := lib.CreateCard(context.Background(), tc.in)
			assert.ErrorIs(t, err, errs.ErrInvalidInput)
		})
	}
}

func TestImport_ReportsDuplicatesWithoutError(t *testing.T) {
	lib := newTestLibrary(newMemStore())
	ctx := context.Background()

	_, created, err := lib.Import(ctx, newCard("u1", "q", "a"))
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = lib.Import(ctx, newCard("u1", "Q", "A"))
	require.NoError(t, err)
	assert.False(t, created)
}

func TestImport_LosesInsertRace(t *testing.T) {
	store := newMemStore()
	lib := newTestLibrary(store)
	store.racing = &domain.Card{
		ID: "other-worker", TenantID: "t1", OwnerID: "u1", CategoryID: "cat",
		Question: "q", Answer: "a", Fingerprint: fingerprint.Compute("q", "a"),
	}

	card, created, err := lib.Import(context.Background(), newCard("u1", "q", "a"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "other-worker", card.ID)
	assert.Len(t, store.cards, 1)
}

func TestUpdateCard(t *testing.T) {
	store := newMemStore()
	lib := newTestLibrary(store)
	ctx := context.Background()

	card, err := lib.CreateCard(ctx, newCard("u1", "q1", "a1"))
	require.NoError(t, err)
	other, err := lib.CreateCard(ctx, newCard("u1", "q2", "a2"))
	require.NoError(t, err)

	updated, err := lib.UpdateCard(ctx, "t1", "u1", card.ID, "q1 edited", "a1")
	require.NoError(t, err)
	assert.Equal(t, fingerprint.Compute("q1 edited", "a1"), updated.Fingerprint)
	assert.Equal(t, updated, store.cards[card.ID])

	dup, err := lib.UpdateCard(ctx, "t1", "u1", card.ID, "Q2", "A2")
	assert.ErrorIs(t, err, ErrDuplicateCard)
	assert.Equal(t, other.ID, dup.ID)

	_, err = lib.UpdateCard(ctx, "t1", "u2", card.ID, "x", "y")
	assert.ErrorIs(t, err, errs.ErrForbidden)

	_, err = lib.UpdateCard(ctx, "t1", "u1", card.ID, " ", "y")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestCopySharedCard(t *testing.T) {
	store := newMemStore()
	lib := newTestLibrary(store)
	ctx := context.Background()

	pub := newCard("author", "public q", "public a")
	pub.Visibility = domain.VisibilityPublic
	src, err := lib.CreateCard(ctx, pub)
	require.NoError(t, err)

	copied, err := lib.CopySharedCard(ctx, "t1", "reader", src.ID)
	require.NoError(t, err)
	assert.NotEqual(t, src.ID, copied.ID)
	assert.Equal(t, "reader", copied.OwnerID)
	assert.Equal(t, domain.VisibilityPrivate, copied.Visibility)
	assert.Equal(t, src.Fingerprint, copied.Fingerprint)

	again, err := lib.CopySharedCard(ctx, "t1", "reader", src.ID)
	require.NoError(t, err)
	assert.Equal(t, copied.ID, again.ID)
	assert.Len(t, store.cards, 2)
}

func TestCopySharedCard_PrivateNeedsShare(t *testing.T) {
	store := newMemStore()
	lib := newTestLibrary(store)
	ctx := context.Background()

	src, err := lib.CreateCard(ctx, newCard("author", "q", "a"))
	require.NoError(t, err)

	_, err = lib.CopySharedCard(ctx, "t1", "reader", src.ID)
	assert.ErrorIs(t, err, errs.ErrForbidden)

	require.NoError(t, lib.ShareCard(ctx, "t1", "author", src.ID, "reader"))
	assert.Equal(t, domain.VisibilityShared, store.cards[src.ID].Visibility)

	_, err = lib.CopySharedCard(ctx, "t1", "reader", src.ID)
	require.NoError(t, err)
}

func TestDeleteCard(t *testing.T) {
	store := newMemStore()
	lib := newTestLibrary(store)
	ctx := context.Background()

	card, err := lib.CreateCard(ctx, newCard("u1", "q", "a"))
	require.NoError(t, err)

	assert.ErrorIs(t, lib.DeleteCard(ctx, "t1", "u2", card.ID), errs.ErrForbidden)
	require.NoError(t, lib.DeleteCard(ctx, "t1", "u1", card.ID))
	assert.Equal(t, []string{card.ID}, store.deleted)
	assert.ErrorIs(t, lib.DeleteCard(ctx, "t1", "u1", card.ID), errs.ErrNotFound)
}

func TestShares(t *testing.T) {
	store := newMemStore()
	lib := newTestLibrary(store)
	ctx := context.Background()

	card, err := lib.CreateCard(ctx, newCard("u1", "q", "a"))
	require.NoError(t, err)

	assert.ErrorIs(t, lib.ShareCard(ctx, "t1", "u1", card.ID, "u1"), errs.ErrInvalidInput)
	assert.ErrorIs(t, lib.ShareCard(ctx, "t1", "u3", card.ID, "u2"), errs.ErrForbidden)
	assert.ErrorIs(t, lib.AcceptShare(ctx, "t1", "u2", card.ID), errs.ErrNotFound)

	require.NoError(t, lib.ShareCard(ctx, "t1", "u1", card.ID, "u2"))
	assert.False(t, store.shares[card.ID+"/u2"].Accepted)

	require.NoError(t, lib.AcceptShare(ctx, "t1", "u2", card.ID))
	assert.True(t, store.shares[card.ID+"/u2"].Accepted)
}

func TestDecks(t *testing.T) {
	store := newMemStore()
	lib := newTestLibrary(store)
	ctx := context.Background()

	_, err := lib.CreateDeck(ctx, NewDeck{TenantID: "t1", OwnerID: "u1", Name: "empty"})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	deck, err := lib.CreateDeck(ctx, NewDeck{TenantID: "t1", OwnerID: "u1", Name: "Go", CategoryIDs: []string{"cat"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"cat"}, deck.CategoryIDs)

	require.NoError(t, lib.HideCard(ctx, "t1", "u1", deck.ID, "card-1"))
	assert.True(t, store.hidden[deck.ID+"/card-1"])

	require.NoError(t, lib.UnhideCard(ctx, "t1", "u1", deck.ID, "card-1"))
	assert.False(t, store.hidden[deck.ID+"/card-1"])

	assert.ErrorIs(t, lib.HideCard(ctx, "t1", "u2", deck.ID, "card-1"), errs.ErrForbidden)
	assert.ErrorIs(t, lib.HideCard(ctx, "t1", "u1", "nope", "card-1"), errs.ErrNotFound)
}

func TestEnsureCategory(t *testing.T) {
	store := newMemStore()
	lib := newTestLibrary(store)
	ctx := context.Background()

	first, err := lib.EnsureCategory(ctx, "t1", " Go ")
	require.NoError(t, err)
	assert.Equal(t, "Go", first.Name)

	second, err := lib.EnsureCategory(ctx, "t1", "Go")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, store.categories, 1)

	_, err = lib.EnsureCategory(ctx, "t1", "")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}
