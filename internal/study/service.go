package study

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/conorfennell/skillcards/internal/domain"
	"github.com/conorfennell/skillcards/internal/errs"
	"github.com/conorfennell/skillcards/internal/priority"
	"github.com/conorfennell/skillcards/internal/sm2"
)

const (
	DefaultBatchSize    = 20
	DefaultMaxBatchSize = 100

	// DefaultMasteryWindow is how many recent reviews feed the mastery score.
	DefaultMasteryWindow = 10
)

// Options tunes a Service. Zero values fall back to the defaults above.
type Options struct {
	BatchSize     int
	MaxBatchSize  int
	MaxNew        int
	MasteryWindow int
	Now           func() time.Time
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.MaxBatchSize <= 0 {
		o.MaxBatchSize = DefaultMaxBatchSize
	}
	if o.BatchSize > o.MaxBatchSize {
		o.BatchSize = o.MaxBatchSize
	}
	if o.MasteryWindow <= 0 {
		o.MasteryWindow = DefaultMasteryWindow
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Service loads study state from the stores and runs the scheduler on it.
type Service struct {
	cards      CardStore
	progress   ProgressStore
	priorities PriorityStore
	opts       Options
	validate   *validator.Validate
	log        *zap.Logger
}

// NewService creates a study service.
func NewService(cards CardStore, progress ProgressStore, priorities PriorityStore, opts Options, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		cards:      cards,
		progress:   progress,
		priorities: priorities,
		opts:       opts.withDefaults(),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		log:        log,
	}
}

// NextBatch selects the next cards to study in scope. A size of zero or
// less uses the configured default; larger sizes are capped.
func (s *Service) NextBatch(ctx context.Context, scope Scope, size int) (Batch, error) {
	if err := s.validate.Struct(scope); err != nil {
		return Batch{}, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}
	if size <= 0 {
		size = s.opts.BatchSize
	}
	size = min(size, s.opts.MaxBatchSize)

	req, err := s.loadRequest(ctx, scope)
	if err != nil {
		return Batch{}, err
	}
	req.BatchSize = size

	batch := Select(req)
	s.log.Debug("study batch selected",
		zap.String("tenant_id", scope.TenantID),
		zap.String("user_id", scope.UserID),
		zap.String("deck_id", scope.DeckID),
		zap.Int("pool", len(req.Cards)),
		zap.Int("picked", len(batch.Picks)),
		zap.Int("total_due", batch.TotalDue),
		zap.Int("total_new", batch.TotalNew),
	)
	return batch, nil
}

func (s *Service) loadRequest(ctx context.Context, scope Scope) (Request, error) {
	cards, err := s.cards.CandidateCards(ctx, scope)
	if err != nil {
		return Request{}, fmt.Errorf("load candidate cards: %w", err)
	}

	var hidden map[string]bool
	if scope.DeckID != "" {
		hidden, err = s.cards.HiddenCards(ctx, scope.DeckID)
		if err != nil {
			return Request{}, fmt.Errorf("load hidden cards: %w", err)
		}
	}

	progress, err := s.progress.ProgressForUser(ctx, scope.UserID)
	if err != nil {
		return Request{}, fmt.Errorf("load progress: %w", err)
	}

	categories, err := s.categoryIndex(ctx, scope.TenantID)
	if err != nil {
		return Request{}, err
	}

	admin, user, mode, err := s.prioritySettings(ctx, scope.TenantID, scope.UserID)
	if err != nil {
		return Request{}, err
	}

	return Request{
		Cards:      cards,
		Progress:   progress,
		Categories: categories,
		Admin:      admin,
		User:       user,
		Mode:       mode,
		Hidden:     hidden,
		MaxNew:     s.opts.MaxNew,
		Now:        s.opts.Now(),
	}, nil
}

func (s *Service) categoryIndex(ctx context.Context, tenantID string) (map[string]domain.Category, error) {
	list, err := s.cards.Categories(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	index := make(map[string]domain.Category, len(list))
	for _, c := range list {
		index[c.ID] = c
	}
	return index, nil
}

func (s *Service) prioritySettings(ctx context.Context, tenantID, userID string) (admin, user map[string]int, mode priority.OverrideMode, err error) {
	admin, err = s.priorities.AdminPriorities(ctx, tenantID)
	if err != nil {
		return nil, nil, "", fmt.Errorf("load admin priorities: %w", err)
	}
	user, err = s.priorities.UserPriorities(ctx, tenantID, userID)
	if err != nil {
		return nil, nil, "", fmt.Errorf("load user priorities: %w", err)
	}
	raw, err := s.priorities.OverrideMode(ctx, tenantID)
	if err != nil {
		return nil, nil, "", fmt.Errorf("load override mode: %w", err)
	}
	return admin, user, priority.ParseOverrideMode(raw), nil
}

// ReviewInput is one answered card. Either Feedback or Quality must be
// set; Quality wins when both are.
type ReviewInput struct {
	TenantID string          `json:"-" validate:"required"`
	UserID   string          `json:"-" validate:"required"`
	CardID   string          `json:"card_id" validate:"required"`
	Feedback domain.Feedback `json:"feedback" validate:"omitempty,oneof=needs_review got_it mastered"`
	Quality  *int            `json:"quality" validate:"omitempty,min=0,max=5"`
}

var errNoGrade = errors.New("feedback or quality is required")

func (in ReviewInput) quality() (sm2.Quality, error) {
	switch {
	case in.Quality != nil:
		return sm2.ParseQuality(*in.Quality)
	case in.Feedback != "":
		return sm2.FeedbackQuality(in.Feedback)
	default:
		return 0, errNoGrade
	}
}

// SubmitReview applies one review to the user's progress on a card and
// returns the stored record.
func (s *Service) SubmitReview(ctx context.Context, in ReviewInput) (domain.Progress, error) {
	if err := s.validate.Struct(in); err != nil {
		return domain.Progress{}, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}
	q, err := in.quality()
	if err != nil {
		return domain.Progress{}, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}

	card, err := s.cards.GetCard(ctx, in.TenantID, in.CardID)
	if err != nil {
		return domain.Progress{}, fmt.Errorf("get card %s: %w", in.CardID, err)
	}
	if err := s.canStudy(ctx, card, in.UserID); err != nil {
		return domain.Progress{}, err
	}

	current, err := s.progress.GetProgress(ctx, in.UserID, in.CardID)
	if err != nil {
		return domain.Progress{}, fmt.Errorf("get progress: %w", err)
	}
	p := domain.NewProgress(in.UserID, in.CardID)
	if current != nil {
		p = *current
	}

	now := s.opts.Now()
	sm2.Next(sm2.StateOf(&p), q, now).Apply(&p)
	p.ExposureCount++
	p.LastReviewedAt = &now
	p.UpdatedAt = now

	review := domain.ReviewLog{
		UserID:     in.UserID,
		CardID:     in.CardID,
		Quality:    int(q),
		ReviewedAt: now,
	}
	recent, err := s.progress.RecentReviews(ctx, in.UserID, in.CardID, s.opts.MasteryWindow-1)
	if err != nil {
		return domain.Progress{}, fmt.Errorf("recent reviews: %w", err)
	}
	p.MasteryScore = MasteryScore(append([]domain.ReviewLog{review}, recent...))

	if err := s.progress.RecordReview(ctx, review, p); err != nil {
		return domain.Progress{}, fmt.Errorf("save review: %w", err)
	}

	s.log.Info("review recorded",
		zap.String("user_id", in.UserID),
		zap.String("card_id", in.CardID),
		zap.Int("quality", int(q)),
		zap.Int("repetitions", p.Repetitions),
		zap.Int("interval_days", p.IntervalDays),
		zap.Float64("ease_factor", p.EaseFactor),
		zap.Float64("mastery", p.MasteryScore),
	)
	return p, nil
}

// canStudy reports whether the user may review the card: their own, a
// public card or a share they accepted.
func (s *Service) canStudy(ctx context.Context, card *domain.Card, userID string) error {
	if card.OwnerID == userID || card.Visibility == domain.VisibilityPublic {
		return nil
	}
	share, err := s.cards.GetShare(ctx, card.ID, userID)
	if err != nil {
		return fmt.Errorf("get share: %w", err)
	}
	if share == nil || !share.Accepted {
		return fmt.Errorf("card %s: %w", card.ID, errs.ErrForbidden)
	}
	return nil
}

// MasteryScore is the share of reviews graded 4 or better.
func MasteryScore(reviews []domain.ReviewLog) float64 {
	if len(reviews) == 0 {
		return 0
	}
	var good int
	for _, r := range reviews {
		if sm2.Quality(r.Quality) >= sm2.QualityHesitant {
			good++
		}
	}
	return float64(good) / float64(len(reviews))
}

// CategoryPriority describes how a category's effective priority came about.
type CategoryPriority struct {
	CategoryID string                `json:"category_id"`
	Name       string                `json:"name"`
	Admin      *int                  `json:"admin,omitempty"`
	User       *int                  `json:"user,omitempty"`
	Mode       priority.OverrideMode `json:"mode"`
	Effective  int                   `json:"effective"`
}

// EffectivePriorities resolves every category of the tenant for a user,
// ordered by category name.
func (s *Service) EffectivePriorities(ctx context.Context, tenantID, userID string) ([]CategoryPriority, error) {
	categories, err := s.cards.Categories(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	admin, user, mode, err := s.prioritySettings(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}

	out := make([]CategoryPriority, 0, len(categories))
	for _, c := range categories {
		cp := CategoryPriority{CategoryID: c.ID, Name: c.Name, Mode: mode}
		if v, ok := admin[c.ID]; ok {
			cp.Admin = &v
		}
		if v, ok := user[c.ID]; ok {
			cp.User = &v
		}
		cp.Effective = priority.Resolve(priority.Inputs{Admin: cp.Admin, User: cp.User, Mode: mode})
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].CategoryID < out[j].CategoryID
	})
	return out, nil
}

// SetAdminPriority stores the tenant-wide level of a category.
func (s *Service) SetAdminPriority(ctx context.Context, tenantID, categoryID string, level int) error {
	if err := priority.ValidateLevel(level); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}
	if err := s.priorities.SetAdminPriority(ctx, tenantID, categoryID, level); err != nil {
		return fmt.Errorf("set admin priority: %w", err)
	}
	return nil
}

// SetUserPriority stores a user's own level for a category.
func (s *Service) SetUserPriority(ctx context.Context, tenantID, userID, categoryID string, level int) error {
	if err := priority.ValidateLevel(level); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}
	if err := s.priorities.SetUserPriority(ctx, tenantID, userID, categoryID, level); err != nil {
		return fmt.Errorf("set user priority: %w", err)
	}
	return nil
}

// ClearUserPriority removes a user's level so the admin level applies again.
func (s *Service) ClearUserPriority(ctx context.Context, tenantID, userID, categoryID string) error {
	if err := s.priorities.DeleteUserPriority(ctx, tenantID, userID, categoryID); err != nil {
		return fmt.Errorf("clear user priority: %w", err)
	}
	return nil
}

// SetOverrideMode stores the tenant override mode. Only known modes are
// accepted here; unknown stored values are still read as the default.
func (s *Service) SetOverrideMode(ctx context.Context, tenantID string, mode priority.OverrideMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: unknown override mode %q", errs.ErrInvalidInput, mode)
	}
	if err := s.priorities.SetOverrideMode(ctx, tenantID, string(mode)); err != nil {
		return fmt.Errorf("set override mode: %w", err)
	}
	return nil
}
