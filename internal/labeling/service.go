package labeling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"trapcat/internal/logging"
	"trapcat/internal/schema"
	"trapcat/internal/store"
)

// UnknownLabel is the review label meaning "looked at it, not sure yet".
const UnknownLabel = "unknown"

// Proposal is one detector or classifier guess for an image.
type Proposal struct {
	ImageID      string   `json:"image_id"`
	CategoryName string   `json:"category"`
	Confidence   *float64 `json:"confidence,omitempty"`
}

// Review is one reviewer decision. Label is a category name or UnknownLabel.
type Review struct {
	DetectionID string `json:"detection_id"`
	Label       string `json:"label"`
}

// Service applies collaborator input to the store.
type Service struct {
	Store  store.Store
	Logger *slog.Logger
	// NewID generates identifiers for proposed detections; defaults to
	// random UUIDs.
	NewID func() string

	// categoryMu serializes category allocation so two callers cannot race
	// for the same next identifier.
	categoryMu sync.Mutex
}

// NewService returns a Service over st.
func NewService(st store.Store, logger *slog.Logger) *Service {
	return &Service{Store: st, Logger: logger}
}

func (s *Service) logger() *slog.Logger {
	return logging.NewComponentLogger(s.Logger, "labeling")
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

// ImportProposals records each proposal as a new model detection. Every
// proposal is checked before anything is written; categories not yet known
// are appended with the next identifier. The detections and any new
// categories are committed as one batch.
func (s *Service) ImportProposals(ctx context.Context, proposals []Proposal) ([]schema.Detection, error) {
	if s.Store == nil {
		return nil, errors.New("labeling: store is required")
	}
	for i, p := range proposals {
		if _, err := s.Store.Image(ctx, p.ImageID); err != nil {
			return nil, fmt.Errorf("proposal %d: image %q: %w", i, p.ImageID, err)
		}
		if p.Confidence != nil && (*p.Confidence < 0 || *p.Confidence > 1) {
			return nil, fmt.Errorf("proposal %d: %w", i, &schema.SchemaViolation{
				Entity: "detection", Field: "confidence", Reason: fmt.Sprintf("must be in [0,1] (got %g)", *p.Confidence),
			})
		}
	}

	s.categoryMu.Lock()
	defer s.categoryMu.Unlock()

	categories := newCategoryResolver(s.Store)
	created := make([]schema.Detection, 0, len(proposals))
	for _, p := range proposals {
		name := p.CategoryName
		category, err := categories.resolve(ctx, schema.CategoryNameFor(&name))
		if err != nil {
			return nil, err
		}
		det, err := schema.NewDetection(schema.Detection{
			ID:         s.newID(),
			ImageID:    p.ImageID,
			Kind:       schema.ModelDetection,
			CategoryID: category.ID,
			Confidence: p.Confidence,
		})
		if err != nil {
			return nil, err
		}
		created = append(created, det)
	}
	changes := store.Changes{Categories: categories.added, Detections: created}
	if err := s.Store.Apply(ctx, changes); err != nil {
		return nil, fmt.Errorf("store proposals: %w", err)
	}

	logger := logging.WithContext(ctx, s.logger())
	s.logAdded(logger, categories.added)
	logger.Info("proposals imported", logging.Int("detections", len(created)))
	return created, nil
}

// Promote moves the selected model detections to active in one batch. IDs
// that are already active are skipped. An unknown ID or a user detection
// fails the call without changes.
func (s *Service) Promote(ctx context.Context, ids []string) (int, error) {
	if s.Store == nil {
		return 0, errors.New("labeling: store is required")
	}
	var pending []schema.Detection
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		det, err := s.Store.Detection(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("promote %s: %w", id, err)
		}
		switch det.Kind {
		case schema.ActiveDetection:
			continue
		case schema.ModelDetection:
			pending = append(pending, det)
		default:
			return 0, fmt.Errorf("promote %s: %w: %s -> %s", id, schema.ErrInvalidTransition, det.Kind, schema.ActiveDetection)
		}
	}

	for i := range pending {
		next, err := pending[i].Kind.Transition(schema.ActiveDetection)
		if err != nil {
			return 0, err
		}
		pending[i].Kind = next
	}
	if err := s.Store.Apply(ctx, store.Changes{Updates: pending}); err != nil {
		return 0, fmt.Errorf("promote: %w", err)
	}
	promoted := len(pending)

	logger := logging.WithContext(ctx, s.logger())
	for _, det := range pending {
		logger.Debug("detection promoted", logging.String(logging.FieldDetectionID, det.ID))
	}
	logger.Info("detections promoted",
		logging.Int("requested", len(ids)),
		logging.Int("promoted", promoted),
	)
	return promoted, nil
}

// Submit records a reviewer decision and returns the updated detection.
//
// A definitive label moves an active (or already reviewed) detection to
// user, rewrites its category when the label differs and upserts the
// oracle, all in one store batch together with the category when the label
// is new. UnknownLabel upserts an oracle with
// no label and leaves the detection active.
func (s *Service) Submit(ctx context.Context, review Review) (schema.Detection, error) {
	if s.Store == nil {
		return schema.Detection{}, errors.New("labeling: store is required")
	}
	det, err := s.Store.Detection(ctx, strings.TrimSpace(review.DetectionID))
	if err != nil {
		return schema.Detection{}, fmt.Errorf("review %s: %w", review.DetectionID, err)
	}
	logger := logging.WithContext(ctx, s.logger()).With(logging.String(logging.FieldDetectionID, det.ID))

	label := strings.TrimSpace(review.Label)
	if label == "" {
		return schema.Detection{}, fmt.Errorf("review %s: label is required", det.ID)
	}
	if strings.EqualFold(label, UnknownLabel) {
		if det.Kind != schema.ActiveDetection {
			return schema.Detection{}, fmt.Errorf("review %s: %w: %s detection cannot be marked %s",
				det.ID, schema.ErrInvalidTransition, det.Kind, UnknownLabel)
		}
		oracle, err := schema.NewOracle(det.ID, nil)
		if err != nil {
			return schema.Detection{}, err
		}
		if err := s.Store.PutOracle(ctx, oracle); err != nil {
			return schema.Detection{}, fmt.Errorf("review %s: %w", det.ID, err)
		}
		logger.Info("review recorded without label")
		return det, nil
	}

	next, err := det.Kind.Transition(schema.UserDetection)
	if err != nil {
		return schema.Detection{}, fmt.Errorf("review %s: %w", det.ID, err)
	}
	s.categoryMu.Lock()
	defer s.categoryMu.Unlock()

	categories := newCategoryResolver(s.Store)
	category, err := categories.resolve(ctx, label)
	if err != nil {
		return schema.Detection{}, err
	}
	previous := det.CategoryID
	det.Kind = next
	det.CategoryID = category.ID
	labelID := category.ID
	oracle, err := schema.NewOracle(det.ID, &labelID)
	if err != nil {
		return schema.Detection{}, err
	}
	changes := store.Changes{
		Categories: categories.added,
		Updates:    []schema.Detection{det},
		Oracles:    []schema.Oracle{oracle},
	}
	if err := s.Store.Apply(ctx, changes); err != nil {
		return schema.Detection{}, fmt.Errorf("review %s: %w", det.ID, err)
	}
	s.logAdded(logger, categories.added)
	logger.Info("review recorded",
		logging.String("label", category.Name),
		logging.Int("category_id", category.ID),
		logging.Bool("relabelled", previous != category.ID),
	)
	return det, nil
}

// Pending returns the detections awaiting review.
func (s *Service) Pending(ctx context.Context) ([]schema.Detection, error) {
	if s.Store == nil {
		return nil, errors.New("labeling: store is required")
	}
	return s.Store.DetectionsByKind(ctx, schema.ActiveDetection)
}

func (s *Service) logAdded(logger *slog.Logger, added []schema.Category) {
	for _, c := range added {
		logger.Info("category added", logging.String("category", c.Name), logging.Int("category_id", c.ID))
	}
}

// categoryResolver maps names to categories for one batch. Unknown names get
// the next contiguous identifier and are collected in added, to be written
// with the batch. Callers hold categoryMu.
type categoryResolver struct {
	st    store.Store
	next  int
	known bool
	added []schema.Category
}

func newCategoryResolver(st store.Store) *categoryResolver {
	return &categoryResolver{st: st}
}

func (r *categoryResolver) resolve(ctx context.Context, name string) (schema.Category, error) {
	for _, c := range r.added {
		if c.Name == name {
			return c, nil
		}
	}
	existing, err := r.st.CategoryByName(ctx, name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return schema.Category{}, fmt.Errorf("lookup category %q: %w", name, err)
	}
	if !r.known {
		all, err := r.st.Categories(ctx)
		if err != nil {
			return schema.Category{}, fmt.Errorf("list categories: %w", err)
		}
		for _, c := range all {
			if c.ID >= r.next {
				r.next = c.ID + 1
			}
		}
		r.known = true
	}
	category, err := schema.NewCategory(r.next, name)
	if err != nil {
		return schema.Category{}, err
	}
	r.next++
	r.added = append(r.added, category)
	return category, nil
}
