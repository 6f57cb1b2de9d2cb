package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DeafMist/standards-desk/backend/internal/models"
	"github.com/DeafMist/standards-desk/backend/internal/processing"
	"github.com/DeafMist/standards-desk/backend/internal/standards"
	"github.com/DeafMist/standards-desk/backend/internal/validation"
)

// NothingParsedMessage is shown when the textarea holds no recognisable standards.
const NothingParsedMessage = "Could not parse any standards. Please check the format."

var (
	ErrNothingParsed = errors.New("could not parse any standards")
	ErrPersistence   = errors.New("save standards")
)

// Store persists imported collections.
type Store interface {
	IndexCollection(ctx context.Context, doc models.Collection) error
}

// Request is the create-standards request. Domains win over Text when both are set.
type Request struct {
	CourseID   string         `json:"courseId" validate:"required"`
	State      string         `json:"state" validate:"required"`
	Subject    string         `json:"subject"`
	GradeLevel string         `json:"gradeLevel"`
	Framework  string         `json:"framework"`
	Text       string         `json:"text,omitempty"`
	Domains    standards.Tree `json:"domains,omitempty" validate:"dive"`
}

func (r *Request) clean() {
	r.CourseID = strings.TrimSpace(r.CourseID)
	r.State = strings.TrimSpace(r.State)
	r.Subject = strings.TrimSpace(r.Subject)
	r.GradeLevel = strings.TrimSpace(r.GradeLevel)
	r.Framework = strings.TrimSpace(r.Framework)
}

// Options control how an import is recorded.
type Options struct {
	// ID of the stored collection; a random UUID when empty.
	ID         string
	SourceType string
	FetchedAt  time.Time
}

// Preview is the parse result shown before the teacher confirms an import.
type Preview struct {
	Domains       standards.Tree `json:"domains"`
	DomainCount   int            `json:"domainCount"`
	StandardCount int            `json:"standardCount"`
	InvalidCount  int            `json:"invalidCount"`
	Message       string         `json:"message,omitempty"`
}

// Service turns standards text into stored collections.
type Service struct {
	store    Store
	log      *slog.Logger
	keywords standards.KeywordFunc
	now      func() time.Time
}

// NewService wires a Service. Non-positive limits fall back to the defaults.
func NewService(store Store, logger *slog.Logger, keywordLimit, keywordMinLen int) *Service {
	if keywordLimit <= 0 {
		keywordLimit = processing.DefaultKeywordLimit
	}
	if keywordMinLen <= 0 {
		keywordMinLen = processing.DefaultKeywordMinLength
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		store:    store,
		log:      logger,
		keywords: processing.Extractor(keywordLimit, keywordMinLen),
		now:      time.Now,
	}
}

// Keywords exposes the configured extractor to callers editing collections.
func (s *Service) Keywords(description string) []string {
	return s.keywords(description)
}

// Preview parses text without storing anything.
func (s *Service) Preview(text string) Preview {
	tree := standards.Parse(text)
	p := Preview{
		Domains:       tree,
		DomainCount:   tree.DomainCount(),
		StandardCount: tree.StandardCount(),
		InvalidCount:  tree.InvalidCount(),
	}
	if p.Domains == nil {
		p.Domains = standards.Tree{}
	}
	if tree.Empty() {
		p.Message = NothingParsedMessage
	}
	return p
}

// Import parses (when needed), validates, annotates and stores a collection.
// Posted domains are normalized first, so validity always follows the
// description and repeated codes fail with standards.ErrDuplicateCode.
// Nothing is stored when parsing yields no domains or the metadata is invalid.
// The store is called once; failures are not retried.
func (s *Service) Import(ctx context.Context, req Request, opts Options) (models.Collection, error) {
	req.clean()

	posted := !req.Domains.Empty()
	if !posted {
		req.Domains = standards.Parse(req.Text)
	}
	if req.Domains.Empty() {
		return models.Collection{}, ErrNothingParsed
	}

	if err := validation.Struct(req); err != nil {
		return models.Collection{}, err
	}

	tree := req.Domains
	if posted {
		normalized, err := tree.Normalize()
		if err != nil {
			return models.Collection{}, err
		}
		if normalized.Empty() {
			return models.Collection{}, ErrNothingParsed
		}
		tree = normalized
	}

	now := s.now().UTC()
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.SourceType == "" {
		opts.SourceType = models.SourceManual
	}
	if opts.FetchedAt.IsZero() {
		opts.FetchedAt = now
	}

	doc := models.Collection{
		ID:         opts.ID,
		CourseID:   req.CourseID,
		Source:     models.Source{Type: opts.SourceType, FetchedAt: opts.FetchedAt.UTC()},
		State:      req.State,
		Subject:    req.Subject,
		GradeLevel: req.GradeLevel,
		Framework:  req.Framework,
		Domains:    tree.WithKeywords(s.keywords),
	}
	doc.Touch(now)

	if err := s.store.IndexCollection(ctx, doc); err != nil {
		return models.Collection{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s.log.Info("imported standards",
		slog.String("id", doc.ID),
		slog.String("course_id", doc.CourseID),
		slog.String("source", doc.Source.Type),
		slog.Int("domains", doc.DomainCount),
		slog.Int("standards", doc.StandardCount),
	)
	return doc, nil
}
