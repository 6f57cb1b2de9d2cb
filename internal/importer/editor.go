package importer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DeafMist/standards-desk/backend/internal/models"
	"github.com/DeafMist/standards-desk/backend/internal/standards"
)

// Repository reads and writes whole collections.
type Repository interface {
	Store
	GetCollection(ctx context.Context, id string) (*models.Collection, error)
}

// Mutation edits the domains of a collection in place.
type Mutation func(tree *standards.Tree, keywords standards.KeywordFunc) error

// Editor applies record-level edits to stored collections. Each edit is a
// read, an in-memory change and a full re-index; the last write wins.
type Editor struct {
	repo     Repository
	log      *slog.Logger
	keywords standards.KeywordFunc
	now      func() time.Time
}

// NewEditor shares the keyword settings and logger of svc.
func NewEditor(repo Repository, svc *Service) *Editor {
	return &Editor{repo: repo, log: svc.log, keywords: svc.keywords, now: svc.now}
}

// Apply loads collection id, runs mutate and stores the result. Errors from
// mutate are returned unwrapped and leave the stored collection untouched.
func (e *Editor) Apply(ctx context.Context, id string, mutate Mutation) (models.Collection, error) {
	doc, err := e.repo.GetCollection(ctx, id)
	if err != nil {
		return models.Collection{}, err
	}

	tree := doc.Domains.Clone()
	if err := mutate(&tree, e.keywords); err != nil {
		return models.Collection{}, err
	}

	doc.Domains = tree
	doc.Touch(e.now())

	if err := e.repo.IndexCollection(ctx, *doc); err != nil {
		return models.Collection{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	e.log.Info("edited standards",
		slog.String("id", doc.ID),
		slog.Int("domains", doc.DomainCount),
		slog.Int("standards", doc.StandardCount),
	)
	return *doc, nil
}
