package importer_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/standards-desk/backend/internal/importer"
	"github.com/DeafMist/standards-desk/backend/internal/models"
	"github.com/DeafMist/standards-desk/backend/internal/standards"
	"github.com/DeafMist/standards-desk/backend/internal/validation"
)

type memStore struct {
	docs  map[string]models.Collection
	calls int
	err   error
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]models.Collection)}
}

func (m *memStore) IndexCollection(_ context.Context, doc models.Collection) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.docs[doc.ID] = doc
	return nil
}

var errMissing = errors.New("missing")

func (m *memStore) GetCollection(_ context.Context, id string) (*models.Collection, error) {
	doc, ok := m.docs[id]
	if !ok {
		return nil, errMissing
	}
	doc.Domains = doc.Domains.Clone()
	return &doc, nil
}

func newService(store importer.Store) *importer.Service {
	return importer.NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)), 0, 0)
}

func TestPreview(t *testing.T) {
	svc := newService(newMemStore())

	p := svc.Preview(standards.ExampleInput + "\n# Domain: X - Short\nX-1: tiny")
	require.Equal(t, 3, p.DomainCount)
	require.Equal(t, 6, p.StandardCount)
	require.Equal(t, 1, p.InvalidCount)
	require.Empty(t, p.Message)
}

func TestPreviewEmpty(t *testing.T) {
	p := newService(newMemStore()).Preview("just some notes\nwithout standards")
	require.NotNil(t, p.Domains)
	require.Empty(t, p.Domains)
	require.Equal(t, importer.NothingParsedMessage, p.Message)
}

func TestImportFromText(t *testing.T) {
	store := newMemStore()
	svc := newService(store)

	doc, err := svc.Import(context.Background(), importer.Request{
		CourseID:   " course-1 ",
		State:      "CA",
		Subject:    "Science",
		GradeLevel: "7",
		Framework:  "NGSS",
		Text:       standards.ExampleInput,
	}, importer.Options{})
	require.NoError(t, err)

	require.NotEmpty(t, doc.ID)
	require.Equal(t, "course-1", doc.CourseID)
	require.Equal(t, models.SourceManual, doc.Source.Type)
	require.False(t, doc.Source.FetchedAt.IsZero())
	require.Equal(t, 2, doc.DomainCount)
	require.Equal(t, 5, doc.StandardCount)
	require.Equal(t, []string{"develop", "model", "describe", "cycling", "earth", "materials", "flow", "energy", "drives", "process"}, doc.Domains[0].Standards[0].Keywords)

	require.Equal(t, 1, store.calls)
	require.Equal(t, doc, store.docs[doc.ID])
}

func TestImportPrefersDomains(t *testing.T) {
	store := newMemStore()
	svc := newService(store)

	tree := standards.Parse("# Domain: RL - Reading Literature\nRL-1: Ask and answer questions about key details")
	fetched := time.Date(2026, 8, 20, 9, 0, 0, 0, time.FixedZone("PDT", -7*3600))

	doc, err := svc.Import(context.Background(), importer.Request{
		CourseID: "course-2",
		State:    "OR",
		Text:     standards.ExampleInput,
		Domains:  tree,
	}, importer.Options{ID: "fixed", SourceType: models.SourceFeed, FetchedAt: fetched})
	require.NoError(t, err)

	require.Equal(t, "fixed", doc.ID)
	require.Equal(t, models.SourceFeed, doc.Source.Type)
	require.Equal(t, fetched.UTC(), doc.Source.FetchedAt)
	require.Equal(t, 1, doc.DomainCount)
	require.Equal(t, "RL", doc.Domains[0].Code)
	require.Nil(t, tree[0].Standards[0].Keywords)
}

func TestImportNothingParsed(t *testing.T) {
	store := newMemStore()
	_, err := newService(store).Import(context.Background(), importer.Request{CourseID: "c", State: "CA", Text: "\n\n"}, importer.Options{})
	require.ErrorIs(t, err, importer.ErrNothingParsed)
	require.Zero(t, store.calls)
}

func TestImportMissingMetadata(t *testing.T) {
	store := newMemStore()
	_, err := newService(store).Import(context.Background(), importer.Request{CourseID: "c", Text: standards.ExampleInput}, importer.Options{})
	require.ErrorIs(t, err, validation.ErrInvalid)

	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	require.Equal(t, []validation.FieldError{{Field: "state", Error: "this field is required"}}, verr.Fields)
	require.Zero(t, store.calls)
}

func TestImportRejectsBadCodes(t *testing.T) {
	tree := standards.Tree{{Code: "bad code", Name: "Bad", Standards: []standards.Standard{{Code: "ok-1", Description: "fine description"}}}}
	_, err := newService(newMemStore()).Import(context.Background(), importer.Request{CourseID: "c", State: "CA", Domains: tree}, importer.Options{})

	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "domains[0].code", verr.Fields[0].Field)
}

func TestImportPersistenceFailure(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("cluster unavailable")

	_, err := newService(store).Import(context.Background(), importer.Request{CourseID: "c", State: "CA", Text: standards.ExampleInput}, importer.Options{})
	require.ErrorIs(t, err, importer.ErrPersistence)
	require.Contains(t, err.Error(), "cluster unavailable")
	require.Equal(t, 1, store.calls)
}

func TestEditorApply(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	editor := importer.NewEditor(store, svc)

	doc, err := svc.Import(context.Background(), importer.Request{CourseID: "c", State: "CA", Text: standards.ExampleInput}, importer.Options{ID: "col"})
	require.NoError(t, err)

	edited, err := editor.Apply(context.Background(), "col", func(tree *standards.Tree, kw standards.KeywordFunc) error {
		_, err := tree.AddStandard("MS-ESS3", standards.StandardInput{Code: "MS-ESS3-3", Description: "Apply scientific principles to design a monitoring method"}, kw)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, doc.StandardCount+1, edited.StandardCount)
	require.Equal(t, []string{"apply", "scientific", "principles", "design", "monitoring", "method"}, edited.Domains[1].Standards[2].Keywords)
	require.Equal(t, edited, store.docs["col"])
}

func TestEditorApplyLeavesStoreOnError(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	editor := importer.NewEditor(store, svc)

	_, err := svc.Import(context.Background(), importer.Request{CourseID: "c", State: "CA", Text: standards.ExampleInput}, importer.Options{ID: "col"})
	require.NoError(t, err)
	before := store.docs["col"]

	_, err = editor.Apply(context.Background(), "col", func(tree *standards.Tree, _ standards.KeywordFunc) error {
		require.NoError(t, tree.DeleteDomain("MS-ESS2"))
		return tree.DeleteDomain("MISSING")
	})
	require.ErrorIs(t, err, standards.ErrNotFound)
	require.Equal(t, before, store.docs["col"])
	require.Equal(t, 1, store.calls)

	_, err = editor.Apply(context.Background(), "nope", func(*standards.Tree, standards.KeywordFunc) error { return nil })
	require.ErrorIs(t, err, errMissing)
}

func TestImportNormalizesPostedDomains(t *testing.T) {
	store := newMemStore()
	tree := standards.Tree{
		{Code: "D", Name: "Data", Standards: []standards.Standard{
			{Code: "D-1", Description: "Tiny", Valid: true},
			{Code: "D-2", Description: "Represent data with a scaled bar graph", Valid: false},
		}},
		{Code: "E", Name: "Nothing here yet"},
	}

	doc, err := newService(store).Import(context.Background(), importer.Request{CourseID: "c", State: "CA", Domains: tree}, importer.Options{})
	require.NoError(t, err)

	require.Equal(t, 1, doc.DomainCount)
	require.Equal(t, 2, doc.StandardCount)
	require.False(t, doc.Domains[0].Standards[0].Valid)
	require.True(t, doc.Domains[0].Standards[1].Valid)
	require.Equal(t, doc, store.docs[doc.ID])
}

func TestImportRejectsPostedDuplicates(t *testing.T) {
	store := newMemStore()
	tree := standards.Tree{
		{Code: "D", Name: "Data", Standards: []standards.Standard{
			{Code: "D-1", Description: "Tiny"},
			{Code: "D-1", Description: "Another standard with same code"},
		}},
	}

	_, err := newService(store).Import(context.Background(), importer.Request{CourseID: "c", State: "CA", Domains: tree}, importer.Options{})
	require.ErrorIs(t, err, standards.ErrDuplicateCode)
	require.Zero(t, store.calls)
}

func TestImportPostedDomainsWithoutStandards(t *testing.T) {
	store := newMemStore()
	tree := standards.Tree{{Code: "E", Name: "Empty"}}

	_, err := newService(store).Import(context.Background(), importer.Request{CourseID: "c", State: "CA", Domains: tree}, importer.Options{})
	require.ErrorIs(t, err, importer.ErrNothingParsed)
	require.Zero(t, store.calls)
}
