package elasticsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/standards-desk/backend/internal/models"
	"github.com/DeafMist/standards-desk/backend/internal/standards"
)

func TestBuildSearchBodyDefaults(t *testing.T) {
	body, err := buildSearchBody(SearchParams{Size: 20})
	require.NoError(t, err)

	query := body["query"].(map[string]any)["bool"].(map[string]any)
	require.Contains(t, query, "must")
	require.NotContains(t, query, "filter")
	require.Equal(t, []map[string]any{
		{"source.fetchedAt": map[string]any{"order": "desc"}},
	}, body["sort"])
}

func TestBuildSearchBodyFilters(t *testing.T) {
	body, err := buildSearchBody(SearchParams{
		Query:     "plate motion",
		Keywords:  []string{"Fossils", "rocks"},
		CourseID:  "course-7",
		State:     "CA",
		Framework: "",
		Sort:      "updatedAt:asc",
	})
	require.NoError(t, err)

	query := body["query"].(map[string]any)["bool"].(map[string]any)
	filters := query["filter"].([]map[string]any)
	require.Len(t, filters, 3)
	require.Equal(t, map[string]any{"terms": map[string]any{"domains.standards.keywords": []string{"fossils", "rocks"}}}, filters[0])
	require.Equal(t, map[string]any{"term": map[string]any{"courseId": "course-7"}}, filters[1])
	require.Equal(t, map[string]any{"term": map[string]any{"state": "CA"}}, filters[2])
	require.Len(t, query["must"], 1)
	require.Equal(t, []map[string]any{
		{"updatedAt": map[string]any{"order": "asc"}},
	}, body["sort"])
}

func TestParseSort(t *testing.T) {
	tests := []struct {
		raw       string
		wantField string
		wantOrder string
		wantErr   bool
	}{
		{raw: "", wantField: "source.fetchedAt", wantOrder: "desc"},
		{raw: "updatedAt", wantField: "updatedAt", wantOrder: "desc"},
		{raw: "standardCount:ASC", wantField: "standardCount", wantOrder: "asc"},
		{raw: ":asc", wantField: "source.fetchedAt", wantOrder: "asc"},
		{raw: "foo:sideways", wantErr: true},
		{raw: "updatedAt:sideways", wantErr: true},
		{raw: "domains.standards.description:asc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			field, order, err := ParseSort(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidSort)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantField, field)
			require.Equal(t, tt.wantOrder, order)
		})
	}
}

func TestSearchRejectsInvalidSortBeforeQuerying(t *testing.T) {
	called := false
	c := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := c.SearchCollections(context.Background(), SearchParams{Sort: "foo:sideways"})
	require.ErrorIs(t, err, ErrInvalidSort)
	require.False(t, called)
}

// fakeES answers like an Elasticsearch node so the official client accepts it.
func fakeES(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, "standards", nil)
	require.NoError(t, err)
	return c
}

func TestGetCollectionNotFound(t *testing.T) {
	c := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/standards/_doc/missing", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"_index":"standards","_id":"missing","found":false}`)
	})

	_, err := c.GetCollection(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIndexAndGetCollection(t *testing.T) {
	var stored []byte
	c := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut, http.MethodPost:
			require.Equal(t, "wait_for", r.URL.Query().Get("refresh"))
			data, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			stored = data
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"result":"created"}`)
		case http.MethodGet:
			_, _ = io.WriteString(w, `{"found":true,"_source":`+string(stored)+`}`)
		}
	})

	doc := models.Collection{
		ID:       "abc",
		CourseID: "course-1",
		State:    "CA",
		Source:   models.Source{Type: models.SourceManual, FetchedAt: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)},
		Domains:  standards.Parse(standards.ExampleInput),
	}
	doc.Touch(doc.Source.FetchedAt)

	require.NoError(t, c.IndexCollection(context.Background(), doc))

	var sent map[string]any
	require.NoError(t, json.Unmarshal(stored, &sent))
	require.Equal(t, "course-1", sent["courseId"])

	got, err := c.GetCollection(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, 5, got.StandardCount)
	require.Equal(t, "MS-ESS2", got.Domains[0].Code)
}

func TestIndexCollectionSurfacesError(t *testing.T) {
	c := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"mapper_parsing_exception"}`)
	})

	err := c.IndexCollection(context.Background(), models.Collection{ID: "x"})
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "mapper_parsing_exception"))
}

func TestDeleteCollection(t *testing.T) {
	c := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.URL.Path == "/standards/_doc/missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"result":"not_found"}`)
			return
		}
		_, _ = io.WriteString(w, `{"result":"deleted"}`)
	})

	require.NoError(t, c.DeleteCollection(context.Background(), "abc"))
	require.ErrorIs(t, c.DeleteCollection(context.Background(), "missing"), ErrNotFound)
}

func TestEnsureIndex(t *testing.T) {
	tests := []struct {
		name        string
		existsCode  int
		createCode  int
		createBody  string
		wantCreate  bool
		wantErrText string
	}{
		{name: "already there", existsCode: http.StatusOK},
		{name: "created", existsCode: http.StatusNotFound, createCode: http.StatusOK, createBody: `{"acknowledged":true}`, wantCreate: true},
		{
			name:       "lost creation race",
			existsCode: http.StatusNotFound,
			createCode: http.StatusBadRequest,
			createBody: `{"error":{"type":"resource_already_exists_exception"},"status":400}`,
			wantCreate: true,
		},
		{
			name:        "create fails",
			existsCode:  http.StatusNotFound,
			createCode:  http.StatusBadRequest,
			createBody:  `{"error":{"type":"mapper_parsing_exception"},"status":400}`,
			wantCreate:  true,
			wantErrText: "mapper_parsing_exception",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var created atomic.Bool
			var mapping atomic.Value
			c := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
				switch r.Method {
				case http.MethodHead:
					w.WriteHeader(tt.existsCode)
				case http.MethodPut:
					created.Store(true)
					data, _ := io.ReadAll(r.Body)
					mapping.Store(string(data))
					w.WriteHeader(tt.createCode)
					_, _ = io.WriteString(w, tt.createBody)
				}
			})

			err := c.EnsureIndex(context.Background())
			if tt.wantErrText != "" {
				require.ErrorContains(t, err, tt.wantErrText)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tt.wantCreate, created.Load())
			if tt.wantCreate {
				require.Contains(t, mapping.Load().(string), `"fetchedAt": {"type": "date"}`)
			}
		})
	}
}

func TestDeleteOlderThanLoopsUntilShortBatch(t *testing.T) {
	var calls atomic.Int32
	var lastQuery atomic.Value
	var lastBody atomic.Value
	c := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/standards/_delete_by_query" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		lastQuery.Store(r.URL.Query())
		data, _ := io.ReadAll(r.Body)
		lastBody.Store(data)

		deleted := 2
		if calls.Add(1) == 3 {
			deleted = 1
		}
		_, _ = fmt.Fprintf(w, `{"deleted":%d}`, deleted)
	})

	before := time.Now().Add(-24 * time.Hour)
	deleted, err := c.DeleteOlderThan(context.Background(), 24*time.Hour, 2)
	require.NoError(t, err)
	require.EqualValues(t, 5, deleted)
	require.EqualValues(t, 3, calls.Load())

	query := lastQuery.Load().(url.Values)
	require.Equal(t, "2", query.Get("max_docs"))
	require.Equal(t, "proceed", query.Get("conflicts"))

	var body struct {
		Query struct {
			Range map[string]struct {
				Lte string `json:"lte"`
			} `json:"range"`
		} `json:"query"`
	}
	require.NoError(t, json.Unmarshal(lastBody.Load().([]byte), &body))
	cutoff, err := time.Parse(time.RFC3339, body.Query.Range["source.fetchedAt"].Lte)
	require.NoError(t, err)
	require.WithinDuration(t, before, cutoff, time.Minute)
}

func TestDeleteOlderThanKeepsPartialCountOnError(t *testing.T) {
	var calls atomic.Int32
	c := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = io.WriteString(w, `{"deleted":10}`)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"search_phase_execution_exception"}`)
	})

	deleted, err := c.DeleteOlderThan(context.Background(), time.Hour, 10)
	require.ErrorContains(t, err, "search_phase_execution_exception")
	require.EqualValues(t, 10, deleted)
}

func TestHealth(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	c := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/_cluster/health", r.URL.Path)
		w.WriteHeader(int(status.Load()))
		_, _ = io.WriteString(w, `{"status":"green"}`)
	})

	require.NoError(t, c.Health(context.Background()))

	status.Store(http.StatusServiceUnavailable)
	require.ErrorContains(t, c.Health(context.Background()), "cluster health bad")
}
