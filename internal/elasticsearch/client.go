package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/DeafMist/standards-desk/backend/internal/models"
)

var (
	// ErrNotFound is returned when a collection ID does not exist.
	ErrNotFound = errors.New("collection not found")
	// ErrInvalidSort is returned for a sort field or order the index cannot sort by.
	ErrInvalidSort = errors.New("invalid sort")
)

var sortableFields = map[string]struct{}{
	"source.fetchedAt": {},
	"updatedAt":        {},
	"courseId":         {},
	"state":            {},
	"framework":        {},
	"domainCount":      {},
	"standardCount":    {},
}

// ParseSort splits a "field:order" sort expression. An empty field means
// source.fetchedAt and an empty order means desc.
func ParseSort(raw string) (field, order string, err error) {
	field, order, _ = strings.Cut(strings.TrimSpace(raw), ":")
	if field == "" {
		field = "source.fetchedAt"
	}
	order = strings.ToLower(order)
	if order == "" {
		order = "desc"
	}

	if _, ok := sortableFields[field]; !ok {
		return "", "", fmt.Errorf("%w: cannot sort by %q", ErrInvalidSort, field)
	}
	if order != "asc" && order != "desc" {
		return "", "", fmt.Errorf("%w: order must be asc or desc", ErrInvalidSort)
	}
	return field, order, nil
}

// Client wraps go-elasticsearch with helpers for standards collections.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
}

// SearchParams narrow the standards search endpoint.
type SearchParams struct {
	Query     string
	Keywords  []string
	CourseID  string
	State     string
	Framework string
	From      int
	Size      int
	Sort      string
}

// SearchResult bundles hits and total count.
type SearchResult struct {
	Total int64               `json:"total"`
	Items []models.Collection `json:"items"`
}

const indexMapping = `{
  "mappings": {
    "properties": {
      "id":            {"type": "keyword"},
      "courseId":      {"type": "keyword"},
      "state":         {"type": "keyword"},
      "subject":       {"type": "keyword"},
      "gradeLevel":    {"type": "keyword"},
      "framework":     {"type": "keyword"},
      "domainCount":   {"type": "integer"},
      "standardCount": {"type": "integer"},
      "updatedAt":     {"type": "date"},
      "source": {
        "properties": {
          "type":      {"type": "keyword"},
          "fetchedAt": {"type": "date"}
        }
      },
      "domains": {
        "properties": {
          "code": {"type": "keyword"},
          "name": {"type": "text"},
          "standards": {
            "properties": {
              "code":        {"type": "keyword"},
              "description": {"type": "text"},
              "keywords":    {"type": "keyword"},
              "valid":       {"type": "boolean"}
            }
          }
        }
      }
    }
  }
}`

// New instantiates the Elasticsearch client.
func New(addr, index string, logger *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{es: es, index: index, log: logger}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// EnsureIndex creates the collections index with its mapping when missing.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("check index failed: %s", res.Status())
	}

	res, err = c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		// another replica may have created it first
		if strings.Contains(string(body), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("create index failed: %s", strings.TrimSpace(string(body)))
	}

	c.log.Info("created index", slog.String("index", c.index))
	return nil
}

// IndexCollection writes a collection, replacing any document with the same ID.
func (c *Client) IndexCollection(ctx context.Context, doc models.Collection) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal collection: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(payload),
		Refresh:    "wait_for",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index collection: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index collection failed: %s", strings.TrimSpace(string(body)))
	}

	return nil
}

// GetCollection loads a single collection by ID.
func (c *Client) GetCollection(ctx context.Context, id string) (*models.Collection, error) {
	req := esapi.GetRequest{
		Index:      c.index,
		DocumentID: id,
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("get collection failed: %s", strings.TrimSpace(string(body)))
	}

	var parsed struct {
		Found  bool              `json:"found"`
		Source models.Collection `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode collection: %w", err)
	}
	if !parsed.Found {
		return nil, ErrNotFound
	}

	return &parsed.Source, nil
}

// DeleteCollection removes a collection by ID.
func (c *Client) DeleteCollection(ctx context.Context, id string) error {
	req := esapi.DeleteRequest{
		Index:      c.index,
		DocumentID: id,
		Refresh:    "wait_for",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("delete collection failed: %s", strings.TrimSpace(string(body)))
	}

	return nil
}

// buildSearchBody turns params into an Elasticsearch bool query.
func buildSearchBody(params SearchParams) (map[string]any, error) {
	must := make([]map[string]any, 0, 1)
	filters := make([]map[string]any, 0, 4)

	if params.Query != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":  params.Query,
				"fields": []string{"domains.standards.description", "domains.name", "domains.standards.code^3", "domains.code^2"},
			},
		})
	}

	if len(params.Keywords) > 0 {
		lowered := make([]string, 0, len(params.Keywords))
		for _, k := range params.Keywords {
			lowered = append(lowered, strings.ToLower(k))
		}
		filters = append(filters, map[string]any{
			"terms": map[string]any{
				"domains.standards.keywords": lowered,
			},
		})
	}

	terms := []struct{ field, value string }{
		{"courseId", params.CourseID},
		{"state", params.State},
		{"framework", params.Framework},
	}
	for _, t := range terms {
		if t.value != "" {
			filters = append(filters, map[string]any{
				"term": map[string]any{t.field: t.value},
			})
		}
	}

	boolQuery := map[string]any{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	if len(must) == 0 && len(filters) == 0 {
		boolQuery["must"] = []map[string]any{
			{"match_all": map[string]any{}},
		}
	}

	body := map[string]any{
		"from":             params.From,
		"size":             params.Size,
		"track_total_hits": true,
		"query": map[string]any{
			"bool": boolQuery,
		},
	}

	field, order, err := ParseSort(params.Sort)
	if err != nil {
		return nil, err
	}
	body["sort"] = []map[string]any{
		{field: map[string]any{"order": order}},
	}

	return body, nil
}

// SearchCollections executes a bool query with optional filters.
func (c *Client) SearchCollections(ctx context.Context, params SearchParams) (*SearchResult, error) {
	if params.Size <= 0 {
		params.Size = 20
	}
	if params.Size > 200 {
		params.Size = 200
	}
	if params.From < 0 {
		params.From = 0
	}

	body, err := buildSearchBody(params)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.Collection `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]models.Collection, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		items = append(items, hit.Source)
	}

	return &SearchResult{
		Total: parsed.Hits.Total.Value,
		Items: items,
	}, nil
}

// DeleteOlderThan removes collections fetched before now-maxAge using batched
// delete-by-query. It loops until a batch deletes fewer than batchSize documents.
func (c *Client) DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	cutoff := time.Now().Add(-maxAge).UTC().Format(time.RFC3339)
	totalDeleted := int64(0)

	for {
		body := map[string]any{
			"query": map[string]any{
				"range": map[string]any{
					"source.fetchedAt": map[string]any{
						"lte": cutoff,
					},
				},
			},
		}

		payload, err := json.Marshal(body)
		if err != nil {
			return totalDeleted, fmt.Errorf("marshal delete body: %w", err)
		}

		res, err := c.es.DeleteByQuery(
			[]string{c.index},
			bytes.NewReader(payload),
			c.es.DeleteByQuery.WithContext(ctx),
			c.es.DeleteByQuery.WithWaitForCompletion(true),
			c.es.DeleteByQuery.WithConflicts("proceed"),
			c.es.DeleteByQuery.WithScrollSize(batchSize),
			c.es.DeleteByQuery.WithMaxDocs(batchSize),
		)
		if err != nil {
			return totalDeleted, fmt.Errorf("delete by query: %w", err)
		}

		if res.IsError() {
			data, _ := io.ReadAll(res.Body)
			res.Body.Close()
			return totalDeleted, fmt.Errorf("delete by query failed: %s", strings.TrimSpace(string(data)))
		}

		var parsed struct {
			Deleted int64 `json:"deleted"`
		}
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			res.Body.Close()
			return totalDeleted, fmt.Errorf("decode delete response: %w", err)
		}
		res.Body.Close()

		totalDeleted += parsed.Deleted
		c.log.Debug("retention batch", slog.Int64("deleted", parsed.Deleted), slog.String("cutoff", cutoff))

		if parsed.Deleted < int64(batchSize) {
			break
		}
	}

	return totalDeleted, nil
}

// Health checks cluster health.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}
