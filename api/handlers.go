package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/DeafMist/standards-desk/backend/internal/elasticsearch"
	"github.com/DeafMist/standards-desk/backend/internal/importer"
	"github.com/DeafMist/standards-desk/backend/internal/standards"
	"github.com/DeafMist/standards-desk/backend/internal/validation"
)

// Import text comes from a textarea; anything larger is a mistake.
const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error  string                  `json:"error"`
	Fields []validation.FieldError `json:"fields,omitempty"`
}

type parseRequest struct {
	Text string `json:"text"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleExample(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"text": standards.ExampleInput})
}

func (s *server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.importer.Preview(req.Text))
}

func (s *server) handleImport(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var req importer.Request
	if !s.decode(w, r, &req) {
		return
	}

	doc, err := s.importer.Import(ctx, req, importer.Options{})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	params := elasticsearch.SearchParams{
		Query:     strings.TrimSpace(q.Get("q")),
		Keywords:  parseCSV(q.Get("keywords")),
		CourseID:  strings.TrimSpace(q.Get("courseId")),
		State:     strings.TrimSpace(q.Get("state")),
		Framework: strings.TrimSpace(q.Get("framework")),
		From:      clampInt(q.Get("from"), 0, 10_000),
		Size:      clampInt(q.Get("size"), s.cfg.DefaultPage, s.cfg.MaxPage),
		Sort:      strings.TrimSpace(q.Get("sort")),
	}
	if _, _, err := elasticsearch.ParseSort(params.Sort); err != nil {
		s.writeError(w, r, validation.NewError("sort", err.Error()))
		return
	}

	result, err := s.store.SearchCollections(ctx, params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.GetCollection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteCollection(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleAddDomain(w http.ResponseWriter, r *http.Request) {
	var in standards.DomainInput
	if !s.decode(w, r, &in) {
		return
	}
	s.edit(w, r, func(tree *standards.Tree, _ standards.KeywordFunc) error {
		return tree.AddDomain(in)
	})
}

func (s *server) handleUpdateDomain(w http.ResponseWriter, r *http.Request) {
	var in standards.DomainInput
	if !s.decode(w, r, &in) {
		return
	}
	domain := chi.URLParam(r, "domain")
	s.edit(w, r, func(tree *standards.Tree, _ standards.KeywordFunc) error {
		return tree.UpdateDomain(domain, in)
	})
}

func (s *server) handleDeleteDomain(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	s.edit(w, r, func(tree *standards.Tree, _ standards.KeywordFunc) error {
		return tree.DeleteDomain(domain)
	})
}

func (s *server) handleAddStandard(w http.ResponseWriter, r *http.Request) {
	var in standards.StandardInput
	if !s.decode(w, r, &in) {
		return
	}
	domain := chi.URLParam(r, "domain")
	s.edit(w, r, func(tree *standards.Tree, kw standards.KeywordFunc) error {
		_, err := tree.AddStandard(domain, in, kw)
		return err
	})
}

func (s *server) handleUpdateStandard(w http.ResponseWriter, r *http.Request) {
	var in standards.StandardInput
	if !s.decode(w, r, &in) {
		return
	}
	domain, code := chi.URLParam(r, "domain"), chi.URLParam(r, "code")
	s.edit(w, r, func(tree *standards.Tree, kw standards.KeywordFunc) error {
		_, err := tree.UpdateStandard(domain, code, in, kw)
		return err
	})
}

func (s *server) handleDeleteStandard(w http.ResponseWriter, r *http.Request) {
	domain, code := chi.URLParam(r, "domain"), chi.URLParam(r, "code")
	s.edit(w, r, func(tree *standards.Tree, _ standards.KeywordFunc) error {
		return tree.DeleteStandard(domain, code)
	})
}

func (s *server) edit(w http.ResponseWriter, r *http.Request, mutate importer.Mutation) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	doc, err := s.editor.Apply(ctx, chi.URLParam(r, "id"), mutate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Err.Error(), Fields: verr.Fields})
	case errors.Is(err, importer.ErrNothingParsed):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: importer.NothingParsedMessage})
	case errors.Is(err, elasticsearch.ErrNotFound), errors.Is(err, standards.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, standards.ErrDuplicateCode):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, importer.ErrPersistence):
		s.log.Error("persist standards", slog.Any("err", err), slog.String("path", r.URL.Path))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "could not save standards, please try again"})
	default:
		s.log.Error("request failed", slog.Any("err", err), slog.String("path", r.URL.Path))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func parseCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
