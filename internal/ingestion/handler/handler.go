// Package handler serves the ingestion HTTP API: single books on POST
// /books and bulk loads on POST /books/batch.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/logger"
)

const (
	// maxBookBytes leaves room for JSON escaping around the largest
	// accepted content.
	maxBookBytes  = 80 << 20
	maxBatchBytes = 256 << 20
	maxBatchBooks = 500
)

type Handler struct {
	publisher *publisher.Publisher
	logger    *slog.Logger
}

func New(pub *publisher.Publisher) *Handler {
	return &Handler{
		publisher: pub,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /books", h.Ingest)
	mux.HandleFunc("POST /books/batch", h.IngestBatch)
	mux.HandleFunc("GET /status", h.Status)
}

func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var book document.Document
	if !h.decode(w, r, maxBookBytes, &book) {
		return
	}
	if err := validator.ValidateBook(&book); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": fieldsOf(err),
		})
		return
	}

	ctx := logger.With(r.Context(), "book_id", book.ID)
	resp, err := h.publisher.Ingest(ctx, book)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	logger.FromContext(ctx).Info("book ingested", "status", resp.Status)
	h.writeJSON(w, http.StatusAccepted, resp)
}

// IngestBatch accepts a JSON array of books. The whole batch is rejected
// if any book is invalid, with errors keyed by array index.
func (h *Handler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	var books []document.Document
	if !h.decode(w, r, maxBatchBytes, &books) {
		return
	}
	switch {
	case len(books) == 0:
		h.writeError(w, http.StatusBadRequest, "batch is empty")
		return
	case len(books) > maxBatchBooks:
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("batch exceeds %d books", maxBatchBooks))
		return
	}

	invalid := make(map[string]map[string]string)
	for i := range books {
		if err := validator.ValidateBook(&books[i]); err != nil {
			invalid[strconv.Itoa(i)] = fieldsOf(err)
		}
	}
	if len(invalid) > 0 {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "validation failed",
			"books": invalid,
		})
		return
	}

	out, err := h.publisher.IngestBatch(r.Context(), books)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Info("batch ingested", "books", len(out), "status", out[0].Status)
	h.writeJSON(w, http.StatusAccepted, ingestion.BatchResponse{Books: out})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"service": "ingestion-service"})
}

// decode reads a size-capped JSON body into v, answering the request
// itself when it cannot.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit)).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit))
		return false
	}
	h.writeError(w, http.StatusBadRequest, "invalid JSON body")
	return false
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	logger.FromContext(r.Context()).Error("ingestion failed", "error", err, "status_code", status)
	h.writeError(w, status, apperrors.Message(err, "ingestion failed"))
}

func fieldsOf(err error) map[string]string {
	var ve *validator.ValidationError
	if errors.As(err, &ve) {
		return ve.Fields
	}
	return map[string]string{"book": err.Error()}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
