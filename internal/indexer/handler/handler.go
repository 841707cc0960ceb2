// Package handler serves the index service's HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bookindex/pkg/logger"
)

const (
	IndexUpdated  = "updated"
	IndexUpToDate = "already up to date"
)

// Indexer is the single-book indexing and status surface.
type Indexer interface {
	IndexByID(ctx context.Context, id document.ID) (indexer.IndexResult, error)
	Status(ctx context.Context) (indexer.Status, error)
}

type Rebuilder interface {
	RebuildFromStore(ctx context.Context) (indexer.RebuildResult, error)
}

// ServiceInfo is reported by GET /status.
type ServiceInfo struct {
	Service     string `json:"service"`
	Mode        string `json:"mode"`
	ControlFile string `json:"control_file,omitempty"`
	Database    string `json:"database"`
	// Probe, when set, refreshes Database on every request.
	Probe func(ctx context.Context) string `json:"-"`
}

// UpdateResponse is the body of POST /index/update/{book_id}.
type UpdateResponse struct {
	BookID document.ID `json:"book_id"`
	Index  string      `json:"index"`
	Terms  int         `json:"terms_added,omitempty"`
}

type Handler struct {
	indexer   Indexer
	rebuilder Rebuilder
	info      ServiceInfo
	logger    *slog.Logger
}

func New(idx Indexer, rb Rebuilder, info ServiceInfo) *Handler {
	return &Handler{
		indexer:   idx,
		rebuilder: rb,
		info:      info,
		logger:    slog.Default().With("component", "index-handler"),
	}
}

// Register mounts the index routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /status", h.Status)
	mux.HandleFunc("POST /index/update/{book_id}", h.Update)
	mux.HandleFunc("POST /index/rebuild", h.Rebuild)
	mux.HandleFunc("GET /index/status", h.IndexStatus)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	info := h.info
	if info.Probe != nil {
		info.Database = info.Probe(r.Context())
	}
	h.writeJSON(w, http.StatusOK, info)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := document.ParseID(r.PathValue("book_id"))
	if err != nil {
		h.writeAppError(w, err, "invalid book_id")
		return
	}
	ctx := logger.With(r.Context(), "book_id", id)
	log := logger.FromContext(ctx)

	res, err := h.indexer.IndexByID(ctx, id)
	if err != nil {
		log.Error("index update failed", "error", err)
		h.writeAppError(w, err, "indexing failed")
		return
	}
	resp := UpdateResponse{BookID: id, Index: IndexUpdated, Terms: res.TermsAdded}
	if res.Skipped {
		resp.Index = IndexUpToDate
	}
	log.Info("index update", "result", resp.Index, "terms", res.TermsAdded)
	h.writeJSON(w, http.StatusOK, resp)
}

// Rebuild runs a full rebuild synchronously. The rebuild is detached from
// the client connection so a dropped request does not leave the index half
// built; it is still bounded by the configured rebuild timeout.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	res, err := h.rebuilder.RebuildFromStore(context.WithoutCancel(r.Context()))
	if err != nil {
		log.Error("rebuild failed", "generation", res.GenerationID, "processed", res.BooksProcessed, "error", err)
		h.writeAppError(w, err, "rebuild failed")
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) IndexStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.indexer.Status(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("index status failed", "error", err)
		h.writeAppError(w, err, "index status unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeAppError(w http.ResponseWriter, err error, fallback string) {
	h.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]string{"error": apperrors.Message(err, fallback)})
}
