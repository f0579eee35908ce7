package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pixseek/pixseek/internal/catalog"
	"github.com/pixseek/pixseek/internal/events"
	"github.com/pixseek/pixseek/internal/index"
)

type textSearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

type imageSearchRequest struct {
	ImageBase64 string `json:"image_base64"`
	TopK        int    `json:"top_k,omitempty"`
}

func (s *Server) handleSearchText(w http.ResponseWriter, r *http.Request) {
	var req textSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	k := s.clampTopK(req.TopK)
	s.logger.Debug("text search request", zap.String("query", req.Query), zap.Int("top_k", k))

	results, err := s.manager.SearchByText(r.Context(), req.Query, k)
	if err != nil {
		s.respondIndexError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
}

func (s *Server) handleSearchImage(w http.ResponseWriter, r *http.Request) {
	var req imageSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ImageBase64 == "" {
		s.respondError(w, http.StatusBadRequest, "image_base64 is required")
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "image_base64 is not valid base64")
		return
	}
	k := s.clampTopK(req.TopK)
	s.logger.Debug("image search request", zap.Int("bytes", len(data)), zap.Int("top_k", k))

	results, err := s.manager.SearchByImage(r.Context(), data, k)
	if err != nil {
		s.respondIndexError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
}

type createItemRequest struct {
	ID        string         `json:"id,omitempty"`
	SourceURI string         `json:"source_uri"`
	Title     string         `json:"title,omitempty"`
	Owner     string         `json:"owner,omitempty"`
	Public    bool           `json:"public"`
	Extra     map[string]any `json:"extra,omitempty"`
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SourceURI == "" {
		s.respondError(w, http.StatusBadRequest, "source_uri is required")
		return
	}
	photo := &catalog.Photo{
		ID:        req.ID,
		SourceURI: req.SourceURI,
		Title:     req.Title,
		Owner:     req.Owner,
		Public:    req.Public,
		Extra:     req.Extra,
	}
	if err := s.catalog.Create(r.Context(), photo); err != nil {
		s.logger.Error("create item failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.pipeline.Publish(events.Event{
		Kind:   events.KindItemCreated,
		Record: catalog.PhotoRecord(photo),
	}); err != nil {
		s.logger.Warn("failed to publish create event", zap.Error(err))
	}
	s.respondJSON(w, http.StatusCreated, photo)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	photo, err := s.catalog.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "item not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"item":    photo,
		"indexed": s.manager.Contains(photo.ID),
	})
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete item request", zap.String("id", id))
	if err := s.catalog.Delete(r.Context(), id); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "item not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.pipeline.Publish(events.Event{
		Kind:   events.KindItemDeleted,
		ItemID: id,
	}); err != nil {
		s.logger.Warn("failed to publish delete event", zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

type visibilityRequest struct {
	Public bool `json:"public"`
}

func (s *Server) handleSetVisibility(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req visibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	photo, err := s.catalog.SetVisibility(r.Context(), id, req.Public)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "item not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.pipeline.Publish(events.Event{
		Kind:   events.KindVisibilityChanged,
		Record: catalog.PhotoRecord(photo),
		Public: req.Public,
	}); err != nil {
		s.logger.Warn("failed to publish visibility event", zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, photo)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("rebuild requested")
	report, err := s.manager.Build(r.Context(), catalog.NewPager(s.catalog, 500))
	if err != nil {
		s.logger.Error("rebuild failed", zap.Error(err))
		s.respondIndexError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"indexed": report.Indexed,
		"failed":  report.Failed,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	photoCount, err := s.catalog.CountPublic(r.Context())
	if err != nil {
		s.logger.Error("status: count photos failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"state":         string(s.manager.State()),
		"indexed_items": s.manager.Count(),
		"public_photos": photoCount,
		"config": map[string]any{
			"index_type": s.config.Index.Type,
			"metric":     s.config.Index.Metric,
			"dimensions": s.manager.Dimension(),
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) clampTopK(k int) int {
	if k <= 0 {
		return s.config.Search.DefaultTopK
	}
	if k > s.config.Search.MaxTopK {
		return s.config.Search.MaxTopK
	}
	return k
}

// respondIndexError maps index error categories to HTTP statuses.
func (s *Server) respondIndexError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, index.ErrIndexNotReady):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, index.ErrSourceUnavailable):
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, index.ErrDimensionMismatch):
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error("index operation failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
