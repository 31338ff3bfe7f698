package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ent0n29/switchboard/internal/extract"
	"github.com/ent0n29/switchboard/internal/memory"
)

const multipartOverhead = 1 << 20

func (s *Server) handleStoreMemory(w http.ResponseWriter, r *http.Request) {
	var note memory.Note
	if err := decodeJSON(r, &note); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	note.Source = memory.SourceAPI

	sess := s.resolveSession(w, r)
	entry, err := s.knowledge.Store(r.Context(), sess.UserID, note)
	if err != nil {
		s.respondMemoryError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"memory":  entry,
	})
}

func (s *Server) handleSearchMemories(w http.ResponseWriter, r *http.Request) {
	sess := s.resolveSession(w, r)
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		entries, err := s.knowledge.List(r.Context(), sess.UserID)
		if err != nil {
			s.respondMemoryError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"count":    len(entries),
			"memories": entries,
		})
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	results, err := s.knowledge.Search(r.Context(), sess.UserID, query, limit)
	if err != nil {
		s.respondMemoryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	sess := s.resolveSession(w, r)
	id := chi.URLParam(r, "id")
	if err := s.knowledge.Delete(r.Context(), sess.UserID, id); err != nil {
		s.respondMemoryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": id})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess := s.resolveSession(w, r)
	export, err := s.knowledge.Export(r.Context(), sess.UserID)
	if err != nil {
		s.respondMemoryError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "memories-"+sess.UserID+".json"))
	respondJSON(w, http.StatusOK, export)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MemoryUploadMaxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(s.cfg.MemoryUploadMaxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		respondError(w, http.StatusBadRequest, "Expected multipart form with a file field")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	text, err := s.extractor.Extract(header.Filename, header.Header.Get("Content-Type"), file)
	switch {
	case errors.Is(err, extract.ErrUnsupportedType):
		respondError(w, http.StatusUnsupportedMediaType, "Unsupported file type")
		return
	case errors.Is(err, extract.ErrTooLarge):
		respondError(w, http.StatusRequestEntityTooLarge, "File too large")
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, "Could not read file: "+err.Error())
		return
	}

	sess := s.resolveSession(w, r)
	entry, err := s.knowledge.Store(r.Context(), sess.UserID, memory.Note{
		Content:     text,
		Type:        "document",
		Tags:        memory.SplitTags(r.FormValue("tags")),
		Description: r.FormValue("description"),
		Source:      memory.SourceUpload,
	})
	if err != nil {
		s.respondMemoryError(w, err)
		return
	}
	s.logger.Info("file imported",
		zap.String("user_id", sess.UserID),
		zap.String("filename", header.Filename),
		zap.Int("characters", len([]rune(text))))
	respondJSON(w, http.StatusCreated, map[string]any{
		"success":    true,
		"filename":   header.Filename,
		"characters": len([]rune(text)),
		"memory":     entry,
	})
}

func (s *Server) respondMemoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, memory.ErrEmptyContent):
		respondError(w, http.StatusBadRequest, "Content is required")
	case errors.Is(err, memory.ErrNotFound):
		respondError(w, http.StatusNotFound, "Memory not found")
	default:
		s.logger.Error("knowledge store failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
