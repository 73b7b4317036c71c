package server

import (
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"trackvault/cache"
	"trackvault/config"
	"trackvault/core/auth"
	"trackvault/logger"
	"trackvault/model"
	"trackvault/repository"
	"trackvault/storage"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// multipartOverhead is the slack allowed on top of the file-size cap for
// multipart boundaries and metadata fields.
const multipartOverhead = 1 << 20

// APIHandler handles all API requests.
type APIHandler struct {
	userRepo   repository.UserRepository
	trackRepo  repository.TrackRepository
	trackCache *cache.TrackCache
	store      storage.Store
	tokens     *auth.TokenManager
	cfg        *config.Config
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(
	userRepo repository.UserRepository,
	trackRepo repository.TrackRepository,
	trackCache *cache.TrackCache,
	store storage.Store,
	tokens *auth.TokenManager,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		userRepo:   userRepo,
		trackRepo:  trackRepo,
		trackCache: trackCache,
		store:      store,
		tokens:     tokens,
		cfg:        cfg,
	}
}

// storedFileName derives a collision-free object name for an upload.
// Random identifiers, not timestamps: concurrent uploads can never collide.
func storedFileName(originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "" {
		ext = ".dat"
	}
	return uuid.New().String() + ext
}

// trackResponse shapes a track for the API, mapping the stored object name
// to its public URL.
func (h *APIHandler) trackResponse(t *model.Track) map[string]interface{} {
	resp := map[string]interface{}{
		"id":        t.ID,
		"title":     t.Title,
		"artist":    t.Artist,
		"explicit":  t.Explicit,
		"url":       strings.TrimSuffix(h.cfg.PublicPath, "/") + "/" + t.FilePath,
		"createdAt": t.CreatedAt,
	}
	if t.Genre.Valid {
		resp["genre"] = t.Genre.String
	}
	if t.Year.Valid {
		resp["year"] = t.Year.Int32
	}
	if t.Album.Valid {
		resp["album"] = t.Album.String
	}
	return resp
}

// UploadTrackHandler handles audio file uploads with metadata.
func (h *APIHandler) UploadTrackHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFromContext(r.Context())
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	maxBytes := h.cfg.MaxUploadBytes
	if r.ContentLength > maxBytes+multipartOverhead {
		logger.Warn("upload rejected: request too large",
			logger.Int64("contentLength", r.ContentLength),
			logger.Int64("maxSize", maxBytes))
		writeMessage(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("File too large. Maximum size is %d MB", maxBytes>>20))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeMessage(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("File too large. Maximum size is %d MB", maxBytes>>20))
			return
		}
		logger.Error("failed to parse upload form", logger.ErrorField(err))
		writeMessage(w, http.StatusBadRequest, "Failed to parse upload form")
		return
	}

	trackFile, trackHeader, err := r.FormFile("audio")
	if err != nil {
		if err == http.ErrMissingFile {
			writeMessage(w, http.StatusBadRequest, "Missing audio file")
		} else {
			writeMessage(w, http.StatusBadRequest, "Failed to process uploaded file")
		}
		return
	}
	defer trackFile.Close()

	if trackHeader.Size > maxBytes {
		logger.Warn("upload rejected: file too large",
			logger.Int64("size", trackHeader.Size),
			logger.String("filename", trackHeader.Filename))
		writeMessage(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("File too large. Maximum size is %d MB", maxBytes>>20))
		return
	}

	contentType := trackHeader.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "audio/") {
		logger.Warn("upload rejected: not an audio file",
			logger.String("contentType", contentType),
			logger.String("filename", trackHeader.Filename))
		writeMessage(w, http.StatusBadRequest, "Invalid file type. Only audio files are accepted")
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	artist := strings.TrimSpace(r.FormValue("artist"))
	if title == "" || artist == "" {
		writeMessage(w, http.StatusBadRequest, "Title and artist are required")
		return
	}

	newTrack := &model.Track{
		UserID: identity.UserID,
		Title:  title,
		Artist: artist,
	}
	if genre := strings.TrimSpace(r.FormValue("genre")); genre != "" {
		newTrack.Genre = sql.NullString{String: genre, Valid: true}
	}
	if album := strings.TrimSpace(r.FormValue("album")); album != "" {
		newTrack.Album = sql.NullString{String: album, Valid: true}
	}
	if yearStr := r.FormValue("year"); yearStr != "" {
		year, err := strconv.Atoi(yearStr)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "Year must be an integer")
			return
		}
		newTrack.Year = sql.NullInt32{Int32: int32(year), Valid: true}
	}
	if explicitStr := r.FormValue("explicit"); explicitStr != "" {
		explicit, err := strconv.ParseBool(explicitStr)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "Explicit must be a boolean")
			return
		}
		newTrack.Explicit = explicit
	}
	newTrack.FilePath = storedFileName(trackHeader.Filename)

	// Stage the file, insert the row, then promote. An insert failure
	// discards the staged file so no orphan survives a failed request.
	if err := h.store.SaveStaged(r.Context(), newTrack.FilePath, trackFile, trackHeader.Size, contentType); err != nil {
		logger.Error("failed to stage uploaded file",
			logger.ErrorField(err),
			logger.Int64("userId", identity.UserID))
		writeMessage(w, http.StatusInternalServerError, "Failed to store uploaded file")
		return
	}

	trackID, err := h.trackRepo.CreateTrack(r.Context(), newTrack)
	if err != nil {
		logger.Error("failed to create track record",
			logger.ErrorField(err),
			logger.Int64("userId", identity.UserID))
		if discardErr := h.store.DiscardStaged(r.Context(), newTrack.FilePath); discardErr != nil {
			logger.Warn("failed to discard staged file after insert failure",
				logger.String("object", newTrack.FilePath), logger.ErrorField(discardErr))
		}
		writeMessage(w, http.StatusInternalServerError, "Failed to create track")
		return
	}

	if err := h.store.Promote(r.Context(), newTrack.FilePath); err != nil {
		logger.Error("failed to promote staged file, rolling back track row",
			logger.ErrorField(err),
			logger.Int64("trackId", trackID))
		if delErr := h.trackRepo.DeleteTrackOwned(r.Context(), trackID, identity.UserID); delErr != nil {
			logger.Warn("failed to roll back track row", logger.ErrorField(delErr))
		}
		if discardErr := h.store.DiscardStaged(r.Context(), newTrack.FilePath); discardErr != nil {
			logger.Warn("failed to discard staged file", logger.ErrorField(discardErr))
		}
		writeMessage(w, http.StatusInternalServerError, "Failed to store uploaded file")
		return
	}

	h.trackCache.Invalidate(r.Context(), identity.UserID)

	logger.Info("track uploaded",
		logger.Int64("trackId", trackID),
		logger.Int64("userId", identity.UserID),
		logger.String("title", title),
		logger.Int64("size", trackHeader.Size))

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Track uploaded successfully",
		"track":   h.trackResponse(newTrack),
	})
}

// encodeCursor packs a (created_at, id) position into an opaque cursor.
func encodeCursor(createdAt time.Time, id int64) string {
	raw := fmt.Sprintf("%d:%d", createdAt.UnixNano(), id)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// decodeCursor unpacks an opaque cursor.
func decodeCursor(cursor string) (time.Time, int64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("malformed cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 {
		return time.Time{}, 0, fmt.Errorf("malformed cursor")
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("malformed cursor: %w", err)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("malformed cursor: %w", err)
	}
	return time.Unix(0, nanos), id, nil
}

// GetTracksHandler returns the authenticated user's tracks, newest first.
// Optional limit and cursor query parameters page through the listing.
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFromContext(r.Context())
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var page repository.ListPage
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			writeMessage(w, http.StatusBadRequest, "Limit must be a positive integer")
			return
		}
		page.Limit = limit
	}
	if cursor := r.URL.Query().Get("cursor"); cursor != "" {
		before, beforeID, err := decodeCursor(cursor)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid cursor")
			return
		}
		page.Before = before
		page.BeforeID = beforeID
	}

	// Only the default full listing is cached; paged reads go to the DB.
	defaultListing := page.Limit == 0 && page.Before.IsZero()
	if defaultListing {
		if tracks, ok := h.trackCache.Get(r.Context(), identity.UserID); ok {
			h.writeTrackList(w, tracks, page.Limit)
			return
		}
	}

	tracks, err := h.trackRepo.ListTracksByUser(r.Context(), identity.UserID, page)
	if err != nil {
		logger.Error("failed to list tracks",
			logger.ErrorField(err),
			logger.Int64("userId", identity.UserID))
		writeMessage(w, http.StatusInternalServerError, "Failed to retrieve tracks")
		return
	}

	if defaultListing {
		h.trackCache.Set(r.Context(), identity.UserID, tracks)
	}

	h.writeTrackList(w, tracks, page.Limit)
}

// writeTrackList renders a track listing, exposing the next page's cursor in
// a header when a full page was returned.
func (h *APIHandler) writeTrackList(w http.ResponseWriter, tracks []*model.Track, limit int) {
	if limit > 0 && len(tracks) == limit {
		last := tracks[len(tracks)-1]
		w.Header().Set("X-Next-Cursor", encodeCursor(last.CreatedAt, last.ID))
	}

	responses := make([]map[string]interface{}, 0, len(tracks))
	for _, t := range tracks {
		responses = append(responses, h.trackResponse(t))
	}
	writeJSON(w, http.StatusOK, responses)
}

// DeleteTrackHandler deletes a track owned by the authenticated user. The
// row goes first; file deletion is best-effort and never fails the request.
func (h *APIHandler) DeleteTrackHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFromContext(r.Context())
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	vars := mux.Vars(r)
	trackID, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid track ID")
		return
	}

	// Ownership is enforced by scoping the lookup to the caller; a track
	// owned by someone else is indistinguishable from a missing one.
	track, err := h.trackRepo.GetTrackOwned(r.Context(), trackID, identity.UserID)
	if err != nil {
		logger.Error("failed to get track for deletion",
			logger.Int64("trackId", trackID), logger.ErrorField(err))
		writeMessage(w, http.StatusInternalServerError, "Failed to delete track")
		return
	}
	if track == nil {
		writeMessage(w, http.StatusNotFound, "Track not found")
		return
	}

	if err := h.trackRepo.DeleteTrackOwned(r.Context(), trackID, identity.UserID); err != nil {
		if errors.Is(err, repository.ErrTrackNotFound) {
			writeMessage(w, http.StatusNotFound, "Track not found")
			return
		}
		logger.Error("failed to delete track row",
			logger.Int64("trackId", trackID), logger.ErrorField(err))
		writeMessage(w, http.StatusInternalServerError, "Failed to delete track")
		return
	}

	if err := h.store.Remove(r.Context(), track.FilePath); err != nil {
		logger.Warn("failed to delete stored file for track",
			logger.Int64("trackId", trackID),
			logger.String("object", track.FilePath),
			logger.ErrorField(err))
	}

	h.trackCache.Invalidate(r.Context(), identity.UserID)

	logger.Info("track deleted",
		logger.Int64("trackId", trackID),
		logger.Int64("userId", identity.UserID))

	writeMessage(w, http.StatusOK, "Track deleted successfully")
}
