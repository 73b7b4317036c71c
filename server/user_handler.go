package server

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"trackvault/logger"
)

// GetProfileHandler returns the authenticated user's profile.
func (h *APIHandler) GetProfileHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFromContext(r.Context())
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	user, err := h.userRepo.GetUserByID(r.Context(), identity.UserID)
	if err != nil {
		logger.Error("failed to get user profile", logger.ErrorField(err))
		writeMessage(w, http.StatusInternalServerError, "Failed to get user profile")
		return
	}
	if user == nil {
		// The token outlived the row. Should not happen, but must be handled.
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}

	profile := map[string]interface{}{
		"id":         user.ID,
		"email":      user.Email,
		"name":       user.Name,
		"created_at": user.CreatedAt,
	}
	if user.Bio.Valid {
		profile["bio"] = user.Bio.String
	}
	if user.AvatarPath.Valid {
		profile["avatar"] = user.AvatarPath.String
	}

	writeJSON(w, http.StatusOK, profile)
}

// UpdateProfileHandler mutates the authenticated user's name and bio.
func (h *APIHandler) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := IdentityFromContext(r.Context())
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req struct {
		Name string `json:"name"`
		Bio  string `json:"bio"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		writeMessage(w, http.StatusBadRequest, "Name is required")
		return
	}

	user, err := h.userRepo.GetUserByID(r.Context(), identity.UserID)
	if err != nil {
		logger.Error("failed to query user for update", logger.ErrorField(err))
		writeMessage(w, http.StatusInternalServerError, "Failed to update profile")
		return
	}
	if user == nil {
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}

	bio := sql.NullString{String: req.Bio, Valid: req.Bio != ""}
	if err := h.userRepo.UpdateProfile(r.Context(), identity.UserID, req.Name, bio); err != nil {
		logger.Error("failed to update profile", logger.ErrorField(err))
		writeMessage(w, http.StatusInternalServerError, "Failed to update profile")
		return
	}

	logger.Info("profile updated", logger.Int64("userId", identity.UserID))
	writeMessage(w, http.StatusOK, "Profile updated successfully")
}
