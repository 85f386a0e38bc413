package profile

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/centsible/centsible/pkg/session"
)

type ProfileDTO struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

type ProfileHandler struct {
	profileService Service
}

func NewProfileHandler(profileService Service) *ProfileHandler {
	return &ProfileHandler{profileService}
}

// GetCurrent returns the profile of the signed-in identity.
func (handler *ProfileHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id, err := session.CurrentID(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	p, err := handler.profileService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(ProfileDTO{
		ID:          p.ID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
	}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}
