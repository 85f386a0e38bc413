package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"
)

type SignUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

type IdentityDTO struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

type Handler struct {
	client *Client
}

func NewHandler(client *Client) *Handler {
	return &Handler{client}
}

// SignUp registers a new account with the hosted auth provider. The gateway
// keeps running under its configured session; the new account signs in from
// its own client.
func (handler *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	log.Debug("Registering new account")
	w.Header().Set("Content-Type", "application/json")

	var req SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		http.Error(w, "email and password must not be empty", http.StatusBadRequest)
		return
	}

	sess, err := handler.client.SignUp(r.Context(), req.Email, req.Password, req.Username, req.DisplayName)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(IdentityDTO{
		ID:          sess.Identity.ID,
		Username:    sess.Identity.Username,
		DisplayName: sess.Identity.DisplayName,
	}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}
