package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"dm-lab/auth"
	apperrors "dm-lab/errors"
	"dm-lab/services"
)

// Handlers bundles the HTTP surface. The websocket surface lives in ws.go.
type Handlers struct {
	log      *slog.Logger
	auth     *services.AuthService
	messages *services.MessageService
}

func NewHandlers(log *slog.Logger, authService *services.AuthService, messages *services.MessageService) *Handlers {
	return &Handlers{log: log, auth: authService, messages: messages}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User  any    `json:"user"`
	Token string `json:"token"`
}

func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req auth.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ErrInvalidSignup)
		return
	}
	user, token, err := h.auth.Signup(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	setSessionCookie(w, token)
	writeJSON(w, http.StatusCreated, authResponse{User: user, Token: token})
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ErrInvalidCredentials)
		return
	}
	user, token, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, authResponse{User: user, Token: token})
}

func (h *Handlers) Logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "jwt",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *Handlers) Check(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFrom(r.Context())
	user, err := h.auth.Check(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFrom(r.Context())
	var req struct {
		ProfilePic string `json:"profilePic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ErrEmptyProfilePic)
		return
	}
	user, err := h.auth.UpdateProfilePic(r.Context(), userID, req.ProfilePic)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handlers) Contacts(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFrom(r.Context())
	users, err := h.auth.Contacts(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// Conversation returns the full history with the other user.
func (h *Handlers) Conversation(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFrom(r.Context())
	otherID := mux.Vars(r)["id"]

	messages, err := h.messages.CatchUp(r.Context(), userID, otherID, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// NewSince is the catch-up query behind the polling fallback. The cursor
// is exclusive: only strictly newer messages come back.
func (h *Handlers) NewSince(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFrom(r.Context())
	otherID := mux.Vars(r)["id"]

	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, apperrors.ErrNotFound)
			return
		}
		since = &t
	}

	messages, err := h.messages.CatchUp(r.Context(), userID, otherID, since)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *Handlers) Send(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFrom(r.Context())
	receiverID := mux.Vars(r)["id"]

	var content services.Content
	if err := json.NewDecoder(r.Body).Decode(&content); err != nil {
		writeError(w, apperrors.ErrEmptyMessage)
		return
	}
	msg, err := h.messages.Send(r.Context(), userID, receiverID, content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFrom(r.Context())
	messageID, err := uuid.Parse(mux.Vars(r)["messageId"])
	if err != nil {
		writeError(w, apperrors.ErrNotFound)
		return
	}
	if err := h.messages.Delete(r.Context(), userID, messageID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

func (h *Handlers) Clear(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFrom(r.Context())
	otherID := mux.Vars(r)["id"]

	count, err := h.messages.ClearForPair(r.Context(), userID, otherID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deletedCount": count})
}

func setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "jwt",
		Value:    token,
		Path:     "/",
		MaxAge:   int((7 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
