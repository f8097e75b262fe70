package transport

import (
	"net/http"

	"github.com/gorilla/mux"

	"dm-lab/auth"
)

// NewRouter wires the full HTTP surface. Everything except signup, login
// and logout sits behind token authentication.
func NewRouter(authenticator auth.Authenticator, h *Handlers, ws *WSHandler) *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/signup", h.Signup).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", h.Logout).Methods(http.MethodPost)

	protected := func(fn http.HandlerFunc) http.Handler {
		return RequireAuth(authenticator, fn)
	}

	api.Handle("/auth/check", protected(h.Check)).Methods(http.MethodGet)
	api.Handle("/auth/profile", protected(h.UpdateProfile)).Methods(http.MethodPut)

	api.Handle("/messages/users", protected(h.Contacts)).Methods(http.MethodGet)
	api.Handle("/messages/new/{id}", protected(h.NewSince)).Methods(http.MethodGet)
	api.Handle("/messages/send/{id}", protected(h.Send)).Methods(http.MethodPost)
	api.Handle("/messages/clear/{id}", protected(h.Clear)).Methods(http.MethodDelete)
	api.Handle("/messages/{messageId}", protected(h.Delete)).Methods(http.MethodDelete)
	api.Handle("/messages/{id}", protected(h.Conversation)).Methods(http.MethodGet)

	r.Handle("/ws", RequireAuth(authenticator, ws))

	return r
}
