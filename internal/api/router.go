package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Router builds the full route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleMetadata).Methods(http.MethodGet)
	r.HandleFunc("/textures/{hash}", s.handleTexture).Methods(http.MethodGet)

	auth := r.PathPrefix("/authserver").Subrouter()
	auth.HandleFunc("/authenticate", s.handleAuthenticate).Methods(http.MethodPost)
	auth.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	auth.HandleFunc("/validate", s.handleValidate).Methods(http.MethodPost)
	auth.HandleFunc("/invalidate", s.handleInvalidate).Methods(http.MethodPost)
	auth.HandleFunc("/signout", s.handleSignOut).Methods(http.MethodPost)

	sess := r.PathPrefix("/sessionserver/session/minecraft").Subrouter()
	sess.HandleFunc("/join", s.handleJoin).Methods(http.MethodPost)
	sess.HandleFunc("/hasJoined", s.handleHasJoined).Methods(http.MethodGet)
	sess.HandleFunc("/profile/{id}", s.handleProfile).Methods(http.MethodGet)

	r.HandleFunc("/api/profiles/minecraft", s.handleProfilesByNames).Methods(http.MethodPost)

	user := r.PathPrefix("/api/user").Subrouter()
	user.HandleFunc("", s.handleRegister).Methods(http.MethodPost)
	user.HandleFunc("", s.handleDeleteAccount).Methods(http.MethodDelete)
	user.HandleFunc("/rescue-code", s.handleRescueCode).Methods(http.MethodPost)
	user.HandleFunc("/password", s.handleResetPassword).Methods(http.MethodPut)
	user.HandleFunc("/ban", s.handleBan).Methods(http.MethodPost)
	user.HandleFunc("/profiles", s.handleListProfiles).Methods(http.MethodGet)
	user.HandleFunc("/profiles", s.handleCreateProfile).Methods(http.MethodPost)
	user.HandleFunc("/profiles/{id}", s.handleDeleteProfile).Methods(http.MethodDelete)
	user.HandleFunc("/profiles/{id}/textures/{kind}", s.handleUploadTexture).Methods(http.MethodPut)
	user.HandleFunc("/profiles/{id}/textures/{kind}", s.handleClearTexture).Methods(http.MethodDelete)
	user.HandleFunc("/profiles/{id}/cape-visibility", s.handleCapeVisibility).Methods(http.MethodPut)

	return r
}
