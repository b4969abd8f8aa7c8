package http

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterMux mounts the light client routes on the given router.
func (h *Handler) RegisterMux(r *mux.Router) {
	v1 := r.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/head", h.handleHead).Methods(http.MethodGet)
	v1.HandleFunc("/headers/{height}", h.handleHeader).Methods(http.MethodGet)
	v1.HandleFunc("/authority-sets/{id}", h.handleAuthoritySet).Methods(http.MethodGet)
	v1.HandleFunc("/commitments/{trusted}/{target}", h.handleCommitment).Methods(http.MethodGet)

	v1.HandleFunc("/requests/header-range", h.handleRequestHeaderRange).Methods(http.MethodPost)
	v1.HandleFunc("/requests/rotate", h.handleRequestRotate).Methods(http.MethodPost)

	v1.HandleFunc("/admin/bootstrap", h.handleBootstrap).Methods(http.MethodPost)
	v1.HandleFunc("/admin/config", h.handleSetConfig).Methods(http.MethodPost)
}
