package emulator

import (
	"errors"
	"net/http"

	"github.com/dropDatabas3/littlejohn/internal/emulator/store"
	"github.com/go-chi/chi/v5"
)

// canWrite decide si el token puede escribir (collection, id). Regla única
// del emulador: en "users" cada cuenta escribe solo su propio documento;
// otras colecciones son libres para cualquier autenticado.
func canWrite(c *IDTokenClaims, collection, id string) bool {
	if collection == "users" {
		return c != nil && c.UID == id
	}
	return c != nil
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")

	data, err := s.docs.Get(r.Context(), collection, id)
	if errors.Is(err, store.ErrNotFound) {
		writeErr(w, http.StatusNotFound, "not_found", "document not found")
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "internal", "document read failed")
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")
	if !canWrite(claimsFrom(r.Context()), collection, id) {
		writeErr(w, http.StatusForbidden, "forbidden", "cannot write this document")
		return
	}
	var data map[string]any
	if !decodeBody(w, r, &data) {
		return
	}
	err := s.docs.Create(r.Context(), collection, id, data)
	if errors.Is(err, store.ErrConflict) {
		// El documento ya existe: el creador concurrente ganó. Se devuelve
		// el existente para que el caller lo adopte.
		existing, gerr := s.docs.Get(r.Context(), collection, id)
		if gerr != nil {
			writeErr(w, http.StatusConflict, "exists", "document already exists")
			return
		}
		writeJSON(w, http.StatusConflict, existing)
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "internal", "document write failed")
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleSetDocument(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")
	if !canWrite(claimsFrom(r.Context()), collection, id) {
		writeErr(w, http.StatusForbidden, "forbidden", "cannot write this document")
		return
	}
	var data map[string]any
	if !decodeBody(w, r, &data) {
		return
	}
	if err := s.docs.Set(r.Context(), collection, id, data); err != nil {
		writeErr(w, http.StatusInternalServerError, "internal", "document write failed")
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handlePatchDocument(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")
	if !canWrite(claimsFrom(r.Context()), collection, id) {
		writeErr(w, http.StatusForbidden, "forbidden", "cannot write this document")
		return
	}
	var partial map[string]any
	if !decodeBody(w, r, &partial) {
		return
	}
	merged, err := s.docs.Patch(r.Context(), collection, id, partial)
	if errors.Is(err, store.ErrNotFound) {
		writeErr(w, http.StatusNotFound, "not_found", "document not found")
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "internal", "document write failed")
		return
	}
	writeJSON(w, http.StatusOK, merged)
}
