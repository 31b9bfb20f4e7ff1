package emulator

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dropDatabas3/littlejohn/internal/emulator/blob"
	"github.com/dropDatabas3/littlejohn/internal/metrics"
	"github.com/go-chi/chi/v5"
)

// maxBlobSize limita uploads; las fotos de profile comprimidas quedan muy
// por debajo.
const maxBlobSize = 10 << 20 // 10 MiB

// canWriteBlob: cada cuenta sube solo bajo un prefijo que contenga su UID
// ("profile_images/<uid>.jpg").
func canWriteBlob(c *IDTokenClaims, p string) bool {
	if c == nil {
		return false
	}
	return strings.Contains(p, c.UID)
}

func blobPath(r *http.Request) string {
	return strings.TrimPrefix(chi.URLParam(r, "*"), "/")
}

func (s *Server) handleUploadBlob(w http.ResponseWriter, r *http.Request) {
	p := blobPath(r)
	if !canWriteBlob(claimsFrom(r.Context()), p) {
		writeErr(w, http.StatusForbidden, "forbidden", "cannot write this blob path")
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBlobSize+1))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad_request", "could not read body")
		return
	}
	if len(data) > maxBlobSize {
		writeErr(w, http.StatusRequestEntityTooLarge, "too_large", "blob exceeds size limit")
		return
	}
	if err := s.blobs.Put(p, data); err != nil {
		if errors.Is(err, blob.ErrBadPath) {
			writeErr(w, http.StatusBadRequest, "bad_path", "invalid blob path")
			return
		}
		writeErr(w, http.StatusInternalServerError, "internal", "blob write failed")
		return
	}
	metrics.BlobBytesWritten.Add(float64(len(data)))
	writeJSON(w, http.StatusOK, map[string]any{"path": p, "size": len(data)})
}

// handleBlobURL responde la "download URL" pública del blob. Se exige que el
// blob exista: el SDK nunca debe recibir una URL de algo que no terminó de
// subirse.
func (s *Server) handleBlobURL(w http.ResponseWriter, r *http.Request) {
	p := blobPath(r)
	if !s.blobs.Exists(p) {
		writeErr(w, http.StatusNotFound, "not_found", "blob not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": s.baseURL + "/b/" + p})
}

func (s *Server) handleServeBlob(w http.ResponseWriter, r *http.Request) {
	p := blobPath(r)
	data, err := s.blobs.Get(p)
	if err != nil {
		writeErr(w, http.StatusNotFound, "not_found", "blob not found")
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	_, _ = w.Write(data)
}
