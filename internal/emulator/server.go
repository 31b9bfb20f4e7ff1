package emulator

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/littlejohn/internal/cache"
	"github.com/dropDatabas3/littlejohn/internal/email"
	"github.com/dropDatabas3/littlejohn/internal/emulator/blob"
	"github.com/dropDatabas3/littlejohn/internal/emulator/store"
	"github.com/dropDatabas3/littlejohn/internal/metrics"
	"github.com/dropDatabas3/littlejohn/internal/oauth/google"
	"github.com/dropDatabas3/littlejohn/internal/observability/logger"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options arma el servidor. Store y Cache vienen construidos de main (o del
// test); el resto son valores de config.
type Options struct {
	Store      store.Store
	Cache      cache.Cache
	Mailer     *email.Mailer
	Issuer     string
	BaseURL    string
	IDTokenTTL time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration

	// Google deshabilitado si ClientID vacío y no Insecure.
	GoogleClientID string
	GoogleInsecure bool
}

// Server es authd: router chi + servicios.
type Server struct {
	router   chi.Router
	accounts *accountService
	docs     store.DocumentStore
	blobs    *blob.Store
	baseURL  string
}

func NewServer(opts Options, blobs *blob.Store) (*Server, error) {
	issuer, err := newTokenIssuer(opts.Issuer, opts.IDTokenTTL)
	if err != nil {
		return nil, err
	}

	svc := &accountService{
		accounts:   opts.Store.Accounts(),
		cache:      opts.Cache,
		issuer:     issuer,
		mailer:     opts.Mailer,
		refreshTTL: opts.RefreshTTL,
		resetTTL:   opts.ResetTTL,
		baseURL:    opts.BaseURL,
	}
	switch {
	case opts.GoogleInsecure:
		svc.verifyGoogle = func(_ context.Context, raw string) (*google.Identity, error) {
			return google.ParseInsecure(raw)
		}
	case opts.GoogleClientID != "":
		g := google.New(opts.GoogleClientID, "", "")
		svc.verifyGoogle = g.VerifyIDToken
	}

	s := &Server{
		accounts: svc,
		docs:     opts.Store.Documents(),
		blobs:    blobs,
		baseURL:  opts.BaseURL,
	}
	s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/accounts:signUp", instrument("accounts", s.handleSignUp))
		r.Post("/accounts:signInWithPassword", instrument("accounts", s.handleSignInPassword))
		r.Post("/accounts:signInWithIdp", instrument("accounts", s.handleSignInIDP))
		r.Post("/accounts:signOut", instrument("accounts", s.handleSignOut))
		r.Post("/accounts:sendPasswordReset", instrument("accounts", s.handleSendReset))
		r.Post("/accounts:resetPassword", instrument("accounts", s.handleResetPassword))
		r.Post("/token", instrument("accounts", s.handleRefresh))

		// Documentos y blobs requieren Bearer ID token.
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/documents/{collection}/{id}", instrument("documents", s.handleGetDocument))
			r.Post("/documents/{collection}/{id}", instrument("documents", s.handleCreateDocument))
			r.Put("/documents/{collection}/{id}", instrument("documents", s.handleSetDocument))
			r.Patch("/documents/{collection}/{id}", instrument("documents", s.handlePatchDocument))

			r.Post("/blobs/*", instrument("blobs", s.handleUploadBlob))
			r.Get("/blobs/*", instrument("blobs", s.handleBlobURL))
		})
	})

	// Servido público de blobs (la "download URL").
	r.Get("/b/*", instrument("blobs", s.handleServeBlob))

	s.router = r
}

// ─── middleware ───

type ctxKeyClaims struct{}

func claimsFrom(ctx context.Context) *IDTokenClaims {
	c, _ := ctx.Value(ctxKeyClaims{}).(*IDTokenClaims)
	return c
}

// requireAuth valida el Bearer ID token y deja los claims en el contexto.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" || raw == r.Header.Get("Authorization") {
			writeErr(w, http.StatusUnauthorized, "missing_token", "missing bearer token")
			return
		}
		claims, err := s.accounts.issuer.Verify(raw)
		if err != nil {
			writeErr(w, http.StatusUnauthorized, "invalid_token", "invalid or expired token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyClaims{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLogger propaga un logger por request con request_id y loguea el
// resultado a nivel debug.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", rid)

		l := logger.L().With(logger.RequestID(rid))
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(logger.ToContext(r.Context(), l)))

		l.Debug("http request",
			logger.Method(r.Method),
			logger.Path(r.URL.Path),
			logger.Status(sw.status),
			logger.Duration(time.Since(start)),
		)
	})
}

// instrument cuenta requests y latencia por familia de endpoint.
func instrument(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r)
		metrics.HTTPRequests.WithLabelValues(endpoint, httpStatusClass(sw.status)).Inc()
		metrics.HTTPDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func httpStatusClass(code int) string {
	switch {
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// ─── JSON helpers ───

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, msg string) {
	var e apiError
	e.Error.Code = code
	e.Error.Message = msg
	writeJSON(w, status, e)
}

func decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeErr(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
		return false
	}
	return true
}
