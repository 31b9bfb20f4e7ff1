package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/littlejohn/internal/domain/types"
	"github.com/dropDatabas3/littlejohn/internal/observability/logger"
	jwtv5 "github.com/golang-jwt/jwt/v5"
	gocache "github.com/patrickmn/go-cache"
)

// Config del gateway REST.
type Config struct {
	// BaseURL de authd, ej "http://localhost:9099".
	BaseURL string
	// CredentialsFile persiste el refresh token entre corridas. Vacío =
	// sesión solo en memoria (tests).
	CredentialsFile string
	// Timeout por request HTTP. Default 15s.
	Timeout time.Duration
}

const (
	// margen antes del exp para renovar el ID token.
	tokenRenewCushion = 30 * time.Second
	// TTL del cache de blob URLs; las URLs del emulador son estables.
	blobURLCacheTTL = 5 * time.Minute
)

// REST implementa Gateway contra la API wire de authd.
type REST struct {
	base  string
	http  *http.Client
	creds *credentialsFile
	urls  *gocache.Cache

	mu         sync.Mutex
	idToken    string
	idTokenExp time.Time
	refresh    string
	session    *types.Session

	events      chan *types.Session
	observeOnce sync.Once
}

var _ Gateway = (*REST)(nil)

func NewREST(cfg Config) *REST {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &REST{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		http:   &http.Client{Timeout: timeout},
		creds:  &credentialsFile{path: cfg.CredentialsFile},
		urls:   gocache.New(blobURLCacheTTL, time.Minute),
		events: make(chan *types.Session, 16),
	}
}

// ObserveSession arranca (una sola vez) la restauración de la sesión
// persistida y retorna el stream de eventos de sesión.
func (c *REST) ObserveSession(ctx context.Context) <-chan *types.Session {
	c.observeOnce.Do(func() {
		go c.restore(ctx)
	})
	return c.events
}

// restore intenta reconstruir la sesión desde el archivo de credenciales.
// Emite siempre exactamente un primer evento.
func (c *REST) restore(ctx context.Context) {
	log := logger.Named("gateway")

	saved := c.creds.load()
	if saved == nil {
		c.emit(nil)
		return
	}
	c.mu.Lock()
	c.refresh = saved.RefreshToken
	c.mu.Unlock()

	if err := c.refreshGrant(ctx); err != nil {
		log.Debug("session restore failed", logger.Err(err))
		if isAuthFailure(err) {
			_ = c.creds.clear()
		}
		c.clearLocked()
		c.emit(nil)
		return
	}
	// refreshGrant dejó la sesión armada; emitirla.
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	c.emit(s)
}

func (c *REST) SignIn(ctx context.Context, email, password string) error {
	var resp sessionWire
	err := c.doJSON(ctx, http.MethodPost, "/v1/accounts:signInWithPassword",
		map[string]string{"email": email, "password": password}, false, &resp)
	if err != nil {
		return err
	}
	c.adopt(resp)
	return nil
}

func (c *REST) SignUp(ctx context.Context, email, password string) error {
	var resp sessionWire
	err := c.doJSON(ctx, http.MethodPost, "/v1/accounts:signUp",
		map[string]string{"email": email, "password": password}, false, &resp)
	if err != nil {
		return err
	}
	c.adopt(resp)
	return nil
}

func (c *REST) ExchangeCredential(ctx context.Context, providerToken string) error {
	var resp sessionWire
	err := c.doJSON(ctx, http.MethodPost, "/v1/accounts:signInWithIdp",
		map[string]string{"provider_token": providerToken}, false, &resp)
	if err != nil {
		return err
	}
	c.adopt(resp)
	return nil
}

// SignOut limpia la sesión local y revoca el refresh token en el backend.
// El resultado remoto no condiciona la limpieza local.
func (c *REST) SignOut(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.refresh
	c.mu.Unlock()

	c.clearLocked()
	_ = c.creds.clear()
	c.emit(nil)

	if refresh != "" {
		err := c.doJSON(ctx, http.MethodPost, "/v1/accounts:signOut",
			map[string]string{"refresh_token": refresh}, false, nil)
		if err != nil {
			logger.Named("gateway").Debug("remote sign-out failed", logger.Err(err))
		}
	}
	return nil
}

func (c *REST) GetDocument(ctx context.Context, collection, id string) (map[string]any, error) {
	var out map[string]any
	err := c.doJSON(ctx, http.MethodGet, "/v1/documents/"+collection+"/"+id, nil, true, &out)
	if isStatus(err, http.StatusNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *REST) CreateDocument(ctx context.Context, collection, id string, data map[string]any) (map[string]any, error) {
	body, status, err := c.doRaw(ctx, http.MethodPost, "/v1/documents/"+collection+"/"+id,
		jsonBody(data), "application/json", true)
	if err != nil {
		return nil, err
	}
	// 200 = ganamos la creación; 409 = otro ganó y el body es su documento.
	if status == http.StatusOK || status == http.StatusConflict {
		var out map[string]any
		if jerr := json.Unmarshal(body, &out); jerr == nil && out["error"] == nil {
			return out, nil
		}
	}
	if status == http.StatusConflict {
		// 409 sin body útil: releer.
		return c.GetDocument(ctx, collection, id)
	}
	return nil, decodeAPIError(status, body)
}

func (c *REST) SetDocument(ctx context.Context, collection, id string, data map[string]any) error {
	return c.doJSON(ctx, http.MethodPut, "/v1/documents/"+collection+"/"+id, data, true, nil)
}

func (c *REST) UpdateDocument(ctx context.Context, collection, id string, partial map[string]any) error {
	return c.doJSON(ctx, http.MethodPatch, "/v1/documents/"+collection+"/"+id, partial, true, nil)
}

func (c *REST) UploadBlob(ctx context.Context, path string, data []byte) error {
	_, status, err := c.doRaw(ctx, http.MethodPost, "/v1/blobs/"+path,
		bytes.NewReader(data), "application/octet-stream", true)
	if err != nil {
		return err
	}
	if status/100 != 2 {
		return &APIError{Status: status, Code: "upload_failed", Message: "blob upload failed"}
	}
	// La URL cacheada (si había) puede apuntar a contenido viejo; igual es
	// la misma URL, pero invalidar no cuesta nada.
	c.urls.Delete(path)
	return nil
}

func (c *REST) BlobURL(ctx context.Context, path string) (string, error) {
	if v, ok := c.urls.Get(path); ok {
		return v.(string), nil
	}
	var out struct {
		URL string `json:"url"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/v1/blobs/"+path, nil, true, &out)
	if isStatus(err, http.StatusNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	c.urls.SetDefault(path, out.URL)
	return out.URL, nil
}

func (c *REST) SendPasswordReset(ctx context.Context, email string) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/accounts:sendPasswordReset",
		map[string]string{"email": email}, false, nil)
}

// ─── sesión y tokens ───

type sessionWire struct {
	UID          string `json:"uid"`
	Email        string `json:"email"`
	DisplayName  string `json:"display_name"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// adopt instala la sesión recibida y la emite por el stream.
func (c *REST) adopt(resp sessionWire) {
	s := sessionFromIDToken(resp)

	c.mu.Lock()
	c.idToken = resp.IDToken
	c.idTokenExp = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	c.refresh = resp.RefreshToken
	c.session = &s
	c.mu.Unlock()

	if err := c.creds.save(credentials{
		RefreshToken: resp.RefreshToken,
		UID:          s.UID,
		Email:        s.Email,
		DisplayName:  s.DisplayName,
	}); err != nil {
		logger.Named("gateway").Warn("could not persist credentials", logger.Err(err))
	}
	c.emit(&s)
}

// sessionFromIDToken arma la Session desde los claims del ID token (sin
// verificar firma: el canal al backend propio es confiable) con fallback a
// los campos de la respuesta.
func sessionFromIDToken(resp sessionWire) types.Session {
	s := types.Session{UID: resp.UID, Email: resp.Email, DisplayName: resp.DisplayName}
	var claims jwtv5.MapClaims
	if _, _, err := jwtv5.NewParser().ParseUnverified(resp.IDToken, &claims); err == nil {
		if v, _ := claims["sub"].(string); v != "" {
			s.UID = v
		}
		if v, _ := claims["email"].(string); v != "" {
			s.Email = v
		}
		if v, _ := claims["name"].(string); v != "" {
			s.DisplayName = v
		}
	}
	return s
}

// bearer retorna un ID token vigente, renovando con el refresh token si hace
// falta.
func (c *REST) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	tok, exp, refresh := c.idToken, c.idTokenExp, c.refresh
	c.mu.Unlock()

	if tok != "" && time.Until(exp) > tokenRenewCushion {
		return tok, nil
	}
	if refresh == "" {
		return "", ErrNoSession
	}
	if err := c.refreshGrant(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	tok = c.idToken
	c.mu.Unlock()
	return tok, nil
}

// refreshGrant cambia el refresh token por un ID token nuevo y actualiza la
// sesión local (sin emitir: la identidad no cambió).
func (c *REST) refreshGrant(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.refresh
	c.mu.Unlock()
	if refresh == "" {
		return ErrNoSession
	}

	var resp sessionWire
	err := c.doJSON(ctx, http.MethodPost, "/v1/token",
		map[string]string{"refresh_token": refresh}, false, &resp)
	if err != nil {
		return err
	}
	s := sessionFromIDToken(resp)
	c.mu.Lock()
	c.idToken = resp.IDToken
	c.idTokenExp = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	c.refresh = resp.RefreshToken
	c.session = &s
	c.mu.Unlock()
	return nil
}

func (c *REST) clearLocked() {
	c.mu.Lock()
	c.idToken, c.refresh, c.session = "", "", nil
	c.idTokenExp = time.Time{}
	c.mu.Unlock()
}

func (c *REST) emit(s *types.Session) {
	c.events <- s
}

// ─── HTTP plumbing ───

func jsonBody(v any) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

// doJSON hace un request JSON→JSON. out nil descarta el body.
func (c *REST) doJSON(ctx context.Context, method, path string, body any, auth bool, out any) error {
	var rd io.Reader
	if body != nil {
		rd = jsonBody(body)
	}
	respBody, status, err := c.doRaw(ctx, method, path, rd, "application/json", auth)
	if err != nil {
		return err
	}
	if status/100 != 2 {
		return decodeAPIError(status, respBody)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("gateway: decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *REST) doRaw(ctx context.Context, method, path string, body io.Reader, contentType string, auth bool) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if auth {
		tok, terr := c.bearer(ctx)
		if terr != nil {
			return nil, 0, terr
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("gateway: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return b, resp.StatusCode, nil
}

func decodeAPIError(status int, body []byte) error {
	var e struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		return &APIError{Status: status, Code: e.Error.Code, Message: e.Error.Message}
	}
	return &APIError{Status: status, Code: "http_error", Message: fmt.Sprintf("backend returned http %d", status)}
}

func isStatus(err error, status int) bool {
	ae, ok := err.(*APIError)
	return ok && ae.Status == status
}

func isAuthFailure(err error) bool {
	ae, ok := err.(*APIError)
	return ok && (ae.Status == http.StatusUnauthorized || ae.Status == http.StatusForbidden)
}
