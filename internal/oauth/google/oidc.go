// Package google implementa el lado OIDC de Google: flujo de autorización
// (para el presenter del CLI) y verificación de ID tokens (para authd).
package google

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

const discoveryURL = "https://accounts.google.com/.well-known/openid-configuration"

var ErrInvalidToken = errors.New("google: invalid id_token")

type discoveryDoc struct {
	Issuer        string `json:"issuer"`
	AuthEndpoint  string `json:"authorization_endpoint"`
	TokenEndpoint string `json:"token_endpoint"`
	JWKSURI       string `json:"jwks_uri"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"` // base64url
	E   string `json:"e"` // base64url
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

// Identity es lo que el resto del sistema necesita saber de un usuario de
// Google: lo mínimo para crear cuenta + profile.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// OIDC es el cliente de Google. Cachea discovery (24h) y JWKS (1h).
type OIDC struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	http *http.Client

	mu     sync.RWMutex
	disc   *discoveryDoc
	discAt time.Time
	keys   *jwks
	keysAt time.Time
}

func New(clientID, clientSecret, redirectURL string) *OIDC {
	return &OIDC{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		http:         &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *OIDC) discovery(ctx context.Context) (*discoveryDoc, error) {
	g.mu.RLock()
	disc, at := g.disc, g.discAt
	g.mu.RUnlock()
	if disc != nil && time.Since(at) < 24*time.Hour {
		return disc, nil
	}
	var dd discoveryDoc
	if err := g.getJSON(ctx, discoveryURL, &dd); err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.disc, g.discAt = &dd, time.Now()
	g.mu.Unlock()
	return &dd, nil
}

func (g *OIDC) jwksDoc(ctx context.Context) (*jwks, error) {
	g.mu.RLock()
	keys, at := g.keys, g.keysAt
	g.mu.RUnlock()
	if keys != nil && time.Since(at) < time.Hour {
		return keys, nil
	}
	disc, err := g.discovery(ctx)
	if err != nil {
		return nil, err
	}
	var jj jwks
	if err := g.getJSON(ctx, disc.JWKSURI, &jj); err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.keys, g.keysAt = &jj, time.Now()
	g.mu.Unlock()
	return &jj, nil
}

func (g *OIDC) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("google: GET %s: http %d", u, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (g *OIDC) rsaKeyForKid(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	jj, err := g.jwksDoc(ctx)
	if err != nil {
		return nil, err
	}
	for _, k := range jj.Keys {
		if k.Kid != kid || !strings.EqualFold(k.Kty, "RSA") {
			continue
		}
		nb, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return nil, err
		}
		eb, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return nil, err
		}
		e := 65537
		if len(eb) > 0 {
			e = 0
			for _, b := range eb {
				e = (e << 8) | int(b)
			}
		}
		return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
	}
	return nil, fmt.Errorf("google: kid %q not in jwks", kid)
}

// AuthURL construye la URL de autorización para el flujo interactivo.
func (g *OIDC) AuthURL(ctx context.Context, state, nonce string) (string, error) {
	disc, err := g.discovery(ctx)
	if err != nil {
		return "", err
	}
	u, _ := url.Parse(disc.AuthEndpoint)
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", g.ClientID)
	q.Set("redirect_uri", g.RedirectURL)
	q.Set("scope", "openid email profile")
	q.Set("state", state)
	q.Set("nonce", nonce)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ExchangeCode cambia un authorization code por tokens. Interesa id_token.
func (g *OIDC) ExchangeCode(ctx context.Context, code string) (idToken string, err error) {
	disc, err := g.discovery(ctx)
	if err != nil {
		return "", err
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", g.ClientID)
	form.Set("client_secret", g.ClientSecret)
	form.Set("redirect_uri", g.RedirectURL)

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, disc.TokenEndpoint, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := g.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
			Desc  string `json:"error_description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return "", fmt.Errorf("google: token endpoint http %d: %s %s", resp.StatusCode, e.Error, e.Desc)
	}
	var tr struct {
		IDToken string `json:"id_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", err
	}
	if tr.IDToken == "" {
		return "", errors.New("google: token response without id_token")
	}
	return tr.IDToken, nil
}

// VerifyIDToken valida firma (RS256 contra JWKS), iss, aud y exp, y retorna
// la identidad contenida en el token.
func (g *OIDC) VerifyIDToken(ctx context.Context, raw string) (*Identity, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}
	hb, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var header struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	if err := json.Unmarshal(hb, &header); err != nil {
		return nil, ErrInvalidToken
	}
	if header.Alg != "RS256" {
		return nil, fmt.Errorf("google: unexpected alg %q", header.Alg)
	}
	key, err := g.rsaKeyForKid(ctx, header.Kid)
	if err != nil {
		return nil, err
	}
	tok, err := jwtv5.Parse(raw,
		func(*jwtv5.Token) (any, error) { return key, nil },
		jwtv5.WithValidMethods([]string{"RS256"}),
		jwtv5.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	if iss, _ := claims["iss"].(string); iss != "https://accounts.google.com" && iss != "accounts.google.com" {
		return nil, fmt.Errorf("google: bad iss %q", iss)
	}
	if g.ClientID != "" && !audMatches(claims["aud"], g.ClientID) {
		return nil, errors.New("google: bad aud")
	}
	return identityFromClaims(claims), nil
}

// ParseInsecure extrae la identidad sin verificar firma. Solo para el modo
// insecure del emulador, donde el token lo fabrica el propio dev.
func ParseInsecure(raw string) (*Identity, error) {
	var claims jwtv5.MapClaims
	parser := jwtv5.NewParser()
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return nil, ErrInvalidToken
	}
	id := identityFromClaims(claims)
	if id.Subject == "" || id.Email == "" {
		return nil, ErrInvalidToken
	}
	return id, nil
}

func audMatches(aud any, clientID string) bool {
	switch a := aud.(type) {
	case string:
		return a == clientID
	case []any:
		for _, v := range a {
			if s, _ := v.(string); s == clientID {
				return true
			}
		}
	}
	return false
}

func identityFromClaims(claims jwtv5.MapClaims) *Identity {
	id := &Identity{}
	id.Subject, _ = claims["sub"].(string)
	id.Email, _ = claims["email"].(string)
	id.EmailVerified, _ = claims["email_verified"].(bool)
	id.Name, _ = claims["name"].(string)
	id.Picture, _ = claims["picture"].(string)
	return id
}
