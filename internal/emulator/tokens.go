package emulator

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/littlejohn/internal/emulator/store"
	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidIDToken = errors.New("emulator: invalid id token")

// IDTokenClaims es lo que viaja dentro del ID token del emulador.
type IDTokenClaims struct {
	UID         string
	Email       string
	DisplayName string
}

// tokenIssuer firma y verifica ID tokens con una clave ed25519 generada al
// arrancar. Los tokens no sobreviven un restart del emulador; eso está bien
// para un backend de desarrollo (el refresh token re-emite).
type tokenIssuer struct {
	iss  string
	kid  string
	ttl  time.Duration
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

func newTokenIssuer(iss string, ttl time.Duration) (*tokenIssuer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("emulator: generate signing key: %w", err)
	}
	return &tokenIssuer{
		iss:  iss,
		kid:  uuid.NewString()[:8],
		ttl:  ttl,
		priv: priv,
		pub:  pub,
	}, nil
}

func (t *tokenIssuer) Mint(a store.Account) (token string, expiresIn int64, err error) {
	now := time.Now().UTC()
	exp := now.Add(t.ttl)
	claims := jwtv5.MapClaims{
		"iss":   t.iss,
		"sub":   a.ID,
		"aud":   "littlejohn",
		"iat":   now.Unix(),
		"nbf":   now.Unix(),
		"exp":   exp.Unix(),
		"email": a.Email,
	}
	if a.DisplayName != "" {
		claims["name"] = a.DisplayName
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = t.kid
	tk.Header["typ"] = "JWT"
	signed, err := tk.SignedString(t.priv)
	if err != nil {
		return "", 0, fmt.Errorf("emulator: sign id token: %w", err)
	}
	return signed, int64(time.Until(exp).Seconds()), nil
}

func (t *tokenIssuer) Verify(raw string) (*IDTokenClaims, error) {
	tok, err := jwtv5.Parse(raw,
		func(*jwtv5.Token) (any, error) { return t.pub, nil },
		jwtv5.WithValidMethods([]string{"EdDSA"}),
		jwtv5.WithIssuer(t.iss),
		jwtv5.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid {
		return nil, ErrInvalidIDToken
	}
	mc, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, ErrInvalidIDToken
	}
	out := &IDTokenClaims{}
	out.UID, _ = mc["sub"].(string)
	out.Email, _ = mc["email"].(string)
	out.DisplayName, _ = mc["name"].(string)
	if out.UID == "" {
		return nil, ErrInvalidIDToken
	}
	return out, nil
}
