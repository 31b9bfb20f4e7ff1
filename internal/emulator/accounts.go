// Package emulator implementa authd: el backend local de desarrollo que
// expone la superficie de capacidades que consume el SDK (cuentas,
// documentos, blobs).
package emulator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dropDatabas3/littlejohn/internal/cache"
	"github.com/dropDatabas3/littlejohn/internal/email"
	"github.com/dropDatabas3/littlejohn/internal/emulator/store"
	"github.com/dropDatabas3/littlejohn/internal/metrics"
	"github.com/dropDatabas3/littlejohn/internal/oauth/google"
	"github.com/dropDatabas3/littlejohn/internal/observability/logger"
	"github.com/dropDatabas3/littlejohn/internal/security/password"
	tokens "github.com/dropDatabas3/littlejohn/internal/security/token"
	"github.com/dropDatabas3/littlejohn/internal/validation"
)

// Errores de cuentas. Los mensajes son los que el SDK propaga verbatim al
// usuario, así que se redactan para humanos.
var (
	ErrEmailTaken         = errors.New("email already in use")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrProviderDisabled   = errors.New("identity provider is not enabled")
	ErrInvalidIDPToken    = errors.New("could not verify identity provider token")
	ErrInvalidRefresh     = errors.New("invalid or expired refresh token")
	ErrInvalidResetCode   = errors.New("invalid or expired reset code")
)

const (
	refreshKeyPrefix = "rt:"
	resetKeyPrefix   = "pwreset:"
)

// SessionResponse es la respuesta wire de los endpoints de sign-in/up.
type SessionResponse struct {
	UID          string `json:"uid"`
	Email        string `json:"email"`
	DisplayName  string `json:"display_name,omitempty"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// accountService concentra la lógica de cuentas; los handlers HTTP solo
// parsean/serializan.
type accountService struct {
	accounts   store.AccountStore
	cache      cache.Cache
	issuer     *tokenIssuer
	mailer     *email.Mailer
	refreshTTL time.Duration
	resetTTL   time.Duration
	baseURL    string

	// verifyGoogle es nil cuando el provider está deshabilitado.
	verifyGoogle func(ctx context.Context, raw string) (*google.Identity, error)
}

func (s *accountService) SignUp(ctx context.Context, rawEmail, pw string) (*SessionResponse, error) {
	log := logger.From(ctx).With(logger.Component("accounts"), logger.Op("SignUp"))

	em := validation.NormalizeEmail(rawEmail)
	if !validation.ValidEmail(em) {
		return nil, ErrInvalidEmail
	}
	if len(pw) < validation.MinPasswordLength {
		return nil, ErrWeakPassword
	}

	phc, err := password.Hash(password.Default, pw)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	acct, err := s.accounts.Create(ctx, store.Account{
		Email:        em,
		PasswordHash: &phc,
		Provider:     "password",
	})
	if errors.Is(err, store.ErrConflict) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, err
	}

	log.Info("account created", logger.UserID(acct.ID))
	metrics.SignIns.WithLabelValues("password", "ok").Inc()
	return s.establish(ctx, acct)
}

func (s *accountService) SignInPassword(ctx context.Context, rawEmail, pw string) (*SessionResponse, error) {
	log := logger.From(ctx).With(logger.Component("accounts"), logger.Op("SignInPassword"))

	em := validation.NormalizeEmail(rawEmail)
	acct, err := s.accounts.GetByEmail(ctx, em)
	if errors.Is(err, store.ErrNotFound) {
		metrics.SignIns.WithLabelValues("password", "fail").Inc()
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if acct.PasswordHash == nil || !password.Verify(pw, *acct.PasswordHash) {
		log.Debug("password check failed", logger.UserID(acct.ID))
		metrics.SignIns.WithLabelValues("password", "fail").Inc()
		return nil, ErrInvalidCredentials
	}

	metrics.SignIns.WithLabelValues("password", "ok").Inc()
	return s.establish(ctx, acct)
}

func (s *accountService) SignInIDP(ctx context.Context, providerToken string) (*SessionResponse, error) {
	log := logger.From(ctx).With(logger.Component("accounts"), logger.Op("SignInIDP"))

	if s.verifyGoogle == nil {
		return nil, ErrProviderDisabled
	}
	id, err := s.verifyGoogle(ctx, providerToken)
	if err != nil {
		log.Debug("idp token rejected", logger.Err(err))
		metrics.SignIns.WithLabelValues("google", "fail").Inc()
		return nil, ErrInvalidIDPToken
	}

	acct, err := s.accounts.UpsertFederated(ctx, store.Account{
		Email:       validation.NormalizeEmail(id.Email),
		DisplayName: id.Name,
		Provider:    "google",
	})
	if err != nil {
		return nil, err
	}

	log.Info("federated sign-in", logger.UserID(acct.ID))
	metrics.SignIns.WithLabelValues("google", "ok").Inc()
	return s.establish(ctx, acct)
}

// Refresh cambia un refresh token vigente por un ID token nuevo. El refresh
// token no rota: el emulador favorece simplicidad sobre robo-de-token.
func (s *accountService) Refresh(ctx context.Context, refreshToken string) (*SessionResponse, error) {
	uidB, ok := s.cache.Get(ctx, refreshKeyPrefix+tokens.Hash(refreshToken))
	if !ok {
		return nil, ErrInvalidRefresh
	}
	acct, err := s.accounts.GetByID(ctx, string(uidB))
	if err != nil {
		return nil, ErrInvalidRefresh
	}
	idToken, expiresIn, err := s.issuer.Mint(acct)
	if err != nil {
		return nil, err
	}
	return &SessionResponse{
		UID:          acct.ID,
		Email:        acct.Email,
		DisplayName:  acct.DisplayName,
		IDToken:      idToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
	}, nil
}

// SignOut revoca el refresh token. Best-effort: un token ya vencido no es
// error.
func (s *accountService) SignOut(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}
	if err := s.cache.Delete(ctx, refreshKeyPrefix+tokens.Hash(refreshToken)); err == nil {
		metrics.ActiveRefreshTokens.Dec()
	}
}

// SendPasswordReset genera el oob code y manda (o loguea) el link. Siempre
// responde ok hacia afuera para no permitir enumeración de cuentas.
func (s *accountService) SendPasswordReset(ctx context.Context, rawEmail string) error {
	log := logger.From(ctx).With(logger.Component("accounts"), logger.Op("SendPasswordReset"))

	em := validation.NormalizeEmail(rawEmail)
	acct, err := s.accounts.GetByEmail(ctx, em)
	if errors.Is(err, store.ErrNotFound) {
		log.Debug("reset requested for unknown email")
		return nil
	}
	if err != nil {
		return err
	}

	code, err := tokens.GenerateOpaque(32)
	if err != nil {
		return err
	}
	if err := s.cache.Set(ctx, resetKeyPrefix+tokens.Hash(code), []byte(acct.ID), s.resetTTL); err != nil {
		return err
	}
	link := fmt.Sprintf("%s/reset?oob=%s", s.baseURL, url.QueryEscape(code))
	return s.mailer.SendPasswordReset(acct.Email, link)
}

// ResetPassword consume el oob code y fija el password nuevo.
func (s *accountService) ResetPassword(ctx context.Context, oobCode, newPassword string) error {
	if len(newPassword) < validation.MinPasswordLength {
		return ErrWeakPassword
	}
	key := resetKeyPrefix + tokens.Hash(oobCode)
	uidB, ok := s.cache.Get(ctx, key)
	if !ok {
		return ErrInvalidResetCode
	}
	_ = s.cache.Delete(ctx, key) // single use

	phc, err := password.Hash(password.Default, newPassword)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePassword(ctx, string(uidB), phc); err != nil {
		return ErrInvalidResetCode
	}
	return nil
}

// establish emite el par id+refresh para una cuenta ya autenticada.
func (s *accountService) establish(ctx context.Context, acct store.Account) (*SessionResponse, error) {
	idToken, expiresIn, err := s.issuer.Mint(acct)
	if err != nil {
		return nil, err
	}
	refresh, err := tokens.GenerateOpaque(32)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, refreshKeyPrefix+tokens.Hash(refresh), []byte(acct.ID), s.refreshTTL); err != nil {
		return nil, err
	}
	metrics.ActiveRefreshTokens.Inc()
	return &SessionResponse{
		UID:          acct.ID,
		Email:        acct.Email,
		DisplayName:  acct.DisplayName,
		IDToken:      idToken,
		RefreshToken: refresh,
		ExpiresIn:    expiresIn,
	}, nil
}
