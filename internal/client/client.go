// Package client implementa el core del SDK: el state machine de
// sesión/profile. Es el único dueño de la Session y el Profile actuales; la
// capa de presentación observa snapshots y despacha intents.
//
// Modelo de concurrencia: un goroutine (el run loop) aplica todas las
// mutaciones de estado. Los eventos de sesión del gateway, los resultados de
// fetch de profile y los intents que tocan estado entran por canales al
// loop; los lectores reciben snapshots inmutables.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/littlejohn/internal/domain/types"
	"github.com/dropDatabas3/littlejohn/internal/gateway"
	"github.com/dropDatabas3/littlejohn/internal/observability/logger"
	"github.com/dropDatabas3/littlejohn/internal/validation"
	"golang.org/x/sync/singleflight"
)

// State es el estado de ciclo de vida expuesto a la presentación.
type State int

const (
	StateInitializing State = iota
	StateUnauthenticated
	StateAuthenticatedLoading
	StateAuthenticatedReady
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticatedLoading:
		return "authenticated_loading"
	case StateAuthenticatedReady:
		return "authenticated_ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Snapshot es la vista de solo lectura del estado. Session y Profile son
// copias: mutarlas no afecta al state machine.
type Snapshot struct {
	State   State
	Session *types.Session
	Profile *types.Profile
}

// AuthError es el resultado tipado de un login/signup/federated fallido,
// con el mensaje del backend verbatim. Reemplaza al broadcast global de
// "login failed" de otros SDKs: el error vuelve directo al caller.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// ErrNoPresenter: login federado sin superficie de presentación disponible.
var ErrNoPresenter = errors.New("client: no presentation context available")

// ErrNotAuthenticated: operación que requiere sesión activa.
var ErrNotAuthenticated = errors.New("client: not authenticated")

// TokenProvider obtiene interactivamente un token del identity provider
// federado (abre el browser, espera el callback). Necesita una superficie de
// presentación, por eso lo aporta el caller y no el SDK.
type TokenProvider interface {
	ProviderToken(ctx context.Context) (string, error)
}

const (
	// DefaultMinSplash es el mínimo que se muestra el splash antes de salir
	// de Initializing. Debounce de UX, no un requisito de correctitud.
	DefaultMinSplash = 2 * time.Second

	profileCollection = "users"
)

type fetchResult struct {
	uid     string
	profile types.Profile
	err     error
}

// Client es el state machine. Crear con New, arrancar con Start.
type Client struct {
	gw        gateway.Gateway
	minSplash time.Duration

	snap    chan Snapshot // holds current snapshot; owned by loop + readers
	ops     chan func()   // intents marshaled onto the loop
	clears  chan chan struct{}
	fetches chan fetchResult
	subs    chan chan Snapshot

	sf singleflight.Group

	runCtx  context.Context
	started chan struct{}
}

type Option func(*Client)

// WithMinSplash ajusta (o anula, con 0) el mínimo de splash.
func WithMinSplash(d time.Duration) Option {
	return func(c *Client) { c.minSplash = d }
}

func New(gw gateway.Gateway, opts ...Option) *Client {
	c := &Client{
		gw:        gw,
		minSplash: DefaultMinSplash,
		snap:      make(chan Snapshot, 1),
		ops:       make(chan func()),
		clears:    make(chan chan struct{}),
		fetches:   make(chan fetchResult),
		subs:      make(chan chan Snapshot),
		started:   make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	c.snap <- Snapshot{State: StateInitializing}
	return c
}

// Start suscribe al stream de sesión del gateway y arranca el run loop. El
// loop corre hasta que ctx se cancela.
func (c *Client) Start(ctx context.Context) {
	c.runCtx = ctx
	go c.run(ctx)
	close(c.started)
}

// Snapshot retorna el estado actual.
func (c *Client) Snapshot() Snapshot {
	s := <-c.snap
	c.snap <- s
	return s
}

// Subscribe retorna un canal que recibe cada snapshot nuevo (con semántica
// "último gana": un consumidor lento ve el estado más reciente, no el
// backlog). El canal se cierra cuando el loop termina.
func (c *Client) Subscribe() <-chan Snapshot {
	<-c.started
	ch := make(chan Snapshot, 1)
	select {
	case c.subs <- ch:
	case <-c.runCtx.Done():
		close(ch)
	}
	return ch
}

// ─── intents ───

// Login autentica con email/password. El éxito NO transiciona estado acá: la
// sesión canónica llega por el stream del gateway. El error es un *AuthError
// con el mensaje del backend.
func (c *Client) Login(ctx context.Context, email, password string) error {
	if err := validation.Login(email, password); err != nil {
		return &AuthError{Message: err.Error()}
	}
	if err := c.gw.SignIn(ctx, validation.NormalizeEmail(email), password); err != nil {
		return &AuthError{Message: err.Error()}
	}
	return nil
}

// Signup crea la cuenta. La validación local corre antes de cualquier viaje
// a la red; los errores del backend (email tomado, password débil) llegan
// con su mensaje específico.
func (c *Client) Signup(ctx context.Context, email, password, confirm string) error {
	if err := validation.Signup(email, password, confirm); err != nil {
		return &AuthError{Message: err.Error()}
	}
	if err := c.gw.SignUp(ctx, validation.NormalizeEmail(email), password); err != nil {
		return &AuthError{Message: err.Error()}
	}
	return nil
}

// LoginWithGoogle corre el flujo federado: token del provider → exchange por
// credencial del backend. Cualquier paso fallido deja el estado intacto;
// nunca se expone una sesión parcial.
func (c *Client) LoginWithGoogle(ctx context.Context, provider TokenProvider) error {
	if provider == nil {
		return &AuthError{Message: ErrNoPresenter.Error()}
	}
	token, err := provider.ProviderToken(ctx)
	if err != nil {
		return &AuthError{Message: err.Error()}
	}
	if err := c.gw.ExchangeCredential(ctx, token); err != nil {
		return &AuthError{Message: err.Error()}
	}
	return nil
}

// Logout limpia Session y Profile locales de forma síncrona; el sign-out
// remoto es fire-and-forget.
func (c *Client) Logout(ctx context.Context) {
	<-c.started
	ack := make(chan struct{})
	select {
	case c.clears <- ack:
		<-ack
	case <-c.runCtx.Done():
	}
	go func() {
		if err := c.gw.SignOut(context.WithoutCancel(ctx)); err != nil {
			logger.Named("client").Debug("remote sign-out failed", logger.Err(err))
		}
	}()
}

// UpdateProfile actualiza displayName y, si hay foto pendiente, la sube
// antes de escribir el documento (orden obligatorio: el documento nunca
// referencia una foto a medio subir). Si la subida falla, el update sigue
// con la foto anterior.
func (c *Client) UpdateProfile(ctx context.Context, displayName string, pendingPhoto []byte) error {
	log := logger.Named("client").With(logger.Op("UpdateProfile"))

	cur := c.Snapshot()
	if cur.Session == nil {
		return ErrNotAuthenticated
	}
	uid := cur.Session.UID

	updated := types.DefaultProfile(*cur.Session)
	if cur.Profile != nil {
		updated = *cur.Profile
	}
	updated.DisplayName = displayName

	if pendingPhoto != nil {
		path := fmt.Sprintf("profile_images/%s.jpg", uid)
		if err := c.gw.UploadBlob(ctx, path, pendingPhoto); err != nil {
			log.Warn("photo upload failed, keeping previous photo", logger.Err(err))
		} else if url, err := c.gw.BlobURL(ctx, path); err != nil {
			log.Warn("photo URL lookup failed, keeping previous photo", logger.Err(err))
		} else {
			updated.PhotoURL = &url
		}
	}

	if err := c.gw.UpdateDocument(ctx, profileCollection, uid, profileFields(updated)); err != nil {
		return fmt.Errorf("client: profile update: %w", err)
	}

	// Post-commit, el cache local es la fuente de verdad (no se relee).
	// Solo si la sesión sigue siendo la misma que inició el update.
	c.do(func() {
		s := c.current()
		if s.Session != nil && s.Session.UID == uid {
			p := updated
			s.Profile = &p
			if s.State == StateAuthenticatedLoading {
				s.State = StateAuthenticatedReady
			}
			c.publish(s)
		}
	})
	return nil
}

// SendPasswordReset pide el mail de reset. No toca estado.
func (c *Client) SendPasswordReset(ctx context.Context, email string) error {
	if !validation.ValidEmail(email) {
		return &AuthError{Message: "Please enter a valid email address"}
	}
	return c.gw.SendPasswordReset(ctx, validation.NormalizeEmail(email))
}

// ─── run loop ───

func (c *Client) run(ctx context.Context) {
	log := logger.Named("client")

	events := c.gw.ObserveSession(ctx)

	// Barrera de arranque: no se sale de Initializing hacia Unauthenticated
	// ni se llega a Ready hasta que hayan llegado (a) el primer resultado
	// del chequeo de sesión y (b) el mínimo de splash. Ver join2.
	gate := newJoin2()
	if c.minSplash > 0 {
		time.AfterFunc(c.minSplash, func() { gate.arrive(sideTimer) })
	} else {
		gate.arrive(sideTimer)
	}

	var (
		gateOpen bool
		pending  *Snapshot       // transición diferida esperando la barrera
		sess     *types.Session  // sesión autoritativa del loop (aunque la barrera aún no la publicó)
		subs     []chan Snapshot
	)
	gateDone := gate.Done()

	apply := func(next Snapshot, gated bool) {
		if gated && !gateOpen {
			pending = &next
			return
		}
		pending = nil
		c.publish(next)
		for _, ch := range subs {
			conflate(ch, next)
		}
		log.Debug("state", logger.State(next.State.String()))
	}

	for {
		select {
		case <-ctx.Done():
			for _, ch := range subs {
				close(ch)
			}
			return

		case <-gateDone:
			gateOpen = true
			gateDone = nil
			if pending != nil {
				apply(*pending, false)
			}

		case ch := <-c.subs:
			subs = append(subs, ch)
			conflate(ch, c.current())

		case ack := <-c.clears:
			// Logout: limpieza local síncrona. Un fetch en vuelo de la
			// sesión anterior quedará huérfano y se descartará.
			sess = nil
			apply(Snapshot{State: StateUnauthenticated}, false)
			close(ack)

		case op := <-c.ops:
			op()
			// los ops publican por c.snap; propagar a subscribers
			cur := c.current()
			for _, ch := range subs {
				conflate(ch, cur)
			}

		case s := <-events:
			if s == nil {
				sess = nil
				gate.arrive(sideCheck)
				apply(Snapshot{State: StateUnauthenticated}, true)
				continue
			}
			// Sesión nueva: lanzar el fetch (tageado con el UID) de
			// inmediato; la transición visible a Loading espera la barrera
			// igual que el resto.
			cp := *s
			sess = &cp
			apply(Snapshot{State: StateAuthenticatedLoading, Session: sess}, true)
			go c.fetchOrCreate(ctx, cp)

		case r := <-c.fetches:
			if sess == nil || sess.UID != r.uid {
				// Resultado de un fetch superado por una notificación más
				// nueva: descartar.
				log.Debug("discarding stale profile fetch", logger.UserID(r.uid))
				continue
			}
			gate.arrive(sideCheck)
			p := r.profile
			if r.err != nil {
				// El profile no se pudo leer ni crear: la UI igual necesita
				// salir del splash. Se sigue con un profile sintetizado de
				// la sesión, sin persistir.
				log.Warn("profile fetch-or-create failed", logger.UserID(r.uid), logger.Err(r.err))
				p = types.DefaultProfile(*sess)
			}
			p = p.WithEmailFallback(*sess)
			apply(Snapshot{State: StateAuthenticatedReady, Session: sess, Profile: &p}, true)
		}
	}
}

// fetchOrCreate trae el profile del usuario o lo crea a partir de los datos
// de la sesión (create-on-first-login). singleflight + create condicional
// del gateway lo hacen idempotente frente a invocaciones dobles.
func (c *Client) fetchOrCreate(ctx context.Context, s types.Session) {
	v, err, _ := c.sf.Do(s.UID, func() (any, error) {
		doc, err := c.gw.GetDocument(ctx, profileCollection, s.UID)
		if errors.Is(err, gateway.ErrNotFound) {
			def := types.DefaultProfile(s)
			doc, err = c.gw.CreateDocument(ctx, profileCollection, s.UID, profileFields(def))
		}
		if err != nil {
			return types.Profile{}, err
		}
		return profileFromFields(doc), nil
	})

	r := fetchResult{uid: s.UID, err: err}
	if err == nil {
		r.profile = v.(types.Profile)
	}
	select {
	case c.fetches <- r:
	case <-ctx.Done():
	}
}

// do ejecuta fn dentro del loop y espera a que termine (mutación síncrona).
func (c *Client) do(fn func()) {
	<-c.started
	done := make(chan struct{})
	select {
	case c.ops <- func() { fn(); close(done) }:
		<-done
	case <-c.runCtx.Done():
	}
}

func (c *Client) current() Snapshot {
	s := <-c.snap
	c.snap <- s
	return s
}

func (c *Client) publish(s Snapshot) {
	<-c.snap
	c.snap <- s
}

// conflate entrega "último gana" sin bloquear el loop.
func conflate(ch chan Snapshot, s Snapshot) {
	for {
		select {
		case ch <- s:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

// ─── layout persistido del profile ───

func profileFields(p types.Profile) map[string]any {
	var photo any
	if p.PhotoURL != nil {
		photo = *p.PhotoURL
	}
	return map[string]any{
		"displayName":     p.DisplayName,
		"email":           p.Email,
		"profileImageURL": photo,
	}
}

func profileFromFields(fields map[string]any) types.Profile {
	var p types.Profile
	p.DisplayName, _ = fields["displayName"].(string)
	p.Email, _ = fields["email"].(string)
	if u, ok := fields["profileImageURL"].(string); ok && u != "" {
		p.PhotoURL = &u
	}
	return p
}
