package client

import (
	"context"
	"errors"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/littlejohn/internal/domain/types"
	"github.com/dropDatabas3/littlejohn/internal/gateway"
	"github.com/stretchr/testify/require"
)

// fakeGateway es un Gateway scriptable: las sesiones se inyectan por el
// canal, los documentos viven en un map y cada llamada queda registrada.
type fakeGateway struct {
	mu    sync.Mutex
	calls []string

	sessions chan *types.Session

	signInErr   error
	exchangeErr error
	updateErr   error
	uploadErr   error
	getErr      error

	getHook       func(id string) // corre antes de resolver GetDocument
	forceNotFound bool            // el próximo GetDocument retorna ErrNotFound

	docs map[string]map[string]any
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		sessions: make(chan *types.Session, 8),
		docs:     make(map[string]map[string]any),
	}
}

func (g *fakeGateway) record(call string) {
	g.mu.Lock()
	g.calls = append(g.calls, call)
	g.mu.Unlock()
}

func (g *fakeGateway) recorded() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.calls))
	copy(out, g.calls)
	return out
}

func (g *fakeGateway) seedDoc(collection, id string, data map[string]any) {
	g.mu.Lock()
	g.docs[collection+"/"+id] = maps.Clone(data)
	g.mu.Unlock()
}

func (g *fakeGateway) ObserveSession(ctx context.Context) <-chan *types.Session {
	return g.sessions
}

func (g *fakeGateway) SignIn(ctx context.Context, email, password string) error {
	g.record("signin " + email)
	if g.signInErr != nil {
		return g.signInErr
	}
	g.sessions <- &types.Session{UID: "uid-" + email, Email: email}
	return nil
}

func (g *fakeGateway) SignUp(ctx context.Context, email, password string) error {
	g.record("signup " + email)
	g.sessions <- &types.Session{UID: "uid-" + email, Email: email}
	return nil
}

func (g *fakeGateway) ExchangeCredential(ctx context.Context, providerToken string) error {
	g.record("exchange")
	if g.exchangeErr != nil {
		return g.exchangeErr
	}
	g.sessions <- &types.Session{UID: "uid-google", Email: "google@example.com", DisplayName: "Google User"}
	return nil
}

func (g *fakeGateway) SignOut(ctx context.Context) error {
	g.record("signout")
	g.sessions <- nil
	return nil
}

func (g *fakeGateway) GetDocument(ctx context.Context, collection, id string) (map[string]any, error) {
	g.record("get " + collection + "/" + id)
	if g.getHook != nil {
		g.getHook(id)
	}
	if g.getErr != nil {
		return nil, g.getErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.forceNotFound {
		g.forceNotFound = false
		return nil, gateway.ErrNotFound
	}
	doc, ok := g.docs[collection+"/"+id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return maps.Clone(doc), nil
}

func (g *fakeGateway) CreateDocument(ctx context.Context, collection, id string, data map[string]any) (map[string]any, error) {
	g.record("create " + collection + "/" + id)
	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, ok := g.docs[collection+"/"+id]; ok {
		return maps.Clone(existing), nil
	}
	g.docs[collection+"/"+id] = maps.Clone(data)
	return maps.Clone(data), nil
}

func (g *fakeGateway) SetDocument(ctx context.Context, collection, id string, data map[string]any) error {
	g.record("set " + collection + "/" + id)
	g.mu.Lock()
	g.docs[collection+"/"+id] = maps.Clone(data)
	g.mu.Unlock()
	return nil
}

func (g *fakeGateway) UpdateDocument(ctx context.Context, collection, id string, partial map[string]any) error {
	g.record("update " + collection + "/" + id)
	if g.updateErr != nil {
		return g.updateErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	doc, ok := g.docs[collection+"/"+id]
	if !ok {
		doc = map[string]any{}
	}
	maps.Copy(doc, partial)
	g.docs[collection+"/"+id] = doc
	return nil
}

func (g *fakeGateway) UploadBlob(ctx context.Context, path string, data []byte) error {
	g.record("upload " + path)
	return g.uploadErr
}

func (g *fakeGateway) BlobURL(ctx context.Context, path string) (string, error) {
	g.record("bloburl " + path)
	return "https://blobs.local/" + path, nil
}

func (g *fakeGateway) SendPasswordReset(ctx context.Context, email string) error {
	g.record("reset " + email)
	return nil
}

func startClient(t *testing.T, g gateway.Gateway, opts ...Option) *Client {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	c := New(g, append([]Option{WithMinSplash(0)}, opts...)...)
	c.Start(ctx)
	return c
}

func waitFor(t *testing.T, c *Client, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := c.Snapshot(); cond(s) {
			return s
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state, last snapshot: %+v", c.Snapshot())
	return Snapshot{}
}

func waitState(t *testing.T, c *Client, want State) Snapshot {
	t.Helper()
	return waitFor(t, c, func(s Snapshot) bool { return s.State == want })
}

func TestRestoreLoadsExistingProfile(t *testing.T) {
	g := newFakeGateway()
	photo := "https://blobs.local/profile_images/u1.jpg"
	g.seedDoc("users", "u1", map[string]any{
		"displayName":     "Ana",
		"email":           "ana@example.com",
		"profileImageURL": photo,
	})
	c := startClient(t, g)

	g.sessions <- &types.Session{UID: "u1", Email: "ana@example.com"}

	snap := waitState(t, c, StateAuthenticatedReady)
	require.Equal(t, "u1", snap.Session.UID)
	require.Equal(t, "Ana", snap.Profile.DisplayName)
	require.NotNil(t, snap.Profile.PhotoURL)
	require.Equal(t, photo, *snap.Profile.PhotoURL)
}

func TestFirstLoginCreatesDefaultProfile(t *testing.T) {
	g := newFakeGateway()
	c := startClient(t, g)

	g.sessions <- &types.Session{UID: "u2", Email: "new@example.com", DisplayName: "New User"}

	snap := waitState(t, c, StateAuthenticatedReady)
	require.Equal(t, "New User", snap.Profile.DisplayName)
	require.Equal(t, "new@example.com", snap.Profile.Email)
	require.Nil(t, snap.Profile.PhotoURL)
	require.Contains(t, g.recorded(), "create users/u2")

	// el documento quedó persistido para futuros arranques
	doc, err := g.GetDocument(context.Background(), "users", "u2")
	require.NoError(t, err)
	require.Equal(t, "New User", doc["displayName"])
}

func TestCreateRaceAdoptsWinner(t *testing.T) {
	g := newFakeGateway()
	c := startClient(t, g)

	// el "ganador" creó el doc entre el Get (not found) y el Create: el
	// create condicional retorna el doc existente y el perdedor lo adopta
	g.seedDoc("users", "u3", map[string]any{
		"displayName": "Winner",
		"email":       "u3@example.com",
	})
	g.forceNotFound = true
	g.sessions <- &types.Session{UID: "u3", Email: "u3@example.com", DisplayName: "Loser"}

	snap := waitState(t, c, StateAuthenticatedReady)
	require.Equal(t, "Winner", snap.Profile.DisplayName)
	require.Contains(t, g.recorded(), "create users/u3")
}

func TestNilSessionGoesUnauthenticated(t *testing.T) {
	g := newFakeGateway()
	c := startClient(t, g)

	g.sessions <- nil
	waitState(t, c, StateUnauthenticated)
}

func TestMinSplashHoldsUntilTimer(t *testing.T) {
	g := newFakeGateway()
	c := startClient(t, g, WithMinSplash(150*time.Millisecond))

	g.sessions <- nil // chequeo resuelto de inmediato

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, StateInitializing, c.Snapshot().State)

	waitState(t, c, StateUnauthenticated)
}

func TestMinSplashWaitsForSessionCheck(t *testing.T) {
	g := newFakeGateway()
	c := startClient(t, g, WithMinSplash(time.Millisecond))

	// timer cumplido hace rato, pero sin resultado del chequeo no se sale
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, StateInitializing, c.Snapshot().State)

	g.sessions <- nil
	waitState(t, c, StateUnauthenticated)
}

func TestMinSplashGatesReady(t *testing.T) {
	g := newFakeGateway()
	g.seedDoc("users", "u1", map[string]any{"displayName": "Ana", "email": "ana@example.com"})
	c := startClient(t, g, WithMinSplash(150*time.Millisecond))

	g.sessions <- &types.Session{UID: "u1", Email: "ana@example.com"}

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, StateInitializing, c.Snapshot().State)

	snap := waitState(t, c, StateAuthenticatedReady)
	require.Equal(t, "Ana", snap.Profile.DisplayName)
}

func TestStaleProfileFetchDiscarded(t *testing.T) {
	g := newFakeGateway()
	g.seedDoc("users", "uid-a", map[string]any{"displayName": "User A", "email": "a@example.com"})
	g.seedDoc("users", "uid-b", map[string]any{"displayName": "User B", "email": "b@example.com"})

	blockA := make(chan struct{})
	g.getHook = func(id string) {
		if id == "uid-a" {
			<-blockA
		}
	}
	c := startClient(t, g)

	g.sessions <- &types.Session{UID: "uid-a", Email: "a@example.com"}
	g.sessions <- &types.Session{UID: "uid-b", Email: "b@example.com"}

	snap := waitState(t, c, StateAuthenticatedReady)
	require.Equal(t, "User B", snap.Profile.DisplayName)

	// el fetch viejo termina tarde: su resultado no debe pisar al nuevo
	close(blockA)
	time.Sleep(50 * time.Millisecond)
	snap = c.Snapshot()
	require.Equal(t, StateAuthenticatedReady, snap.State)
	require.Equal(t, "User B", snap.Profile.DisplayName)
	require.Equal(t, "uid-b", snap.Session.UID)
}

func TestProfileFetchFailureFallsBackToSessionData(t *testing.T) {
	g := newFakeGateway()
	g.getErr = errors.New("backend exploded")
	c := startClient(t, g)

	g.sessions <- &types.Session{UID: "u9", Email: "u9@example.com", DisplayName: "U Nine"}

	snap := waitState(t, c, StateAuthenticatedReady)
	require.Equal(t, "U Nine", snap.Profile.DisplayName)
	require.Equal(t, "u9@example.com", snap.Profile.Email)
}

func TestProfileEmailFallbackFromSession(t *testing.T) {
	g := newFakeGateway()
	g.seedDoc("users", "u1", map[string]any{"displayName": "Ana"}) // sin email
	c := startClient(t, g)

	g.sessions <- &types.Session{UID: "u1", Email: "ana@example.com"}

	snap := waitState(t, c, StateAuthenticatedReady)
	require.Equal(t, "ana@example.com", snap.Profile.Email)
}

func TestLoginValidationShortCircuits(t *testing.T) {
	g := newFakeGateway()
	c := startClient(t, g)

	err := c.Login(context.Background(), "", "secret")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, "Email is required", authErr.Message)

	err = c.Login(context.Background(), "ana@example.com", "")
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, "Password is required", authErr.Message)

	// nada llegó a la red
	require.Empty(t, g.recorded())
}

func TestLoginBackendErrorIsVerbatim(t *testing.T) {
	g := newFakeGateway()
	g.signInErr = &gateway.APIError{Status: 401, Code: "invalid_credentials", Message: "invalid email or password"}
	c := startClient(t, g)
	g.sessions <- nil
	waitState(t, c, StateUnauthenticated)

	err := c.Login(context.Background(), "ana@example.com", "wrongpass")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, "invalid email or password", authErr.Message)

	// el estado queda donde estaba
	require.Equal(t, StateUnauthenticated, c.Snapshot().State)
}

func TestLoginNormalizesEmail(t *testing.T) {
	g := newFakeGateway()
	c := startClient(t, g)

	require.NoError(t, c.Login(context.Background(), "  Ana@Example.COM ", "secret1"))
	require.Contains(t, g.recorded(), "signin ana@example.com")
}

func TestSignupValidationOrder(t *testing.T) {
	g := newFakeGateway()
	c := startClient(t, g)

	cases := []struct {
		email, password, confirm string
		want                     string
	}{
		{"not-an-email", "secret1", "secret1", "Please enter a valid email address"},
		{"ana@example.com", "short", "short", "Password must be at least 6 characters"},
		{"ana@example.com", "secret1", "secret2", "Passwords do not match"},
	}
	for _, tc := range cases {
		err := c.Signup(context.Background(), tc.email, tc.password, tc.confirm)
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr, "case %q", tc.want)
		require.Equal(t, tc.want, authErr.Message)
	}
	require.Empty(t, g.recorded())
}

func TestLoginWithGoogleWithoutPresenter(t *testing.T) {
	g := newFakeGateway()
	c := startClient(t, g)

	err := c.LoginWithGoogle(context.Background(), nil)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, ErrNoPresenter.Error(), authErr.Message)
	require.Empty(t, g.recorded())
}

type tokenProviderFunc func(ctx context.Context) (string, error)

func (f tokenProviderFunc) ProviderToken(ctx context.Context) (string, error) { return f(ctx) }

func TestLoginWithGoogleProviderFailureLeavesState(t *testing.T) {
	g := newFakeGateway()
	c := startClient(t, g)
	g.sessions <- nil
	waitState(t, c, StateUnauthenticated)

	provider := tokenProviderFunc(func(ctx context.Context) (string, error) {
		return "", errors.New("user cancelled")
	})
	err := c.LoginWithGoogle(context.Background(), provider)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, "user cancelled", authErr.Message)
	require.Equal(t, StateUnauthenticated, c.Snapshot().State)
	require.Empty(t, g.recorded()) // nunca se llamó al exchange
}

func TestLoginWithGoogleExchanges(t *testing.T) {
	g := newFakeGateway()
	c := startClient(t, g)

	provider := tokenProviderFunc(func(ctx context.Context) (string, error) {
		return "provider-token", nil
	})
	require.NoError(t, c.LoginWithGoogle(context.Background(), provider))

	snap := waitState(t, c, StateAuthenticatedReady)
	require.Equal(t, "uid-google", snap.Session.UID)
	require.Equal(t, "Google User", snap.Profile.DisplayName)
}

func TestLogoutClearsSynchronously(t *testing.T) {
	g := newFakeGateway()
	c := startClient(t, g)
	g.sessions <- &types.Session{UID: "u1", Email: "ana@example.com"}
	waitState(t, c, StateAuthenticatedReady)

	c.Logout(context.Background())

	// al volver de Logout el estado local ya está limpio
	snap := c.Snapshot()
	require.Equal(t, StateUnauthenticated, snap.State)
	require.Nil(t, snap.Session)
	require.Nil(t, snap.Profile)

	// el sign-out remoto es fire-and-forget pero ocurre
	waitFor(t, c, func(Snapshot) bool {
		for _, call := range g.recorded() {
			if call == "signout" {
				return true
			}
		}
		return false
	})
}

func TestUpdateProfileUploadsPhotoBeforeDocWrite(t *testing.T) {
	g := newFakeGateway()
	g.seedDoc("users", "u1", map[string]any{"displayName": "Ana", "email": "ana@example.com"})
	c := startClient(t, g)
	g.sessions <- &types.Session{UID: "u1", Email: "ana@example.com"}
	waitState(t, c, StateAuthenticatedReady)

	require.NoError(t, c.UpdateProfile(context.Background(), "Ana Maria", []byte("jpegdata")))

	var uploadIdx, urlIdx, updateIdx int
	for i, call := range g.recorded() {
		switch call {
		case "upload profile_images/u1.jpg":
			uploadIdx = i
		case "bloburl profile_images/u1.jpg":
			urlIdx = i
		case "update users/u1":
			updateIdx = i
		}
	}
	require.NotZero(t, uploadIdx)
	require.Greater(t, urlIdx, uploadIdx)
	require.Greater(t, updateIdx, urlIdx)

	snap := c.Snapshot()
	require.Equal(t, "Ana Maria", snap.Profile.DisplayName)
	require.NotNil(t, snap.Profile.PhotoURL)
	require.Equal(t, "https://blobs.local/profile_images/u1.jpg", *snap.Profile.PhotoURL)
}

func TestUpdateProfilePhotoFailureKeepsPreviousPhoto(t *testing.T) {
	g := newFakeGateway()
	prev := "https://blobs.local/profile_images/u1-old.jpg"
	g.seedDoc("users", "u1", map[string]any{
		"displayName":     "Ana",
		"email":           "ana@example.com",
		"profileImageURL": prev,
	})
	g.uploadErr = errors.New("storage unavailable")
	c := startClient(t, g)
	g.sessions <- &types.Session{UID: "u1", Email: "ana@example.com"}
	waitState(t, c, StateAuthenticatedReady)

	// la subida falla pero el update de nombre sigue adelante
	require.NoError(t, c.UpdateProfile(context.Background(), "Ana Maria", []byte("jpegdata")))

	snap := c.Snapshot()
	require.Equal(t, "Ana Maria", snap.Profile.DisplayName)
	require.NotNil(t, snap.Profile.PhotoURL)
	require.Equal(t, prev, *snap.Profile.PhotoURL)
	require.Contains(t, g.recorded(), "update users/u1")
}

func TestUpdateProfileDocWriteFailure(t *testing.T) {
	g := newFakeGateway()
	g.seedDoc("users", "u1", map[string]any{"displayName": "Ana", "email": "ana@example.com"})
	g.updateErr = &gateway.APIError{Status: 500, Code: "internal", Message: "boom"}
	c := startClient(t, g)
	g.sessions <- &types.Session{UID: "u1", Email: "ana@example.com"}
	waitState(t, c, StateAuthenticatedReady)

	err := c.UpdateProfile(context.Background(), "Ana Maria", nil)
	require.Error(t, err)

	// el profile en memoria no cambió
	require.Equal(t, "Ana", c.Snapshot().Profile.DisplayName)
}

func TestUpdateProfileRequiresSession(t *testing.T) {
	g := newFakeGateway()
	c := startClient(t, g)
	g.sessions <- nil
	waitState(t, c, StateUnauthenticated)

	err := c.UpdateProfile(context.Background(), "Nobody", nil)
	require.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestSendPasswordResetValidatesEmail(t *testing.T) {
	g := newFakeGateway()
	c := startClient(t, g)

	err := c.SendPasswordReset(context.Background(), "nope")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, "Please enter a valid email address", authErr.Message)

	require.NoError(t, c.SendPasswordReset(context.Background(), "Ana@Example.com"))
	require.Contains(t, g.recorded(), "reset ana@example.com")
}

func TestSubscribeConflatesToLatest(t *testing.T) {
	g := newFakeGateway()
	g.seedDoc("users", "u1", map[string]any{"displayName": "Ana", "email": "ana@example.com"})
	c := startClient(t, g)

	ch := c.Subscribe()

	g.sessions <- &types.Session{UID: "u1", Email: "ana@example.com"}
	waitState(t, c, StateAuthenticatedReady)

	// el subscriber lento ve el estado más reciente, no el backlog completo
	var last Snapshot
	deadline := time.After(2 * time.Second)
	for last.State != StateAuthenticatedReady {
		select {
		case last = <-ch:
		case <-deadline:
			t.Fatalf("subscriber never saw ready, last: %+v", last)
		}
	}
	require.Equal(t, "Ana", last.Profile.DisplayName)
}

func TestStateStrings(t *testing.T) {
	cases := map[State]string{
		StateInitializing:         "initializing",
		StateUnauthenticated:      "unauthenticated",
		StateAuthenticatedLoading: "authenticated_loading",
		StateAuthenticatedReady:   "authenticated_ready",
		State(99):                 "state(99)",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}

