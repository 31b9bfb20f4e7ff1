// authctl es el cliente de línea de comandos de littlejohn: ejercita el SDK
// completo (state machine + gateway) contra un authd corriendo.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dropDatabas3/littlejohn/internal/client"
	"github.com/dropDatabas3/littlejohn/internal/gateway"
	"github.com/dropDatabas3/littlejohn/internal/oauth/google"
	"github.com/dropDatabas3/littlejohn/internal/observability/logger"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRoot() *cobra.Command {
	_ = godotenv.Load()

	var (
		baseURL   = envOr("LITTLEJOHN_URL", "http://localhost:9099")
		credsPath = envOr("LITTLEJOHN_CREDENTIALS", defaultCredsPath())
		logLevel  = envOr("LITTLEJOHN_LOG", "warn")
	)

	root := &cobra.Command{
		Use:           "authctl",
		Short:         "Cliente CLI de littlejohn",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(logger.Config{Env: "dev", Level: logLevel, ServiceName: "authctl"})
		},
	}
	root.PersistentFlags().StringVar(&baseURL, "url", baseURL, "URL base de authd (env LITTLEJOHN_URL)")
	root.PersistentFlags().StringVar(&credsPath, "credentials", credsPath, "archivo de credenciales persistidas")
	root.PersistentFlags().StringVar(&logLevel, "log-level", logLevel, "nivel de log: debug|info|warn|error")

	app := &cliApp{baseURL: &baseURL, credsPath: &credsPath}

	root.AddCommand(
		app.signupCmd(),
		app.loginCmd(),
		app.loginGoogleCmd(),
		app.logoutCmd(),
		app.whoamiCmd(),
		app.profileCmd(),
		app.sendResetCmd(),
	)
	return root
}

type cliApp struct {
	baseURL   *string
	credsPath *string
}

// start arma gateway + state machine y espera a que el estado se asiente
// (restauración de sesión incluida). Sin splash: es una CLI.
func (a *cliApp) start(ctx context.Context) (*client.Client, client.Snapshot, error) {
	gw := gateway.NewREST(gateway.Config{
		BaseURL:         *a.baseURL,
		CredentialsFile: *a.credsPath,
	})
	cl := client.New(gw, client.WithMinSplash(0))
	cl.Start(ctx)

	snap, err := waitSettled(ctx, cl)
	return cl, snap, err
}

// waitSettled espera a que el cliente salga de los estados transitorios.
func waitSettled(ctx context.Context, cl *client.Client) (client.Snapshot, error) {
	events := cl.Subscribe()
	deadline := time.After(10 * time.Second)
	for {
		snap := cl.Snapshot()
		if snap.State == client.StateUnauthenticated || snap.State == client.StateAuthenticatedReady {
			return snap, nil
		}
		select {
		case <-events:
		case <-deadline:
			return snap, errors.New("timed out waiting for session state")
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// waitReady espera la sesión y el profile cargado tras un login exitoso.
func waitReady(ctx context.Context, cl *client.Client) (client.Snapshot, error) {
	events := cl.Subscribe()
	deadline := time.After(10 * time.Second)
	for {
		snap := cl.Snapshot()
		if snap.State == client.StateAuthenticatedReady {
			return snap, nil
		}
		select {
		case <-events:
		case <-deadline:
			return snap, errors.New("timed out waiting for profile load")
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

func (a *cliApp) signupCmd() *cobra.Command {
	var email, password, confirm string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Crear una cuenta nueva",
		RunE: func(cmd *cobra.Command, args []string) error {
			if confirm == "" {
				confirm = password
			}
			cl, _, err := a.start(cmd.Context())
			if err != nil {
				return err
			}
			if err := cl.Signup(cmd.Context(), email, password, confirm); err != nil {
				return err
			}
			snap, err := waitReady(cmd.Context(), cl)
			if err != nil {
				return err
			}
			printSession(snap)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email de la cuenta")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().StringVar(&confirm, "confirm", "", "confirmación (default: igual a --password)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (a *cliApp) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Iniciar sesión con email y password",
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, _, err := a.start(cmd.Context())
			if err != nil {
				return err
			}
			if err := cl.Login(cmd.Context(), email, password); err != nil {
				return err
			}
			snap, err := waitReady(cmd.Context(), cl)
			if err != nil {
				return err
			}
			printSession(snap)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email de la cuenta")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (a *cliApp) loginGoogleCmd() *cobra.Command {
	var clientID, clientSecret, rawToken string
	cmd := &cobra.Command{
		Use:   "login-google",
		Short: "Iniciar sesión con Google (OAuth en el browser, o --token directo)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, _, err := a.start(cmd.Context())
			if err != nil {
				return err
			}
			provider := &googleProvider{
				clientID:     clientID,
				clientSecret: clientSecret,
				rawToken:     rawToken,
			}
			if err := cl.LoginWithGoogle(cmd.Context(), provider); err != nil {
				return err
			}
			snap, err := waitReady(cmd.Context(), cl)
			if err != nil {
				return err
			}
			printSession(snap)
			return nil
		},
	}
	cmd.Flags().StringVar(&clientID, "client-id", os.Getenv("GOOGLE_CLIENT_ID"), "OAuth client ID")
	cmd.Flags().StringVar(&clientSecret, "client-secret", os.Getenv("GOOGLE_CLIENT_SECRET"), "OAuth client secret")
	cmd.Flags().StringVar(&rawToken, "token", "", "ID token ya obtenido (para authd con google insecure)")
	return cmd
}

func (a *cliApp) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Cerrar la sesión y revocar el refresh token",
		RunE: func(cmd *cobra.Command, args []string) error {
			gw := gateway.NewREST(gateway.Config{
				BaseURL:         *a.baseURL,
				CredentialsFile: *a.credsPath,
			})
			// arrancar la restauración para tener el refresh token a mano
			events := gw.ObserveSession(cmd.Context())
			<-events
			if err := gw.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("signed out")
			return nil
		},
	}
}

func (a *cliApp) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Mostrar la sesión actual",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, snap, err := a.start(cmd.Context())
			if err != nil {
				return err
			}
			if snap.Session == nil {
				fmt.Println("not signed in")
				return nil
			}
			printSession(snap)
			return nil
		},
	}
}

func (a *cliApp) profileCmd() *cobra.Command {
	profile := &cobra.Command{Use: "profile", Short: "Ver y editar el profile"}

	get := &cobra.Command{
		Use:   "get",
		Short: "Mostrar el profile actual",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, snap, err := a.start(cmd.Context())
			if err != nil {
				return err
			}
			if snap.Profile == nil {
				fmt.Println("not signed in")
				return nil
			}
			fmt.Printf("name:  %s\n", snap.Profile.DisplayName)
			fmt.Printf("email: %s\n", snap.Profile.Email)
			if snap.Profile.PhotoURL != nil {
				fmt.Printf("photo: %s\n", *snap.Profile.PhotoURL)
			}
			return nil
		},
	}

	var name, photoPath string
	set := &cobra.Command{
		Use:   "set",
		Short: "Actualizar display name y/o foto",
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, snap, err := a.start(cmd.Context())
			if err != nil {
				return err
			}
			if snap.Profile == nil {
				return errors.New("not signed in")
			}
			if name == "" {
				name = snap.Profile.DisplayName
			}
			var photo []byte
			if photoPath != "" {
				photo, err = os.ReadFile(photoPath)
				if err != nil {
					return err
				}
			}
			if err := cl.UpdateProfile(cmd.Context(), name, photo); err != nil {
				return err
			}
			fmt.Println("profile updated")
			return nil
		},
	}
	set.Flags().StringVar(&name, "name", "", "display name nuevo")
	set.Flags().StringVar(&photoPath, "photo", "", "ruta a la foto de profile (jpg)")

	profile.AddCommand(get, set)
	return profile
}

func (a *cliApp) sendResetCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "send-reset",
		Short: "Pedir el email de reset de password",
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, _, err := a.start(cmd.Context())
			if err != nil {
				return err
			}
			if err := cl.SendPasswordReset(cmd.Context(), email); err != nil {
				return err
			}
			fmt.Println("reset email requested (check your inbox, or the authd log in echo mode)")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email de la cuenta")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// googleProvider obtiene el ID token de Google: con --token lo usa directo;
// si no, corre el flujo OAuth con callback en loopback.
type googleProvider struct {
	clientID     string
	clientSecret string
	rawToken     string
}

func (p *googleProvider) ProviderToken(ctx context.Context) (string, error) {
	if p.rawToken != "" {
		return p.rawToken, nil
	}
	if p.clientID == "" {
		return "", errors.New("--client-id (o GOOGLE_CLIENT_ID) es requerido sin --token")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer ln.Close()
	redirect := fmt.Sprintf("http://%s/callback", ln.Addr().String())

	oidc := google.New(p.clientID, p.clientSecret, redirect)
	state := uuid.NewString()
	nonce := uuid.NewString()

	authURL, err := oidc.AuthURL(ctx, state, nonce)
	if err != nil {
		return "", err
	}
	fmt.Println("Open this URL in your browser:")
	fmt.Println("  " + authURL)

	type result struct {
		code string
		err  error
	}
	results := make(chan result, 1)
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/callback" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			results <- result{err: errors.New("oauth state mismatch")}
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			results <- result{err: errors.New("callback without code")}
			return
		}
		fmt.Fprintln(w, "Signed in. You can close this tab.")
		results <- result{code: code}
	})}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	select {
	case r := <-results:
		if r.err != nil {
			return "", r.err
		}
		return oidc.ExchangeCode(ctx, r.code)
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(5 * time.Minute):
		return "", errors.New("timed out waiting for the oauth callback")
	}
}

func printSession(snap client.Snapshot) {
	if snap.Session == nil {
		fmt.Println("not signed in")
		return
	}
	fmt.Printf("uid:   %s\n", snap.Session.UID)
	fmt.Printf("email: %s\n", snap.Session.Email)
	if snap.Profile != nil && snap.Profile.DisplayName != "" {
		fmt.Printf("name:  %s\n", snap.Profile.DisplayName)
	}
}

func defaultCredsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", ".littlejohn-credentials.json")
	}
	return filepath.Join(dir, "littlejohn", "credentials.json")
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
