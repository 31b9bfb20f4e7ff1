// Package gateway define la superficie de capacidades del backend que
// consume el SDK, y su implementación REST contra authd (o un backend
// compatible). El core (internal/client) solo conoce la interfaz.
package gateway

import (
	"context"
	"errors"

	"github.com/dropDatabas3/littlejohn/internal/domain/types"
)

// ErrNotFound lo retornan GetDocument/BlobURL cuando el recurso no existe.
var ErrNotFound = errors.New("gateway: not found")

// ErrNoSession lo retornan las operaciones que requieren sesión activa.
var ErrNoSession = errors.New("gateway: no active session")

// APIError es un error del backend con mensaje para humanos. El state
// machine lo propaga verbatim.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string { return e.Message }

// Gateway es el colaborador externo del state machine. Todas las operaciones
// son bloqueantes y respetan ctx.
//
// El contrato de sesión: SignIn/SignUp/ExchangeCredential no "retornan" la
// sesión; la sesión canónica viaja siempre por el stream de ObserveSession.
type Gateway interface {
	// ObserveSession arranca la observación de sesión y retorna el stream.
	// El primer evento llega siempre (sesión restaurada o nil) apenas se
	// resuelve el chequeo inicial. Un evento nil significa "sin sesión".
	ObserveSession(ctx context.Context) <-chan *types.Session

	SignIn(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, email, password string) error

	// ExchangeCredential cambia un token del identity provider federado por
	// una sesión del backend.
	ExchangeCredential(ctx context.Context, providerToken string) error

	// SignOut revoca la sesión en el backend y limpia el estado local.
	// Best-effort: el caller no debe depender del resultado remoto.
	SignOut(ctx context.Context) error

	// GetDocument retorna los campos del documento o ErrNotFound.
	GetDocument(ctx context.Context, collection, id string) (map[string]any, error)

	// CreateDocument crea el documento solo si no existe. Si otro creador
	// ganó la carrera, retorna el documento existente (sin error): el
	// caller adopta el resultado del ganador.
	CreateDocument(ctx context.Context, collection, id string, data map[string]any) (map[string]any, error)

	// SetDocument reemplaza el documento completo.
	SetDocument(ctx context.Context, collection, id string, data map[string]any) error

	// UpdateDocument mergea los campos dados sobre el documento.
	UpdateDocument(ctx context.Context, collection, id string, partial map[string]any) error

	// UploadBlob sube el blob completo a path.
	UploadBlob(ctx context.Context, path string, data []byte) error

	// BlobURL retorna la URL pública de un blob ya subido.
	BlobURL(ctx context.Context, path string) (string, error)

	// SendPasswordReset pide el mail de reset para email.
	SendPasswordReset(ctx context.Context, email string) error
}
