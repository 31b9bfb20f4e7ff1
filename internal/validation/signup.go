// Package validation valida formularios de signup/login antes de tocar la
// red. Los mensajes son los que ve el usuario, no códigos internos.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

const MinPasswordLength = 6

// Formato laxo a propósito: la verificación real del email la hace el
// backend; acá solo se evitan typos obvios sin rechazar direcciones raras.
var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// FieldError identifica el campo que falló junto con el mensaje para el
// usuario.
type FieldError struct {
	Field   string // "email" | "password" | "confirm"
	Message string
}

func (e *FieldError) Error() string { return e.Message }

// ValidEmail reporta si s tiene pinta de dirección de email.
func ValidEmail(s string) bool {
	return emailRe.MatchString(strings.TrimSpace(s))
}

// Signup valida el formulario de registro completo. Retorna el primer error
// encontrado, en orden email -> password -> confirmación.
func Signup(email, password, confirm string) error {
	if !ValidEmail(email) {
		return &FieldError{Field: "email", Message: "Please enter a valid email address"}
	}
	if len(password) < MinPasswordLength {
		return &FieldError{
			Field:   "password",
			Message: fmt.Sprintf("Password must be at least %d characters", MinPasswordLength),
		}
	}
	if password != confirm {
		return &FieldError{Field: "confirm", Message: "Passwords do not match"}
	}
	return nil
}

// Login valida el formulario de login (solo presencia, el backend decide si
// las credenciales son correctas).
func Login(email, password string) error {
	if strings.TrimSpace(email) == "" {
		return &FieldError{Field: "email", Message: "Email is required"}
	}
	if password == "" {
		return &FieldError{Field: "password", Message: "Password is required"}
	}
	return nil
}

// NormalizeEmail trim + lower, igual que lo normaliza el backend.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
