// Package types contiene las entidades del dominio compartidas entre el SDK
// y el emulador.
package types

// Session es la identidad autenticada reportada por el backend.
// Es de solo lectura fuera de internal/client.
type Session struct {
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// Profile es el registro editable del usuario, persistido en la colección
// "users" bajo el UID de la sesión.
type Profile struct {
	DisplayName string  `json:"displayName"`
	Email       string  `json:"email"`
	PhotoURL    *string `json:"profileImageURL"`
}

// DefaultProfile construye el profile inicial de un usuario nuevo a partir de
// los datos de su sesión.
func DefaultProfile(s Session) Profile {
	return Profile{DisplayName: s.DisplayName, Email: s.Email}
}

// WithEmailFallback garantiza email no vacío: si el documento guardado no
// trae email, se usa el de la sesión.
func (p Profile) WithEmailFallback(s Session) Profile {
	if p.Email == "" {
		p.Email = s.Email
	}
	return p
}
