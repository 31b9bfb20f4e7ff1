package gateway

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/dropDatabas3/littlejohn/internal/util/atomicwrite"
)

// credentials es lo único que el SDK persiste entre corridas: el refresh
// token y los datos mínimos de la cuenta. Equivale al keychain de un cliente
// móvil.
type credentials struct {
	RefreshToken string `json:"refresh_token"`
	UID          string `json:"uid"`
	Email        string `json:"email,omitempty"`
	DisplayName  string `json:"display_name,omitempty"`
}

type credentialsFile struct {
	path string
}

// load retorna nil (sin error) si el archivo no existe o está corrupto: un
// archivo roto equivale a "no hay sesión guardada".
func (f *credentialsFile) load() *credentials {
	if f.path == "" {
		return nil
	}
	b, err := os.ReadFile(f.path)
	if err != nil {
		return nil
	}
	var c credentials
	if err := json.Unmarshal(b, &c); err != nil || c.RefreshToken == "" {
		return nil
	}
	return &c
}

func (f *credentialsFile) save(c credentials) error {
	if f.path == "" {
		return nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return atomicwrite.WriteFile(f.path, b, 0o600)
}

func (f *credentialsFile) clear() error {
	if f.path == "" {
		return nil
	}
	err := os.Remove(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
