// Package config carga la configuración de authd desde YAML con overrides por
// variables de entorno. El orden es: defaults -> YAML -> env.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
		// PublicBaseURL es la URL con la que los clientes alcanzan a authd.
		// Se usa para construir URLs de blobs y links de reset.
		PublicBaseURL string `yaml:"public_base_url"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Auth struct {
		// Issuer de los ID tokens emitidos por el emulador.
		Issuer string `yaml:"issuer"`
		// TTLs como duraciones Go ("1h", "720h").
		IDTokenTTL time.Duration `yaml:"id_token_ttl"`
		RefreshTTL time.Duration `yaml:"refresh_ttl"`
		ResetTTL   time.Duration `yaml:"reset_ttl"`
	} `yaml:"auth"`

	Storage struct {
		// memory | postgres
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr string `yaml:"addr"`
			DB   int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Blobs struct {
		// Dir donde se guardan los blobs subidos.
		Dir string `yaml:"dir"`
	} `yaml:"blobs"`

	Providers struct {
		Google struct {
			Enabled  bool   `yaml:"enabled"`
			ClientID string `yaml:"client_id"`
			// Insecure acepta ID tokens sin verificar firma. Solo dev.
			Insecure bool `yaml:"insecure"`
		} `yaml:"google"`
	} `yaml:"providers"`

	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
	} `yaml:"smtp"`

	Email struct {
		// Si no hay SMTP configurado, el link de reset se loguea en vez de
		// enviarse (comportamiento de desarrollo).
		DebugEchoLinks bool `yaml:"debug_echo_links"`
	} `yaml:"email"`
}

// Load lee el YAML en path (opcional: path vacío usa solo defaults+env) y
// aplica overrides de entorno.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	// sane defaults
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":9099"
	}
	if c.Server.PublicBaseURL == "" {
		c.Server.PublicBaseURL = "http://localhost:9099"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "littlejohn-authd"
	}
	if c.Auth.IDTokenTTL == 0 {
		c.Auth.IDTokenTTL = time.Hour
	}
	if c.Auth.RefreshTTL == 0 {
		c.Auth.RefreshTTL = 720 * time.Hour // 30d
	}
	if c.Auth.ResetTTL == 0 {
		c.Auth.ResetTTL = 30 * time.Minute
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Blobs.Dir == "" {
		c.Blobs.Dir = "./data/blobs"
	}

	c.applyEnvOverrides()
	return &c, c.Validate()
}

func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("PUBLIC_BASE_URL"); ok {
		c.Server.PublicBaseURL = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := getEnvStr("AUTH_ISSUER"); ok {
		c.Auth.Issuer = v
	}
	if v, ok := getEnvDur("AUTH_ID_TOKEN_TTL"); ok {
		c.Auth.IDTokenTTL = v
	}
	if v, ok := getEnvDur("AUTH_REFRESH_TTL"); ok {
		c.Auth.RefreshTTL = v
	}
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("BLOBS_DIR"); ok {
		c.Blobs.Dir = v
	}
	if v, ok := getEnvBool("GOOGLE_ENABLED"); ok {
		c.Providers.Google.Enabled = v
	}
	if v, ok := getEnvStr("GOOGLE_CLIENT_ID"); ok {
		c.Providers.Google.ClientID = v
	}
	if v, ok := getEnvBool("GOOGLE_INSECURE"); ok {
		c.Providers.Google.Insecure = v
	}
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.SMTP.From = v
	}
}

// Validate chequea combinaciones inválidas, no valores individuales.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("config: storage.driver=postgres requiere storage.dsn")
		}
	default:
		return fmt.Errorf("config: storage.driver desconocido: %q", c.Storage.Driver)
	}
	switch c.Cache.Kind {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("config: cache.kind=redis requiere cache.redis.addr")
		}
	default:
		return fmt.Errorf("config: cache.kind desconocido: %q", c.Cache.Kind)
	}
	if c.Providers.Google.Enabled && !c.Providers.Google.Insecure && c.Providers.Google.ClientID == "" {
		return fmt.Errorf("config: providers.google.enabled requiere client_id (o insecure)")
	}
	return nil
}

func getEnvStr(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	return v, ok && v != ""
}

func getEnvInt(key string) (int, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	return n, err == nil
}

func getEnvBool(key string) (bool, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return b, err == nil
}

func getEnvDur(key string) (time.Duration, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	return d, err == nil
}
