// Package config loads the lunadb server configuration.
//
// A configuration file is YAML. Unknown keys are rejected. Values from the
// file are overridden by LUNADB_* environment variables, and the result is
// checked against an embedded CUE schema before use.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Environment variables read by Load.
const (
	EnvAddr      = "LUNADB_ADDR"
	EnvBackend   = "LUNADB_BACKEND"
	EnvDSN       = "LUNADB_DSN"
	EnvNamespace = "LUNADB_NAMESPACE"
	EnvJWTSecret = "LUNADB_JWT_SECRET"
	EnvLogLevel  = "LUNADB_LOG_LEVEL"
)

// Identity modes.
const (
	IdentityToken = "token"
	IdentityJWT   = "jwt"
)

// Config is the server configuration.
type Config struct {
	Addr     string   `yaml:"addr" json:"addr"`
	Storage  Storage  `yaml:"storage" json:"storage"`
	Identity Identity `yaml:"identity" json:"identity"`
	Log      Log      `yaml:"log" json:"log"`
}

// Storage selects the kv backend.
type Storage struct {
	Backend   string `yaml:"backend" json:"backend"`
	DSN       string `yaml:"dsn" json:"dsn"`
	Namespace string `yaml:"namespace" json:"namespace"`
}

// Identity selects how request tokens map to application ids.
type Identity struct {
	Mode      string `yaml:"mode" json:"mode"`
	JWTSecret string `yaml:"jwt_secret" json:"jwt_secret"`
}

// Log configures the process logger.
type Log struct {
	Level string `yaml:"level" json:"level"`
}

// Default returns the configuration used when no file is given: an
// in-memory store on :8080 with dotted app tokens.
func Default() Config {
	return Config{
		Addr:     ":8080",
		Storage:  Storage{Backend: "memory"},
		Identity: Identity{Mode: IdentityToken},
		Log:      Log{Level: "info"},
	}
}

// Load reads the file at path, applies environment overrides and
// validates the result. An empty path starts from Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes and validates YAML configuration without consulting the
// environment.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := decode(data, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	c.Addr = envOr(getenv, EnvAddr, c.Addr)
	c.Storage.Backend = envOr(getenv, EnvBackend, c.Storage.Backend)
	c.Storage.DSN = envOr(getenv, EnvDSN, c.Storage.DSN)
	c.Storage.Namespace = envOr(getenv, EnvNamespace, c.Storage.Namespace)
	c.Identity.JWTSecret = envOr(getenv, EnvJWTSecret, c.Identity.JWTSecret)
	c.Log.Level = envOr(getenv, EnvLogLevel, c.Log.Level)
	if getenv(EnvJWTSecret) != "" {
		c.Identity.Mode = IdentityJWT
	}
}

func envOr(getenv func(string) string, key, fallback string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return fallback
}

// Validate checks c against the configuration schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %s", strings.TrimSpace(cueerrors.Details(err, nil)))
	}
	return nil
}

// SlogLevel returns the configured log level.
func (l Log) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}
