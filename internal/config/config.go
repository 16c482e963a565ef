// Package config loads runtime settings from an optional CUE file, a .env
// file and the environment, in increasing order of precedence. The result is
// validated against an embedded CUE schema.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

//go:embed schema.cue
var schemaSource string

// DefaultFile is read when present in the working directory.
const DefaultFile = "immo.cue"

// Config holds the server settings.
type Config struct {
	Database        Database `json:"database"`
	Port            int      `json:"port"`
	LogLevel        string   `json:"log_level"`
	Currency        string   `json:"currency"`
	OverdueSchedule string   `json:"overdue_schedule"`
	Desk            Desk     `json:"desk"`
}

// Database selects the ledger backend.
type Database struct {
	Dialect string `json:"dialect"`
	URL     string `json:"url"`
}

// Desk bounds payment desk sessions.
type Desk struct {
	SessionIdle   string `json:"session_idle"`
	SessionMaxAge string `json:"session_max_age"`
}

// IdleTimeout parses SessionIdle.
func (d Desk) IdleTimeout() time.Duration {
	v, _ := time.ParseDuration(d.SessionIdle)
	return v
}

// MaxAge parses SessionMaxAge.
func (d Desk) MaxAge() time.Duration {
	v, _ := time.ParseDuration(d.SessionMaxAge)
	return v
}

// Addr is the listen address.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// Load reads path (DefaultFile when empty; a missing default file is not an
// error), then .env, then the environment.
func Load(path string) (Config, error) {
	// .env is optional.
	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	var src []byte
	if b, err := os.ReadFile(path); err == nil {
		src = b
	} else if explicit || !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	return load(src, path, os.LookupEnv)
}

func load(src []byte, filename string, lookup func(string) (string, bool)) (Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compiling config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def
	if len(src) > 0 {
		file := ctx.CompileBytes(src, cue.Filename(filename))
		if err := file.Err(); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", filename, err)
		}
		v = def.Unify(file)
	}

	var cfg Config
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, fmt.Errorf("validating %s: %w", filename, err)
	}
	if err := v.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding %s: %w", filename, err)
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}

	// Environment values go through the same schema.
	final := def.Unify(ctx.Encode(cfg))
	if err := final.Validate(cue.Concrete(true)); err != nil {
		return Config{}, fmt.Errorf("validating environment: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"DATABASE_DIALECT":     &cfg.Database.Dialect,
		"DATABASE_URL":         &cfg.Database.URL,
		"LOG_LEVEL":            &cfg.LogLevel,
		"CURRENCY":             &cfg.Currency,
		"OVERDUE_SCHEDULE":     &cfg.OverdueSchedule,
		"DESK_SESSION_IDLE":    &cfg.Desk.SessionIdle,
		"DESK_SESSION_MAX_AGE": &cfg.Desk.SessionMaxAge,
	}
	for name, dst := range str {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		cfg.Port = port
	}
	return nil
}

// NewLogger builds the production zap logger at the configured level.
func (c Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}
