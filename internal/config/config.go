package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/hazyhaar/veritrack/internal/protocol"
	"github.com/hazyhaar/veritrack/internal/token"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Auth     AuthConfig     `toml:"auth"`
	Log      LogConfig      `toml:"log"`
	Protocol ProtocolConfig `toml:"protocol"`
}

type ServerConfig struct {
	Addr           string        `toml:"addr"`
	H3Addr         string        `toml:"h3_addr"`
	TLSCert        string        `toml:"tls_cert"`
	TLSKey         string        `toml:"tls_key"`
	RateLimitRPS   float64       `toml:"rate_limit_rps"`
	RateLimitBurst int           `toml:"rate_limit_burst"`
	IdempotencyTTL time.Duration `toml:"idempotency_ttl"`
}

type DatabaseConfig struct {
	Path      string        `toml:"path"`
	TraceSlow time.Duration `toml:"trace_slow"`
}

type AuthConfig struct {
	JWTSecret      string `toml:"jwt_secret"`
	TokenExpiryMin int    `toml:"token_expiry_min"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text" or "json"
}

type ProtocolConfig struct {
	Owner            string                  `toml:"owner"`
	Treasury         string                  `toml:"treasury"`
	Escrow           string                  `toml:"escrow"`
	BaseDenomination string                  `toml:"base_denomination"`
	Fee              protocol.FeeBasis       `toml:"fee"`
	Duration         protocol.DurationBounds `toml:"duration"`
	Resolve          protocol.ResolveBounds  `toml:"resolve"`
	ChallengeWindow  time.Duration           `toml:"challenge_window"`
	MaxDepth         int                     `toml:"max_depth"`
	MaxBatch         int                     `toml:"max_batch"`
	MaxDenominations int                     `toml:"max_denominations"`
	Denominations    []token.Rate            `toml:"denominations"`
}

const (
	defaultOwner    = "0x0000000000000000000000000000000000000a11"
	defaultTreasury = "0x0000000000000000000000000000000000000001"
	defaultEscrow   = "0x00000000000000000000000000000000000000e5"
)

func DefaultConfig() *Config {
	p := protocol.DefaultParams(defaultOwner, defaultTreasury)
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			RateLimitRPS:   20,
			RateLimitBurst: 40,
			IdempotencyTTL: 10 * time.Minute,
		},
		Database: DatabaseConfig{
			Path:      "data/veritrack.db",
			TraceSlow: 100 * time.Millisecond,
		},
		Auth: AuthConfig{
			JWTSecret:      "change-me-in-production",
			TokenExpiryMin: 1440, // 24h
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Protocol: ProtocolConfig{
			Owner:            defaultOwner,
			Treasury:         defaultTreasury,
			Escrow:           defaultEscrow,
			BaseDenomination: p.BaseDenomination,
			Fee:              p.Fee,
			Duration:         p.Duration,
			Resolve:          p.Resolve,
			ChallengeWindow:  p.ChallengeWindow,
			MaxDepth:         p.MaxDepth,
			MaxBatch:         p.MaxBatch,
			MaxDenominations: p.MaxDenominations,
		},
	}
}

// Load reads path over the defaults, then applies .env and VERITRACK_* overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if _, statErr := os.Stat(".env"); statErr == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("loading .env: %w", err)
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	set := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	set("VERITRACK_ADDR", &c.Server.Addr)
	set("VERITRACK_DB_PATH", &c.Database.Path)
	set("VERITRACK_JWT_SECRET", &c.Auth.JWTSecret)
	set("VERITRACK_OWNER", &c.Protocol.Owner)
	set("VERITRACK_LOG_LEVEL", &c.Log.Level)
}

// Validate rejects settings the engine or the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		errs = append(errs, errors.New("server.tls_cert and server.tls_key must be set together"))
	}
	if c.Server.RateLimitRPS <= 0 || c.Server.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("server rate limit must be positive"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Auth.TokenExpiryMin <= 0 {
		errs = append(errs, errors.New("auth.token_expiry_min must be positive"))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if f := c.Log.Format; f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", f))
	}
	if _, err := c.ProtocolParams(); err != nil {
		errs = append(errs, err)
	}
	if _, err := protocol.ParseAddress(c.Protocol.Escrow); err != nil {
		errs = append(errs, fmt.Errorf("protocol.escrow: %w", err))
	}
	return errors.Join(errs...)
}

// ProtocolParams builds and validates the engine parameters.
func (c *Config) ProtocolParams() (protocol.Params, error) {
	owner, err := protocol.ParseAddress(c.Protocol.Owner)
	if err != nil {
		return protocol.Params{}, fmt.Errorf("protocol.owner: %w", err)
	}
	treasury, err := protocol.ParseAddress(c.Protocol.Treasury)
	if err != nil {
		return protocol.Params{}, fmt.Errorf("protocol.treasury: %w", err)
	}
	p := protocol.Params{
		Owner:            owner,
		Treasury:         treasury,
		BaseDenomination: c.Protocol.BaseDenomination,
		Fee:              c.Protocol.Fee,
		Duration:         c.Protocol.Duration,
		Resolve:          c.Protocol.Resolve,
		ChallengeWindow:  c.Protocol.ChallengeWindow,
		MaxDepth:         c.Protocol.MaxDepth,
		MaxBatch:         c.Protocol.MaxBatch,
		MaxDenominations: c.Protocol.MaxDenominations,
	}
	if err := p.Validate(); err != nil {
		return protocol.Params{}, fmt.Errorf("protocol: %w", err)
	}
	return p, nil
}

// EscrowAddress is the token account holding staked funds.
func (c *Config) EscrowAddress() protocol.Address {
	a, _ := protocol.ParseAddress(c.Protocol.Escrow)
	return a
}

func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(l.Level))); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}
