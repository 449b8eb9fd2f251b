// Package config loads tribunal configuration from environment variables
// with sane defaults, plus named YAML deployment profiles for the knobs
// that vary per environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds node configuration.
type Config struct {
	Addr         string
	LogLevel     string
	AuthSecret   string
	RateRPS      int
	RateBurst    int
	OutDir       string
	MasterSeed   string
	OracleKind   string
	OracleURL    string
	OracleAPIKey string
	OracleModel  string
	PolicyExpr   string

	OracleTimeout  time.Duration
	ProposeTimeout time.Duration
	ExecuteTimeout time.Duration
	VerifyTimeout  time.Duration
}

// Load reads configuration from environment variables.
func Load() *Config {
	addr := os.Getenv("TRIBUNAL_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	outDir := os.Getenv("REPORT_OUT_DIR")
	if outDir == "" {
		outDir = "."
	}

	oracleURL := os.Getenv("ORACLE_URL")
	oracleModel := os.Getenv("ORACLE_MODEL")
	if oracleModel == "" {
		oracleModel = "gpt-4o-mini"
	}
	oracleKind := os.Getenv("ORACLE_KIND")
	if oracleKind == "" {
		if oracleURL != "" {
			oracleKind = "llm"
		} else {
			oracleKind = "none"
		}
	}

	return &Config{
		Addr:           addr,
		LogLevel:       logLevel,
		AuthSecret:     os.Getenv("TRIBUNAL_AUTH_SECRET"),
		RateRPS:        envInt("TRIBUNAL_RATE_RPS", 20),
		RateBurst:      envInt("TRIBUNAL_RATE_BURST", 40),
		OutDir:         outDir,
		MasterSeed:     os.Getenv("TRIBUNAL_MASTER_SEED"),
		OracleKind:     oracleKind,
		OracleURL:      oracleURL,
		OracleAPIKey:   os.Getenv("ORACLE_API_KEY"),
		OracleModel:    oracleModel,
		PolicyExpr:     os.Getenv("TRIBUNAL_POLICY"),
		OracleTimeout:  envDuration("ORACLE_TIMEOUT", 10*time.Second),
		ProposeTimeout: envDuration("PROPOSE_TIMEOUT", 10*time.Second),
		ExecuteTimeout: envDuration("EXECUTE_TIMEOUT", 20*time.Second),
		VerifyTimeout:  envDuration("VERIFY_TIMEOUT", 15*time.Second),
	}
}

// ApplyProfile overlays a deployment profile onto the environment-derived
// configuration. Zero-valued profile fields leave the existing values
// untouched; store and archive backends are consumed by the caller
// directly from the profile.
func (c *Config) ApplyProfile(p *DeploymentProfile) {
	if p == nil {
		return
	}
	if p.Oracle.Kind != "" {
		c.OracleKind = p.Oracle.Kind
	}
	if p.Oracle.URL != "" {
		c.OracleURL = p.Oracle.URL
	}
	if p.Oracle.Model != "" {
		c.OracleModel = p.Oracle.Model
	}
	if p.Oracle.Timeout != 0 {
		c.OracleTimeout = p.Oracle.Timeout.Std()
	}
	if p.Timeouts.Propose != 0 {
		c.ProposeTimeout = p.Timeouts.Propose.Std()
	}
	if p.Timeouts.Execute != 0 {
		c.ExecuteTimeout = p.Timeouts.Execute.Std()
	}
	if p.Timeouts.Verify != 0 {
		c.VerifyTimeout = p.Timeouts.Verify.Std()
	}
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
