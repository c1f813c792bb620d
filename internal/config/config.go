// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"ghusers/internal/retry"
)

const (
	BackendGitHub = "github"
	BackendLocal  = "local"
)

type Config struct {
	Server struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	} `json:"server"`

	Store struct {
		Backend      string `json:"backend"` // github, local
		APIURL       string `json:"api_url"`
		Owner        string `json:"owner"`
		Repo         string `json:"repo"`
		Path         string `json:"path"`
		BaseRef      string `json:"base_ref"`
		TokenEnv     string `json:"token_env"`
		BranchPrefix string `json:"branch_prefix"`
		Bootstrap    bool   `json:"bootstrap"`
	} `json:"store"`

	Database struct {
		Path     string `json:"path"`
		InMemory bool   `json:"in_memory"`
	} `json:"database"`

	Transaction struct {
		MaxAttempts    int      `json:"max_attempts"`
		InitialBackoff Duration `json:"initial_backoff"`
		MaxBackoff     Duration `json:"max_backoff"`
		CallTimeout    Duration `json:"call_timeout"`
	} `json:"transaction"`

	Environment string `json:"environment"` // development, production
	LogLevel    string `json:"log_level"`   // debug, info, warn, error
}

// Duration reads Go duration strings such as "250ms" from JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func Default() *Config {
	var c Config
	c.Server.Host = "127.0.0.1"
	c.Server.Port = 8080

	c.Store.Backend = BackendLocal
	c.Store.APIURL = "https://api.github.com"
	c.Store.Path = "users.json"
	c.Store.BaseRef = "main"
	c.Store.TokenEnv = "GITHUB_TOKEN"
	c.Store.BranchPrefix = "txn"
	c.Store.Bootstrap = true

	c.Database.Path = ".ghusers"

	p := retry.DefaultPolicy()
	c.Transaction.MaxAttempts = p.MaxAttempts
	c.Transaction.InitialBackoff = Duration(p.InitialInterval)
	c.Transaction.MaxBackoff = Duration(p.MaxInterval)
	c.Transaction.CallTimeout = Duration(10 * time.Second)

	c.Environment = "development"
	c.LogLevel = "info"
	return &c
}

// ConfigPath picks config/config.<env>.json from GHUSERS_ENV.
func ConfigPath() string {
	env := os.Getenv("GHUSERS_ENV")
	if env == "" {
		env = "development"
	}
	return fmt.Sprintf("config/config.%s.json", env)
}

// Load decodes path over Default, so a file only has to name what it
// changes.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := Default()
	dec := json.NewDecoder(file)
	dec.DisallowUnknownFields()
	if err := dec.Decode(config); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	var problems []string

	switch c.Store.Backend {
	case BackendGitHub:
		if c.Store.Owner == "" {
			problems = append(problems, "store.owner is required for the github backend")
		}
		if c.Store.Repo == "" {
			problems = append(problems, "store.repo is required for the github backend")
		}
	case BackendLocal:
		if c.Database.Path == "" && !c.Database.InMemory {
			problems = append(problems, "database.path is required for the local backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.backend must be %q or %q", BackendGitHub, BackendLocal))
	}

	if c.Store.Path == "" {
		problems = append(problems, "store.path is required")
	}
	if c.Store.BaseRef == "" {
		problems = append(problems, "store.base_ref is required")
	}
	if strings.Contains(c.Store.BranchPrefix, "/") {
		problems = append(problems, "store.branch_prefix must not contain '/'")
	}
	if c.Transaction.MaxAttempts < 1 {
		problems = append(problems, "transaction.max_attempts must be at least 1")
	}
	if c.Transaction.CallTimeout <= 0 {
		problems = append(problems, "transaction.call_timeout must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Policy is the retry policy the transaction section describes.
func (c *Config) Policy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = c.Transaction.MaxAttempts
	p.InitialInterval = time.Duration(c.Transaction.InitialBackoff)
	p.MaxInterval = time.Duration(c.Transaction.MaxBackoff)
	return p
}

// Token reads the store credential from the environment variable named by
// store.token_env.
func (c *Config) Token() string {
	if c.Store.TokenEnv == "" {
		return ""
	}
	return os.Getenv(c.Store.TokenEnv)
}
