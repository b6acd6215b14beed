// Package config handles .glasser configuration file parsing.
//
// The .glasser file is located at the workspace root and contains:
//
//	api_url: "https://..."                  - GraphQL endpoint (required)
//	notification_url: "https://..."         - Notification GraphQL endpoint (defaults to api_url)
//	notification_ws_url: "wss://..."        - graphql-transport-ws endpoint for push
//	push_transport: "ws"                    - ws, sse or none
//	locale: "en"                            - en or pt
//	poll_interval_ms: 1000                  - Feed polling cadence
//	notification_limit: 3                   - Notifications kept in the feed
//	session_file: "~/.config/glasser/..."   - Where the session token is kept
//
// Environment variables (GLASSER_*) override file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the configuration file.
const FileName = ".glasser"

// Push transports.
const (
	PushWS   = "ws"
	PushSSE  = "sse"
	PushNone = "none"
)

// Defaults.
const (
	DefaultLocale            = "en"
	DefaultPollIntervalMS    = 1000
	DefaultNotificationLimit = 3
)

// Environment overrides.
const (
	EnvAPIURL            = "GLASSER_API_URL"
	EnvNotificationURL   = "GLASSER_NOTIFICATION_URL"
	EnvNotificationWSURL = "GLASSER_NOTIFICATION_WS_URL"
	EnvPushTransport     = "GLASSER_PUSH_TRANSPORT"
	EnvLocale            = "GLASSER_LOCALE"
	EnvPollIntervalMS    = "GLASSER_POLL_INTERVAL_MS"
	EnvNotificationLimit = "GLASSER_NOTIFICATION_LIMIT"
	EnvSessionFile       = "GLASSER_SESSION_FILE"
	EnvToken             = "GLASSER_TOKEN"
)

// customPath holds an optional custom config file path.
// When empty, Load() uses the default FileName.
var customPath string

// SetPath sets a custom config file path for Load() to use.
// Pass an empty string to reset to the default path.
func SetPath(path string) {
	customPath = path
}

// GetPath returns the current config file path.
func GetPath() string {
	if customPath != "" {
		return customPath
	}
	return FileName
}

// FindPath resolves the config file path using the same logic as Load(),
// without reading or parsing the file contents.
func FindPath() (string, error) {
	if customPath != "" {
		return customPath, nil
	}
	return findDefaultConfigPath()
}

// WorkspaceRoot returns the directory containing the resolved config file.
func WorkspaceRoot() (string, error) {
	path, err := FindPath()
	if err != nil {
		return "", err
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return filepath.Dir(path), nil
}

var (
	urlPattern   = regexp.MustCompile(`^https?://[^\s]+$`)
	wsURLPattern = regexp.MustCompile(`^wss?://[^\s]+$`)
)

// Config represents the .glasser configuration file.
type Config struct {
	APIURL            string `yaml:"api_url"`
	NotificationURL   string `yaml:"notification_url,omitempty"`
	NotificationWSURL string `yaml:"notification_ws_url,omitempty"`
	PushTransport     string `yaml:"push_transport,omitempty"`
	Locale            string `yaml:"locale,omitempty"`
	PollIntervalMS    int    `yaml:"poll_interval_ms,omitempty"`
	NotificationLimit int    `yaml:"notification_limit,omitempty"`
	SessionFile       string `yaml:"session_file,omitempty"`

	// Token comes from GLASSER_TOKEN only and is never written.
	Token string `yaml:"-"`
}

// Load reads the .glasser file and applies environment overrides.
// A missing file is not an error when GLASSER_API_URL is set.
func Load() (*Config, error) {
	path, err := FindPath()
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	var cfg *Config
	if err == nil {
		cfg, err = LoadFrom(path)
	}
	if err != nil {
		if !os.IsNotExist(err) || os.Getenv(EnvAPIURL) == "" {
			return nil, err
		}
		cfg = &Config{}
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// LoadFrom reads and parses a .glasser configuration file from a specific path.
// Environment overrides and defaults are not applied.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err // Return unwrapped for os.IsNotExist() checks
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from the environment looked up through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.APIURL, EnvAPIURL)
	set(&c.NotificationURL, EnvNotificationURL)
	set(&c.NotificationWSURL, EnvNotificationWSURL)
	set(&c.PushTransport, EnvPushTransport)
	set(&c.Locale, EnvLocale)
	set(&c.SessionFile, EnvSessionFile)
	set(&c.Token, EnvToken)

	for key, dst := range map[string]*int{
		EnvPollIntervalMS:    &c.PollIntervalMS,
		EnvNotificationLimit: &c.NotificationLimit,
	} {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", key, err)
		}
		*dst = n
	}
	return nil
}

// ApplyDefaults fills unset optional fields.
func (c *Config) ApplyDefaults() {
	if c.NotificationURL == "" {
		c.NotificationURL = c.APIURL
	}
	if c.PushTransport == "" {
		if c.NotificationWSURL != "" {
			c.PushTransport = PushWS
		} else {
			c.PushTransport = PushNone
		}
	}
	if c.Locale == "" {
		c.Locale = DefaultLocale
	}
	if c.PollIntervalMS == 0 {
		c.PollIntervalMS = DefaultPollIntervalMS
	}
	if c.NotificationLimit == 0 {
		c.NotificationLimit = DefaultNotificationLimit
	}
	if c.SessionFile == "" {
		c.SessionFile = DefaultSessionFile()
	}
}

// DefaultSessionFile returns ~/.config/glasser/session.json, or a file in
// the working directory when the user config dir is unknown.
func DefaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".glasser-session.json"
	}
	return filepath.Join(dir, "glasser", "session.json")
}

// PollInterval returns the polling cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// SessionPath returns SessionFile with a leading ~ expanded.
func (c *Config) SessionPath() string {
	if strings.HasPrefix(c.SessionFile, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, c.SessionFile[2:])
		}
	}
	return c.SessionFile
}

func findDefaultConfigPath() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return FileName, nil
	}

	gitRoot, ok := findGitRoot(cwd)
	if !ok {
		// Outside a git worktree only the current directory is considered.
		if _, err := os.Stat(FileName); err != nil {
			return FileName, err
		}
		return FileName, nil
	}

	for dir := cwd; ; {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		if dir == gitRoot {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	rootCandidate := filepath.Join(gitRoot, FileName)
	return rootCandidate, &os.PathError{Op: "open", Path: rootCandidate, Err: os.ErrNotExist}
}

func findGitRoot(start string) (string, bool) {
	for dir := start; ; {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// Save writes the configuration to the config file.
func (c *Config) Save() error {
	path := GetPath()
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	header := "# Generated by: glasser init\n\n"
	if err := os.WriteFile(path, []byte(header+string(data)), 0600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api_url is required")
	}
	if !urlPattern.MatchString(c.APIURL) {
		return fmt.Errorf("api_url must be a valid HTTP(S) URL")
	}
	if c.NotificationURL != "" && !urlPattern.MatchString(c.NotificationURL) {
		return fmt.Errorf("notification_url must be a valid HTTP(S) URL")
	}
	if c.NotificationWSURL != "" && !wsURLPattern.MatchString(c.NotificationWSURL) {
		return fmt.Errorf("notification_ws_url must be a valid WS(S) URL")
	}
	switch c.PushTransport {
	case "", PushNone, PushSSE:
	case PushWS:
		if c.NotificationWSURL == "" {
			return fmt.Errorf("push_transport ws requires notification_ws_url")
		}
	default:
		return fmt.Errorf("push_transport must be one of ws, sse, none")
	}
	switch c.Locale {
	case "", "en", "pt":
	default:
		return fmt.Errorf("locale must be en or pt")
	}
	if c.PollIntervalMS < 0 {
		return fmt.Errorf("poll_interval_ms must not be negative")
	}
	if c.NotificationLimit < 0 {
		return fmt.Errorf("notification_limit must not be negative")
	}
	return nil
}
