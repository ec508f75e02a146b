// Package config loads the service configuration from an optional YAML (or
// JSON) file overlaid with environment variables.
package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hirokts/enikki/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given. It may be absent.
const DefaultPath = "enikki.yaml"

type Server struct {
	Addr          string `mapstructure:"addr"`
	APIKey        string `mapstructure:"api_key"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

type Pipeline struct {
	QualityThreshold     float64       `mapstructure:"quality_threshold"`
	MaxRetries           int           `mapstructure:"max_retries"`
	FallbackQualityScore float64       `mapstructure:"fallback_quality_score"`
	ModelTimeout         time.Duration `mapstructure:"model_timeout"`
	ImageTimeout         time.Duration `mapstructure:"image_timeout"`
	StorageTimeout       time.Duration `mapstructure:"storage_timeout"`
	NotifyTimeout        time.Duration `mapstructure:"notify_timeout"`
	MaxConcurrentRuns    int           `mapstructure:"max_concurrent_runs"`
	QueueSize            int           `mapstructure:"queue_size"`
	PlaceholderImageURL  string        `mapstructure:"placeholder_image_url"`
}

// RetryPolicy returns the quality gate settings.
func (p Pipeline) RetryPolicy() domain.RetryPolicy {
	return domain.RetryPolicy{Threshold: p.QualityThreshold, MaxRetries: p.MaxRetries}
}

type Model struct {
	Endpoint   string `mapstructure:"endpoint"`
	APIKey     string `mapstructure:"api_key"`
	Project    string `mapstructure:"project"`
	Location   string `mapstructure:"location"`
	TextModel  string `mapstructure:"text_model"`
	ImageModel string `mapstructure:"image_model"`
}

type Redis struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type Loam struct {
	Dir string `mapstructure:"dir"`
}

type Store struct {
	Backend string `mapstructure:"backend"`
	Redis   Redis  `mapstructure:"redis"`
	Loam    Loam   `mapstructure:"loam"`

	// EncryptionKey is a base64 AES-256 key. When set, diary bodies are
	// sealed before they reach the backend.
	EncryptionKey string   `mapstructure:"encryption_key"`
	FallbackKeys  []string `mapstructure:"fallback_keys"`
}

// Keys decodes the encryption keys. It returns a nil active key when
// encryption is off.
func (s Store) Keys() (active []byte, fallback [][]byte, err error) {
	if s.EncryptionKey == "" {
		return nil, nil, nil
	}
	active, err = decodeKey(s.EncryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("store.encryption_key: %w", err)
	}
	for i, k := range s.FallbackKeys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, nil, fmt.Errorf("store.fallback_keys[%d]: %w", i, err)
		}
		fallback = append(fallback, key)
	}
	return active, fallback, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

type Bolt struct {
	Path   string `mapstructure:"path"`
	Bucket string `mapstructure:"bucket"`
}

type Objects struct {
	Backend string `mapstructure:"backend"`
	Bolt    Bolt   `mapstructure:"bolt"`
}

type Notify struct {
	FrontendURL string `mapstructure:"frontend_url"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the full service configuration.
type Config struct {
	Server   Server   `mapstructure:"server"`
	Pipeline Pipeline `mapstructure:"pipeline"`
	Model    Model    `mapstructure:"model"`
	Store    Store    `mapstructure:"store"`
	Objects  Objects  `mapstructure:"objects"`
	Notify   Notify   `mapstructure:"notify"`
	Log      Log      `mapstructure:"log"`
}

func defaults() map[string]any {
	return map[string]any{
		"server": map[string]any{
			"addr":            ":8080",
			"public_base_url": "http://localhost:8080",
		},
		"pipeline": map[string]any{
			"quality_threshold":      0.7,
			"max_retries":            3,
			"fallback_quality_score": 0.8,
			"model_timeout":          "30s",
			"image_timeout":          "60s",
			"storage_timeout":        "15s",
			"notify_timeout":         "10s",
			"max_concurrent_runs":    4,
			"queue_size":             64,
			"placeholder_image_url":  domain.PlaceholderImageURL,
		},
		"model": map[string]any{
			"location":    "us-central1",
			"text_model":  "gemini-2.5-flash",
			"image_model": "gemini-2.5-flash-image",
		},
		"store": map[string]any{
			"backend": "memory",
			"redis": map[string]any{
				"addr":   "localhost:6379",
				"prefix": "enikki:diary:",
			},
			"loam": map[string]any{"dir": ".enikki/diaries"},
		},
		"objects": map[string]any{
			"backend": "memory",
			"bolt": map[string]any{
				"path":   ".enikki/objects.db",
				"bucket": "objects",
			},
		},
		"notify": map[string]any{"frontend_url": "http://localhost:5173"},
		"log": map[string]any{
			"level":  "info",
			"format": "text",
		},
	}
}

// envKeys maps environment variables to configuration paths. Later entries
// win when several variables target the same path.
var envKeys = []struct{ env, path string }{
	{"ENIKKI_ADDR", "server.addr"},
	{"ENIKKI_API_KEY", "server.api_key"},
	{"ENIKKI_PUBLIC_BASE_URL", "server.public_base_url"},
	{"ENIKKI_QUALITY_THRESHOLD", "pipeline.quality_threshold"},
	{"ENIKKI_MAX_RETRIES", "pipeline.max_retries"},
	{"ENIKKI_MAX_CONCURRENT_RUNS", "pipeline.max_concurrent_runs"},
	{"ENIKKI_MODEL_TIMEOUT", "pipeline.model_timeout"},
	{"ENIKKI_IMAGE_TIMEOUT", "pipeline.image_timeout"},
	{"GEMINI_API_KEY", "model.api_key"},
	{"ENIKKI_MODEL_API_KEY", "model.api_key"},
	{"ENIKKI_MODEL_ENDPOINT", "model.endpoint"},
	{"GOOGLE_CLOUD_PROJECT", "model.project"},
	{"GOOGLE_CLOUD_LOCATION", "model.location"},
	{"ENIKKI_STORE_BACKEND", "store.backend"},
	{"ENIKKI_REDIS_ADDR", "store.redis.addr"},
	{"ENIKKI_REDIS_PASSWORD", "store.redis.password"},
	{"ENIKKI_REDIS_DB", "store.redis.db"},
	{"ENIKKI_LOAM_DIR", "store.loam.dir"},
	{"ENIKKI_ENCRYPTION_KEY", "store.encryption_key"},
	{"ENIKKI_FALLBACK_KEYS", "store.fallback_keys"},
	{"ENIKKI_OBJECTS_BACKEND", "objects.backend"},
	{"ENIKKI_BOLT_PATH", "objects.bolt.path"},
	{"FRONTEND_URL", "notify.frontend_url"},
	{"ENIKKI_LOG_LEVEL", "log.level"},
	{"ENIKKI_LOG_FORMAT", "log.format"},
}

// Load reads path (YAML, or JSON by extension) and the process environment.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (*Config, error) {
	raw := defaults()

	if path != "" {
		file, err := readFile(path)
		if err != nil {
			return nil, err
		}
		merge(raw, file)
	}

	for _, k := range envKeys {
		if v, ok := lookup(k.env); ok && v != "" {
			set(raw, k.path, v)
		}
	}

	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &cfg,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	out := map[string]any{}
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return out, nil
	}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return out, nil
}

// merge copies src into dst, descending into nested maps.
func merge(dst, src map[string]any) {
	for k, v := range src {
		sub, ok := v.(map[string]any)
		if !ok {
			dst[k] = v
			continue
		}
		existing, ok := dst[k].(map[string]any)
		if !ok {
			existing = map[string]any{}
			dst[k] = existing
		}
		merge(existing, sub)
	}
}

func set(m map[string]any, path, value string) {
	parts := strings.Split(path, ".")
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Pipeline.RetryPolicy().Validate(); err != nil {
		errs = append(errs, err)
	}
	if s := c.Pipeline.FallbackQualityScore; s < 0 || s > 1 {
		errs = append(errs, fmt.Errorf("pipeline.fallback_quality_score must be within [0, 1], got %v", s))
	}
	if c.Pipeline.MaxConcurrentRuns < 1 {
		errs = append(errs, errors.New("pipeline.max_concurrent_runs must be at least 1"))
	}
	for name, d := range map[string]time.Duration{
		"model_timeout":   c.Pipeline.ModelTimeout,
		"image_timeout":   c.Pipeline.ImageTimeout,
		"storage_timeout": c.Pipeline.StorageTimeout,
		"notify_timeout":  c.Pipeline.NotifyTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("pipeline.%s must be positive", name))
		}
	}

	switch c.Store.Backend {
	case "memory", "redis", "loam":
	default:
		errs = append(errs, fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend))
	}
	if _, _, err := c.Store.Keys(); err != nil {
		errs = append(errs, err)
	}
	switch c.Objects.Backend {
	case "memory", "bolt":
	default:
		errs = append(errs, fmt.Errorf("objects.backend: unknown backend %q", c.Objects.Backend))
	}
	if !absoluteURL(c.Server.PublicBaseURL) {
		errs = append(errs, fmt.Errorf("server.public_base_url must be an absolute http(s) URL, got %q", c.Server.PublicBaseURL))
	}
	if !absoluteURL(c.Pipeline.PlaceholderImageURL) {
		errs = append(errs, fmt.Errorf("pipeline.placeholder_image_url must be an absolute http(s) URL, got %q", c.Pipeline.PlaceholderImageURL))
	}

	return errors.Join(errs...)
}

func absoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
