package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the service settings read from the environment.
type Config struct {
	HTTPAddr string
	// GRPCAddr empty disables the gRPC listener.
	GRPCAddr string

	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIBaseURL     string
	VisionTemperature float32
	VisionMaxTokens   int

	RequestTimeout    time.Duration
	ImageFetchTimeout time.Duration
	MaxUploadBytes    int64
	MaxImagePixels    int

	RetryAttempts          int
	SeverityThresholdsFile string
	CORSAllowedOrigins     []string

	AzureStorageAccount string
	AzureStorageKey     string

	LogLevel string
}

// ModelConfigured reports whether a vision model can be called.
func (c *Config) ModelConfigured() bool {
	return c.OpenAIAPIKey != ""
}

// AzureConfigured reports whether private blob downloads are enabled.
func (c *Config) AzureConfigured() bool {
	return c.AzureStorageAccount != "" && c.AzureStorageKey != ""
}

// Load reads a .env file from the working directory when present, then the
// environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv reads the environment without touching .env files and validates
// the result.
func LoadFromEnv() (*Config, error) {
	p := &parser{}
	cfg := &Config{
		HTTPAddr:               getEnvOrDefault("HTTP_ADDR", ":8080"),
		GRPCAddr:               os.Getenv("GRPC_ADDR"),
		OpenAIAPIKey:           strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIModel:            getEnvOrDefault("OPENAI_MODEL", "gpt-4o"),
		OpenAIBaseURL:          strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		VisionTemperature:      float32(p.number("VISION_TEMPERATURE", 0.2)),
		VisionMaxTokens:        int(p.integer("VISION_MAX_TOKENS", 600)),
		RequestTimeout:         p.duration("REQUEST_TIMEOUT", 60*time.Second),
		ImageFetchTimeout:      p.duration("IMAGE_FETCH_TIMEOUT", 30*time.Second),
		MaxUploadBytes:         p.integer("MAX_UPLOAD_BYTES", 10*1024*1024),
		MaxImagePixels:         int(p.integer("MAX_IMAGE_PIXELS", 40_000_000)),
		RetryAttempts:          int(p.integer("CLASSIFY_RETRY_ATTEMPTS", 1)),
		SeverityThresholdsFile: strings.TrimSpace(os.Getenv("SEVERITY_THRESHOLDS_FILE")),
		CORSAllowedOrigins:     splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*")),
		AzureStorageAccount:    strings.TrimSpace(os.Getenv("AZURE_STORAGE_ACCOUNT")),
		AzureStorageKey:        strings.TrimSpace(os.Getenv("AZURE_STORAGE_KEY")),
		LogLevel:               getEnvOrDefault("LOG_LEVEL", "info"),
	}
	if _, ok := os.LookupEnv("GRPC_ADDR"); !ok {
		cfg.GRPCAddr = ":9090"
	}
	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first setting that is out of range.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return fmt.Errorf("HTTP_ADDR must not be empty")
	}
	// go-openai drops a zero temperature from the request, so 0 would silently
	// become the provider default.
	if c.VisionTemperature <= 0 || c.VisionTemperature > 2 {
		return fmt.Errorf("VISION_TEMPERATURE must be within (0, 2] (got %v)", c.VisionTemperature)
	}
	if c.VisionMaxTokens <= 0 {
		return fmt.Errorf("VISION_MAX_TOKENS must be > 0 (got %d)", c.VisionMaxTokens)
	}
	if c.RequestTimeout <= 0 || c.ImageFetchTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, fetch=%s)", c.RequestTimeout, c.ImageFetchTimeout)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be > 0 (got %d)", c.MaxUploadBytes)
	}
	if c.MaxImagePixels <= 0 {
		return fmt.Errorf("MAX_IMAGE_PIXELS must be > 0 (got %d)", c.MaxImagePixels)
	}
	if c.RetryAttempts < 1 || c.RetryAttempts > 10 {
		return fmt.Errorf("CLASSIFY_RETRY_ATTEMPTS must be within [1, 10] (got %d)", c.RetryAttempts)
	}
	if (c.AzureStorageAccount == "") != (c.AzureStorageKey == "") {
		return fmt.Errorf("AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY must be set together")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parser records the first malformed value instead of silently using the default.
type parser struct {
	err error
}

func (p *parser) lookup(key string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	return value, value != "" && p.err == nil
}

func (p *parser) duration(key string, defaultValue time.Duration) time.Duration {
	value, ok := p.lookup(key)
	if !ok {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		p.err = fmt.Errorf("invalid %s: %q", key, value)
		return defaultValue
	}
	return d
}

func (p *parser) integer(key string, defaultValue int64) int64 {
	value, ok := p.lookup(key)
	if !ok {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		p.err = fmt.Errorf("invalid %s: %q", key, value)
		return defaultValue
	}
	return n
}

func (p *parser) number(key string, defaultValue float64) float64 {
	value, ok := p.lookup(key)
	if !ok {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		p.err = fmt.Errorf("invalid %s: %q", key, value)
		return defaultValue
	}
	return f
}
