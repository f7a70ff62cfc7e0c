package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"game-autopilot/src/buttons"
	"game-autopilot/src/screenshot"
)

const (
	DefaultAPIKeyPath = "/run/secrets/api_keys/openrouter"
	APIKeyPathEnvVar  = "OPENROUTER_API_KEY_FILE"
	APIKeyEnvVar      = "OPENROUTER_API_KEY"
	EnvFileEnvVar     = "GAME_AUTOPILOT_ENV"

	// PlaceholderAPIKey is used when no key is configured anywhere; every
	// request then fails and the run falls back to the default button.
	PlaceholderAPIKey = "add-your-own-api-key-here"

	DefaultModel       = "openai/gpt-4o-mini"
	DefaultIterations  = 100
	DefaultAbortHotkey = "Ctrl+Alt+Q"
)

type LoadOptions struct {
	APIKeyPathOverride string
	IterationsOverride int
}

type Config struct {
	APIKey            string
	APIKeyPath        string
	Model             string
	Endpoint          string
	Providers         []string
	Iterations        int
	Region            screenshot.Region
	DebugImagePath    string
	KeyMap            buttons.KeyMap
	AbortHotkey       string
	HTTPTimeout       time.Duration
	EnableFileLogging bool
}

// HasAPIKey reports whether a real key was found.
func (c *Config) HasAPIKey() bool {
	return c.APIKey != "" && c.APIKey != PlaceholderAPIKey
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Load configuration from sources in priority order:
	// 1) .env in the application (executable) directory
	// 2) If not found, the file named by GAME_AUTOPILOT_ENV
	envPath := resolveEnvPath()
	dotenvValues := readDotenvValues(envPath)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	var providers []string
	if providersStr := os.Getenv("PROVIDERS"); providersStr != "" {
		for _, provider := range strings.Split(providersStr, ",") {
			if trimmed := strings.TrimSpace(provider); trimmed != "" {
				providers = append(providers, trimmed)
			}
		}
	}

	region := screenshot.DefaultRegion
	if v := strings.TrimSpace(os.Getenv("CAPTURE_REGION")); v != "" {
		r, err := screenshot.ParseRegion(v)
		if err != nil {
			return nil, err
		}
		region = r
	}

	keyMap, err := buttons.ParseKeyMap(os.Getenv("KEYMAP"))
	if err != nil {
		return nil, err
	}

	debugPath := screenshot.DefaultDebugPath
	if v, ok := os.LookupEnv("DEBUG_IMAGE_PATH"); ok {
		debugPath = strings.TrimSpace(v)
	}

	apiKeyPath := resolveAPIKeyPath(opts, dotenvValues)

	cfg := &Config{
		APIKey:            resolveAPIKey(apiKeyPath),
		APIKeyPath:        apiKeyPath,
		Model:             getEnvWithDefault("MODEL", DefaultModel),
		Endpoint:          strings.TrimSpace(os.Getenv("API_ENDPOINT")),
		Providers:         providers,
		Iterations:        resolveIterations(opts),
		Region:            region,
		DebugImagePath:    debugPath,
		KeyMap:            keyMap,
		AbortHotkey:       getEnvWithDefault("ABORT_HOTKEY", DefaultAbortHotkey),
		HTTPTimeout:       time.Duration(positiveInt("HTTP_TIMEOUT_SEC", 0)) * time.Second,
		EnableFileLogging: strings.ToLower(os.Getenv("ENABLE_FILE_LOGGING")) == "true",
	}

	return cfg, nil
}

func resolveEnvPath() string {
	execPath, err := os.Executable()
	if err == nil {
		exeEnv := filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(exeEnv); err == nil {
			return exeEnv
		}
	}

	if alt := os.Getenv(EnvFileEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func readDotenvValues(envPath string) map[string]string {
	if envPath == "" {
		return map[string]string{}
	}

	values, err := godotenv.Read(envPath)
	if err != nil {
		return map[string]string{}
	}

	return values
}

func resolveAPIKeyPath(opts LoadOptions, dotenvValues map[string]string) string {
	keyPath := DefaultAPIKeyPath

	if envPath := strings.TrimSpace(os.Getenv(APIKeyPathEnvVar)); envPath != "" {
		keyPath = envPath
	}

	if dotenvPath := strings.TrimSpace(dotenvValues[APIKeyPathEnvVar]); dotenvPath != "" {
		keyPath = dotenvPath
	}

	if overridePath := strings.TrimSpace(opts.APIKeyPathOverride); overridePath != "" {
		keyPath = overridePath
	}

	return keyPath
}

func resolveAPIKey(keyPath string) string {
	if data, err := os.ReadFile(keyPath); err == nil {
		if fileKey := strings.TrimSpace(string(data)); fileKey != "" {
			return fileKey
		}
	}

	if envKey := strings.TrimSpace(os.Getenv(APIKeyEnvVar)); envKey != "" {
		return envKey
	}
	return PlaceholderAPIKey
}

func resolveIterations(opts LoadOptions) int {
	if opts.IterationsOverride > 0 {
		return opts.IterationsOverride
	}
	return positiveInt("ITERATIONS", DefaultIterations)
}

func positiveInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
