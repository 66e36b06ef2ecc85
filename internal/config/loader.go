// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Load .env file via godotenv (non-fatal if absent).
//  2. Outside local mode, resolve *_SSM_PARAM references through the
//     SecretProvider and inject the values back into the environment.
//  3. Use envconfig to populate the Config struct.
//  4. Load the monitored regions (YAML file or built-in list).
//  5. Validate struct tags, then the threshold cross-checks.
package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// secretRefSuffix marks an environment variable whose value is a secret path,
// e.g. AT_API_KEY_SSM_PARAM=/prod/hazardwatch/at/api_key fills AT_API_KEY.
const secretRefSuffix = "_SSM_PARAM"

const localEnv = "local"

// secretLookupTimeout bounds a single provider batch call during startup.
const secretLookupTimeout = 30 * time.Second

// loaderDeps holds the injectable environment accessors so tests never touch
// the process environment.
type loaderDeps struct {
	lookupEnv func(key string) (string, bool)
	setEnv    func(key, value string) error
	environ   func() []string
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
	}
}

// LoadConfig loads and validates the configuration. provider may be nil in
// local mode or when no *_SSM_PARAM references are present.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfigWithDeps(provider, defaultDeps())
}

func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	_ = godotenv.Load()

	if appEnv, _ := deps.lookupEnv("APP_ENV"); appEnv != localEnv {
		if err := resolveSecretRefs(provider, deps); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}
	cfg.Build = NewBuildInfo()

	regions, err := LoadRegions(cfg.Weather.RegionsFile)
	if err != nil {
		return nil, err
	}
	cfg.Regions = regions

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}
	if err := cfg.Thresholds.Check(); err != nil {
		return nil, err
	}
	if _, err := parseClock(cfg.Scheduler.DigestTime); err != nil {
		return nil, &ConfigError{Type: ErrValidation, Message: "invalid DIGEST_TIME", Err: err}
	}
	if _, err := parseClock(cfg.Scheduler.ExpiryTime); err != nil {
		return nil, &ConfigError{Type: ErrValidation, Message: "invalid EXPIRY_TIME", Err: err}
	}

	return &cfg, nil
}

// ResolveSecrets runs only the secret-reference step. Entry points that read
// individual variables (the Lambda job runner) call it before os.Getenv.
func ResolveSecrets(provider SecretProvider) error {
	if appEnv, _ := os.LookupEnv("APP_ENV"); appEnv == localEnv {
		return nil
	}
	return resolveSecretRefs(provider, defaultDeps())
}

// resolveSecretRefs fills every TARGET for which TARGET_SSM_PARAM is set and
// TARGET itself is not. Directly set variables always win.
func resolveSecretRefs(provider SecretProvider, deps loaderDeps) error {
	refs := make(map[string]string) // secret path -> target variable
	for _, entry := range deps.environ() {
		key, path, ok := strings.Cut(entry, "=")
		if !ok || path == "" || !strings.HasSuffix(key, secretRefSuffix) {
			continue
		}
		target := strings.TrimSuffix(key, secretRefSuffix)
		if _, set := deps.lookupEnv(target); set {
			continue
		}
		refs[path] = target
	}
	if len(refs) == 0 {
		return nil
	}

	paths := make([]string, 0, len(refs))
	for p := range refs {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	if provider == nil {
		targets := make([]string, 0, len(paths))
		for _, p := range paths {
			targets = append(targets, refs[p])
		}
		return &ConfigError{
			Type:    ErrSecretResolution,
			Message: fmt.Sprintf("a SecretProvider is required to resolve: %s", strings.Join(targets, ", ")),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), secretLookupTimeout)
	defer cancel()

	values, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSecretResolution,
			Message: fmt.Sprintf("failed to resolve %d secret references", len(paths)),
			Err:     err,
		}
	}

	var missing []string
	for _, p := range paths {
		v, ok := values[p]
		if !ok {
			missing = append(missing, refs[p])
			continue
		}
		if err := deps.setEnv(refs[p], v); err != nil {
			return &ConfigError{
				Type:    ErrSecretResolution,
				Message: fmt.Sprintf("failed to set resolved value for %s", refs[p]),
				Err:     err,
			}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSecretResolution,
			Message: fmt.Sprintf("secret references not found for: %s", strings.Join(missing, ", ")),
		}
	}
	return nil
}
