// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone so formatted start times are stable across agents.
//  2. Read the .env file via godotenv (non-fatal if absent).
//  3. Read the build-info properties file named by BUILDINFO_PROPERTIES_FILE
//     (fatal if named but unreadable).
//  4. Inject properties, then dotenv values, into the environment without
//     overriding variables that are already set.
//  5. If APP_ENV != "local", resolve _SSM_PARAM indirections via the
//     SecretProvider and inject the resolved values into the environment.
//  6. Use envconfig to process struct tags and populate the Config struct.
//  7. Populate BuildInfo from linker-injected variables.
//  8. Validate the struct using go-playground/validator.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig to aid debugging.
// It wraps a ConfigErrorType and an underlying error message.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ssmParamSuffix is the environment variable suffix used to identify SSM
// parameter pointer variables. Any variable can be indirected this way: for
// example, PUBLISHER_USERNAME_SSM_PARAM points to the SSM path holding the value
// of PUBLISHER_USERNAME.
const ssmParamSuffix = "_SSM_PARAM"

// localEnv is the APP_ENV value that bypasses SSM resolution.
const localEnv = "local"

// propertiesFileEnv names the variable pointing at the build-info properties file.
const propertiesFileEnv = "BUILDINFO_PROPERTIES_FILE"

// dotenvFile is the dotenv file read from the working directory.
const dotenvFile = ".env"

// envLookup matches the signature of os.LookupEnv and allows injection for testing.
type envLookup func(key string) (string, bool)

// envSet matches the signature of os.Setenv and allows injection for testing.
type envSet func(key, value string) error

// environ matches the signature of os.Environ and allows injection for testing.
type environ func() []string

// fileReader parses a godotenv-format file into a key/value map.
type fileReader func(path string) (map[string]string, error)

// loaderDeps holds the injectable dependencies for the loader, enabling
// testing without mutating global state.
type loaderDeps struct {
	lookupEnv envLookup
	setEnv    envSet
	environ   environ
	readFile  fileReader
}

// defaultDeps returns the standard OS-backed dependencies.
func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
		readFile:  readEnvFile,
	}
}

func readEnvFile(path string) (map[string]string, error) {
	return godotenv.Read(path)
}

// LoadConfig loads and validates the recorder configuration.
//
// The provider parameter is the SecretProvider to use for SSM resolution.
// For local runs the provider may be nil (SSM resolution is skipped).
// For non-local environments with _SSM_PARAM variables, it must be non-nil.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfigWithDeps(provider, defaultDeps())
}

// loadConfigWithDeps is the internal implementation of LoadConfig that accepts
// injectable dependencies for testing.
func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	time.Local = time.UTC

	if err := applyFileLayers(deps); err != nil {
		return nil, err
	}

	appEnv, _ := deps.lookupEnv("APP_ENV")
	if appEnv != "" && appEnv != localEnv {
		if err := resolveSSMParams(provider, deps); err != nil {
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

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	return &cfg, nil
}

// applyFileLayers injects the properties file and the dotenv file into the
// environment. Properties outrank dotenv; neither overrides the OS environment.
// The properties file may itself be named from within the dotenv file.
func applyFileLayers(deps loaderDeps) error {
	dotenv, err := deps.readFile(dotenvFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return &ConfigError{
				Type:    ErrParsing,
				Message: "failed to parse " + dotenvFile,
				Err:     err,
			}
		}
		dotenv = nil
	}

	path, ok := deps.lookupEnv(propertiesFileEnv)
	if !ok {
		path = dotenv[propertiesFileEnv]
	}
	if path != "" {
		props, err := deps.readFile(path)
		if err != nil {
			return &ConfigError{
				Type:    ErrPropertiesFile,
				Message: fmt.Sprintf("failed to read build-info properties file %s", path),
				Err:     err,
			}
		}
		if err := injectMissing(props, deps); err != nil {
			return err
		}
	}

	return injectMissing(dotenv, deps)
}

// injectMissing sets each key that is not already present in the environment.
func injectMissing(values map[string]string, deps loaderDeps) error {
	for key, value := range values {
		if _, exists := deps.lookupEnv(key); exists {
			continue
		}
		if err := deps.setEnv(key, value); err != nil {
			return &ConfigError{
				Type:    ErrParsing,
				Message: fmt.Sprintf("failed to set %s", key),
				Err:     err,
			}
		}
	}
	return nil
}

// resolveSSMParams scans the environment for variables ending in _SSM_PARAM,
// fetches the corresponding secret values via the SecretProvider, and injects
// them back into the environment so that envconfig can process them.
//
// For example, if PUBLISHER_USERNAME_SSM_PARAM=/ci/publisher/username is set,
// PUBLISHER_USERNAME is set to the resolved value. A target variable that is
// already set is left untouched (priority: Env > SSM).
func resolveSSMParams(provider SecretProvider, deps loaderDeps) error {
	type ssmBinding struct {
		targetEnvVar string
		ssmPath      string
	}

	var bindings []ssmBinding
	ssmPathToTarget := make(map[string]string)

	for _, envEntry := range deps.environ() {
		key, ssmPath, found := strings.Cut(envEntry, "=")
		if !found || !strings.HasSuffix(key, ssmParamSuffix) {
			continue
		}

		targetEnvVar := strings.TrimSuffix(key, ssmParamSuffix)
		if _, exists := deps.lookupEnv(targetEnvVar); exists {
			continue
		}
		if ssmPath == "" {
			continue
		}

		bindings = append(bindings, ssmBinding{
			targetEnvVar: targetEnvVar,
			ssmPath:      ssmPath,
		})
		ssmPathToTarget[ssmPath] = targetEnvVar
	}

	if len(bindings) == 0 {
		return nil
	}

	targetVars := make([]string, 0, len(bindings))
	for _, b := range bindings {
		targetVars = append(targetVars, b.targetEnvVar)
	}

	if provider == nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SecretProvider is required for non-local environments (need to resolve: %s)", strings.Join(targetVars, ", ")),
		}
	}

	ssmPaths := make([]string, 0, len(bindings))
	for _, b := range bindings {
		ssmPaths = append(ssmPaths, b.ssmPath)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, ssmPaths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("failed to resolve %d SSM parameters (%s)", len(ssmPaths), strings.Join(targetVars, ", ")),
			Err:     err,
		}
	}

	for ssmPath, value := range resolved {
		targetEnvVar, ok := ssmPathToTarget[ssmPath]
		if !ok {
			continue
		}
		if err := deps.setEnv(targetEnvVar, value); err != nil {
			return &ConfigError{
				Type:    ErrSSMResolution,
				Message: fmt.Sprintf("failed to set resolved value for %s", targetEnvVar),
				Err:     err,
			}
		}
	}

	var missing []string
	for _, b := range bindings {
		if _, ok := resolved[b.ssmPath]; !ok {
			missing = append(missing, b.targetEnvVar)
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SSM parameters not found for: %s", strings.Join(missing, ", ")),
		}
	}

	return nil
}
