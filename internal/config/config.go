// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/rohanprabhu-jm/confinity/internal/issue"
)

const (
	// AppName is the application name.
	AppName = "confinity"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "CONFINITY"

	maxConfigFileSize = 1 << 20
	keyDelimiter      = "::"
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the confinity configuration directory using platform-specific
// conventions: Windows uses %APPDATA%, macOS uses ~/Library/Application Support,
// and Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default:
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// FilePath returns the config file that Load reads for opts, whether or not it exists.
func FilePath(opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		return opts.ConfigFilePath, nil
	}
	dir, err := configDirWithOverride(opts.ConfigDirPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName+"."+ConfigFileExt), nil
}

// loadWithOptions performs option-driven config loading without mutating
// package-level state. It returns the file that was read, or "" for defaults.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := newViper(opts.Environ)

	resolvedPath := ""
	path, err := FilePath(opts)
	if err != nil {
		return nil, "", err
	}

	switch {
	case fileExists(path):
		if err := loadCUEIntoViper(v, path); err != nil {
			return nil, "", loadFailure(path, err)
		}
		resolvedPath = path
	case opts.ConfigFilePath != "":
		return nil, "", issue.NewErrorContext().
			WithOperation("load configuration").
			WithResource(path).
			WithSuggestion("Verify the file path is correct").
			WithSuggestion("Use 'confinity config init' to create a default configuration").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(fmt.Errorf("config file not found: %s", path)).
			BuildError()
	}

	var cfg Config
	decode := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decode); err != nil {
		return nil, "", loadFailure(path, fmt.Errorf("failed to parse config: %w", err))
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithSuggestion("Run 'confinity config show' to see the effective values").
			WithSuggestion("Check " + EnvPrefix + "_* environment variables for stale overrides").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(err).
			BuildError()
	}

	return &cfg, resolvedPath, nil
}

// newViper creates a Viper instance seeded with defaults and env overrides.
// A nil environ reads the process environment.
func newViper(environ []string) *viper.Viper {
	// Suffix map keys contain dots, so nested keys use a different delimiter.
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))

	defaults := DefaultConfig()
	v.SetDefault("engine", string(defaults.Engine))
	v.SetDefault("engine_host", defaults.EngineHost)
	v.SetDefault("image_name", defaults.ImageName)
	v.SetDefault("base_image", defaults.BaseImage)
	v.SetDefault("cleanup_interval", defaults.CleanupInterval.String())
	v.SetDefault("cleanup_concurrency", defaults.CleanupConcurrency)
	v.SetDefault("leak_after", defaults.LeakAfter)
	v.SetDefault("call_timeout", defaults.CallTimeout.String())
	v.SetDefault("staging::dir", defaults.Staging.Dir)
	v.SetDefault("staging::keep", defaults.Staging.Keep)
	v.SetDefault("vendored", defaults.Vendored)
	v.SetDefault("vendored_suffixes", defaults.VendoredSuffixes)
	v.SetDefault("log::level", defaults.Log.Level)

	if environ == nil {
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
		v.AutomaticEnv()
		return v
	}

	// Explicit environments are applied as overrides so tests stay hermetic.
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix+"_") {
			continue
		}
		key := envKey(strings.TrimPrefix(name, EnvPrefix+"_"), v.AllKeys())
		if key != "" {
			v.Set(key, value)
		}
	}
	return v
}

// envKey maps an upper-case env suffix (STAGING_KEEP) to its config key (staging::keep).
func envKey(suffix string, keys []string) string {
	want := strings.ToLower(suffix)
	i := slices.IndexFunc(keys, func(k string) bool {
		return strings.ReplaceAll(k, keyDelimiter, "_") == want
	})
	if i < 0 {
		return ""
	}
	return keys[i]
}

func loadFailure(path string, err error) error {
	return issue.NewErrorContext().
		WithOperation("load configuration").
		WithResource(path).
		WithSuggestion("Check that the file contains valid CUE syntax").
		WithSuggestion("Verify the configuration values match the expected schema").
		WithSuggestion("Run 'confinity config init --force' to start over from defaults").
		WithIssue(issue.ConfigLoadFailedId).
		Wrap(err).
		BuildError()
}

// configDirWithOverride resolves the configuration directory, honoring
// explicit provider options before platform defaults.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}

	return ConfigDir()
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config schema,
// and merges its contents into Viper. Fields are optional, so validation does
// not require concrete values.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > maxConfigFileSize {
		return fmt.Errorf("%s: file size %d exceeds the %d byte limit", path, len(data), maxConfigFileSize)
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return formatCUEError(userValue.Err(), path)
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return formatCUEError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return formatCUEError(err, path)
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}

	return nil
}

// formatCUEError flattens CUE errors into "path: message" lines.
func formatCUEError(err error, filePath string) error {
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return fmt.Errorf("%s: %w", filePath, err)
	}

	lines := make([]string, 0, len(list))
	for _, e := range list {
		path := strings.Join(cueerrors.Path(e), ".")
		msg := e.Error()
		if path != "" && strings.HasPrefix(msg, path) {
			msg = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(msg, path), ":"))
		}
		if path != "" {
			lines = append(lines, path+": "+msg)
		} else {
			lines = append(lines, msg)
		}
	}

	if len(lines) == 1 {
		return fmt.Errorf("%s: %s", filePath, lines[0])
	}
	return fmt.Errorf("%s: validation failed:\n  %s", filePath, strings.Join(lines, "\n  "))
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// Init writes the default configuration to the file Load would read. An
// existing file is left untouched unless force is set.
func Init(opts LoadOptions, force bool) (path string, created bool, err error) {
	path, err = FilePath(opts)
	if err != nil {
		return "", false, err
	}
	if fileExists(path) && !force {
		return path, false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return "", false, fmt.Errorf("failed to write config file: %w", err)
	}
	return path, true, nil
}

// GenerateCUE generates a CUE representation of the configuration
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// Confinity Configuration File\n\n")

	fmt.Fprintf(&sb, "engine: %q\n", cfg.Engine)
	if cfg.EngineHost != "" {
		fmt.Fprintf(&sb, "engine_host: %q\n", cfg.EngineHost)
	}
	fmt.Fprintf(&sb, "image_name: %q\n", cfg.ImageName)
	fmt.Fprintf(&sb, "base_image: %q\n", cfg.BaseImage)

	sb.WriteString("\n// Background reaper\n")
	fmt.Fprintf(&sb, "cleanup_interval: %q\n", cfg.CleanupInterval)
	fmt.Fprintf(&sb, "cleanup_concurrency: %d\n", cfg.CleanupConcurrency)
	fmt.Fprintf(&sb, "leak_after: %d\n", cfg.LeakAfter)
	fmt.Fprintf(&sb, "call_timeout: %q\n", cfg.CallTimeout)

	sb.WriteString("\nstaging: {\n")
	if cfg.Staging.Dir != "" {
		fmt.Fprintf(&sb, "\tdir: %q\n", cfg.Staging.Dir)
	}
	fmt.Fprintf(&sb, "\tkeep: %v\n", cfg.Staging.Keep)
	sb.WriteString("}\n")

	if len(cfg.Vendored) > 0 {
		sb.WriteString("\nvendored: [\n")
		for _, p := range cfg.Vendored {
			fmt.Fprintf(&sb, "\t%q,\n", p)
		}
		sb.WriteString("]\n")
	}

	if len(cfg.VendoredSuffixes) > 0 {
		sb.WriteString("\nvendored_suffixes: {\n")
		for _, from := range slices.Sorted(maps.Keys(cfg.VendoredSuffixes)) {
			fmt.Fprintf(&sb, "\t%q: %q\n", from, cfg.VendoredSuffixes[from])
		}
		sb.WriteString("}\n")
	}

	sb.WriteString("\nlog: {\n")
	fmt.Fprintf(&sb, "\tlevel: %q\n", cfg.Log.Level)
	sb.WriteString("}\n")

	return sb.String()
}
