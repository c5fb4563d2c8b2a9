// Package config loads the application configuration from the global and
// per-repository files and normalizes the ignore-pattern value, which may
// arrive either as a plain list (legacy form) or as a pattern-to-enabled
// mapping (current form).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/viper"

	"github.com/temirov/revscope/internal/utils"
)

// LoadOptions controls how application configuration is discovered.
type LoadOptions struct {
	WorkingDirectory string
	ExplicitFilePath string
}

// ApplicationConfiguration holds the revscope settings. IgnorePatterns keeps
// the raw decoded value; EnabledIgnorePatterns normalizes it.
type ApplicationConfiguration struct {
	TargetRef       string `mapstructure:"target_ref"`
	SourceRef       string `mapstructure:"source_ref"`
	Instructions    string `mapstructure:"instructions"`
	ListenAddress   string `mapstructure:"listen_address"`
	LogLevel        string `mapstructure:"log_level"`
	CopyToClipboard *bool  `mapstructure:"copy_to_clipboard"`
	WatchEnabled    *bool  `mapstructure:"watch_enabled"`
	IgnorePatterns  any    `mapstructure:"ignore_patterns"`
}

// LoadApplicationConfiguration loads configuration from the global file under
// the user home and the per-repository file, later files merging over
// earlier. Absent files are not errors.
func LoadApplicationConfiguration(options LoadOptions) (ApplicationConfiguration, error) {
	workingDirectory := options.WorkingDirectory
	if workingDirectory == "" {
		currentDirectory, workingDirectoryError := os.Getwd()
		if workingDirectoryError != nil {
			return ApplicationConfiguration{}, fmt.Errorf("determine working directory: %w", workingDirectoryError)
		}
		workingDirectory = currentDirectory
	}

	var merged ApplicationConfiguration

	if homeDirectory, homeError := os.UserHomeDir(); homeError == nil && homeDirectory != "" {
		globalPath := filepath.Join(homeDirectory, utils.GlobalConfigDirectoryName, utils.ConfigFileName)
		globalConfiguration, loadError := loadConfigurationFromPath(globalPath)
		if loadError != nil {
			return ApplicationConfiguration{}, loadError
		}
		merged = merged.Merge(globalConfiguration)
	}

	localPath, resolveError := resolveLocalConfigPath(workingDirectory, options.ExplicitFilePath)
	if resolveError != nil {
		return ApplicationConfiguration{}, resolveError
	}
	if localPath != "" {
		localConfiguration, loadError := loadConfigurationFromPath(localPath)
		if loadError != nil {
			return ApplicationConfiguration{}, loadError
		}
		merged = merged.Merge(localConfiguration)
	}

	return merged, nil
}

func resolveLocalConfigPath(workingDirectory, explicitPath string) (string, error) {
	if explicitPath != "" {
		if filepath.IsAbs(explicitPath) {
			return explicitPath, nil
		}
		if workingDirectory == "" {
			absolutePath, absoluteError := filepath.Abs(explicitPath)
			if absoluteError != nil {
				return "", fmt.Errorf("resolve configuration path %s: %w", explicitPath, absoluteError)
			}
			return absolutePath, nil
		}
		return filepath.Join(workingDirectory, explicitPath), nil
	}
	if workingDirectory == "" {
		return "", nil
	}
	return filepath.Join(workingDirectory, utils.ConfigFileName), nil
}

func loadConfigurationFromPath(path string) (ApplicationConfiguration, error) {
	if path == "" {
		return ApplicationConfiguration{}, nil
	}
	pathInfo, statError := os.Stat(path)
	if statError != nil {
		if os.IsNotExist(statError) {
			return ApplicationConfiguration{}, nil
		}
		return ApplicationConfiguration{}, fmt.Errorf("stat configuration %s: %w", path, statError)
	}
	if pathInfo.IsDir() {
		return ApplicationConfiguration{}, fmt.Errorf("configuration path %s is a directory", path)
	}

	reader := viper.New()
	reader.SetConfigFile(path)
	if readError := reader.ReadInConfig(); readError != nil {
		return ApplicationConfiguration{}, fmt.Errorf("read configuration from %s: %w", path, readError)
	}
	var configuration ApplicationConfiguration
	if decodeError := reader.Unmarshal(&configuration); decodeError != nil {
		return ApplicationConfiguration{}, fmt.Errorf("decode configuration from %s: %w", path, decodeError)
	}
	return configuration, nil
}

// Merge overlays override onto the receiver returning the combined
// configuration. Scalar fields replace when set; the ignore-pattern value
// replaces wholesale, never element-wise.
func (configuration ApplicationConfiguration) Merge(override ApplicationConfiguration) ApplicationConfiguration {
	result := configuration
	if override.TargetRef != "" {
		result.TargetRef = override.TargetRef
	}
	if override.SourceRef != "" {
		result.SourceRef = override.SourceRef
	}
	if override.Instructions != "" {
		result.Instructions = override.Instructions
	}
	if override.ListenAddress != "" {
		result.ListenAddress = override.ListenAddress
	}
	if override.LogLevel != "" {
		result.LogLevel = override.LogLevel
	}
	if override.CopyToClipboard != nil {
		result.CopyToClipboard = cloneBool(override.CopyToClipboard)
	}
	if override.WatchEnabled != nil {
		result.WatchEnabled = cloneBool(override.WatchEnabled)
	}
	if override.IgnorePatterns != nil {
		result.IgnorePatterns = override.IgnorePatterns
	}
	return result
}

// EnabledIgnorePatterns returns the normalized flat pattern list of the
// configured value.
func (configuration ApplicationConfiguration) EnabledIgnorePatterns() []string {
	return NormalizeIgnorePatterns(configuration.IgnorePatterns)
}

// NormalizeIgnorePatterns flattens the two accepted ignore-pattern forms.
// The legacy list form preserves declared order; the map form keeps only
// enabled entries, sorted lexicographically because map order is undefined.
// Any other shape yields nil.
func NormalizeIgnorePatterns(value any) []string {
	switch typedValue := value.(type) {
	case []string:
		return utils.DeduplicatePatterns(typedValue)
	case []any:
		patterns := make([]string, 0, len(typedValue))
		for _, element := range typedValue {
			if patternValue, isString := element.(string); isString {
				patterns = append(patterns, patternValue)
			}
		}
		return utils.DeduplicatePatterns(patterns)
	case map[string]bool:
		patterns := make([]string, 0, len(typedValue))
		for patternValue, enabled := range typedValue {
			if enabled {
				patterns = append(patterns, patternValue)
			}
		}
		sort.Strings(patterns)
		return patterns
	case map[string]any:
		patterns := make([]string, 0, len(typedValue))
		for patternValue, rawEnabled := range typedValue {
			if enabled, isBool := rawEnabled.(bool); isBool && enabled {
				patterns = append(patterns, patternValue)
			}
		}
		sort.Strings(patterns)
		return patterns
	default:
		return nil
	}
}

func cloneBool(value *bool) *bool {
	if value == nil {
		return nil
	}
	cloned := *value
	return &cloned
}
