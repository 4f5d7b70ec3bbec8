package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osLookupEnv = os.LookupEnv
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/relayctl"
	projectConfigDir = ".relayctl"
	configFileName   = "config.yaml"
)

// StorePath returns the settings store location. FILE_PATH is the only key
// that cannot come from the store itself, so it is resolved from the
// environment or the built-in default.
func StorePath() string {
	return filepath.Join(workDir(), StoreFileName)
}

func workDir() string {
	if v, ok := osLookupEnv(KeyFilePath); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return DefaultFilePath
}

// LoadSettings takes a fresh Settings snapshot by layering defaults, the
// persisted store and the environment, in increasing precedence.
func LoadSettings() (Settings, error) {
	store := NewStore(StorePath())
	stored, err := store.Read()
	if err != nil {
		return Settings{}, fmt.Errorf("error reading settings store %s: %w", store.Path(), err)
	}
	return Parse(MergeValues(DefaultValues(), stored, EnvironmentValues()))
}

// CurrentValues returns the merged key/value mapping LoadSettings would parse.
func CurrentValues() (map[string]string, error) {
	stored, err := NewStore(StorePath()).Read()
	if err != nil {
		return nil, err
	}
	return MergeValues(DefaultValues(), stored, EnvironmentValues()), nil
}

// EnvironmentValues collects every recognized key set in the environment.
func EnvironmentValues() map[string]string {
	values := make(map[string]string)
	for _, key := range append([]string{KeyFilePath}, Keys...) {
		if v, ok := osLookupEnv(key); ok {
			values[key] = v
		}
	}
	return values
}

// MergeValues merges layers left to right. Later layers override earlier
// ones, but an empty value never overrides.
func MergeValues(layers ...map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			merged[k] = v
		}
	}
	return merged
}

// Parse converts a merged key/value mapping into validated Settings.
func Parse(values map[string]string) (Settings, error) {
	var errs ValidationErrors

	s := Settings{
		UUID:        values[KeyUUID],
		UploadURL:   strings.TrimRight(values[KeyUploadURL], "/"),
		ProjectURL:  strings.TrimRight(values[KeyProjectURL], "/"),
		FilePath:    values[KeyFilePath],
		SubPath:     values[KeySubPath],
		NezhaServer: values[KeyNezhaServer],
		NezhaPort:   values[KeyNezhaPort],
		NezhaKey:    values[KeyNezhaKey],
		ArgoDomain:  values[KeyArgoDomain],
		ArgoAuth:    values[KeyArgoAuth],
		CFIP:        values[KeyCFIP],
		CFPort:      values[KeyCFPort],
		Name:        values[KeyName],
	}

	if raw := values[KeyAutoAccess]; raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			errs.Add(KeyAutoAccess, fmt.Sprintf("must be true or false, got %q", raw))
		}
		s.AutoAccess = b
	}

	if raw := values[KeyArgoPort]; raw != "" {
		port, err := parsePort(raw)
		if err != nil {
			errs.Add(KeyArgoPort, err.Error())
		}
		s.ArgoPort = port
	}

	if s.FilePath == "" {
		s.FilePath = DefaultFilePath
	}
	if s.SubPath == "" {
		s.SubPath = DefaultSubPath
	}
	if s.ArgoPort == 0 && values[KeyArgoPort] == "" {
		s.ArgoPort = DefaultArgoPort
	}

	errs = append(errs, validateSettings(s)...)
	if errs.HasErrors() {
		return Settings{}, FormatValidationError("settings", "", errs)
	}
	return s, nil
}

// LoadRuntime loads runtime tuning. With an explicit path only that file is
// layered over the defaults; otherwise the user and project files are
// layered in that order when they exist.
func LoadRuntime(explicitPath string) (Runtime, error) {
	rt := GetDefaultRuntime()

	if explicitPath != "" {
		if err := mergeRuntimeFile(&rt, explicitPath); err != nil {
			return Runtime{}, fmt.Errorf("error loading runtime config from %s: %w", explicitPath, err)
		}
		if err := validateRuntime(rt); err != nil {
			return Runtime{}, err
		}
		return rt, nil
	}

	userPath, err := getUserConfigPath()
	if err != nil {
		// User config is optional
		fmt.Fprintf(os.Stderr, "Warning: Could not determine user config path: %v\n", err)
	} else if _, statErr := os.Stat(userPath); statErr == nil {
		if err := mergeRuntimeFile(&rt, userPath); err != nil {
			return Runtime{}, fmt.Errorf("error loading user config from %s: %w", userPath, err)
		}
	}

	projectPath, err := getProjectConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not determine project config path: %v\n", err)
	} else if _, statErr := os.Stat(projectPath); statErr == nil {
		if err := mergeRuntimeFile(&rt, projectPath); err != nil {
			return Runtime{}, fmt.Errorf("error loading project config from %s: %w", projectPath, err)
		}
	}

	if err := validateRuntime(rt); err != nil {
		return Runtime{}, err
	}
	return rt, nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// mergeRuntimeFile decodes a YAML file on top of rt. Fields absent from the
// file keep their current values.
func mergeRuntimeFile(rt *Runtime, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, rt)
}

func parsePort(raw string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("must be a number, got %q", raw)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("must be between 1 and 65535, got %d", port)
	}
	return port, nil
}
