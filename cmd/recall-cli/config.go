package main

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// profileConfig holds connection settings for a single profile.
type profileConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// configFile is ~/.recall/config.yaml. The flat url/api_key form is read
// when no profile matches.
type configFile struct {
	URL           string                   `yaml:"url,omitempty"`
	APIKey        string                   `yaml:"api_key,omitempty"`
	Profiles      map[string]profileConfig `yaml:"profiles,omitempty"`
	ActiveProfile string                   `yaml:"active_profile,omitempty"`
}

// active returns the settings of the active profile, falling back to the
// flat fields for anything the profile leaves empty.
func (f *configFile) active() profileConfig {
	out := profileConfig{URL: f.URL, APIKey: f.APIKey}

	name := f.ActiveProfile
	if name == "" {
		name = "default"
	}
	if p, ok := f.Profiles[name]; ok {
		if p.URL != "" {
			out.URL = p.URL
		}
		if p.APIKey != "" {
			out.APIKey = p.APIKey
		}
	}
	return out
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".recall", "config.yaml"), nil
}

func readConfigFile() (string, *configFile, error) {
	path, err := configPath()
	if err != nil {
		return "", nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return path, nil, err
	}
	var cfg configFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return path, nil, err
	}
	return path, &cfg, nil
}

// resolveConfig fills flagURL and flagKey. An explicit flag wins, then the
// environment, then the config file. A missing or unreadable file is ignored.
func resolveConfig() {
	if flagURL == defaultURL {
		if v := os.Getenv("RECALL_URL"); v != "" {
			flagURL = v
		}
	}
	if flagKey == "" {
		flagKey = os.Getenv("RECALL_API_KEY")
	}

	_, cfg, err := readConfigFile()
	if err != nil {
		return
	}

	p := cfg.active()
	if flagURL == defaultURL && p.URL != "" {
		flagURL = p.URL
	}
	if flagKey == "" && p.APIKey != "" {
		flagKey = p.APIKey
	}
}

// writeConfig stores url and apiKey as the default profile.
func writeConfig(url, apiKey string) (string, error) {
	path, err := configPath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}

	data, err := yaml.Marshal(configFile{
		Profiles:      map[string]profileConfig{"default": {URL: url, APIKey: apiKey}},
		ActiveProfile: "default",
	})
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
