package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// settings is the optional YAML config file. Flags always win over file
// values; file values win over built-in defaults.
type settings struct {
	Model        string `yaml:"model"`
	Voice        string `yaml:"voice"`
	SystemPrompt string `yaml:"system_prompt"`
	Vertex       *bool  `yaml:"vertex"`
	QueueSeconds int    `yaml:"queue_seconds"`
}

// loadSettings reads the file at path, or the default config location
// when path is empty. An explicit path must exist; the default location
// is optional.
func loadSettings(path string) (*settings, error) {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		dir, err := os.UserConfigDir()
		if err != nil {
			return &settings{}, nil
		}
		path = filepath.Join(dir, "vai-talk", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return &settings{}, nil
		}
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	var s settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return &s, nil
}

// merge fills unset options from file settings. flagSet reports whether
// the named flag was given on the command line.
func (o *options) merge(s *settings, flagSet func(name string) bool) {
	if o.model == "" && s.Model != "" {
		o.model = s.Model
	}
	if o.voice == "" && s.Voice != "" {
		o.voice = s.Voice
	}
	if o.system == "" && s.SystemPrompt != "" {
		o.system = s.SystemPrompt
	}
	if !flagSet("vertex") && s.Vertex != nil {
		o.vertex = *s.Vertex
	}
	if !flagSet("queue-seconds") && s.QueueSeconds > 0 {
		o.queueSeconds = s.QueueSeconds
	}
	if o.model == "" {
		o.model = defaultModel
	}
}

func getenvFirst(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}
