package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func clearCredentialEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GOOGLE_API_KEY", "GEMINI_API_KEY",
		"GOOGLE_CLOUD_PROJECT", "GOOGLE_CLOUD_LOCATION",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestConnectConfigAPIMode(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("GEMINI_API_KEY", "key-from-env")

	cfg, err := connectConfig(&options{model: defaultModel})
	if err != nil {
		t.Fatalf("connectConfig: %v", err)
	}
	if cfg.Vertex {
		t.Fatal("Vertex = true, want false")
	}
	if cfg.APIKey != "key-from-env" {
		t.Fatalf("APIKey = %q, want %q", cfg.APIKey, "key-from-env")
	}
	if cfg.MediaType != "audio/pcm;rate=24000" {
		t.Fatalf("MediaType = %q, want explicit rate tag", cfg.MediaType)
	}
}

func TestConnectConfigAPIModeMissingKey(t *testing.T) {
	clearCredentialEnv(t)

	_, err := connectConfig(&options{model: defaultModel})
	var cfgErr *configError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want configError", err)
	}
}

func TestConnectConfigVertexMode(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("GOOGLE_CLOUD_PROJECT", "my-project")

	cfg, err := connectConfig(&options{model: defaultModel, vertex: true})
	if err != nil {
		t.Fatalf("connectConfig: %v", err)
	}
	if !cfg.Vertex || cfg.Project != "my-project" {
		t.Fatalf("cfg = %+v, want vertex mode with project", cfg)
	}
	if cfg.Location != defaultLocation {
		t.Fatalf("Location = %q, want default %q", cfg.Location, defaultLocation)
	}
	if cfg.MediaType != "audio/pcm" {
		t.Fatalf("MediaType = %q, want bare tag", cfg.MediaType)
	}
}

func TestConnectConfigVertexModeMissingProject(t *testing.T) {
	clearCredentialEnv(t)

	_, err := connectConfig(&options{model: defaultModel, vertex: true})
	var cfgErr *configError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want configError", err)
	}
}

func TestMergeFlagsBeatFileBeatsDefaults(t *testing.T) {
	vertexOn := true
	file := &settings{
		Model:        "file-model",
		Voice:        "file-voice",
		Vertex:       &vertexOn,
		QueueSeconds: 10,
	}

	opt := &options{model: "flag-model"}
	flagSet := func(name string) bool { return false }
	opt.merge(file, flagSet)

	if opt.model != "flag-model" {
		t.Fatalf("model = %q, want flag value to win", opt.model)
	}
	if opt.voice != "file-voice" {
		t.Fatalf("voice = %q, want file value", opt.voice)
	}
	if !opt.vertex {
		t.Fatal("vertex = false, want file value applied")
	}
	if opt.queueSeconds != 10 {
		t.Fatalf("queueSeconds = %d, want 10", opt.queueSeconds)
	}
}

func TestMergeExplicitFlagBlocksFileValue(t *testing.T) {
	vertexOn := true
	file := &settings{Vertex: &vertexOn}

	opt := &options{}
	flagSet := func(name string) bool { return name == "vertex" }
	opt.merge(file, flagSet)

	if opt.vertex {
		t.Fatal("vertex = true, want explicit flag value (false) preserved")
	}
}

func TestMergeFallsBackToDefaultModel(t *testing.T) {
	opt := &options{}
	opt.merge(&settings{}, func(string) bool { return false })
	if opt.model != defaultModel {
		t.Fatalf("model = %q, want %q", opt.model, defaultModel)
	}
}

func TestLoadSettingsExplicitMissingFileFails(t *testing.T) {
	if _, err := loadSettings(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("loadSettings with missing explicit path returned nil error")
	}
}

func TestLoadSettingsParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "" +
		"model: gemini-2.0-flash-live-001\n" +
		"voice: Puck\n" +
		"system_prompt: keep answers short\n" +
		"vertex: true\n" +
		"queue_seconds: 15\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	s, err := loadSettings(path)
	if err != nil {
		t.Fatalf("loadSettings: %v", err)
	}
	if s.Model != "gemini-2.0-flash-live-001" || s.Voice != "Puck" {
		t.Fatalf("settings = %+v, want parsed model and voice", s)
	}
	if s.Vertex == nil || !*s.Vertex {
		t.Fatal("Vertex not parsed as true")
	}
	if s.QueueSeconds != 15 {
		t.Fatalf("QueueSeconds = %d, want 15", s.QueueSeconds)
	}
}

func TestRootCmdRejectsArgs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"unexpected"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("Execute with positional arg returned nil error")
	}
}
