package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  index_dir: "/tmp/kessan-index"
generation:
  timeout: 15s
embedding:
  max_retries: 2
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.IndexDir != "/tmp/kessan-index" {
		t.Errorf("index_dir = %s", cfg.Storage.IndexDir)
	}
	if cfg.Generation.Timeout != 15*time.Second {
		t.Errorf("generation timeout = %v, want 15s", cfg.Generation.Timeout)
	}
	if cfg.Embedding.MaxRetries != 2 {
		t.Errorf("embedding max_retries = %d, want 2", cfg.Embedding.MaxRetries)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("debug: true\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_invalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  index_dir: "./data/index"
  export_dir: "./exports"
watch:
  directories: ["./inbox"]
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "data", "index"); cfg.Storage.IndexDir != want {
		t.Errorf("index_dir = %s, want %s", cfg.Storage.IndexDir, want)
	}
	if want := filepath.Join(dir, "exports"); cfg.Storage.ExportDir != want {
		t.Errorf("export_dir = %s, want %s", cfg.Storage.ExportDir, want)
	}
	if len(cfg.Watch.Directories) != 1 {
		t.Fatalf("watch directories: got %d", len(cfg.Watch.Directories))
	}
	if want := filepath.Join(dir, "inbox"); cfg.Watch.Directories[0] != want {
		t.Errorf("watch directory = %s, want %s", cfg.Watch.Directories[0], want)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Chunking.ChunkSize != 1000 || cfg.Chunking.ChunkOverlap != 200 {
		t.Errorf("chunking defaults: got %+v", cfg.Chunking)
	}
	if cfg.Generation.Temperature != 0.1 {
		t.Errorf("default temperature: got %f", cfg.Generation.Temperature)
	}
	if cfg.Ingest.MaxFileSize != 50*1024*1024 {
		t.Errorf("default max file size: got %d", cfg.Ingest.MaxFileSize)
	}
	if len(cfg.Ingest.Extensions) != 1 || cfg.Ingest.Extensions[0] != ".pdf" {
		t.Errorf("default extensions: got %v", cfg.Ingest.Extensions)
	}
	if cfg.Search.KeywordWeight != 0.3 || cfg.Search.SemanticWeight != 0.7 {
		t.Errorf("when both weights are zero they should default to 0.3/0.7; got %f/%f",
			cfg.Search.KeywordWeight, cfg.Search.SemanticWeight)
	}
	if cfg.Search.IndexType != "hnsw" {
		t.Errorf("default index type: got %s", cfg.Search.IndexType)
	}
	if cfg.Embedding.Provider != "mock" {
		t.Errorf("default embedding provider: got %s", cfg.Embedding.Provider)
	}
	if cfg.Embedding.MaxRetries != 0 {
		t.Errorf("embedding calls should not be retried by default; max_retries = %d", cfg.Embedding.MaxRetries)
	}
}

func TestApplyDefaults_keepsExplicitWeights(t *testing.T) {
	cfg := &Config{Search: SearchConfig{SemanticWeight: 1}}
	ApplyDefaults(cfg)
	if cfg.Search.KeywordWeight != 0 || cfg.Search.SemanticWeight != 1 {
		t.Errorf("explicit weights overwritten: %+v", cfg.Search)
	}
}

func TestApplyDefaults_WatchRecursiveWhenDirectoriesSet(t *testing.T) {
	cfg := &Config{Watch: WatchConfig{Directories: []string{"/tmp/inbox"}}}
	ApplyDefaults(cfg)
	if cfg.Watch.Recursive == nil || !*cfg.Watch.Recursive {
		t.Error("recursive should default to true when directories are set")
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		w := &WatchConfig{}
		if got := w.RecursiveOrDefault(); !got {
			t.Errorf("RecursiveOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		w := &WatchConfig{Recursive: &f}
		if got := w.RecursiveOrDefault(); got {
			t.Errorf("RecursiveOrDefault() = %v, want false", got)
		}
	})
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("KESSAN_TEST_KEY=from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KESSAN_TEST_KEY", "")
	os.Unsetenv("KESSAN_TEST_KEY")

	if err := LoadEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatal(err)
	}
	if got := APIKey("KESSAN_TEST_KEY"); got != "from-file" {
		t.Errorf("APIKey = %q, want from-file", got)
	}
	if got := APIKey(""); got != "" {
		t.Errorf("APIKey(\"\") = %q, want empty", got)
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{IndexDir: "/tmp/index"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
}
