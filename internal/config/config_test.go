package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Embedder.Type != "gemini" || cfg.Embedder.Gemini.Model != "text-embedding-004" {
		t.Fatalf("embedder defaults: %+v", cfg.Embedder)
	}
	if cfg.Retrieval.TopK != 5 || cfg.Retrieval.Threshold != 0.3 {
		t.Fatalf("retrieval defaults: %+v", cfg.Retrieval)
	}
	if cfg.Generator.TimeoutSecs != 60 || cfg.Store.Location != "data/vector_store.json" {
		t.Fatalf("generator/store defaults: %+v %+v", cfg.Generator, cfg.Store)
	}
}

func TestLoadOverridesAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
embedder:
  type: openai
retrieval:
  top_k: 3
  threshold: 0
store:
  location: s3://cases/vector_store.json
  s3:
    region: eu-west-1
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Embedder.OpenAI == nil || cfg.Embedder.OpenAI.APIKeyEnv != "OPENAI_API_KEY" || cfg.Embedder.OpenAI.BatchSize != 32 {
		t.Fatalf("openai defaults not applied: %+v", cfg.Embedder.OpenAI)
	}
	if cfg.Retrieval.TopK != 3 || cfg.Retrieval.Threshold != 0 {
		t.Fatalf("retrieval: %+v", cfg.Retrieval)
	}
	if cfg.Store.S3 == nil || cfg.Store.S3.Region != "eu-west-1" {
		t.Fatalf("store: %+v", cfg.Store)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("unset section lost its default: %+v", cfg.Log)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"embedder":  "embedder:\n  type: word2vec\n",
		"generator": "generator:\n  type: gpt\n",
		"threshold": "retrieval:\n  threshold: 2\n",
		"syntax":    "retrieval: [\n",
	}
	for name, yml := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Retrieval.TopK = 7
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Retrieval.TopK != 7 {
		t.Fatalf("top_k = %d", got.Retrieval.TopK)
	}
}

func TestLoadDefaultWritesUserConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	chdir(t, t.TempDir())

	cfg, path, err := LoadDefault()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(path, home) {
		t.Fatalf("config written to %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not saved: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("server addr %q", cfg.Server.Addr)
	}
}

func TestLoadEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("RENTCASE_TEST_A=file\nRENTCASE_TEST_B=file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RENTCASE_TEST_A", "env")
	t.Setenv("RENTCASE_TEST_B", "")
	os.Unsetenv("RENTCASE_TEST_B")

	if err := LoadEnv(); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("RENTCASE_TEST_A"); got != "env" {
		t.Fatalf("A = %q", got)
	}
	if got := os.Getenv("RENTCASE_TEST_B"); got != "file" {
		t.Fatalf("B = %q", got)
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
