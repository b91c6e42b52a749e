package config

import (
	"strings"
	"testing"
)

func setRequiredSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("ATLAS_GROQ_API_KEY", "gk-test")
	t.Setenv("ATLAS_B2_KEY_ID", "b2-key-id")
	t.Setenv("ATLAS_B2_APPLICATION_KEY", "b2-app-key")
	t.Setenv("ATLAS_B2_BUCKET", "atlas-files")
	t.Setenv("ATLAS_CHROMA_API_KEY", "ck-test")
}

func TestDefaults(t *testing.T) {
	setRequiredSecrets(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Groq.Model != "llama-3.3-70b-versatile" {
		t.Errorf("Groq.Model = %q, want llama-3.3-70b-versatile", cfg.Groq.Model)
	}
	if cfg.Chunking.Size != 500 || cfg.Chunking.Overlap != 50 {
		t.Errorf("Chunking = %+v, want size 500 overlap 50", cfg.Chunking)
	}
	if cfg.Upload.MaxFileSizeMB != 50 {
		t.Errorf("Upload.MaxFileSizeMB = %d, want 50", cfg.Upload.MaxFileSizeMB)
	}
}

func TestEnvOverrides(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("ATLAS_SERVER_PORT", "9000")
	t.Setenv("ATLAS_CHUNK_SIZE", "800")
	t.Setenv("ATLAS_GROQ_MODEL", "llama-3.1-8b-instant")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Chunking.Size != 800 {
		t.Errorf("Chunking.Size = %d, want 800", cfg.Chunking.Size)
	}
	if cfg.Groq.Model != "llama-3.1-8b-instant" {
		t.Errorf("Groq.Model = %q, want llama-3.1-8b-instant", cfg.Groq.Model)
	}
}

func TestMissingSecrets(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("ATLAS_GROQ_API_KEY", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing Groq API key")
	}
	if !strings.Contains(err.Error(), "ATLAS_GROQ_API_KEY") {
		t.Errorf("error %q does not name the missing variable", err)
	}
}

func TestOverlapValidation(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("ATLAS_CHUNK_SIZE", "100")
	t.Setenv("ATLAS_CHUNK_OVERLAP", "100")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when overlap >= size")
	}
}

func TestAllowedExtensionsList(t *testing.T) {
	u := UploadConfig{AllowedExtensions: "pdf, DOCX ,txt,,csv"}
	got := u.AllowedExtensionsList()
	want := []string{"pdf", "docx", "txt", "csv"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ext[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
