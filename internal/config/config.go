package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Config struct {
	Server   ServerConfig
	Groq     GroqConfig
	B2       B2Config
	Chroma   ChromaConfig
	Storage  StorageConfig
	Upload   UploadConfig
	Chunking ChunkingConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port int
}

type GroqConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type B2Config struct {
	BaseURL        string
	KeyID          string
	ApplicationKey string
	Bucket         string
}

type ChromaConfig struct {
	BaseURL  string
	Tenant   string
	Database string
	APIKey   string
}

type StorageConfig struct {
	DataDir string
}

type UploadConfig struct {
	MaxFileSizeMB     int
	AllowedExtensions string
}

type ChunkingConfig struct {
	Size    int
	Overlap int
}

type LogConfig struct {
	Level string
}

// MaxFileSizeBytes returns the upload size cap in bytes.
func (u UploadConfig) MaxFileSizeBytes() int64 {
	return int64(u.MaxFileSizeMB) << 20
}

// AllowedExtensionsList splits the comma-separated extension allow-list.
func (u UploadConfig) AllowedExtensionsList() []string {
	parts := strings.Split(u.AllowedExtensions, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8000,
		},
		Groq: GroqConfig{
			BaseURL: "https://api.groq.com/openai/v1",
			Model:   "llama-3.3-70b-versatile",
		},
		B2: B2Config{
			BaseURL: "https://api.backblazeb2.com",
		},
		Chroma: ChromaConfig{
			BaseURL:  "https://api.trychroma.com",
			Tenant:   "default_tenant",
			Database: "default_database",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Upload: UploadConfig{
			MaxFileSizeMB:     50,
			AllowedExtensions: "pdf,docx,doc,txt,csv,xlsx,xls",
		},
		Chunking: ChunkingConfig{
			Size:    500,
			Overlap: 50,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "atlas")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".atlas"
	}
	return filepath.Join(home, ".local", "share", "atlas")
}

// Load builds the configuration from defaults overridden by ATLAS_*
// environment variables, then validates that required secrets are present.
func Load() (Config, error) {
	cfg := defaults()
	applyEnvOverrides(&cfg)

	var missing []string
	if cfg.Groq.APIKey == "" {
		missing = append(missing, "ATLAS_GROQ_API_KEY")
	}
	if cfg.B2.KeyID == "" {
		missing = append(missing, "ATLAS_B2_KEY_ID")
	}
	if cfg.B2.ApplicationKey == "" {
		missing = append(missing, "ATLAS_B2_APPLICATION_KEY")
	}
	if cfg.B2.Bucket == "" {
		missing = append(missing, "ATLAS_B2_BUCKET")
	}
	if cfg.Chroma.APIKey == "" {
		missing = append(missing, "ATLAS_CHROMA_API_KEY")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required config: set %s", strings.Join(missing, ", "))
	}

	if cfg.Chunking.Overlap >= cfg.Chunking.Size {
		return Config{}, fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)",
			cfg.Chunking.Overlap, cfg.Chunking.Size)
	}

	return cfg, nil
}
