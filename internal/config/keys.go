package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	env   string
	typ   keyType
	apply func(cfg *Config, v any)
}

var specs = []keySpec{
	{env: "ATLAS_SERVER_PORT", typ: kInt, apply: func(cfg *Config, v any) { cfg.Server.Port = v.(int) }},
	{env: "ATLAS_GROQ_BASE_URL", typ: kString, apply: func(cfg *Config, v any) { cfg.Groq.BaseURL = v.(string) }},
	{env: "ATLAS_GROQ_API_KEY", typ: kString, apply: func(cfg *Config, v any) { cfg.Groq.APIKey = v.(string) }},
	{env: "ATLAS_GROQ_MODEL", typ: kString, apply: func(cfg *Config, v any) { cfg.Groq.Model = v.(string) }},
	{env: "ATLAS_B2_BASE_URL", typ: kString, apply: func(cfg *Config, v any) { cfg.B2.BaseURL = v.(string) }},
	{env: "ATLAS_B2_KEY_ID", typ: kString, apply: func(cfg *Config, v any) { cfg.B2.KeyID = v.(string) }},
	{env: "ATLAS_B2_APPLICATION_KEY", typ: kString, apply: func(cfg *Config, v any) { cfg.B2.ApplicationKey = v.(string) }},
	{env: "ATLAS_B2_BUCKET", typ: kString, apply: func(cfg *Config, v any) { cfg.B2.Bucket = v.(string) }},
	{env: "ATLAS_CHROMA_BASE_URL", typ: kString, apply: func(cfg *Config, v any) { cfg.Chroma.BaseURL = v.(string) }},
	{env: "ATLAS_CHROMA_TENANT", typ: kString, apply: func(cfg *Config, v any) { cfg.Chroma.Tenant = v.(string) }},
	{env: "ATLAS_CHROMA_DATABASE", typ: kString, apply: func(cfg *Config, v any) { cfg.Chroma.Database = v.(string) }},
	{env: "ATLAS_CHROMA_API_KEY", typ: kString, apply: func(cfg *Config, v any) { cfg.Chroma.APIKey = v.(string) }},
	{env: "ATLAS_DATA_DIR", typ: kString, apply: func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) }},
	{env: "ATLAS_MAX_FILE_SIZE_MB", typ: kInt, apply: func(cfg *Config, v any) { cfg.Upload.MaxFileSizeMB = v.(int) }},
	{env: "ATLAS_ALLOWED_EXTENSIONS", typ: kString, apply: func(cfg *Config, v any) { cfg.Upload.AllowedExtensions = v.(string) }},
	{env: "ATLAS_CHUNK_SIZE", typ: kInt, apply: func(cfg *Config, v any) { cfg.Chunking.Size = v.(int) }},
	{env: "ATLAS_CHUNK_OVERLAP", typ: kInt, apply: func(cfg *Config, v any) { cfg.Chunking.Overlap = v.(int) }},
	{env: "ATLAS_LOG_LEVEL", typ: kString, apply: func(cfg *Config, v any) { cfg.Log.Level = v.(string) }},
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
