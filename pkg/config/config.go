// Package config loads and validates FCOM's JSON configuration file
// against an embedded JSON Schema before decoding it into
// store.Config, the same Load-then-Validate-then-Decode shape
// internal/config.Init and pkg/schema.Validate use, generalized from a
// package-global Keys variable to a value returned to the caller.
package config

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/fcom-rt/fcom/internal/store"
)

//go:embed schemas/*
var schemaFiles embed.FS

func init() {
	// url.Parse lowercases the scheme, so the loader key is lowercase too;
	// in "embedFS://schemas/x.json" the "schemas" directory is the host.
	jsonschema.Loaders["embedfs"] = func(s string) (io.ReadCloser, error) {
		u, err := url.Parse(s)
		if err != nil {
			return nil, err
		}
		return schemaFiles.Open(path.Join(u.Host, u.Path))
	}
}

// Validate checks raw against the embedded config schema.
func Validate(raw []byte) error {
	s, err := jsonschema.Compile("embedFS://schemas/config.schema.json")
	if err != nil {
		return fmt.Errorf("config: compile schema: %w", err)
	}

	var v interface{}
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&v); err != nil {
		return fmt.Errorf("config: decode for validation: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("config: schema validation failed: %w", err)
	}
	return nil
}

// Load reads, validates and decodes path into a store.Config.
func Load(path string) (store.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return store.Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := Validate(raw); err != nil {
		return store.Config{}, err
	}

	var cfg store.Config
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return store.Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}
