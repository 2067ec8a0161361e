package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// RouteConfig is one entry of a cache-strategy route table file. Durations
// use Go syntax ("15m", "24h").
type RouteConfig struct {
	Name       string   `yaml:"name" toml:"name" json:"name"`
	Methods    []string `yaml:"methods,omitempty" toml:"methods" json:"methods,omitempty"`
	PathPrefix string   `yaml:"pathPrefix,omitempty" toml:"path_prefix" json:"pathPrefix,omitempty"`
	Extensions []string `yaml:"extensions,omitempty" toml:"extensions" json:"extensions,omitempty"`
	Strategy   string   `yaml:"strategy" toml:"strategy" json:"strategy"`
	TTL        string   `yaml:"ttl,omitempty" toml:"ttl" json:"ttl,omitempty"`
	MaxAge     string   `yaml:"maxAge,omitempty" toml:"max_age" json:"maxAge,omitempty"`
}

// RoutesFile is the top-level document of a route table file.
type RoutesFile struct {
	Routes []RouteConfig `yaml:"routes" toml:"routes" json:"routes"`
}

// LoadRoutes reads a route table, choosing the format from the file
// extension: .yaml/.yml, .toml or .json.
func LoadRoutes(path string) ([]RouteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading routes file: %w", err)
	}
	return ParseRoutes(data, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
}

// ParseRoutes decodes a route table in the given format.
func ParseRoutes(data []byte, format string) ([]RouteConfig, error) {
	var file RoutesFile
	switch format {
	case "yaml", "yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&file); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case "toml":
		meta, err := toml.Decode(string(data), &file)
		if err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("failed to parse TOML: unknown key %q", undecoded[0].String())
		}
	case "json":
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&file); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported routes format %q", format)
	}

	for i, r := range file.Routes {
		if r.Strategy == "" {
			return nil, fmt.Errorf("route %d (%s): strategy is required", i, r.Name)
		}
	}
	return file.Routes, nil
}
