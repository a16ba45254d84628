package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bobarin/reelrender/internal/models"
	"gopkg.in/yaml.v3"
)

// loadRequest reads a render request from a JSON or YAML file.
func loadRequest(path string) (*models.RenderRequest, error) {
	if path == "" {
		return nil, fmt.Errorf("--request is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read request: %w", err)
	}
	return parseRequest(data, filepath.Ext(path))
}

func parseRequest(data []byte, ext string) (*models.RenderRequest, error) {
	var req models.RenderRequest
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("failed to parse JSON request: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("failed to parse YAML request: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported request format %q (want .json, .yaml or .yml)", ext)
	}
	return &req, nil
}
