package utils

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// TokenMetadata is the ERC-721 metadata document embedded in the token URI
type TokenMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// BuildMetadataURI renders the metadata as a base64 JSON data URI
func BuildMetadataURI(meta TokenMetadata) (string, error) {
	if strings.TrimSpace(meta.Name) == "" {
		return "", fmt.Errorf("metadata name is required")
	}

	raw, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	return "data:application/json;base64," + base64.StdEncoding.EncodeToString(raw), nil
}

// ParseMetadataURI decodes a data URI produced by BuildMetadataURI
func ParseMetadataURI(uri string) (*TokenMetadata, error) {
	const prefix = "data:application/json;base64,"
	if !strings.HasPrefix(uri, prefix) {
		return nil, fmt.Errorf("unsupported metadata URI")
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, prefix))
	if err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	var meta TokenMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &meta, nil
}
