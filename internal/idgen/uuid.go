// Package idgen provides article ID generation.
package idgen

import (
	"fmt"

	"github.com/google/uuid"

	"ArticleHarvester/internal/ports"
)

// UUIDGenerator creates UUID v7 strings, which sort by creation time.
type UUIDGenerator struct{}

var _ ports.IDGenerator = UUIDGenerator{}

// New creates a UUIDGenerator.
func New() UUIDGenerator {
	return UUIDGenerator{}
}

// NewID returns a UUID7 string.
func (UUIDGenerator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}
