package storage

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"contractanalyzer/internal/domain"
)

// ExtensionPolicy is the allow-list of file extensions a blob store accepts.
type ExtensionPolicy struct {
	allowed map[string]bool
}

// NewExtensionPolicy builds a policy from extensions with or without a leading dot.
func NewExtensionPolicy(exts []string) *ExtensionPolicy {
	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			allowed[e] = true
		}
	}
	return &ExtensionPolicy{allowed: allowed}
}

// Check returns the normalized extension of filename, or an error wrapping
// domain.ErrUnsupportedFileType.
func (p *ExtensionPolicy) Check(filename string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" || !p.allowed[ext] {
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedFileType, filepath.Ext(filename))
	}
	return ext, nil
}

// NewHandle returns a fresh blob handle for an object with extension ext.
func NewHandle(ext string) string {
	return fmt.Sprintf("contracts/%s.%s", uuid.New().String(), ext)
}
