package pathconv

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateRelative checks that a backend-relative path is non-empty and cannot
// climb out of its root through ".." segments.
func ValidateRelative(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("path cannot be empty")
	}
	for _, seg := range strings.Split(Normalize(p), separator) {
		if seg == ".." {
			return fmt.Errorf("path contains directory traversal: %s", p)
		}
	}
	return nil
}

// Join safely joins path elements and ensures the result stays within base.
// Unlike filepath.Join, a result that escapes base through ".." is an error.
//
//	full, err := Join("/var/cache/products", rel)
func Join(base string, elements ...string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("base path cannot be empty")
	}

	cleanBase := filepath.Clean(filepath.FromSlash(base))

	parts := make([]string, 0, len(elements)+1)
	parts = append(parts, cleanBase)
	for _, e := range elements {
		parts = append(parts, filepath.FromSlash(Normalize(e)))
	}
	fullPath := filepath.Join(parts...)

	rel, err := filepath.Rel(cleanBase, fullPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes base directory %s", strings.Join(elements, separator), base)
	}

	return fullPath, nil
}

// IsWithin reports whether p lies strictly below root.
func IsWithin(root, p string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(p))
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
