// Package pathconv converts between absolute paths, backend-relative paths and
// the configured base paths (cache root, staging root, backend root).
//
// All functions are pure string manipulation. Backslashes are normalized to
// '/' first, so callers may pass OS-native paths.
package pathconv

import (
	"strings"
)

// S3Scheme is the URI prefix of object store paths.
const S3Scheme = "s3://"

const separator = "/"

// Converter strips configured base paths from absolute paths.
type Converter struct {
	basePaths []string
}

// New returns a Converter for the given base paths. Empty entries are ignored,
// trailing separators are trimmed, and order is preserved: the first match wins.
func New(basePaths ...string) *Converter {
	c := &Converter{}
	for _, bp := range basePaths {
		bp = Normalize(bp)
		if bp != separator {
			bp = strings.TrimRight(bp, separator)
		}
		if bp == "" {
			continue
		}
		c.basePaths = append(c.basePaths, bp)
	}
	return c
}

// BasePaths returns a copy of the configured base paths.
func (c *Converter) BasePaths() []string {
	out := make([]string, len(c.basePaths))
	copy(out, c.basePaths)
	return out
}

// Normalize replaces OS-native separators with '/'.
func Normalize(p string) string {
	return strings.ReplaceAll(p, `\`, separator)
}

// IsS3 reports whether p is an s3:// path.
func IsS3(p string) bool {
	return strings.HasPrefix(strings.ToLower(Normalize(p)), S3Scheme)
}

// RemoveFsPrefix strips a "<scheme>://" prefix if present, otherwise a single
// leading separator.
func RemoveFsPrefix(p string) string {
	p = Normalize(p)
	if i := strings.Index(p, "://"); i > 0 && isScheme(p[:i]) {
		return p[i+3:]
	}
	return strings.TrimPrefix(p, separator)
}

func isScheme(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.') {
			return false
		}
	}
	return true
}

// RemoveBasePath strips the first configured base path that prefixes p on a
// segment boundary. Without a match only a leading separator is removed.
func (c *Converter) RemoveBasePath(p string) string {
	p = Normalize(p)
	for _, bp := range c.basePaths {
		if bp == separator {
			continue
		}
		if p == bp {
			return ""
		}
		if strings.HasPrefix(p, bp+separator) {
			return p[len(bp)+1:]
		}
	}
	return strings.TrimPrefix(p, separator)
}

// RemoveBucket strips the first segment (the bucket name) of a scheme-less S3
// path, returning the key.
func RemoveBucket(p string) string {
	p = strings.TrimPrefix(Normalize(p), separator)
	if i := strings.Index(p, separator); i >= 0 {
		return p[i+1:]
	}
	return ""
}

// SplitBucket splits an S3 path (with or without scheme) into bucket and key.
func SplitBucket(p string) (bucket, key string) {
	p = strings.TrimPrefix(RemoveFsPrefix(p), separator)
	if i := strings.Index(p, separator); i >= 0 {
		return p[:i], strings.TrimLeft(p[i+1:], separator)
	}
	return p, ""
}

// RelativePath converts an absolute POSIX path or an s3:// URI into the path
// relative to its base path or bucket. Already-relative input comes back unchanged.
func (c *Converter) RelativePath(p string) string {
	p = Normalize(p)
	if IsS3(p) {
		p = RemoveBucket(RemoveFsPrefix(p))
	} else {
		p = c.RemoveBasePath(p)
	}
	return strings.TrimLeft(p, separator)
}

// BasePathOf returns the configured base path that prefixes p, if any.
func (c *Converter) BasePathOf(p string) (string, bool) {
	p = Normalize(p)
	for _, bp := range c.basePaths {
		if p == bp || strings.HasPrefix(p, strings.TrimRight(bp, separator)+separator) {
			return bp, true
		}
	}
	return "", false
}
