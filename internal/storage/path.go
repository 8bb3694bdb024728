package storage

import (
	"fmt"
	"strings"
)

// SplitPath splits a document path into its parent collection and document id.
// Document paths have an even number of non-empty segments.
func SplitPath(p string) (collection, id string, err error) {
	p = strings.Trim(p, "/")
	segments := strings.Split(p, "/")
	if p == "" || len(segments)%2 != 0 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	if err := checkSegments(p, segments); err != nil {
		return "", "", err
	}
	i := strings.LastIndex(p, "/")
	return p[:i], p[i+1:], nil
}

// ValidateCollection checks that c addresses a collection (odd segment count)
func ValidateCollection(c string) error {
	c = strings.Trim(c, "/")
	segments := strings.Split(c, "/")
	if c == "" || len(segments)%2 != 1 {
		return fmt.Errorf("%w: %q is not a collection", ErrInvalidPath, c)
	}
	return checkSegments(c, segments)
}

// ValidID reports whether id can be used as a single path segment
func ValidID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.Contains(id, "/")
}

func checkSegments(p string, segments []string) error {
	for _, s := range segments {
		if !ValidID(s) {
			return fmt.Errorf("%w: %q has an invalid segment %q", ErrInvalidPath, p, s)
		}
	}
	return nil
}

// CleanPath trims surrounding slashes
func CleanPath(p string) string {
	return strings.Trim(p, "/")
}
