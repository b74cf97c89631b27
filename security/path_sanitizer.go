package security

import (
	"fmt"
	"path"
	"strings"
)

// MaxArtifactPathLength bounds a repository-relative path.
const MaxArtifactPathLength = 255

// SanitizeArtifactPath validates a repository-relative artifact path and
// returns it in canonical slash form. Absolute paths, traversal segments
// and control characters are rejected.
func SanitizeArtifactPath(userPath string) (string, error) {
	p := strings.TrimSpace(strings.ReplaceAll(userPath, "\\", "/"))
	if p == "" {
		return "", fmt.Errorf("empty artifact path")
	}
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("absolute path not allowed: %s", userPath)
	}
	if strings.IndexFunc(p, func(r rune) bool { return r < 32 || r == 127 }) >= 0 {
		return "", fmt.Errorf("control characters not allowed: %q", userPath)
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return "", fmt.Errorf("path traversal detected: %s", userPath)
		}
	}

	clean := path.Clean(p)
	if clean == "." {
		return "", fmt.Errorf("empty artifact path")
	}
	if len(clean) > MaxArtifactPathLength {
		return "", fmt.Errorf("artifact path too long: %d characters", len(clean))
	}
	return clean, nil
}

// SanitizeProjectName accepts the characters a hosted repository name may
// contain and rejects everything else.
func SanitizeProjectName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("invalid project name %q", name)
	}
	if len(name) > 100 {
		return "", fmt.Errorf("project name too long: %d characters", len(name))
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return "", fmt.Errorf("invalid character %q in project name %q", r, name)
		}
	}
	return name, nil
}
