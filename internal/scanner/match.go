package scanner

import (
	"path/filepath"
	"strings"
)

// matchDirPattern checks if a directory path matches a pattern.
func matchDirPattern(relPath, pattern string) bool {
	sep := string(filepath.Separator)

	// **/name/** matches a directory named name at any depth
	if strings.HasPrefix(pattern, "**/") {
		name := strings.TrimSuffix(strings.TrimPrefix(pattern, "**/"), "/**")
		if strings.ContainsAny(name, "*?[") {
			return false
		}
		for _, part := range strings.Split(relPath, sep) {
			if part == name {
				return true
			}
		}
		return false
	}

	// dir/** matches dir itself and everything below it
	prefix := strings.TrimSuffix(pattern, "/**")
	return relPath == prefix || strings.HasPrefix(relPath, prefix+sep)
}

// matchFilePattern checks if a file matches a pattern.
// Patterns without a separator match the base name with filepath.Match;
// "**/" patterns match at any depth.
func matchFilePattern(baseName, relPath, pattern string) bool {
	sep := string(filepath.Separator)

	if strings.HasPrefix(pattern, "**/") {
		rest := strings.TrimPrefix(pattern, "**/")
		if strings.HasSuffix(rest, "/**") {
			dir := strings.TrimSuffix(rest, "/**")
			parts := strings.Split(filepath.Dir(relPath), sep)
			for _, part := range parts {
				if part == dir {
					return true
				}
			}
			return false
		}
		if !strings.Contains(rest, "/") {
			matched, err := filepath.Match(rest, baseName)
			return err == nil && matched
		}
		// **/dir/file: try every suffix of the path
		parts := strings.Split(relPath, sep)
		for i := range parts {
			matched, err := filepath.Match(rest, strings.Join(parts[i:], "/"))
			if err == nil && matched {
				return true
			}
		}
		return false
	}

	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return strings.HasPrefix(relPath, prefix+sep)
	}

	if strings.Contains(pattern, "/") {
		matched, err := filepath.Match(pattern, filepath.ToSlash(relPath))
		return err == nil && matched
	}

	matched, err := filepath.Match(pattern, baseName)
	return err == nil && matched
}
