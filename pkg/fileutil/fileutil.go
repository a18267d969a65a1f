// Package fileutil provides small file system helpers shared by the
// playback packages, mainly for locating SoundFont and score-referenced
// asset files by name without requiring exact case to match.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FindFileCaseInsensitive searches dir for a file matching filename,
// ignoring case. Useful because scores and SoundFont references often
// cross platforms where the original casing isn't preserved.
func FindFileCaseInsensitive(dir, filename string) (string, error) {
	if _, err := os.Stat(filepath.Join(dir, filename)); err == nil {
		return filepath.Join(dir, filename), nil
	}

	searchName := strings.ToLower(filename)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(entry.Name()) == searchName {
			return filepath.Join(dir, entry.Name()), nil
		}
	}

	return "", fmt.Errorf("file not found: %s (searched in %s)", filename, dir)
}
