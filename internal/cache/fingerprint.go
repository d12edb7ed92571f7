// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"fmt"
	"os"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint returns a cheap identity for the file at path, derived from
// its size and modification time. File content is never read.
func Fingerprint(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("fingerprinting %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("fingerprinting %s: is a directory", path)
	}
	raw := strconv.FormatInt(info.Size(), 10) + "_" + strconv.FormatInt(info.ModTime().UnixNano(), 10)
	return strconv.FormatUint(xxhash.Sum64String(raw), 16), nil
}

// Key derives the opaque cache key for an (input, output) pair.
func Key(input, output string) string {
	d := xxhash.New()
	d.WriteString(input)
	d.WriteString("\x00")
	d.WriteString(output)
	return strconv.FormatUint(d.Sum64(), 16)
}
