// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxFilenameLen = 255

var unsafeChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// SanitizeFilename makes name safe to use as a file name on any common
// filesystem.
func SanitizeFilename(name string) string {
	s := strings.TrimSpace(unsafeChars.ReplaceAllString(name, "_"))

	ext := filepath.Ext(s)
	stem := strings.TrimSuffix(s, ext)
	if reservedNames[strings.ToUpper(stem)] {
		s = "file_" + s
		stem = "file_" + stem
	}

	if len(s) > maxFilenameLen {
		keep := maxFilenameLen - len(ext)
		keep = max(0, min(keep, len(stem)))
		for keep > 0 && keep < len(stem) && !utf8.RuneStart(stem[keep]) {
			keep--
		}
		s = stem[:keep] + ext
	}

	s = strings.TrimRight(s, ". ")
	if s == "" {
		return "unnamed"
	}
	return s
}

// OutputPath returns where the Markdown for input is written: outDir, or
// the input's own directory when outDir is empty, joined with the
// sanitized input stem and a .md extension.
func OutputPath(input, outDir string) string {
	if outDir == "" {
		outDir = filepath.Dir(input)
	}
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outDir, SanitizeFilename(stem+".md"))
}

// ValidateInput checks that path names a readable, regular file with a
// supported extension.
func ValidateInput(path string) (Format, error) {
	if strings.TrimSpace(path) == "" {
		return Format{}, errors.New("empty input path")
	}
	format, ok := Lookup(path)
	if !ok {
		return Format{}, fmt.Errorf("%w: %s", ErrUnsupported, path)
	}
	st, err := os.Stat(path)
	if err != nil {
		return Format{}, fmt.Errorf("input %s: %w", path, err)
	}
	if !st.Mode().IsRegular() {
		return Format{}, fmt.Errorf("input %s: not a regular file", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return Format{}, fmt.Errorf("input %s: %w", path, err)
	}
	f.Close()
	return format, nil
}

// ValidateOutputDir creates dir if needed and checks that it is writable.
func ValidateOutputDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory %s: %w", dir, err)
	}
	probe, err := os.CreateTemp(dir, ".mdconv-probe-*")
	if err != nil {
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return nil
}
