//go:build mage

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	inputDir  = "input"
	outputDir = "output"
)

// Convert builds the CLI and converts every file in input/ into output/.
func Convert() error {
	mg.Deps(Build)

	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return fmt.Errorf("reading %s: %w (run mage init first)", inputDir, err)
	}
	args := []string{"convert", "--output-dir", outputDir}
	for _, e := range entries {
		if e.Type().IsRegular() {
			args = append(args, filepath.Join(inputDir, e.Name()))
		}
	}
	if len(args) == 3 {
		fmt.Printf("No files in %s.\n", inputDir)
		return nil
	}
	return sh.RunV(filepath.Join(binDir, binName), args...)
}

// History prints the most recent conversion batches.
func History() error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binDir, binName), "history", "list", "--limit", "10")
}
