// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package envfile loads MDCONV_* settings from dotenv files into the
// process environment, where viper picks them up. Variables already set
// in the environment win over file values.
package envfile

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// Prefix is the environment variable prefix mdconv reads settings from.
const Prefix = "MDCONV_"

// Load reads each file in order and exports every MDCONV_* key that is not
// already set. Missing files are skipped. It returns the exported keys,
// sorted. The first file to define a key wins.
func Load(files ...string) ([]string, error) {
	var applied []string
	for _, file := range files {
		vars, err := godotenv.Read(file)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return applied, fmt.Errorf("reading env file %s: %w", file, err)
		}

		keys := make([]string, 0, len(vars))
		for k := range vars {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			if !strings.HasPrefix(k, Prefix) {
				continue
			}
			if _, set := os.LookupEnv(k); set {
				continue
			}
			if err := os.Setenv(k, vars[k]); err != nil {
				return applied, fmt.Errorf("setting %s: %w", k, err)
			}
			applied = append(applied, k)
		}
	}
	sort.Strings(applied)
	return applied, nil
}
