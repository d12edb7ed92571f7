// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/mdconv/internal/convert"
)

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List the supported input file types",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(headerStyle.Render("Supported formats"))
		for _, f := range convert.Formats() {
			fmt.Printf("  %-6s %s\n", f.Ext, f.Name)
		}
	},
}

func init() {
	rootCmd.AddCommand(formatsCmd)
}
