// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/plugincore/internal/plugin"
)

// NewValidateCmd creates the validate subcommand.
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate PATH...",
		Short: "Validate plugin manifests",
		Long: `Validate plugin manifests against the manifest JSON schema and the
manifest rules. Each PATH is a manifest file or a plugin directory.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				if err := validateManifest(path); err != nil {
					failed++
					cmd.PrintErrf("%s: %s\n", path, plugin.FormatSchemaError(err))
					continue
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
			}
			if failed > 0 {
				return oops.In("validate").With("failed", failed).Errorf("%d of %d manifests invalid", failed, len(args))
			}
			return nil
		},
	}
}

func validateManifest(path string) error {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, plugin.ManifestFile)
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is supplied by the operator
	if err != nil {
		return oops.In("validate").With("path", path).Wrap(err)
	}
	if err := plugin.ValidateSchema(data); err != nil {
		return err
	}
	_, err = plugin.ParseManifest(data)
	return err
}
