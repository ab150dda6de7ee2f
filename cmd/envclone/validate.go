// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextjsreact/loft-envclone/envclone"
)

// validateInput is the JSON document the validate command consumes: exported
// table rows plus the declared relationship edges. Relationships may be left
// empty when --discover-from pulls them from a live database instead.
type validateInput struct {
	Relationships []envclone.Relationship     `json:"relationships"`
	Tables        map[string][]map[string]any `json:"tables"`
}

func newValidateCmd() *cobra.Command {
	var inputPath string
	var discoverFrom string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check referential integrity of exported table data",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(inputPath)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", inputPath, err)
			}
			var input validateInput
			if err := json.Unmarshal(raw, &input); err != nil {
				return fmt.Errorf("failed to parse %s: %w", inputPath, err)
			}

			manager := envclone.NewRelationshipManager()
			manager.RegisterRelationships(input.Relationships)

			if discoverFrom != "" {
				cfg, err := LoadConfig(flagConfig)
				if err != nil {
					return err
				}
				env, err := cfg.Environment(discoverFrom)
				if err != nil {
					return err
				}
				conn, err := envclone.ResolveConnection(env.Credentials)
				if err != nil {
					return err
				}
				db, closeDB, err := envclone.PgxPoolConnector(cmd.Context(), conn)
				if err != nil {
					return err
				}
				defer closeDB()

				tableNames := make([]string, 0, len(input.Tables))
				for name := range input.Tables {
					tableNames = append(tableNames, name)
				}
				discovered, err := envclone.DiscoverRelationships(cmd.Context(), db, tableNames, newLogger())
				if err != nil {
					return err
				}
				manager.RegisterRelationships(discovered)
			}

			tables := make([]envclone.TableData, 0, len(input.Tables))
			for name, rows := range input.Tables {
				tables = append(tables, envclone.TableData{Name: name, Rows: rows})
			}

			report := manager.ValidateReferentialIntegrity(tables)
			for _, warning := range report.Warnings {
				fmt.Fprintln(os.Stderr, "warning:", warning)
			}
			if !report.IsValid {
				for _, violation := range report.Errors {
					fmt.Fprintln(os.Stderr, "violation:", violation.String())
				}
				return fmt.Errorf("%d referential integrity violations", len(report.Errors))
			}
			fmt.Println("referential integrity ok")
			return nil
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "", "JSON file with tables and relationships (required)")
	cmd.Flags().StringVar(&discoverFrom, "discover-from", "", "environment ID to discover foreign keys from instead of declaring them")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}
