// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextjsreact/loft-envclone/anonymize"
	"github.com/nextjsreact/loft-envclone/envclone"
)

func newAnonymizeCmd() *cobra.Command {
	var (
		inputPath string
		table     string
	)

	cmd := &cobra.Command{
		Use:   "anonymize",
		Short: "Anonymize a JSON rows file offline using the default rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(inputPath)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", inputPath, err)
			}
			var rows []map[string]any
			if err := json.Unmarshal(raw, &rows); err != nil {
				return fmt.Errorf("failed to parse %s: %w", inputPath, err)
			}

			rules := defaultRulesFor(table)
			if len(rules) == 0 {
				return fmt.Errorf("no default anonymization rules for table %q", table)
			}

			engine := anonymize.NewEngine(newLogger())
			out, report := engine.AnonymizeBatch(rows, rules, table)

			encoded, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(encoded))
			fmt.Fprintf(os.Stderr, "rows=%d anonymized=%d fields=%v errors=%d\n",
				report.TotalRows, report.AnonymizedRows, report.AnonymizedFields, len(report.Errors))
			return nil
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "", "JSON array of row objects (required)")
	cmd.Flags().StringVar(&table, "table", "", "table name the rows belong to (required)")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

func defaultRulesFor(table string) []anonymize.Rule {
	return envclone.DefaultCloneRules()[table]
}
