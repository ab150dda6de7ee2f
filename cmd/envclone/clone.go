// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextjsreact/loft-envclone/envclone"
)

func newCloneCmd() *cobra.Command {
	var (
		sourceID     string
		targetID     string
		mode         string
		anonymize    bool
		batchSize    int
		confirm      bool
		createBackup bool
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "clone",
		Short: "Clone one environment's database into another",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(flagConfig)
			if err != nil {
				return err
			}
			source, err := cfg.Environment(sourceID)
			if err != nil {
				return err
			}
			target, err := cfg.Environment(targetID)
			if err != nil {
				return err
			}

			logger := newLogger()
			renderer := newProgressRenderer(flagQuiet)
			defer renderer.Finish()

			orch := envclone.NewOrchestrator(
				envclone.NewExecToolRunner(timeout, logger), nil, logger, renderer.Sink)

			result, err := orch.Clone(cmd.Context(), envclone.CloneRequest{
				Source: source,
				Target: target,
				Options: envclone.CloneOptions{
					Mode:            mode,
					Anonymize:       anonymize,
					BatchSize:       batchSize,
					ConfirmDeletion: confirm,
					CreateBackup:    createBackup,
					PhaseTimeout:    timeout,
				},
			})
			if err != nil {
				return err
			}
			renderer.Finish()

			fmt.Printf("operation %s: success=%t duration=%s tables=%d records=%d\n",
				result.OperationID, result.Success, result.Duration.Round(time.Millisecond),
				result.Statistics.TablesProcessed, result.Statistics.RecordsProcessed)
			for _, warning := range result.Warnings {
				fmt.Fprintln(os.Stderr, "warning:", warning)
			}
			if !result.Success {
				for _, e := range result.Errors {
					fmt.Fprintln(os.Stderr, "error:", e)
				}
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceID, "source", "", "source environment ID (required)")
	cmd.Flags().StringVar(&targetID, "target", "", "target environment ID (required)")
	cmd.Flags().StringVar(&mode, "mode", envclone.ModeNative, "clone mode: native or rowcopy")
	cmd.Flags().BoolVar(&anonymize, "anonymize", true, "anonymize sensitive fields during copy")
	cmd.Flags().IntVar(&batchSize, "batch-size", 500, "rows per page in rowcopy mode")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "confirm that the target may be wiped")
	cmd.Flags().BoolVar(&createBackup, "backup", false, "dump the target before wiping it")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "per-phase timeout for dump/restore")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}
