// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextjsreact/loft-envclone/envclone"
)

func newWipeCmd() *cobra.Command {
	var (
		targetID string
		confirm  bool
	)

	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Delete all rows from a target environment's known tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(flagConfig)
			if err != nil {
				return err
			}
			target, err := cfg.Environment(targetID)
			if err != nil {
				return err
			}

			conn, err := envclone.ResolveConnection(target.Credentials)
			if err != nil {
				return err
			}

			logger := newLogger()
			db, closeDB, err := envclone.PgxPoolConnector(cmd.Context(), conn)
			if err != nil {
				return err
			}
			defer closeDB()

			renderer := newProgressRenderer(flagQuiet)
			defer renderer.Finish()
			recorder := envclone.NewLogRecorder(logger, renderer.Sink)

			deleter := envclone.NewDeleter(db, recorder, logger)
			result, err := deleter.DeleteAllData(cmd.Context(), target.Name,
				envclone.DeleteOptions{ConfirmDeletion: confirm})
			if err != nil {
				return err
			}
			renderer.Finish()

			fmt.Printf("wiped %d tables, %d rows\n", len(result.TablesCleared), result.RowsDeleted)
			if !result.Success {
				for _, e := range result.Errors {
					fmt.Fprintf(os.Stderr, "error: table %s: %s\n", e.Table, e.Err)
				}
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&targetID, "target", "", "target environment ID (required)")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "confirm the destructive wipe")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}
