// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

// envclone clones a Supabase/PostgreSQL database between environments,
// wiping the target first and anonymizing sensitive fields on the way.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagConfig  string
	flagVerbose bool
	flagQuiet   bool
)

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func main() {
	root := &cobra.Command{
		Use:           "envclone",
		Short:         "Clone and anonymize Supabase/PostgreSQL environments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "environments.yaml", "path to the environments file")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress progress output")

	root.AddCommand(newCloneCmd())
	root.AddCommand(newWipeCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newAnonymizeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
