// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mkuznets/cc1/compile"
)

const version = "0.1.0"

func newLogger(verbose bool) *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		// zap itself failed to build; fall back to a no-op logger rather
		// than crash a compiler over its own diagnostics channel.
		logger = zap.NewNop()
	}
	return logger.Sugar()
}

func newRootCmd() *cobra.Command {
	var (
		verbose      bool
		maxErrors    int
		output       string
		printVersion bool
	)

	cmd := &cobra.Command{
		Use:   "cc1 [file]",
		Short: "Compile a C translation unit to x86-64 assembly",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if printVersion {
				fmt.Fprintf(cmd.OutOrStdout(), "cc1 %s\n", version)
				return nil
			}

			log := newLogger(verbose)
			defer log.Sync()

			cfg := compile.DefaultConfig()
			cfg.Verbose = verbose
			cfg.MaxErrors = maxErrors

			fileName := "<stdin>"
			src := cmd.InOrStdin()
			if len(args) == 1 {
				fileName = args[0]
				f, err := os.Open(fileName)
				if err != nil {
					return fmt.Errorf("opening %s: %w", fileName, err)
				}
				defer f.Close()
				src = f
			}

			out := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating %s: %w", output, err)
				}
				defer f.Close()
				out = f
			}

			_, err := compile.Compile(log, cfg, fileName, src, out)
			return err
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "trace pipeline stages to stderr")
	cmd.Flags().IntVar(&maxErrors, "max-errors", 25, "abort after this many diagnostics")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write assembly to this file instead of stdout")
	cmd.Flags().BoolVarP(&printVersion, "version", "V", false, "print version and exit")

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
