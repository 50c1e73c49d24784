package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mohammadpnp/book-import/internal/bootstrap"
)

type parseOutput struct {
	File  string   `json:"file"`
	Count int      `json:"count"`
	Isbns []string `json:"isbns"`
}

func newParseCmd() *cobra.Command {
	var maxCount int

	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Extract the normalized ISBN list from a delimited or spreadsheet file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxCount < 0 {
				return errors.New("invalid --max: must not be negative")
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			isbns, err := bootstrap.ParseUpload(filepath.Base(args[0]), f, maxCount)
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			if isbns == nil {
				isbns = []string{}
			}
			return writeJSON(cmd.OutOrStdout(), parseOutput{
				File:  args[0],
				Count: len(isbns),
				Isbns: isbns,
			})
		},
	}

	cmd.Flags().IntVar(&maxCount, "max", 0, "stop after this many identifiers (0 = no limit)")
	return cmd
}
