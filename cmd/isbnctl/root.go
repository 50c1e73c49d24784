package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "isbnctl",
		Short:         "Inspect identifier files and run ISBN imports locally",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newNormalizeCmd())
	cmd.AddCommand(newParseCmd())
	cmd.AddCommand(newImportCmd())
	return cmd
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
