package main

import (
	"github.com/spf13/cobra"

	"github.com/mohammadpnp/book-import/internal/domain/isbn"
)

type normalizeResult struct {
	Raw        string `json:"raw"`
	Normalized string `json:"normalized"`
	Canonical  bool   `json:"canonical"`
}

func newNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <raw>...",
		Short: "Print the canonical 13-digit form of each raw identifier",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results := make([]normalizeResult, 0, len(args))
			for _, raw := range args {
				n := isbn.Normalize(raw)
				results = append(results, normalizeResult{
					Raw:        raw,
					Normalized: n,
					Canonical:  isbn.IsCanonical(n),
				})
			}
			return writeJSON(cmd.OutOrStdout(), results)
		},
	}
}
