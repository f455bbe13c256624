package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/knowledged/internal/http"
)

func newResetCmd(c func() *client) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every chunk from the vector table",
		Long: `Delete every chunk from the vector table. Source documents are kept.

Examples:
  kbctl reset --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to reset without --yes")
			}
			var resp httpserver.ResetResponse
			if err := c().do(cmd.Context(), "POST", "/api/v1/reset", nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Knowledge base reset: %s\n", resp.Status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

func newUpdateMetadataCmd(c func() *client) *cobra.Command {
	var filters, sets []string
	cmd := &cobra.Command{
		Use:   "update-metadata",
		Short: "Merge metadata into every chunk matching a filter",
		Long: `Merge key=value pairs into the metadata of every chunk matching the filter.

Examples:
  kbctl update-metadata --filter source=katalog.pdf --set tahun=2024
  kbctl update-metadata --filter project=default --set project=ringkasan --set tahun=2025`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parsePairs(filters)
			if err != nil {
				return err
			}
			update, err := parsePairs(sets)
			if err != nil {
				return err
			}
			req := httpserver.UpdateMetadataRequest{Filter: filter, NewMetadata: update}
			var resp httpserver.UpdateMetadataResponse
			if err := c().do(cmd.Context(), "POST", "/api/v1/metadata", req, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated metadata of %d chunks\n", resp.Updated)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "metadata filter as key=value (repeatable, required)")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "metadata to set as key=value (repeatable, required)")
	_ = cmd.MarkFlagRequired("filter")
	_ = cmd.MarkFlagRequired("set")
	return cmd
}

func newRebuildCmd(c func() *client) *cobra.Command {
	var req httpserver.RebuildRequest
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Re-embed every chunk with the configured model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp httpserver.RebuildResponse
			if err := c().do(cmd.Context(), "POST", "/api/v1/rebuild", req, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rebuilt embeddings for %d chunks\n", resp.Rebuilt)
			return nil
		},
	}
	cmd.Flags().IntVar(&req.BatchSize, "batch-size", 0, "texts per embedding call (default: 100)")
	return cmd
}
