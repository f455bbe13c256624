package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/knowledged/internal/http"
	"github.com/fyrsmithlabs/knowledged/internal/knowledge"
)

// newAddCmd is the parent command for ingestion.
func newAddCmd(c func() *client) *cobra.Command {
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Ingest documents into the knowledge base",
		Long: `Ingest documents from the server's configured directories.

Paths are resolved on the server, not on the machine running kbctl.`,
	}
	addCmd.AddCommand(newAddProductCmd(c), newAddKakTorCmd(c), newAddSummaryCmd(c))
	return addCmd
}

func newAddProductCmd(c func() *client) *cobra.Command {
	var req httpserver.AddProductRequest
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Ingest every product PDF in a directory",
		Long: `Convert, chunk and embed every PDF in knowledge_base_path (or --dir).

Examples:
  kbctl add product
  kbctl add product --tahun 2024 --project katalog`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var res knowledge.IngestResult
			if err := c().do(cmd.Context(), "POST", "/api/v1/knowledge/product", req, &res); err != nil {
				return err
			}
			printIngest(cmd.OutOrStdout(), &res)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Dir, "dir", "", "directory of PDFs (default: knowledge_base_path)")
	cmd.Flags().StringVar(&req.Project, "project", "", "project metadata (default: "+knowledge.DefaultProductProject+")")
	cmd.Flags().StringVar(&req.Tahun, "tahun", "", "year metadata (default: "+knowledge.DefaultTahun+")")
	return cmd
}

func newAddKakTorCmd(c func() *client) *cobra.Command {
	var req httpserver.AddKakTorRequest
	cmd := &cobra.Command{
		Use:   "kak-tor",
		Short: "Ingest KAK/TOR PDFs and export them to Markdown",
		Long: `Ingest every PDF in kak_tor_base_path (or --dir) and write a Markdown
export of each into kak_tor_md_base_path (or --markdown-dir).

Examples:
  kbctl add kak-tor --tahun 2025`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var res knowledge.IngestResult
			if err := c().do(cmd.Context(), "POST", "/api/v1/knowledge/kak-tor", req, &res); err != nil {
				return err
			}
			printIngest(cmd.OutOrStdout(), &res)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Dir, "dir", "", "directory of PDFs (default: kak_tor_base_path)")
	cmd.Flags().StringVar(&req.MarkdownDir, "markdown-dir", "", "Markdown export directory (default: kak_tor_md_base_path)")
	cmd.Flags().StringVar(&req.Project, "project", "", "project metadata (default: "+knowledge.DefaultKakTorProject+")")
	cmd.Flags().StringVar(&req.Tahun, "tahun", "", "year metadata (default: "+knowledge.DefaultTahun+")")
	return cmd
}

func newAddSummaryCmd(c func() *client) *cobra.Command {
	var req httpserver.AddSummaryRequest
	cmd := &cobra.Command{
		Use:   "summary <name>",
		Short: "Ingest one Markdown summary",
		Long: `Ingest one Markdown file from summaries_md_base_path. The name is
matched exactly, then in lower_snake_case, then as a substring.

Examples:
  kbctl add summary "Pengadaan Server"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.MarkdownName = args[0]
			var res knowledge.SummaryResult
			if err := c().do(cmd.Context(), "POST", "/api/v1/knowledge/summaries", req, &res); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res.Matched == "" {
				fmt.Fprintf(out, "No summary matched %q\n", args[0])
				for _, a := range res.Available {
					fmt.Fprintf(out, "  %s\n", a)
				}
				return nil
			}
			fmt.Fprintf(out, "Ingested %s (%d chunks)\n", res.Matched, res.Chunks)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Project, "project", "", "project metadata (default: "+knowledge.DefaultSummaryProject+")")
	cmd.Flags().StringVar(&req.Tahun, "tahun", "", "year metadata (default: "+knowledge.DefaultTahun+")")
	return cmd
}

func newIngestCmd(c func() *client) *cobra.Command {
	var req httpserver.IngestFileRequest
	cmd := &cobra.Command{
		Use:   "ingest <path>",
		Short: "Ingest a single PDF or Markdown file",
		Long: `Ingest one file that lies below a configured document directory.
Earlier rows of the same file under the same project are replaced.

A relative path is made absolute before it is sent, so kbctl and the
server must share a filesystem.

Examples:
  kbctl ingest ~/.local/share/knowledged/knowledge/katalog.pdf --tahun 2024`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolving %s: %w", args[0], err)
			}
			req.Path = path
			var res httpserver.IngestFileResponse
			if err := c().do(cmd.Context(), "POST", "/api/v1/knowledge/file", req, &res); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ingested %s (%d chunks)\n", res.File, res.Chunks)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Project, "project", "", "project metadata (default: "+knowledge.DefaultProductProject+")")
	cmd.Flags().StringVar(&req.Tahun, "tahun", "", "year metadata (default: "+knowledge.DefaultTahun+")")
	return cmd
}

func printIngest(w io.Writer, res *knowledge.IngestResult) {
	fmt.Fprintf(w, "Ingested %d files (%d chunks)\n", len(res.Files), res.Chunks)
	for _, f := range res.Files {
		fmt.Fprintf(w, "  %s\n", f)
	}
	if len(res.MarkdownWritten) > 0 {
		fmt.Fprintf(w, "Markdown written: %d\n", len(res.MarkdownWritten))
	}
	for _, f := range res.Failed {
		fmt.Fprintf(w, "FAILED %s: %s\n", f.File, f.Error)
	}
}
