package main

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/knowledged/internal/http"
	"github.com/fyrsmithlabs/knowledged/internal/knowledge"
)

func newHealthCmd(c func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check knowledged server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl := c()
			var resp httpserver.HealthResponse
			if err := cl.do(cmd.Context(), "GET", "/health", nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server Status: %s\nServer URL: %s\n", resp.Status, cl.baseURL)
			return nil
		},
	}
}

func newStatsCmd(c func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show vector table statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var st knowledge.Stats
			if err := c().do(cmd.Context(), "GET", "/api/v1/stats", nil, &st); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Total rows: %d\n", st.TotalRows)
			fmt.Fprintf(out, "Size:       %.2f MB\n", st.SizeMB)
			fmt.Fprintf(out, "Projects:   %s\n", strings.Join(st.Projects, ", "))

			years := make([]string, 0, len(st.TahunDistribution))
			for y := range st.TahunDistribution {
				years = append(years, y)
			}
			sort.Strings(years)
			fmt.Fprintln(out, "Tahun:")
			for _, y := range years {
				fmt.Fprintf(out, "  %s: %d\n", y, st.TahunDistribution[y])
			}
			return nil
		},
	}
}

func newRetrieveCmd(c func() *client) *cobra.Command {
	var (
		k       int
		filters []string
	)
	cmd := &cobra.Command{
		Use:   "retrieve <query>",
		Short: "Semantic search with an optional metadata filter",
		Long: `Search the knowledge base and print numbered matches with citations.

Examples:
  kbctl retrieve "spesifikasi server rack"
  kbctl retrieve "jangka waktu pelaksanaan" --filter project=kak_tor --filter tahun=2025 -k 3`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parsePairs(filters)
			if err != nil {
				return err
			}
			req := httpserver.RetrieveRequest{Query: strings.Join(args, " "), K: k, Filter: filter}
			var resp httpserver.RetrieveResponse
			if err := c().do(cmd.Context(), "POST", "/api/v1/retrieve", req, &resp); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Result)
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "top", "k", 0, "maximum results (default: server retrieval.default_k)")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "metadata filter as key=value (repeatable)")
	return cmd
}

func newValuesCmd(c func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "values <field>",
		Short: "List distinct values of a metadata field",
		Long: `List the distinct values of a metadata field across all chunks.

Examples:
  kbctl values project
  kbctl values tahun`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp httpserver.ValuesResponse
			if err := c().do(cmd.Context(), "GET", "/api/v1/metadata/"+url.PathEscape(args[0]), nil, &resp); err != nil {
				return err
			}
			for _, v := range resp.Values {
				fmt.Fprintln(cmd.OutOrStdout(), v)
			}
			return nil
		},
	}
}

func newDocsCmd(c func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "docs <kind>",
		Short: "List files in a configured document directory",
		Long: `List the files of one document directory.

Kinds: knowledge, kak_tor, kak_tor_md, summaries, templates`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{knowledge.KindKnowledge, knowledge.KindKakTor, knowledge.KindKakTorMD, knowledge.KindSummaries, knowledge.KindTemplates},
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp httpserver.DocumentsResponse
			if err := c().do(cmd.Context(), "GET", "/api/v1/documents/"+url.PathEscape(args[0]), nil, &resp); err != nil {
				return err
			}
			for _, d := range resp.Documents {
				fmt.Fprintln(cmd.OutOrStdout(), d)
			}
			return nil
		},
	}
}

// newPayloadCmd is the parent command for prompt payload builders.
func newPayloadCmd(c func() *client) *cobra.Command {
	payloadCmd := &cobra.Command{
		Use:   "payload",
		Short: "Build prompt payloads from templates and Markdown documents",
	}

	var (
		markdownDir string
		files       []string
	)
	instructionCmd := &cobra.Command{
		Use:   "instruction <template>",
		Short: "Pair a template with Markdown documents",
		Long: `Pair a prompt template with the text of Markdown documents from
kak_tor_md_base_path (or --markdown-dir).

Examples:
  kbctl payload instruction ringkasan --file kak_server.md`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := httpserver.InstructionRequest{TemplateName: args[0], MarkdownDir: markdownDir, SelectedFiles: files}
			var p knowledge.Payload
			if err := c().do(cmd.Context(), "POST", "/api/v1/payload/instruction", req, &p); err != nil {
				return err
			}
			printPayload(cmd, &p)
			return nil
		},
	}
	instructionCmd.Flags().StringVar(&markdownDir, "markdown-dir", "", "Markdown directory (default: kak_tor_md_base_path)")
	instructionCmd.Flags().StringArrayVar(&files, "file", nil, "file to include (repeatable, default: all .md files)")

	summaryCmd := &cobra.Command{
		Use:   "summary-tender <template> <kak-tor-name>",
		Short: "Pair a template with one KAK/TOR Markdown export",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := httpserver.SummaryTenderRequest{PromptInstructionName: args[0], KakTorName: args[1]}
			var p knowledge.Payload
			if err := c().do(cmd.Context(), "POST", "/api/v1/payload/summary-tender", req, &p); err != nil {
				return err
			}
			printPayload(cmd, &p)
			return nil
		},
	}

	payloadCmd.AddCommand(instructionCmd, summaryCmd)
	return payloadCmd
}

func printPayload(cmd *cobra.Command, p *knowledge.Payload) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "=== INSTRUCTION ===\n%s\n\n=== CONTEXT ===\n%s", p.Instruction, p.Context)
}
