// Package main provides the tariff engine CLI entrypoint.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/emsi-ai/tariff-engine/internal/config"
	"github.com/emsi-ai/tariff-engine/internal/observability"
	"github.com/emsi-ai/tariff-engine/internal/retrieval"
	"github.com/emsi-ai/tariff-engine/pkg/engine"
)

var (
	// Global flags
	cfgFile    string
	outputJSON bool
	verbose    bool
	noColor    bool

	// Configuration and logger
	cfg    *config.Config
	logger *observability.Logger
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "tariff-engine-cli",
	Short: "Tariff engine CLI for ingestion, search, chat, and administration",
	Long: `Tariff engine CLI provides commands for managing customs tariff knowledge.

Use this tool to:
- Ingest tariff documents (PDF, DOCX, plain text)
- Run hybrid vector + metadata searches over SH codes
- Chat with the tariff assistant
- Synchronize and purge the stores

All commands support --json for automation.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logFormat := "console"
		if outputJSON {
			logFormat = "json"
		}
		logLevel := cfg.Observability.LogLevel
		if !verbose && !outputJSON {
			logLevel = "warn"
		}

		logger = observability.NewLogger(observability.LogConfig{
			Level:       logLevel,
			Format:      logFormat,
			ServiceName: "tariff-engine-cli",
		})

		return nil
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	// Add subcommands
	rootCmd.AddCommand(newIngestCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newAttributesCmd())
	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newDocumentsCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newPurgeCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildEngine(ctx context.Context) (*engine.Engine, error) {
	eng, err := engine.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize engine: %w", err)
	}
	return eng, nil
}

// newIngestCmd creates the ingest subcommand.
func newIngestCmd() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Ingest tariff documents into the stores",
		Long: `Ingest reads each file (PDF, DOCX, or plain text), normalizes the text,
chunks it on SH code boundaries, embeds the chunks, and stores them in the
vector and relational stores with extracted product metadata.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()

			eng, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			ui := NewUI(outputJSON, noColor)
			defer ui.Close()

			bar := ui.FileBar(int64(len(args)), "ingesting")

			type fileOutcome struct {
				File          string `json:"file"`
				Language      string `json:"language,omitempty"`
				ChunksCreated int    `json:"chunks_created"`
				Error         string `json:"error,omitempty"`
			}
			outcomes := make([]fileOutcome, 0, len(args))
			failures := 0

			for _, path := range args {
				name := source
				if name == "" {
					name = filepath.Base(path)
				}

				result, err := eng.IngestFile(ctx, path, name)
				if err != nil {
					failures++
					outcomes = append(outcomes, fileOutcome{File: path, Error: err.Error()})
					ui.Error("%s: %v", path, err)
				} else {
					outcomes = append(outcomes, fileOutcome{
						File:          path,
						Language:      result.Language,
						ChunksCreated: result.ChunksCreated,
					})
					ui.Success("%s: %d chunks (%s, %s)", path, result.ChunksCreated, result.Language, FormatDuration(result.Duration))
				}
				_ = bar.Add(1)
			}

			if outputJSON {
				json.NewEncoder(os.Stdout).Encode(outcomes)
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d files failed", failures, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "source name override (default: file basename)")
	return cmd
}

// newSearchCmd creates the search subcommand.
func newSearchCmd() *cobra.Command {
	var (
		topK       int
		chunksOnly bool
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Run a hybrid search over the tariff knowledge base",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			query := args[0]

			eng, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			ui := NewUI(outputJSON, noColor)
			defer ui.Close()

			sp := ui.Spinner("searching...")
			var results []retrieval.SearchResult
			if chunksOnly {
				results, err = eng.FindRelevantChunks(ctx, query, topK)
			} else {
				results, err = eng.SearchHybrid(ctx, query, topK)
			}
			sp.Stop()
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(results)
			}

			if len(results) == 0 {
				ui.Warning("No results for %q", query)
				return nil
			}

			ui.Section(fmt.Sprintf("Results for %q", query))
			for i, r := range results {
				printResult(ui, i+1, r)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 5, "number of results")
	cmd.Flags().BoolVar(&chunksOnly, "chunks-only", false, "skip metadata fusion, vector-ranked chunks only")
	return cmd
}

func printResult(ui *UI, rank int, r retrieval.SearchResult) {
	ui.Step("#%d  %s  (score %.3f, source %s)", rank, r.ChunkID, r.Score, r.Source)
	if r.CodeSH != "" {
		ui.KeyValue("SH code", r.CodeSH)
	}
	preview := r.Text
	if len([]rune(preview)) > 240 {
		preview = string([]rune(preview)[:240]) + "…"
	}
	fmt.Printf("    %s\n", strings.ReplaceAll(preview, "\n", " "))
	ui.Newline()
}

// newAttributesCmd creates the attributes subcommand.
func newAttributesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attributes [query]",
		Short: "Show the product attributes extracted from a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			eng, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			attrs := eng.ExtractQueryAttributes(args[0])

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(attrs)
			}

			ui := NewUI(outputJSON, noColor)
			defer ui.Close()

			if len(attrs) == 0 {
				ui.Warning("No attributes detected")
				return nil
			}
			for k, v := range attrs {
				ui.KeyValue(k, v)
			}
			return nil
		},
	}
}

// newChatCmd creates the chat subcommand.
func newChatCmd() *cobra.Command {
	var (
		sessionID string
		question  string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the tariff assistant",
		Long: `Chat starts an interactive session with the tariff assistant. Use
--question for a single non-interactive turn.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			eng, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			ui := NewUI(outputJSON, noColor)
			defer ui.Close()

			if sessionID == "" {
				sessionID = uuid.New().String()
			}

			ask := func(q string) error {
				sp := ui.Spinner("thinking...")
				answer, err := eng.Ask(ctx, sessionID, q)
				sp.Stop()
				if err != nil {
					return err
				}
				if outputJSON {
					return json.NewEncoder(os.Stdout).Encode(map[string]string{
						"session_id": sessionID,
						"question":   q,
						"answer":     answer,
					})
				}
				fmt.Printf("\n%s\n\n", answer)
				return nil
			}

			if question != "" {
				return ask(question)
			}

			ui.Info("Session %s — type your question, or 'exit' to quit.", sessionID)
			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "exit" || line == "quit" {
					break
				}
				if err := ask(line); err != nil {
					ui.Error("%v", err)
				}
			}
			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id (default: random)")
	cmd.Flags().StringVarP(&question, "question", "q", "", "single question, non-interactive")
	return cmd
}

// newDocumentsCmd creates the documents subcommand.
func newDocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "Manage stored documents",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			eng, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			docs, err := eng.Documents(ctx)
			if err != nil {
				return fmt.Errorf("list documents: %w", err)
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(docs)
			}

			ui := NewUI(outputJSON, noColor)
			defer ui.Close()

			rows := make([][]string, 0, len(docs))
			for _, d := range docs {
				rows = append(rows, []string{
					strconv.FormatInt(d.ID, 10),
					d.Name,
					d.Language,
					d.CreatedAt.Format("2006-01-02 15:04"),
				})
			}
			ui.Table([]string{"ID", "NAME", "LANGUAGE", "CREATED"}, rows)
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a document, its chunks, metadata, and vectors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid document id %q", args[0])
			}

			eng, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := eng.DeleteDocument(ctx, id); err != nil {
				return fmt.Errorf("delete document: %w", err)
			}

			ui := NewUI(outputJSON, noColor)
			defer ui.Close()
			ui.Success("Document %d deleted", id)
			return nil
		},
	}

	cmd.AddCommand(listCmd)
	cmd.AddCommand(deleteCmd)
	return cmd
}

// newSyncCmd creates the sync subcommand.
func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Recover vector entries missing from the relational store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			eng, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			ui := NewUI(outputJSON, noColor)
			defer ui.Close()

			sp := ui.Spinner("synchronizing stores...")
			report, err := eng.Sync(ctx)
			sp.Stop()
			if err != nil {
				return fmt.Errorf("sync: %w", err)
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(report)
			}

			ui.Section("Sync report")
			ui.KeyValue("Vector entries", report.VectorCount)
			ui.KeyValue("Relational chunks", report.RelationalCount)
			ui.KeyValue("Orphans found", report.Orphans)
			ui.KeyValue("Recovered", report.Recovered)
			ui.KeyValue("Failed", report.Failed)
			if report.RecoveryDoc != "" {
				ui.KeyValue("Recovery document", report.RecoveryDoc)
			}
			for _, e := range report.Errors {
				ui.Warning("%s", e)
			}
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Compare entry counts across the stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			eng, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			status, err := eng.SyncStatus(ctx)
			if err != nil {
				return fmt.Errorf("sync status: %w", err)
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(status)
			}

			ui := NewUI(outputJSON, noColor)
			defer ui.Close()

			ui.KeyValue("Vector entries", status.VectorCount)
			ui.KeyValue("Relational chunks", status.RelationalCount)
			ui.KeyValue("Documents", status.DocumentCount)
			ui.KeyValue("Metadata rows", status.MetadataCount)
			if status.Status == "SYNCHRONIZED" {
				ui.Success("%s", status.Status)
			} else {
				ui.Warning("%s", status.Status)
			}
			return nil
		},
	}

	cmd.AddCommand(statusCmd)
	return cmd
}

// newVersionCmd creates the version subcommand.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("tariff-engine-cli v1.0.0")
		},
	}
}
