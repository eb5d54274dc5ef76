// Package main provides the CLI command for wiping the stores.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// newPurgeCmd creates the purge subcommand.
func newPurgeCmd() *cobra.Command {
	var (
		force  bool
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete all documents, chunks, metadata, and vectors",
		Long: `Purge wipes every store: product metadata, chunks, documents, and the
vector collection, in that order so foreign keys are respected.

WARNING: This operation is irreversible. Use --dry-run to preview counts.`,
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

			status, err := eng.SyncStatus(ctx)
			if err != nil {
				return fmt.Errorf("count stores: %w", err)
			}

			if dryRun {
				if outputJSON {
					return json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
						"dry_run":           true,
						"vector_entries":    status.VectorCount,
						"relational_chunks": status.RelationalCount,
						"documents":         status.DocumentCount,
						"metadata_rows":     status.MetadataCount,
					})
				}
				ui.Info("DRY RUN: would delete %d documents, %d chunks, %d metadata rows, %d vector entries",
					status.DocumentCount, status.RelationalCount, status.MetadataCount, status.VectorCount)
				return nil
			}

			if !force {
				fmt.Printf("This will delete %d documents, %d chunks, %d metadata rows, and %d vector entries.\n",
					status.DocumentCount, status.RelationalCount, status.MetadataCount, status.VectorCount)
				fmt.Print("Type 'yes' to continue: ")
				reader := bufio.NewReader(os.Stdin)
				line, _ := reader.ReadString('\n')
				if strings.TrimSpace(line) != "yes" {
					ui.Warning("Aborted")
					return nil
				}
			}

			sp := ui.Spinner("purging stores...")
			err = eng.ClearAll(ctx)
			sp.Stop()
			if err != nil {
				return fmt.Errorf("purge failed: %w", err)
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
					"purged":            true,
					"vector_entries":    status.VectorCount,
					"relational_chunks": status.RelationalCount,
					"documents":         status.DocumentCount,
					"metadata_rows":     status.MetadataCount,
				})
			}

			ui.Success("All stores purged")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation prompt")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "preview what would be deleted")
	return cmd
}
