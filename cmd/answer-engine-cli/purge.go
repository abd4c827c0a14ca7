// Package main provides CLI commands for data retention and purging.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/answerline/answer-engine/internal/storage"
)

// newPurgeCmd creates the purge subcommand.
func newPurgeCmd() *cobra.Command {
	var (
		tenant string
		dryRun bool
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete all of a tenant's data",
		Long: `Purge deletes a tenant's documents, chunks, conversations, and users.
The tenant record itself is kept.

WARNING: This operation is irreversible. Always use --dry-run first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			tenantID, err := resolveID(tenant)
			if err != nil {
				return fmt.Errorf("invalid tenant: %w", err)
			}

			store, err := openStore()
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer store.Close()

			if _, err := store.Repos().Tenants.GetByID(ctx, tenantID); err != nil {
				return fmt.Errorf("tenant not found: %w", err)
			}

			if dryRun {
				counts, err := purgeCounts(ctx, store.DB(), tenantID.String())
				if err != nil {
					return err
				}
				if outputJSON {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(map[string]any{
						"tenantId": tenantID.String(),
						"dryRun":   true,
						"counts":   counts,
					})
				}
				fmt.Printf("Dry run: would delete for tenant %s\n", tenantID)
				for _, label := range purgeLabels {
					fmt.Printf("  %s: %d\n", label, counts[label])
				}
				return nil
			}

			if !yes {
				fmt.Printf("Delete ALL data for tenant %s? Type the tenant ID to confirm: ", tenantID)
				reader := bufio.NewReader(os.Stdin)
				line, _ := reader.ReadString('\n')
				if strings.TrimSpace(line) != tenantID.String() {
					return fmt.Errorf("confirmation did not match, aborting")
				}
			}

			logger.Info().Str("tenant_id", tenantID.String()).Msg("Purging tenant data")

			var bar *progressbar.ProgressBar
			if !outputJSON && IsTerminal() {
				bar = progressbar.NewOptions(4,
					progressbar.OptionSetDescription("purging"),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
			}
			advance := func() {
				if bar != nil {
					_ = bar.Add(1)
				}
			}

			if err := purgeConversations(ctx, store, tenantID.String()); err != nil {
				return err
			}
			advance()
			if err := store.Repos().Chunks.DeleteByTenant(ctx, tenantID); err != nil {
				return fmt.Errorf("delete knowledge data: %w", err)
			}
			advance()
			if _, err := store.DB().ExecContext(ctx,
				`DELETE FROM users WHERE tenant_id = $1`, tenantID.String()); err != nil {
				return fmt.Errorf("delete users: %w", err)
			}
			advance()
			advance()

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"tenantId": tenantID.String(),
					"purged":   true,
				})
			}

			ui := NewUI(outputJSON, noColor)
			defer ui.Close()
			ui.Success("tenant %s purged", tenantID)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant ID or name (required)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be deleted without deleting")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip interactive confirmation")

	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

// purgeConversations removes messages first so foreign keys hold.
func purgeConversations(ctx context.Context, store *storage.Store, tenantID string) error {
	if _, err := store.DB().ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id IN (SELECT id FROM conversations WHERE tenant_id = $1)`,
		tenantID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := store.DB().ExecContext(ctx,
		`DELETE FROM conversations WHERE tenant_id = $1`, tenantID); err != nil {
		return fmt.Errorf("delete conversations: %w", err)
	}
	return nil
}

var purgeLabels = []string{"messages", "conversations", "knowledge chunks", "documents", "knowledge bases", "users"}

// countQueries mirrors the purge order for the dry-run report. Documents and
// chunks reach the tenant through knowledge_bases.
var countQueries = map[string]string{
	"messages":         `SELECT COUNT(*) FROM messages WHERE conversation_id IN (SELECT id FROM conversations WHERE tenant_id = $1)`,
	"conversations":    `SELECT COUNT(*) FROM conversations WHERE tenant_id = $1`,
	"knowledge chunks": `SELECT COUNT(*) FROM knowledge_chunks WHERE document_id IN (SELECT d.id FROM documents d JOIN knowledge_bases kb ON kb.id = d.knowledge_base_id WHERE kb.tenant_id = $1)`,
	"documents":        `SELECT COUNT(*) FROM documents WHERE knowledge_base_id IN (SELECT id FROM knowledge_bases WHERE tenant_id = $1)`,
	"knowledge bases":  `SELECT COUNT(*) FROM knowledge_bases WHERE tenant_id = $1`,
	"users":            `SELECT COUNT(*) FROM users WHERE tenant_id = $1`,
}

func purgeCounts(ctx context.Context, db *sql.DB, tenantID string) (map[string]int64, error) {
	counts := make(map[string]int64, len(countQueries))
	for label, q := range countQueries {
		var n int64
		if err := db.QueryRowContext(ctx, q, tenantID).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", label, err)
		}
		counts[label] = n
	}
	return counts, nil
}
