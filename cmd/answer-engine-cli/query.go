package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/answerline/answer-engine/internal/generate"
	"github.com/answerline/answer-engine/internal/orchestrator"
)

// newQueryCmd creates the query subcommand.
func newQueryCmd() *cobra.Command {
	var (
		tenant   string
		user     string
		channel  string
		question string
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Ask a question against a tenant's knowledge base",
		Long: `Query runs the full answering pipeline: retrieval, planning, and the
matching answer strategy. Repeated queries with the same --user continue the
same conversation, so follow-ups like "next 2" or "what is her salary?" work.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			tenantID, err := resolveID(tenant)
			if err != nil {
				return fmt.Errorf("invalid tenant: %w", err)
			}

			userID, err := resolveOptionalID(user)
			if err != nil {
				return fmt.Errorf("invalid user: %w", err)
			}

			store, err := openStore()
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer store.Close()

			index := buildVectorIndex()
			defer index.Close()

			orc := orchestrator.New(logger, cfg, store, nil, buildEmbedder(), index, buildGenerator())

			req := orchestrator.QueryRequest{
				TenantID: tenantID,
				Channel:  channel,
				Message:  question,
			}
			if userID != nil {
				req.UserID = *userID
			}

			var spin *spinner.Spinner
			if !outputJSON && IsTerminal() {
				spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
				spin.Suffix = " thinking..."
				spin.Start()
			}

			resp, err := orc.Query(ctx, req)
			if spin != nil {
				spin.Stop()
			}
			if err != nil {
				return fmt.Errorf("query failed: %w", err)
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}

			ui := NewUI(outputJSON, noColor)
			defer ui.Close()

			fmt.Println(resp.Response)
			ui.Newline()
			ui.KeyValue("confidence", fmt.Sprintf("%.2f", resp.Confidence))
			ui.KeyValue("conversation", resp.ConversationID.String())
			if resp.Cached {
				ui.KeyValue("cached", true)
			}
			if resp.RequiresHuman {
				ui.Warning("This answer needs human follow-up")
			}
			if len(resp.Citations) > 0 {
				ui.Section("citations")
				for _, c := range resp.Citations {
					ui.Step("[%s] %s (%.2f)", c.Source, snippetLine(c.Snippet, 100), c.Relevance)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant ID or name (required)")
	cmd.Flags().StringVar(&user, "user", "", "user ID or name for conversation continuity")
	cmd.Flags().StringVar(&channel, "channel", "cli", "channel label for the conversation")
	cmd.Flags().StringVarP(&question, "question", "q", "", "question to ask (required)")

	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("question")

	return cmd
}

// buildGenerator returns nil when no provider is configured; strategies then
// degrade to snippet answers.
func buildGenerator() generate.Generator {
	if cfg.Generator.ProviderURL == "" {
		return nil
	}
	cli, err := generate.NewClient(generate.Config{
		BaseURL:     cfg.Generator.ProviderURL,
		APIKey:      cfg.Generator.APIKey,
		Model:       cfg.Generator.Model,
		Temperature: cfg.Generator.Temperature,
		Timeout:     cfg.Generator.Timeout,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Generator misconfigured, generator-backed strategies degrade to snippets")
		return nil
	}
	return cli
}

func snippetLine(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
