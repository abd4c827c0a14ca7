package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/answerline/answer-engine/internal/ingest"
)

// newIngestCmd creates the ingest subcommand.
func newIngestCmd() *cobra.Command {
	var (
		tenant string
		kb     string
		title  string
	)

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Ingest documents into a tenant's knowledge base",
		Long: `Ingest extracts text from the given files, chunks it sentence-aware,
embeds the chunks, and stores them for retrieval.

The file extension selects the extractor: .pdf, .docx, .csv, .xlsx, .txt, .md.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			tenantID, err := resolveID(tenant)
			if err != nil {
				return fmt.Errorf("invalid tenant: %w", err)
			}

			kbID, err := resolveOptionalID(kb)
			if err != nil {
				return fmt.Errorf("invalid knowledge base: %w", err)
			}

			store, err := openStore()
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer store.Close()

			index := buildVectorIndex()
			defer index.Close()

			pipeline := ingest.NewPipeline(logger, ingest.PipelineConfig{
				StoragePath:      cfg.Ingestion.StoragePath,
				MaxFileBytes:     cfg.Ingestion.MaxFileBytes,
				ChunkTargetChars: cfg.Ingestion.ChunkTargetChars,
				OverlapSentences: cfg.Ingestion.ChunkOverlapSentences,
			}, store, buildEmbedder(), index)

			ui := NewUI(outputJSON, noColor)
			defer ui.Close()

			bar := ui.ProgressBar("ingesting", int64(len(args)))

			type fileResult struct {
				File       string `json:"file"`
				DocumentID string `json:"documentId,omitempty"`
				ChunkCount int    `json:"chunkCount,omitempty"`
				Error      string `json:"error,omitempty"`
			}
			var results []fileResult
			var failed int

			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					results = append(results, fileResult{File: path, Error: err.Error()})
					failed++
					if bar != nil {
						bar.Increment()
					}
					continue
				}

				docTitle := title
				if docTitle == "" || len(args) > 1 {
					docTitle = filepath.Base(path)
				}

				res, err := pipeline.Ingest(ctx, ingest.IngestRequest{
					TenantID:        tenantID,
					KnowledgeBaseID: kbID,
					Title:           docTitle,
					Filename:        filepath.Base(path),
					Data:            data,
				})
				if err != nil {
					results = append(results, fileResult{File: path, Error: err.Error()})
					failed++
				} else {
					results = append(results, fileResult{
						File:       path,
						DocumentID: res.DocumentID.String(),
						ChunkCount: res.ChunkCount,
					})
				}
				if bar != nil {
					bar.Increment()
				}
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"tenantId": tenantID.String(),
					"files":    results,
					"failed":   failed,
				})
			}

			ui.Newline()
			for _, r := range results {
				if r.Error != "" {
					ui.Error("%s: %s", r.File, r.Error)
				} else {
					ui.Success("%s: %d chunks (document %s)", r.File, r.ChunkCount, r.DocumentID)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant ID or name (required)")
	cmd.Flags().StringVar(&kb, "kb", "", "knowledge base ID (default: tenant's default)")
	cmd.Flags().StringVar(&title, "title", "", "document title (default: filename)")

	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func resolveOptionalID(idOrName string) (*uuid.UUID, error) {
	if idOrName == "" {
		return nil, nil
	}
	id, err := resolveID(idOrName)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
