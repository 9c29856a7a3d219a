package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"compliance-rag/internal/app"
	"compliance-rag/internal/extract"
	"compliance-rag/internal/logger"
	"compliance-rag/internal/service"
)

type processOptions struct {
	metricsFile string
}

func newProcessCmd(root *rootOptions) *cobra.Command {
	opts := &processOptions{}
	cmd := &cobra.Command{
		Use:   "process <file.pdf>...",
		Short: "Generate a compliance checklist for each PDF",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Build(cmd.Context(), root.cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			ov, err := processFiles(cmd.Context(), a, args)
			if err != nil {
				return err
			}
			if opts.metricsFile != "" {
				if err := prometheus.WriteToTextfile(opts.metricsFile, a.Registry); err != nil {
					return fmt.Errorf("write metrics: %w", err)
				}
			}
			if err := writeOverview(cmd.OutOrStdout(), ov); err != nil {
				return err
			}
			if len(ov.Errors) > 0 {
				return fmt.Errorf("%d of %d documents failed", len(ov.Errors), len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this file when done")
	return cmd
}

// processFiles extracts, submits and waits for every file, then returns the overview.
func processFiles(ctx context.Context, a *app.App, paths []string) (service.Overview, error) {
	log := logger.FromContext(ctx)
	for _, p := range paths {
		text, err := extract.File(p)
		if err != nil {
			return service.Overview{}, fmt.Errorf("%s: %w", p, err)
		}
		id := filepath.Base(p)
		log.Info("Submitting document", "document_id", id, "characters", len([]rune(text)))
		if err := a.Service.Submit(ctx, id, text); err != nil {
			return service.Overview{}, err
		}
	}
	if err := a.Drain(); err != nil {
		return service.Overview{}, err
	}
	return a.Service.Checklists(ctx)
}

type itemRow struct {
	Item  string `json:"Item"`
	Value any    `json:"Value"`
}

type documentOutput struct {
	Document string    `json:"document"`
	Items    []itemRow `json:"items,omitempty"`
	Error    string    `json:"error,omitempty"`
}

func writeOverview(w io.Writer, ov service.Overview) error {
	out := make([]documentOutput, 0, len(ov.Results)+len(ov.Errors))
	for _, r := range ov.Results {
		d := documentOutput{Document: r.DocumentID}
		for _, it := range r.Result.Items() {
			d.Items = append(d.Items, itemRow{Item: it.Key, Value: it.Value})
		}
		out = append(out, d)
	}
	for _, e := range ov.Errors {
		out = append(out, documentOutput{Document: e.DocumentID, Error: e.Error})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
