package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"compliance-rag/internal/usage"
)

type usageOptions struct {
	from string
	to   string
	json bool
}

func newUsageCmd(root *rootOptions) *cobra.Command {
	opts := &usageOptions{}
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Report LLM API usage from the usage log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, err := parseTime(opts.from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			to, err := parseTime(opts.to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			events, err := usage.ReadFile(root.cfg.Usage.LogPath)
			if err != nil {
				return err
			}
			rep := usage.BuildReport(events, from, to)
			w := cmd.OutOrStdout()
			if opts.json {
				data, err := json.MarshalIndent(rep, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(w, string(data))
				return nil
			}
			fmt.Fprintf(w, "Total API calls: %d\n", rep.TotalCalls)
			for _, api := range rep.APIs() {
				fmt.Fprintf(w, "  %-28s %d\n", api, rep.Breakdown[api])
			}
			if rep.FirstCall != nil {
				fmt.Fprintf(w, "First call: %s\n", rep.FirstCall.Format(time.RFC3339))
				fmt.Fprintf(w, "Last call:  %s\n", rep.LastCall.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.from, "from", "", "only count calls at or after this RFC 3339 time")
	cmd.Flags().StringVar(&opts.to, "to", "", "only count calls at or before this RFC 3339 time")
	cmd.Flags().BoolVar(&opts.json, "json", false, "output the report as JSON")
	return cmd
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
