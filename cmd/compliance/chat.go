package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"compliance-rag/internal/app"
	"compliance-rag/internal/tui"
)

func newChatCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <file.pdf>...",
		Short: "Process PDFs, then ask questions about them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := app.Build(ctx, root.cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			ov, err := processFiles(ctx, a, args)
			if err != nil {
				return err
			}
			summary := fmt.Sprintf("%d document(s) processed, %d failed", len(ov.Results), len(ov.Errors))
			m := tui.New(ctx, a.Service, summary)
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			return err
		},
	}
}
