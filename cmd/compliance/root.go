package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"compliance-rag/internal/config"
	"compliance-rag/internal/logger"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logJSON    bool

	cfg *config.AppConfig
	log logger.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "compliance",
		Short: "Generate compliance checklists from PDFs and chat about them",
		Long: `Extracts text from PDF documents, sends it in chunks to an LLM to build a
compliance checklist, and answers follow-up questions using the processed
documents as context.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML config (default ./config.yaml or ~/.config/compliance-rag/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	cmd.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "emit logs as JSON")

	cmd.AddCommand(newProcessCmd(opts), newChatCmd(opts), newUsageCmd(opts))
	return cmd
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	if err := config.LoadEnv(); err != nil {
		return err
	}
	var err error
	if o.configPath == "" {
		o.cfg, _, err = config.LoadDefault()
	} else {
		o.cfg, err = config.Load(o.configPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	level := o.cfg.Log.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	lcfg := logger.DefaultConfig()
	lcfg.Level = logger.ParseLevel(level)
	lcfg.JSON = o.logJSON || o.cfg.Log.JSON
	lcfg.Output = cmd.ErrOrStderr()
	o.log = logger.NewLogger(lcfg)
	logger.SetDefault(o.log)
	cmd.SetContext(logger.ContextWithLogger(cmd.Context(), o.log))
	return nil
}
