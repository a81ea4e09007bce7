package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	ragchat "github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/ragchat/config"
)

type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string
}

func main() {
	err := newRootCmd().Execute()
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "ragchat",
		Short:         "Conversational RAG service with sub-query decomposition and corrective retrieval",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file (defaults apply when empty)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "override log format (json, console)")

	root.AddCommand(
		newServeCmd(opts),
		newAPICmd(opts),
		newAskCmd(opts),
		newChatCmd(opts),
		newVersionCmd(),
	)
	return root
}

// load reads .env, the config file and the environment, then initialises logging.
func (o *rootOptions) load() (*config.Config, error) {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", o.envFile, err)
		}
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

func (o *rootOptions) client(ctx context.Context) (*ragchat.RAGClient, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	return ragchat.NewRAGClient(ctx, cfg)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ragchat %s\n", ragchat.Version)
		},
	}
}
