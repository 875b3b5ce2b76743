package main

import (
	"context"
	"fmt"

	"dingtalk-mcp/dingtalk/config"
	"dingtalk-mcp/dingtalk/pkg/mcpserver"

	"github.com/spf13/cobra"
)

// version 可通过 -ldflags "-X main.version=..." 覆盖
var version = mcpserver.Version

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "dingtalk-mcp",
		Short:         "MCP server exposing DingTalk user search, lookup and messaging",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if err := applyFlags(cmd, cfg); err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return run(ctx, cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("transport", config.TransportStdio, "MCP transport: stdio or http (overrides MCP_TRANSPORT)")
	flags.String("port", "8080", "HTTP listen port for the http transport (overrides PORT)")
	flags.String("log-level", "info", "log level: debug, info, warn, error (overrides LOG_LEVEL)")

	cmd.AddCommand(newVersionCommand())
	return cmd
}

// applyFlags 只覆盖显式传入的参数，然后重新校验
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("transport") {
		cfg.Transport, _ = flags.GetString("transport")
	}
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetString("port")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	return cfg.Validate()
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the dingtalk-mcp version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", mcpserver.Name, version)
			return err
		},
	}
}
