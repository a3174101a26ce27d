package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rickgao/resend/internal/config"
)

func checkConfigCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate a configuration file",
		Long: `Load and validate a configuration file, compile any handler scripts, and
print the effective settings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadAndValidate(configPath)
			if err != nil {
				return err
			}

			table, closeHandlers, err := buildHandlers(cfg.Handlers, filepath.Dir(configPath))
			if err != nil {
				return err
			}
			defer closeHandlers()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config ok: %s\n", configPath)
			fmt.Fprintf(out, "  listen:   %s%s\n", listenAddr(cfg.Server), cfg.Server.WSPath)
			if routes := table.Routes(); len(routes) > 0 {
				fmt.Fprintf(out, "  handlers: %s\n", strings.Join(routes, ", "))
			} else {
				fmt.Fprintln(out, "  handlers: none (all routes pass through)")
			}
			fmt.Fprintf(out, "  metrics:  %t\n", cfg.Metrics.Enabled)
			fmt.Fprintf(out, "  audit:    %t\n", cfg.Audit.Enabled)
			for _, w := range cfg.Warnings() {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/resend.yaml", "path to config file")

	return cmd
}
