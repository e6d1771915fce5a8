// cmd/serve.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"webpilot/internal/browser"
	"webpilot/internal/executor"
	"webpilot/internal/interpreter"
	"webpilot/internal/llmclient"
	"webpilot/internal/observability"
	"webpilot/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP automation service.",
	Long: `Starts the webpilot HTTP server. POST /interact accepts a natural-language
command, plans browser actions with the configured LLM, executes them in a
headless Chrome session, and returns the step trail plus a final screenshot.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()

		if serveAddr != "" {
			cfg.Server.ListenAddr = serveAddr
		}

		llm, err := llmclient.NewClient(cmd.Context(), cfg.LLM, logger)
		if err != nil {
			return fmt.Errorf("failed to create LLM client: %w", err)
		}

		planner := interpreter.New(llm, logger)
		sessions := browser.NewManager(cfg.Browser, logger)
		runner := executor.New(cfg.Executor, logger)

		return server.New(cfg, logger, planner, sessions, runner).Start()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.listen_addr)")
	rootCmd.AddCommand(serveCmd)
}
