// cmd/run.go
package cmd

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"webpilot/api/schemas"
	"webpilot/internal/browser"
	"webpilot/internal/executor"
	"webpilot/internal/interpreter"
	"webpilot/internal/llmclient"
	"webpilot/internal/observability"
)

var (
	runURL        string
	runMaxSteps   int
	runUsername   string
	runPassword   string
	runScreenshot string
)

var runCmd = &cobra.Command{
	Use:   "run [command]",
	Short: "Execute a single natural-language command and exit.",
	Long: `Plans and executes one command against a fresh browser session, printing
the step trail to stdout. Useful for trying out commands without the server.

Example:
  webpilot run "go to news.ycombinator.com and click the first story" --screenshot out.png`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()
		ctx := cmd.Context()

		llm, err := llmclient.NewClient(ctx, cfg.LLM, logger)
		if err != nil {
			return fmt.Errorf("failed to create LLM client: %w", err)
		}

		plan, err := interpreter.New(llm, logger).Interpret(ctx, args[0], runMaxSteps)
		if err != nil {
			return fmt.Errorf("failed to interpret command: %w", err)
		}

		if runURL != "" {
			plan.StartingURL = runURL
		}

		var creds *schemas.Credentials
		if runUsername != "" || runPassword != "" {
			creds = &schemas.Credentials{Username: runUsername, Password: runPassword}
		}
		interpreter.ResolveCredentials(plan, creds)

		manager := browser.NewManager(cfg.Browser, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := manager.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Browser manager shutdown error", zap.Error(err))
			}
		}()

		sess, err := manager.NewSession(ctx)
		if err != nil {
			return fmt.Errorf("failed to open browser session: %w", err)
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			sess.Close(closeCtx)
		}()

		if plan.StartingURL != "" {
			if err := sess.NavigateInitial(ctx, plan.StartingURL); err != nil {
				return fmt.Errorf("initial navigation to %s failed: %w", plan.StartingURL, err)
			}
		}

		result := executor.New(cfg.Executor, logger).Run(ctx, sess, plan)
		printResult(cmd, result)

		if runScreenshot != "" && result.Screenshot != "" {
			if err := writeScreenshot(runScreenshot, result.Screenshot); err != nil {
				return fmt.Errorf("failed to write screenshot: %w", err)
			}
			cmd.Printf("Screenshot written to %s\n", runScreenshot)
		}

		// Failed steps are part of a normal run; only an interrupted walk
		// comes back unsuccessful.
		if !result.Success {
			return fmt.Errorf("automation did not complete: %s", result.Message)
		}
		return nil
	},
}

func printResult(cmd *cobra.Command, result *schemas.AutomationResult) {
	for i, step := range result.Steps {
		status := "ok"
		if !step.Success {
			status = "FAILED: " + step.Error
		}
		cmd.Printf("%2d. %-60s %s\n", i+1, step.Action.Describe(), status)
	}
	cmd.Println(result.Message)
}

// writeScreenshot decodes a data-URL (or raw base64) screenshot to a PNG file.
func writeScreenshot(path, data string) error {
	if idx := strings.Index(data, ","); idx >= 0 && strings.HasPrefix(data, "data:") {
		data = data[idx+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func init() {
	runCmd.Flags().StringVar(&runURL, "url", "", "starting URL (overrides the interpreter's choice)")
	runCmd.Flags().IntVar(&runMaxSteps, "max-steps", schemas.DefaultMaxSteps, "maximum actions in the generated plan")
	runCmd.Flags().StringVar(&runUsername, "username", "", "username substituted for credential placeholders")
	runCmd.Flags().StringVar(&runPassword, "password", "", "password substituted for credential placeholders")
	runCmd.Flags().StringVar(&runScreenshot, "screenshot", "", "write the final screenshot to this PNG file")
	rootCmd.AddCommand(runCmd)
}
