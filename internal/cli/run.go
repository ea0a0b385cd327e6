package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Arshim28/nbfc-system/internal/agent"
	"github.com/Arshim28/nbfc-system/internal/agents"
	"github.com/Arshim28/nbfc-system/internal/config"
	"github.com/Arshim28/nbfc-system/internal/db"
	"github.com/Arshim28/nbfc-system/internal/genai"
	"github.com/Arshim28/nbfc-system/internal/orchestrator"
	"github.com/Arshim28/nbfc-system/internal/results"
)

var (
	runNoSave bool
	runDBPath string
)

var runCmd = &cobra.Command{
	Use:   "run <data-dir>",
	Short: "Run the full analysis pipeline over a document directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if errs := config.Validate(cfg); len(errs) > 0 {
			for _, e := range errs {
				cmd.PrintErrf("config error: %s\n", e)
			}
			return fmt.Errorf("config has %d validation error(s)", len(errs))
		}

		dataDir, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolve data dir: %w", err)
		}
		if info, err := os.Stat(dataDir); err != nil || !info.IsDir() {
			return fmt.Errorf("data directory %s does not exist", dataDir)
		}

		apiKey := os.Getenv("GOOGLE_API_KEY")
		if apiKey == "" {
			return fmt.Errorf("GOOGLE_API_KEY is not set; the pipeline cannot call the generation service")
		}

		client := genai.NewClient(cfg.Pipeline.Defaults.Model, apiKey)
		roster := agents.Build(client, genai.NewFileCache(client), cfg.Pipeline.Company)
		orch, err := orchestrator.New(&cfg.Pipeline, roster)
		if err != nil {
			return err
		}

		history, err := openDB()
		if err != nil {
			return err
		}
		defer history.Close()

		runID, err := history.CreateRun(cfg.Pipeline.Name, cfg.Pipeline.Company, dataDir)
		if err != nil {
			return err
		}
		orch.SetEventSink(func(stage, agentName, status, detail string) {
			if err := history.LogStageEvent(runID, stage, agentName, status, detail); err != nil {
				cmd.PrintErrf("warning: record stage event: %v\n", err)
			}
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		summary, runErr := orch.Run(ctx, agent.Params{DataDir: dataDir})

		// The audit trail is saved even when the run halted partway; a
		// failed run's log is the main debugging artifact.
		if !runNoSave {
			saved, err := results.NewWriter(dataDir, cfg.Pipeline.ResultsDir).Save(summary, orch.AuditLog())
			if err != nil {
				cmd.PrintErrf("warning: save results: %v\n", err)
			} else {
				cmd.Printf("Results saved to %s\n", saved.Dir)
				if saved.MemorandumPath != "" {
					cmd.Printf("Memorandum: %s\n", saved.MemorandumPath)
				}
			}
		}

		errMsg := ""
		if runErr != nil {
			errMsg = runErr.Error()
		}
		if err := history.FinishRun(runID, summary.CompletionRate, errMsg); err != nil {
			cmd.PrintErrf("warning: finish run record: %v\n", err)
		}

		printSummary(cmd, summary)
		usage := client.TotalUsage()
		cmd.Printf("Tokens: %d prompt, %d output, %d total across %d calls\n",
			usage.Prompt, usage.Output, usage.Total, client.Calls())

		return runErr
	},
}

func printSummary(cmd *cobra.Command, s *orchestrator.Summary) {
	cmd.Printf("\nPipeline: %s (%s)\n", s.Pipeline, s.Company)
	cmd.Printf("Stages:   %d/%d completed (%.0f%%) in %.1fs\n",
		len(s.Completed), s.TotalStages, s.CompletionRate*100, s.Elapsed)
	if len(s.Completed) > 0 {
		cmd.Printf("Completed: %s\n", strings.Join(s.Completed, ", "))
	}
	if len(s.Failed) > 0 {
		cmd.Printf("Failed:    %s\n", strings.Join(s.Failed, ", "))
	}
}

func openDB() (*db.DB, error) {
	path := runDBPath
	if path == "" {
		var err error
		path, err = db.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	d, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if err := d.Migrate(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func init() {
	runCmd.Flags().BoolVar(&runNoSave, "no-save", false, "do not write result files to the data directory")
	rootCmd.PersistentFlags().StringVar(&runDBPath, "db", "", "path to the run history database (default ~/.nbfc/nbfc.db)")
}
