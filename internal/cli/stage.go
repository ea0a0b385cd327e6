package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Arshim28/nbfc-system/internal/agent"
	"github.com/Arshim28/nbfc-system/internal/agents"
	"github.com/Arshim28/nbfc-system/internal/audit"
	"github.com/Arshim28/nbfc-system/internal/genai"
	"github.com/Arshim28/nbfc-system/internal/orchestrator"
)

var stageLogPath string

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Inspect and run individual pipeline stages",
}

var stageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the configured stages in execution order",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STAGE\tAGENT\tTIMEOUT\tRETRIES\tGATE\tDEPENDS ON")
		for i := range cfg.Pipeline.Stages {
			s := &cfg.Pipeline.Stages[i]
			gate := ""
			if s.IsVerificationGate() {
				gate = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				s.Name, s.Agent, s.Timeout, s.Retries(), gate, strings.Join(s.Dependencies, ", "))
		}
		return w.Flush()
	},
}

var stageRunCmd = &cobra.Command{
	Use:   "run <stage> <data-dir>",
	Short: "Run a single stage, optionally resuming from a saved process log",
	Long: `Runs one configured stage in isolation. Dependencies are validated against
the process log given with --log; without one, only stages with no
dependencies can run.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		stageName, dataDir := args[0], args[1]
		if cfg.Pipeline.FindStage(stageName) == nil {
			return fmt.Errorf("unknown stage %q", stageName)
		}
		dataDir, err = filepath.Abs(dataDir)
		if err != nil {
			return fmt.Errorf("resolve data dir: %w", err)
		}

		// A single-stage pipeline keeps the stage's own declaration,
		// including its dependencies, which resolve against the loaded log.
		single := cfg.Pipeline
		single.Stages = nil
		for i := range cfg.Pipeline.Stages {
			if cfg.Pipeline.Stages[i].Name == stageName {
				single.Stages = append(single.Stages, cfg.Pipeline.Stages[i])
			}
		}

		client := genai.NewClient(cfg.Pipeline.Defaults.Model, "")
		roster := agents.Build(client, genai.NewFileCache(client), cfg.Pipeline.Company)
		orch, err := orchestrator.New(&single, roster)
		if err != nil {
			return err
		}

		if stageLogPath != "" {
			log, err := audit.LoadFile(stageLogPath)
			if err != nil {
				return fmt.Errorf("load process log: %w", err)
			}
			orch.UseAuditLog(log)
		}

		summary, runErr := orch.Run(cmd.Context(), agent.Params{DataDir: dataDir})
		printSummary(cmd, summary)

		if stageLogPath != "" {
			if err := orch.AuditLog().SaveFile(stageLogPath); err != nil {
				cmd.PrintErrf("warning: save process log: %v\n", err)
			}
		}
		return runErr
	},
}

func init() {
	stageRunCmd.Flags().StringVar(&stageLogPath, "log", "", "process log to resume from and append to")
	stageCmd.AddCommand(stageListCmd)
	stageCmd.AddCommand(stageRunCmd)
}
