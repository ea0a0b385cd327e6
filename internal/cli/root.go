package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "nbfc",
	Short: "Multi-stage NBFC credit analysis pipeline",
	Long: `nbfc runs a staged credit analysis over a directory of company documents:
harvest and QA the documents, interrogate them with a diligence question
battery, compute the financial ratio battery, research the sector, and
synthesize an investment committee memorandum.

Results land in <data-dir>/analysis_output/; run history is kept in
~/.nbfc/nbfc.db.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(stageCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(dbCmd)
}
