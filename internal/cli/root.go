package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/KafClaw/KafMarket/internal/cli.version=1.2.3"
	version = "0.4.0"
	logo    = "\n" +
		"  _  __       __ __  __            _        _\n" +
		" | |/ /__ _  / _|  \\/  | __ _ _ __| | _____| |_\n" +
		" | ' // _` || |_| |\\/| |/ _` | '__| |/ / _ \\ __|\n" +
		" | . \\ (_| ||  _| |  | | (_| | |  |   <  __/ |_\n" +
		" |_|\\_\\__,_||_| |_|  |_|\\__,_|_|  |_|\\_\\___|\\__|\n"
)

var rootCmd = &cobra.Command{
	Use:          "kafmarket",
	Short:        "KafMarket - agent capability marketplace",
	Long:         color.CyanString(logo) + "\nA marketplace where agents advertise capabilities, publish RFPs and negotiate proposals.",
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(matchCmd)
}
