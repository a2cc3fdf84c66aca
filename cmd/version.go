package cmd

import (
	"github.com/spf13/cobra"

	"github.com/deskbridge/deskbridge/internal/logger"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		logger.Infof("deskbridge %s", Version)
	},
}
