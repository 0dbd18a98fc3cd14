package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfrund/walletchat/internal/app"
)

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print the version number of walletchat",
	Annotations: map[string]string{skipAppAnnotation: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "walletchat v%s\n", app.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
