package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Show or change the name messages are sent under",
}

var identityShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current name",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), application.Controller.View().Identity.Username)
	},
}

var identitySetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Change the name",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, truncated, err := application.Controller.RenameIdentity(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		if truncated {
			fmt.Fprintf(cmd.OutOrStdout(), "Name was too long and has been shortened.\n")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "You are now %s\n", name)
		return nil
	},
}

func init() {
	identityCmd.AddCommand(identityShowCmd, identitySetCmd)
	rootCmd.AddCommand(identityCmd)
}
