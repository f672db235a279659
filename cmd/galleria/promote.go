package main

import (
	"github.com/spf13/cobra"

	"galleria/pkg/logger"
)

var demote bool

var promoteCmd = &cobra.Command{
	Use:   "promote <username>",
	Short: "Grant or revoke administrator rights",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := bootstrap(cmd.Context(), false)
		defer a.close()

		if err := a.users.SetAdmin(cmd.Context(), args[0], !demote); err != nil {
			return err
		}
		if demote {
			logger.LogSuccess("%s is no longer an administrator", args[0])
		} else {
			logger.LogSuccess("%s is now an administrator", args[0])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(promoteCmd)
	promoteCmd.Flags().BoolVar(&demote, "demote", false, "Revoke instead of grant")
}
