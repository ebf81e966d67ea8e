package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "recouvrement",
	Short: "Recouvrement Service",
	Long: `Recouvrement Service for a multi-depot distribution operation.

Functions:
- Track invoices, delivery notes and payments per depot
- Resolve recovery delay thresholds and flag overdue invoices
- Scope invoice visibility per recouvrement agent assignments
- Run scheduled urgency recomputes and expired-delay cleanup`,
}

// Execute executes the root command
func Execute() error {
	return rootCmd.Execute()
}
