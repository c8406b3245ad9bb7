// Command turnbasectl is the operator CLI for a turnbase-backed database:
// schema create/drop, migrations, and branch/turn lifecycle operations.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "turnbasectl",
	Short: "Operate a turnbase-backed database",
	Long: `turnbasectl manages the schema, migrations, and branch/turn
lifecycle of a turnbase database.

Configuration is read from the environment (TURNBASE_CONNECTION_URL and
friends); see internal/config for the full recognized option set.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
