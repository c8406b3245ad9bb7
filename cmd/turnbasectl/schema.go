package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/emergent-company/turnbase/orm"
)

// schemaCmd operates against whatever models an embedding application has
// registered on the ORM before reaching this code path. turnbasectl itself
// knows no application models, so create-all/drop-all are no-ops unless
// this command tree is vendored into an application binary that registers
// its own models ahead of Execute().
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create or drop registered model tables",
}

var schemaCreateAllCmd = &cobra.Command{
	Use:   "create-all",
	Short: "Create every registered model's table",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withORM(func(ctx context.Context, o *orm.ORM) error {
			return o.CreateAll(ctx)
		})
	},
}

var schemaDropAllCmd = &cobra.Command{
	Use:   "drop-all",
	Short: "Drop every registered model's table",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withORM(func(ctx context.Context, o *orm.ORM) error {
			return o.DropAll(ctx)
		})
	},
}

func init() {
	schemaCmd.AddCommand(schemaCreateAllCmd, schemaDropAllCmd)
	rootCmd.AddCommand(schemaCmd)
}
