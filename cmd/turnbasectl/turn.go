package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emergent-company/turnbase/orm"
	"github.com/emergent-company/turnbase/versioning"
)

var turnCmd = &cobra.Command{
	Use:   "turn",
	Short: "Open, commit, and revert turns",
}

var turnOpenBranch int
var turnOpenPartition int
var turnOpenHasPartition bool

var turnOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "Open a new staged turn on a branch",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withORM(func(ctx context.Context, o *orm.ORM) error {
			var partitionID *int
			if turnOpenHasPartition {
				partitionID = &turnOpenPartition
			}
			t, err := o.Versioned.CreateTurn(ctx, turnOpenBranch, versioning.StatusStaged, partitionID)
			if err != nil {
				return err
			}
			fmt.Printf("opened turn %d (index %d) on branch %d\n", t.ID, t.Index, t.BranchID)
			return nil
		})
	},
}

var turnCommitID int
var turnCommitMessage string

var turnCommitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Commit a staged turn",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withORM(func(ctx context.Context, o *orm.ORM) error {
			var message *string
			if turnCommitMessage != "" {
				message = &turnCommitMessage
			}
			t, err := o.Versioned.CommitTurn(ctx, turnCommitID, message)
			if err != nil {
				return err
			}
			fmt.Printf("committed turn %d\n", t.ID)
			return nil
		})
	},
}

var turnRevertID int
var turnRevertMessage string

var turnRevertCmd = &cobra.Command{
	Use:   "revert",
	Short: "Revert a staged turn",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withORM(func(ctx context.Context, o *orm.ORM) error {
			var message *string
			if turnRevertMessage != "" {
				message = &turnRevertMessage
			}
			t, err := o.Versioned.RevertTurn(ctx, turnRevertID, message)
			if err != nil {
				return err
			}
			fmt.Printf("reverted turn %d\n", t.ID)
			return nil
		})
	},
}

func init() {
	turnOpenCmd.Flags().IntVar(&turnOpenBranch, "branch", 0, "branch id (required)")
	turnOpenCmd.Flags().IntVar(&turnOpenPartition, "partition", 0, "partition id")
	turnOpenCmd.Flags().BoolVar(&turnOpenHasPartition, "has-partition", false, "set if --partition should be applied")
	_ = turnOpenCmd.MarkFlagRequired("branch")

	turnCommitCmd.Flags().IntVar(&turnCommitID, "id", 0, "turn id (required)")
	turnCommitCmd.Flags().StringVar(&turnCommitMessage, "message", "", "commit message")
	_ = turnCommitCmd.MarkFlagRequired("id")

	turnRevertCmd.Flags().IntVar(&turnRevertID, "id", 0, "turn id (required)")
	turnRevertCmd.Flags().StringVar(&turnRevertMessage, "message", "", "revert message")
	_ = turnRevertCmd.MarkFlagRequired("id")

	turnCmd.AddCommand(turnOpenCmd, turnCommitCmd, turnRevertCmd)
	rootCmd.AddCommand(turnCmd)
}
