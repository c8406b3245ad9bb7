package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emergent-company/turnbase/orm"
)

var branchCmd = &cobra.Command{
	Use:   "branch",
	Short: "Create and inspect branches",
}

var branchCreateName string

var branchCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new root branch",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withORM(func(ctx context.Context, o *orm.ORM) error {
			var name *string
			if branchCreateName != "" {
				name = &branchCreateName
			}
			b, err := o.Versioned.CreateBranch(ctx, name)
			if err != nil {
				return err
			}
			fmt.Printf("created branch %d\n", b.ID)
			return nil
		})
	},
}

var branchForkFrom int
var branchForkIndex int
var branchForkName string

var branchForkCmd = &cobra.Command{
	Use:   "fork",
	Short: "Fork a branch at a given turn index",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withORM(func(ctx context.Context, o *orm.ORM) error {
			var name *string
			if branchForkName != "" {
				name = &branchForkName
			}
			b, err := o.Versioned.Fork(ctx, branchForkFrom, branchForkIndex, name)
			if err != nil {
				return err
			}
			fmt.Printf("forked branch %d from branch %d at index %d\n", b.ID, branchForkFrom, branchForkIndex)
			return nil
		})
	},
}

var branchListLimit int
var branchListOffset int

var branchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known branches",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withORM(func(ctx context.Context, o *orm.ORM) error {
			branches, err := o.Versioned.ListBranches(ctx, branchListLimit, branchListOffset)
			if err != nil {
				return err
			}
			for _, b := range branches {
				fmt.Printf("%d\t%s\tcurrent_index=%d\n", b.ID, branchName(b.Name), b.CurrentIndex)
			}
			return nil
		})
	},
}

func branchName(name *string) string {
	if name == nil {
		return "(unnamed)"
	}
	return *name
}

func init() {
	branchCreateCmd.Flags().StringVar(&branchCreateName, "name", "", "branch name")

	branchForkCmd.Flags().IntVar(&branchForkFrom, "from", 0, "parent branch id (required)")
	branchForkCmd.Flags().IntVar(&branchForkIndex, "at", 0, "turn index to fork at (required)")
	branchForkCmd.Flags().StringVar(&branchForkName, "name", "", "forked branch name")
	_ = branchForkCmd.MarkFlagRequired("from")
	_ = branchForkCmd.MarkFlagRequired("at")

	branchListCmd.Flags().IntVar(&branchListLimit, "limit", 50, "max branches to list")
	branchListCmd.Flags().IntVar(&branchListOffset, "offset", 0, "offset into the branch list")

	branchCmd.AddCommand(branchCreateCmd, branchForkCmd, branchListCmd)
	rootCmd.AddCommand(branchCmd)
}
