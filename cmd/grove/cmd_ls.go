package main

import (
	"fmt"

	"github.com/odvcencio/grove/pkg/repo"
	"github.com/spf13/cobra"
)

func newLsCmd() *cobra.Command {
	var long bool

	cmd := &cobra.Command{
		Use:   "ls [revision]",
		Short: "List the files recorded in a snapshot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			target := "HEAD"
			if len(args) == 1 {
				target = args[0]
			}
			rev, err := resolveRevision(r, target)
			if err != nil {
				return err
			}
			tree, err := treeHashFor(r, rev)
			if err != nil {
				return err
			}

			files, err := r.FlattenTree(tree)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, f := range files {
				if long {
					fmt.Fprintf(out, "%s %s\t%s\n", f.Mode, f.Hash, f.Path)
				} else {
					fmt.Fprintln(out, f.Path)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&long, "long", "l", false, "show mode and hash for each file")

	return cmd
}
