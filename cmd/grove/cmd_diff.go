package main

import (
	"fmt"

	"github.com/odvcencio/grove/pkg/diff"
	"github.com/odvcencio/grove/pkg/repo"
	"github.com/spf13/cobra"
)

func newDiffCmd() *cobra.Command {
	var noRenames bool
	var noModeChanges bool
	var stat bool

	cmd := &cobra.Command{
		Use:   "diff <old> <new>",
		Short: "Compare two snapshots or trees",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			oldRev, err := resolveRevision(r, args[0])
			if err != nil {
				return err
			}
			newRev, err := resolveRevision(r, args[1])
			if err != nil {
				return err
			}
			oldTree, err := treeHashFor(r, oldRev)
			if err != nil {
				return err
			}
			newTree, err := treeHashFor(r, newRev)
			if err != nil {
				return err
			}

			opts := diffOptionsFromConfig(r.Config)
			if noRenames {
				opts.DetectRenames = false
			}
			if noModeChanges {
				opts.ModeChanges = false
			}

			cs, err := diff.Trees(r.Store, oldTree, newTree, opts)
			if err != nil {
				return err
			}
			for _, le := range cs.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s unreadable at %q: %v\n", le.Hash, le.Path, le.Err)
			}

			out := cmd.OutOrStdout()
			if stat {
				fmt.Fprint(out, diff.FormatNameStatus(cs))
				return nil
			}
			return diff.WriteUnified(out, r.Store, cs)
		},
	}

	cmd.Flags().BoolVar(&noRenames, "no-renames", false, "disable rename detection")
	cmd.Flags().BoolVar(&noModeChanges, "no-mode-changes", false, "ignore file mode changes")
	cmd.Flags().BoolVar(&stat, "stat", false, "show a name-status summary instead of content hunks")

	return cmd
}
