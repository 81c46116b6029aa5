package main

import (
	"fmt"
	"io"
	"time"

	"github.com/odvcencio/grove/pkg/diff"
	"github.com/odvcencio/grove/pkg/object"
	"github.com/odvcencio/grove/pkg/repo"
	"github.com/spf13/cobra"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [revision]",
		Short: "Show an object: snapshot metadata, tree listing, or blob content",
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
			h, err := resolveRevision(r, target)
			if err != nil {
				return err
			}

			objType, data, err := r.Store.Read(h)
			if err != nil {
				return fmt.Errorf("show: read %s: %w", h, err)
			}

			out := cmd.OutOrStdout()
			switch objType {
			case object.TypeCommit:
				return showCommit(r, h, out)
			case object.TypeTree:
				tree, err := object.UnmarshalTree(data)
				if err != nil {
					return fmt.Errorf("show: parse tree %s: %w", h, err)
				}
				for _, e := range tree.Entries {
					fmt.Fprintf(out, "%s %s %s\t%s\n", e.Mode, e.Type, e.Hash, e.Name)
				}
				return nil
			default:
				_, err := out.Write(data)
				return err
			}
		},
	}
}

func showCommit(r *repo.Repo, h object.Hash, out io.Writer) error {
	commit, err := r.Store.ReadCommit(h)
	if err != nil {
		return fmt.Errorf("show: read commit %s: %w", h, err)
	}

	fmt.Fprintf(out, "snapshot %s\n", h)
	for _, p := range commit.Parents {
		fmt.Fprintf(out, "Parent: %s\n", p)
	}
	fmt.Fprintf(out, "Author: %s\n", commit.Author)
	fmt.Fprintf(out, "Date:   %s\n", time.Unix(commit.Timestamp, 0).Format("2006-01-02 15:04:05"))
	if commit.Signature != "" {
		if keyType, err := verifyCommitSignature(commit); err == nil {
			fmt.Fprintf(out, "Signed: good signature (%s)\n", keyType)
		} else {
			fmt.Fprintf(out, "Signed: cannot verify (%v)\n", err)
		}
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "    %s\n", commit.Message)
	fmt.Fprintln(out)

	parent := object.Hash("")
	if len(commit.Parents) > 0 {
		parent = commit.Parents[0]
	}
	cs, err := diff.Commits(r.Store, parent, h, diffOptionsFromConfig(r.Config))
	if err != nil {
		return fmt.Errorf("show: diff against parent: %w", err)
	}
	if cs.Empty() {
		return nil
	}
	_, err = fmt.Fprint(out, diff.FormatNameStatus(cs))
	return err
}

func diffOptionsFromConfig(cfg *repo.Config) diff.Options {
	return diff.Options{
		DetectRenames: cfg.Diff.Renames,
		ModeChanges:   cfg.Diff.ModeChanges,
	}
}
