package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/odvcencio/grove/pkg/object"
	"github.com/odvcencio/grove/pkg/repo"
	"github.com/spf13/cobra"
)

func newLogCmd() *cobra.Command {
	var oneline bool
	var limit int

	cmd := &cobra.Command{
		Use:   "log [ref]",
		Short: "Show snapshot history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			start := "HEAD"
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				start = args[0]
			}
			startHash, err := r.ResolveRef(start)
			if err != nil {
				if start == "HEAD" {
					fmt.Fprintln(cmd.OutOrStdout(), "no snapshots yet")
					return nil
				}
				startHash, err = resolveRevision(r, start)
				if err != nil {
					return err
				}
			}

			entries, err := r.Log(startHash, limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no snapshots yet")
				return nil
			}

			headHash, _ := r.ResolveRef("HEAD")
			branchName := ""
			if head, err := r.Head(); err == nil && strings.HasPrefix(head, "refs/heads/") {
				branchName = strings.TrimPrefix(head, "refs/heads/")
			}

			out := cmd.OutOrStdout()
			for _, e := range entries {
				decoration := buildDecoration(e.Hash, headHash, branchName)

				if oneline {
					if decoration != "" {
						fmt.Fprintf(out, "%s %s %s\n", shortHash(e.Hash), decoration, e.Commit.Message)
					} else {
						fmt.Fprintf(out, "%s %s\n", shortHash(e.Hash), e.Commit.Message)
					}
					continue
				}

				if decoration != "" {
					fmt.Fprintf(out, "snapshot %s %s\n", e.Hash, decoration)
				} else {
					fmt.Fprintf(out, "snapshot %s\n", e.Hash)
				}
				fmt.Fprintf(out, "Author: %s\n", e.Commit.Author)
				fmt.Fprintf(out, "Date:   %s\n", time.Unix(e.Commit.Timestamp, 0).Format("2006-01-02 15:04:05"))
				fmt.Fprintln(out)
				fmt.Fprintf(out, "    %s\n", e.Commit.Message)
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&oneline, "oneline", false, "compact one-line format")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of snapshots to show")

	return cmd
}

// buildDecoration returns a string like "(HEAD -> main)" if the commit is
// the current HEAD, or "" otherwise.
func buildDecoration(commitHash, headHash object.Hash, branchName string) string {
	if commitHash != headHash {
		return ""
	}
	if branchName != "" {
		return "(HEAD -> " + branchName + ")"
	}
	return "(HEAD)"
}
