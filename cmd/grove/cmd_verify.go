package main

import (
	"fmt"
	"sort"

	"github.com/odvcencio/grove/pkg/fsck"
	"github.com/odvcencio/grove/pkg/object"
	"github.com/odvcencio/grove/pkg/repo"
	"github.com/spf13/cobra"
)

func newVerifyCmd() *cobra.Command {
	var (
		workers int
		storage bool
	)

	cmd := &cobra.Command{
		Use:   "verify [roots...]",
		Short: "Check integrity of snapshots and the objects they reference",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if storage {
				issues, err := r.Store.VerifyStorage()
				if err != nil {
					return err
				}
				for _, issue := range issues {
					fmt.Fprintf(out, "%s: %s\n", issue.Path, issue.Detail)
				}
				if len(issues) > 0 {
					return fmt.Errorf("storage verification found %d problem(s)", len(issues))
				}
				fmt.Fprintln(out, "ok: storage is intact")
				return nil
			}

			roots, err := verifyRoots(r, args)
			if err != nil {
				return err
			}
			if len(roots) == 0 {
				fmt.Fprintln(out, "nothing to verify")
				return nil
			}

			v := &fsck.Verifier{Store: r.Store, Workers: workers}
			report, err := v.Verify(cmd.Context(), roots...)
			if err != nil {
				return err
			}

			for _, f := range report.Findings {
				if f.Path != "" {
					fmt.Fprintf(out, "%s %s (%s): %s\n", f.Type, f.Hash, f.Path, f.Detail)
				} else {
					fmt.Fprintf(out, "%s %s: %s\n", f.Type, f.Hash, f.Detail)
				}
			}
			if !report.OK() {
				return fmt.Errorf("checked %d object(s), found %d problem(s)", report.Checked, len(report.Findings))
			}
			fmt.Fprintf(out, "ok: checked %d object(s)\n", report.Checked)
			return nil
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent object checks (0 uses one worker)")
	cmd.Flags().BoolVar(&storage, "storage", false, "sweep loose and packed storage instead of walking from roots")
	return cmd
}

// verifyRoots resolves the requested starting points, defaulting to
// every ref plus HEAD when none are given.
func verifyRoots(r *repo.Repo, args []string) ([]object.Hash, error) {
	rootSet := make(map[object.Hash]struct{})

	if len(args) > 0 {
		for _, arg := range args {
			h, err := resolveRevision(r, arg)
			if err != nil {
				return nil, err
			}
			rootSet[h] = struct{}{}
		}
	} else {
		refs, err := r.ListRefs("")
		if err != nil {
			return nil, err
		}
		for _, h := range refs {
			if h != "" {
				rootSet[h] = struct{}{}
			}
		}
		if h, err := r.ResolveRef("HEAD"); err == nil && h != "" {
			rootSet[h] = struct{}{}
		}
	}

	roots := make([]object.Hash, 0, len(rootSet))
	for h := range rootSet {
		roots = append(roots, h)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })
	return roots, nil
}
