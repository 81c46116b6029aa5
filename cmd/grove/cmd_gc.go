package main

import (
	"fmt"

	"github.com/odvcencio/grove/pkg/repo"
	"github.com/spf13/cobra"
)

func newGcCmd() *cobra.Command {
	var prune bool

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Pack reachable loose objects into a pack file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			report, err := r.GC(prune)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if report.Result.Packed == 0 {
				fmt.Fprintln(out, "nothing to pack")
			} else {
				fmt.Fprintf(
					out,
					"packed %d loose object(s) into %s (%s)\n",
					report.Result.Packed,
					report.Result.PackPath,
					report.Result.IndexPath,
				)
			}
			if prune {
				fmt.Fprintf(out, "pruned %d loose file(s)\n", report.Pruned)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&prune, "prune", false, "remove loose files whose objects are readable from packs")
	return cmd
}
