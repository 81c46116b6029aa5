package main

import (
	"fmt"
	"os"

	"github.com/odvcencio/grove/pkg/object"
	"github.com/odvcencio/grove/pkg/repo"
	"github.com/spf13/cobra"
)

func newHashObjectCmd() *cobra.Command {
	var write bool

	cmd := &cobra.Command{
		Use:   "hash-object <file>",
		Short: "Compute the blob hash of a file, optionally storing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			var h object.Hash
			if write {
				h, err = r.Store.WriteBlob(&object.Blob{Data: data})
				if err != nil {
					return err
				}
			} else {
				h = r.Store.Algorithm().HashObject(object.TypeBlob, data)
			}

			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&write, "write", "w", false, "store the blob instead of just hashing it")
	return cmd
}
