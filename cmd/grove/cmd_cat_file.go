package main

import (
	"fmt"

	"github.com/odvcencio/grove/pkg/repo"
	"github.com/spf13/cobra"
)

func newCatFileCmd() *cobra.Command {
	var showType bool

	cmd := &cobra.Command{
		Use:   "cat-file <hash|ref>",
		Short: "Write an object's raw content to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			h, err := resolveRevision(r, args[0])
			if err != nil {
				return err
			}
			objType, data, err := r.Store.Read(h)
			if err != nil {
				return err
			}

			if showType {
				fmt.Fprintln(cmd.OutOrStdout(), objType)
				return nil
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVarP(&showType, "type", "t", false, "print the object type instead of its content")
	return cmd
}
