package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odvcencio/grove/pkg/repo"
	"github.com/spf13/cobra"
)

func newSnapshotCmd() *cobra.Command {
	var message string
	var allowEmpty bool
	var workers int

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Record the working directory as a new snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(message) == "" {
				return fmt.Errorf("snapshot message is required (-m)")
			}

			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			opts := repo.SnapshotOptions{
				Message:    message,
				AllowEmpty: allowEmpty,
				Workers:    workers,
			}
			if key := strings.TrimSpace(r.Config.Sign.Key); key != "" {
				signer, keyPath, err := newSSHCommitSigner(key)
				if err != nil {
					return err
				}
				slog.Debug("signing snapshots", "key", keyPath)
				opts.Signer = signer
			}

			res, err := r.Snapshot(cmd.Context(), opts)
			if errors.Is(err, repo.ErrNoChanges) {
				return fmt.Errorf("nothing to snapshot (use --allow-empty to record anyway)")
			}
			if err != nil {
				return err
			}

			branch := "HEAD"
			head, err := r.Head()
			if err == nil && strings.HasPrefix(head, "refs/heads/") {
				branch = strings.TrimPrefix(head, "refs/heads/")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s %s] %s\n", branch, shortHash(res.CommitHash), message)
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "snapshot message")
	cmd.Flags().BoolVar(&allowEmpty, "allow-empty", false, "record a snapshot even when nothing changed")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent file hashers (0 = auto)")

	return cmd
}
