package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var verbose bool

	root := &cobra.Command{
		Use:   "grove",
		Short: "Content-addressed snapshot store for directory trees",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newSnapshotCmd())
	root.AddCommand(newLogCmd())
	root.AddCommand(newShowCmd())
	root.AddCommand(newLsCmd())
	root.AddCommand(newDiffCmd())
	root.AddCommand(newVerifyCmd())
	root.AddCommand(newGcCmd())
	root.AddCommand(newBranchCmd())
	root.AddCommand(newTagCmd())
	root.AddCommand(newReflogCmd())
	root.AddCommand(newHashObjectCmd())
	root.AddCommand(newCatFileCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "grove 0.1.0-dev")
		},
	}
}
