package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/anvil/internal/app"
)

func (c *CLI) newBuildCmd() *cobra.Command {
	opts := app.Options{}

	cmd := &cobra.Command{
		Use:   "build [target] [-- args...]",
		Short: "Bring a target up to date",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Arguments past "--" are collected into opts.ExtraArgs.
			if at := cmd.ArgsLenAtDash(); at >= 0 {
				opts.ExtraArgs = args[at:]
				args = args[:at]
			}
			if len(args) > 0 {
				opts.Target = args[0]
			}
			return c.app.Run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Chdir, "chdir", "C", "", "Change to directory before building")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "build.anvil", "Path to the build description")
	cmd.Flags().StringVar(&opts.DBPath, "db", "build.db", "Path to the persistent build database")
	cmd.Flags().BoolVar(&opts.NoDB, "no-db", false, "Disable the persistent build database")
	cmd.Flags().BoolVar(&opts.Serial, "serial", false, "Execute commands serially")
	cmd.Flags().IntVarP(&opts.Jobs, "jobs", "j", 0, "Number of parallel execution lanes (0 = default)")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Show verbose status information")
	cmd.Flags().StringVar(&opts.TracePath, "trace", "", "Write an engine trace to the given path")

	return cmd
}
