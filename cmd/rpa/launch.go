package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"cdprpa/internal/launcher"
)

func newLaunchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "launch",
		Short: "Launch a browser with the configured profile and keep it running until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts := launcher.FromConfig(a.cfg.Browser, afero.NewOsFs(), a.log)
			b, err := launcher.Launch(ctx, opts)
			if err != nil {
				return err
			}
			defer b.Stop()
			fmt.Fprintln(cmd.OutOrStdout(), b.DevToolsURL)
			<-ctx.Done()
			return nil
		},
	}
}
