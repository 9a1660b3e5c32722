package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cdprpa/pkg/domain"
)

func newScreenshotCmd(a *app) *cobra.Command {
	var settle string
	cmd := &cobra.Command{
		Use:   "screenshot URL FILE",
		Short: "Open URL and save a PNG screenshot to FILE",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := a.service()
			if err != nil {
				return err
			}
			defer svc.Shutdown(ctx)
			id, err := svc.StartSession(ctx, domain.SessionConfig{Launch: a.cfg.Browser.Launch})
			if err != nil {
				return err
			}
			if !a.cfg.Browser.Launch {
				defer svc.ReleaseSession(id)
			}
			sess, err := svc.Session(id)
			if err != nil {
				return err
			}
			if err := sess.Get(ctx, args[0]); err != nil {
				return err
			}
			if settle != "" {
				if _, err := sess.Find(ctx, domain.Locator(settle), 0); err != nil {
					return err
				}
			}
			if err := sess.Screenshot(ctx, args[1]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&settle, "wait-visible", "", "XPath that must be visible before the screenshot")
	return cmd
}
