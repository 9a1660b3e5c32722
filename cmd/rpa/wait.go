package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"

	"cdprpa/internal/wait"
	"cdprpa/pkg/domain"
)

func newWaitCmd(a *app) *cobra.Command {
	var (
		req wait.Request
		url string
	)
	cmd := &cobra.Command{
		Use:   "wait KIND",
		Short: "Wait for a condition in the attached browser",
		Long:  "Wait for a condition in the attached browser. Run 'rpa kinds' for the list of condition kinds.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := wait.ParseKind(args[0])
			if err != nil {
				return err
			}
			req.Kind = kind
			if err := req.Validate(); err != nil {
				return err
			}

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
			if url != "" {
				if err := sess.Get(ctx, url); err != nil {
					return err
				}
			}
			out, err := sess.Wait(ctx, req)
			if err != nil {
				return err
			}
			doc, err := outcomeJSON(out)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), doc)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP((*string)(&req.Locator), "locator", "l", "", "XPath locator")
	f.StringVar(&req.Value, "value", "", "expected text or URL fragment")
	f.StringVar(&req.Attribute, "attribute", "", "attribute name for attribute-contains-text")
	f.DurationVarP(&req.Timeout, "timeout", "t", 0, "wait timeout (0 uses the configured default)")
	f.StringVar(&url, "url", "", "navigate here before waiting")
	return cmd
}

// outcomeJSON 输出等待结果摘要
func outcomeJSON(out *wait.Outcome) (string, error) {
	type field struct {
		path  string
		value any
	}
	fields := []field{
		{"kind", string(out.Kind)},
		{"satisfied", out.Satisfied},
		{"elapsed", out.Elapsed.Round(time.Millisecond).String()},
		{"polls", out.Polls},
	}
	if out.Element != nil {
		fields = append(fields, field{"element", string(out.Element.Locator())})
	}
	if out.Elements != nil {
		fields = append(fields, field{"count", len(out.Elements)})
	}
	doc := "{}"
	var err error
	for _, f := range fields {
		if doc, err = sjson.Set(doc, f.path, f.value); err != nil {
			return "", err
		}
	}
	return doc, nil
}

func newKindsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List wait condition kinds",
		Args:  cobra.NoArgs,
		// 不需要读取配置
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			for _, k := range wait.Kinds() {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
		},
	}
}
