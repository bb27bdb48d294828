package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/app"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/clientctx"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/platform/authctx"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/security"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/session/domain"
)

// appOpener builds the App a command runs against and a func that releases it.
type appOpener func(ctx context.Context) (*app.App, func(), error)

// withApp opens the App, runs fn with an actor-scoped context, and closes the App.
func withApp(cmd *cobra.Command, open appOpener, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if actor, _ := cmd.Flags().GetString("actor"); actor != "" {
		ctx = authctx.WithActor(ctx, actor)
	}
	a, release, err := open(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx, a)
}

func newRootCmd(open appOpener) *cobra.Command {
	root := &cobra.Command{
		Use:   "sessionctl",
		Short: "Inspect and revoke sessions in the session store",
		Long: `sessionctl operates on the session store configured by the environment
(DATABASE_URL, STORE_DRIVER, REDIS_URL, ...), the same way the server does.

Examples:
  # List a user's sessions in a tenant
  sessionctl list --user u-123 --tenant clinic-1

  # Force logout of one session
  sessionctl revoke 7f9c... --reason "lost device" --actor admin-7

  # Classify a user-agent string
  sessionctl parse-ua "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) ..."
`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("actor", "", "user id recorded as the actor of revocations (default \"system\")")
	root.AddCommand(
		newListCmd(open),
		newRevokeCmd(open),
		newRevokeAllCmd(open),
		newValidateCmd(open),
		newParseUACmd(),
		newPolicyCmd(open),
		newAnomalyPolicyCmd(open),
		newAuditCmd(open),
	)
	return root
}

func newListCmd(open appOpener) *cobra.Command {
	var userID, tenantID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's sessions in a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				list, err := a.Sessions.ListUserSessions(ctx, userID, tenantID)
				if err != nil {
					return err
				}
				if list.Unavailable {
					return errors.New("sessions could not be loaded: session store unavailable")
				}
				return printViews(cmd.OutOrStdout(), list.Sessions)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id (required)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newRevokeCmd(open appOpener) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "revoke <session-id>",
		Short: "Revoke one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				if a.Sessions.RevokeSession(ctx, args[0], reason) {
					fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s was not revoked (unknown, already revoked, or store unavailable)\n", args[0])
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "revocation reason")
	return cmd
}

func newRevokeAllCmd(open appOpener) *cobra.Command {
	var userID, tenantID, reason string
	cmd := &cobra.Command{
		Use:   "revoke-all",
		Short: "Revoke every session of a user in a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == "" || tenantID == "" {
				return domain.ErrInvalidIdentity
			}
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				n := a.Sessions.RevokeAllSessions(ctx, userID, tenantID, reason)
				fmt.Fprintf(cmd.OutOrStdout(), "revoked %d session(s)\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&reason, "reason", "", "revocation reason")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newValidateCmd(open appOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <token>",
		Short: "Check whether a session token is currently valid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				outcome, err := a.Sessions.ValidateSession(ctx, args[0])
				if errors.Is(err, domain.ErrInvalidToken) {
					return fmt.Errorf("%s: %w", security.RedactToken(args[0]), err)
				}
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !outcome.Valid {
					fmt.Fprintf(out, "invalid: %s\n", outcome.Reason)
					return nil
				}
				p := outcome.Principal
				fmt.Fprintf(out, "valid: session=%s user=%s tenant=%s expires=%s\n",
					p.SessionID, p.UserID, p.TenantID, outcome.Session.ExpiresAt.UTC().Format(time.RFC3339))
				return nil
			})
		},
	}
}

func newParseUACmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse-ua <user-agent>",
		Short: "Show the device classification of a user-agent string",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := clientctx.ParseUserAgent(args[0])
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "browser:     %s\n", d.Browser)
			fmt.Fprintf(out, "os:          %s\n", d.OS)
			fmt.Fprintf(out, "device:      %s\n", d.Device)
			fmt.Fprintf(out, "mobile:      %t\n", d.IsMobile)
			fmt.Fprintf(out, "fingerprint: %s\n", d.Fingerprint())
			return nil
		},
	}
}

func printViews(w io.Writer, views []domain.View) error {
	if len(views) == 0 {
		_, err := fmt.Fprintln(w, "no sessions")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tDEVICE\tLAST IP\tLAST ACTIVITY\tEXPIRES")
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			v.ID, v.State, v.DeviceInfo, v.LastIPAddress,
			v.LastActivityAt.UTC().Format(time.RFC3339), v.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}
