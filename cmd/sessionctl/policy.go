package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/app"
	auditrepo "github.com/IFs1991/seikotsuin-no-saas-sub003/internal/audit/repository"
	policydomain "github.com/IFs1991/seikotsuin-no-saas-sub003/internal/policy/domain"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/policy/engine"
	tpdomain "github.com/IFs1991/seikotsuin-no-saas-sub003/internal/tenantpolicy/domain"
)

var errTenantRequired = errors.New("--tenant is required")

func newPolicyCmd(open appOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Show or change a tenant's session policy",
	}
	cmd.AddCommand(newPolicyShowCmd(open), newPolicySetCmd(open))
	return cmd
}

func newPolicyShowCmd(open appOpener) *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective policy (stored values merged with defaults)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if tenantID == "" {
				return errTenantRequired
			}
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				c, err := a.Policies.Config(ctx, tenantID)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(c)
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id (required)")
	return cmd
}

func newPolicySetCmd(open appOpener) *cobra.Command {
	var (
		tenantID          string
		maxTTL, idle      string
		perDevice, total  int
		alertIP, alertGeo bool
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change selected policy values; unset flags keep their current value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if tenantID == "" {
				return errTenantRequired
			}
			for name, v := range map[string]string{"max-ttl": maxTTL, "idle": idle} {
				if cmd.Flags().Changed(name) && v != "0" {
					if _, err := time.ParseDuration(v); err != nil {
						return fmt.Errorf("--%s: %w", name, err)
					}
				}
			}
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				c, err := a.Policies.Config(ctx, tenantID)
				if err != nil {
					return err
				}
				sm, alerts := *c.SessionMgmt, *c.AnomalyAlerts
				f := cmd.Flags()
				if f.Changed("max-ttl") {
					sm.SessionMaxTtl = maxTTL
				}
				if f.Changed("idle") {
					sm.IdleTimeout = idle
				}
				if f.Changed("per-device") {
					sm.MaxSessionsPerDevice = perDevice
				}
				if f.Changed("total") {
					sm.ConcurrentSessionLimit = total
				}
				if f.Changed("alert-ip-change") {
					alerts.AlertOnIPChange = alertIP
				}
				if f.Changed("alert-country-change") {
					alerts.AlertOnCountryChange = alertGeo
				}
				updated := &tpdomain.TenantPolicyConfig{SessionMgmt: &sm, AnomalyAlerts: &alerts}
				if err := a.TenantPolicies.Upsert(ctx, tenantID, updated); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated policy for %s\n", tenantID)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&tenantID, "tenant", "", "tenant id (required)")
	f.StringVar(&maxTTL, "max-ttl", "", "absolute session lifetime, e.g. 24h")
	f.StringVar(&idle, "idle", "", "idle timeout, e.g. 30m; 0 disables idle expiry")
	f.IntVar(&perDevice, "per-device", 0, "max active sessions per device; 0 disables device dedup")
	f.IntVar(&total, "total", 0, "max active sessions per user; 0 = unlimited")
	f.BoolVar(&alertIP, "alert-ip-change", true, "alert when a session refreshes from a new IP")
	f.BoolVar(&alertGeo, "alert-country-change", true, "alert when a session refreshes from a new country")
	return cmd
}

func newAnomalyPolicyCmd(open appOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anomaly-policy",
		Short: "Manage a tenant's Rego anomaly policies",
	}

	var listTenant string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the tenant's anomaly policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listTenant == "" {
				return errTenantRequired
			}
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				policies, err := a.AnomalyPolicies.ListByTenant(ctx, listTenant)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tENABLED\tCREATED")
				for _, p := range policies {
					fmt.Fprintf(tw, "%s\t%t\t%s\n", p.ID, p.Enabled, p.CreatedAt.UTC().Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().StringVar(&listTenant, "tenant", "", "tenant id (required)")

	var addTenant string
	add := &cobra.Command{
		Use:   "add <file.rego>",
		Short: "Validate and store a Rego module (package session.anomaly), disabled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if addTenant == "" {
				return errTenantRequired
			}
			rules, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if err := engine.ValidateModule(string(rules)); err != nil {
				return err
			}
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				p := &policydomain.Policy{
					ID:        uuid.New().String(),
					TenantID:  addTenant,
					Rules:     string(rules),
					CreatedAt: time.Now().UTC(),
				}
				if err := a.AnomalyPolicies.Create(ctx, p); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s (disabled)\n", p.ID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&addTenant, "tenant", "", "tenant id (required)")

	cmd.AddCommand(list, add, newSetEnabledCmd(open, "enable", true), newSetEnabledCmd(open, "disable", false))
	return cmd
}

func newSetEnabledCmd(open appOpener, verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <policy-id>",
		Short: verb + " an anomaly policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				if err := a.AnomalyPolicies.SetEnabled(ctx, args[0], enabled); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%sd %s\n", verb, args[0])
				return nil
			})
		},
	}
}

func newAuditCmd(open appOpener) *cobra.Command {
	var (
		tenantID string
		filter   auditrepo.Filter
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the tenant's session audit log, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if tenantID == "" {
				return errTenantRequired
			}
			return withApp(cmd, open, func(ctx context.Context, a *app.App) error {
				logs, err := a.AuditLogs.ListByTenant(ctx, tenantID, filter)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TIME\tACTION\tUSER\tSESSION\tIP\tMETADATA")
				for _, l := range logs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						l.CreatedAt.UTC().Format(time.RFC3339), l.Action, l.UserID, l.SessionID, l.IP, l.Metadata)
				}
				return tw.Flush()
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&tenantID, "tenant", "", "tenant id (required)")
	f.StringVar(&filter.UserID, "user", "", "only entries for this user")
	f.StringVar(&filter.SessionID, "session", "", "only entries for this session")
	f.StringVar(&filter.Action, "action", "", "only entries with this action (e.g. session_revoked)")
	f.IntVar(&filter.Limit, "limit", 50, "max entries")
	return cmd
}
