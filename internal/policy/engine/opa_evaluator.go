package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/policy/repository"
)

const (
	anomalyPackage = "data.session.anomaly"
	anomalyQuery   = anomalyPackage
)

// DefaultRegoPolicy grades IP and country changes between the session and the refreshing client.
const DefaultRegoPolicy = `package session.anomaly

default severity := "none"

ip_changed if {
	input.session.last_ip != ""
	input.request.ip != ""
	input.session.last_ip != input.request.ip
}

country_changed if {
	input.session.country != ""
	input.request.country != ""
	input.session.country != input.request.country
}

severity := "high" if {
	country_changed
	input.tenant.alert_on_country_change
} else := "low" if {
	ip_changed
	input.tenant.alert_on_ip_change
}

reasons contains "ip_changed" if ip_changed

reasons contains "country_changed" if country_changed
`

// OPAEvaluator evaluates session anomaly policies with OPA Rego. Tenants may replace the default
// module with their own enabled policies.
type OPAEvaluator struct {
	policyRepo repository.Repository
	log        *zap.Logger

	once     sync.Once
	prepared rego.PreparedEvalQuery
	prepErr  error
}

// NewOPAEvaluator returns an OPA-based evaluator. policyRepo may be nil (default policy only).
func NewOPAEvaluator(policyRepo repository.Repository, log *zap.Logger) *OPAEvaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &OPAEvaluator{policyRepo: policyRepo, log: log}
}

// HealthCheck verifies that the in-process Rego engine can compile and evaluate the default policy.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.evalDefault(ctx, AnomalyInput{})
	return err
}

// EvaluateRefresh grades the change between the session's recorded context and the refreshing client.
// Tenant policies that fail to load or compile fall back to the default policy.
func (e *OPAEvaluator) EvaluateRefresh(ctx context.Context, in AnomalyInput) (AnomalyResult, error) {
	if modules := e.tenantModules(ctx, in.TenantID); len(modules) > 0 {
		res, err := e.evalModules(ctx, modules, in)
		if err == nil {
			return res, nil
		}
		e.log.Warn("policy: tenant anomaly policy failed, using default", zap.String("tenant_id", in.TenantID), zap.Error(err))
	}
	return e.evalDefault(ctx, in)
}

func (e *OPAEvaluator) tenantModules(ctx context.Context, tenantID string) map[string]string {
	if e.policyRepo == nil || tenantID == "" {
		return nil
	}
	policies, err := e.policyRepo.GetEnabledByTenant(ctx, tenantID)
	if err != nil {
		e.log.Warn("policy: failed to load tenant policies", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil
	}
	modules := make(map[string]string)
	for i, p := range policies {
		if p.Enabled && p.Rules != "" {
			modules[fmt.Sprintf("tenant_%d.rego", i)] = p.Rules
		}
	}
	return modules
}

func (e *OPAEvaluator) evalDefault(ctx context.Context, in AnomalyInput) (AnomalyResult, error) {
	e.once.Do(func() {
		e.prepared, e.prepErr = rego.New(
			rego.Query(anomalyQuery),
			rego.Module("default_anomaly.rego", DefaultRegoPolicy),
		).PrepareForEval(context.Background())
	})
	if e.prepErr != nil {
		return AnomalyResult{Severity: SeverityNone}, fmt.Errorf("prepare default policy: %w", e.prepErr)
	}
	rs, err := e.prepared.Eval(ctx, rego.EvalInput(buildInput(in)))
	if err != nil {
		return AnomalyResult{Severity: SeverityNone}, fmt.Errorf("eval default policy: %w", err)
	}
	return parseResult(rs)
}

func (e *OPAEvaluator) evalModules(ctx context.Context, modules map[string]string, in AnomalyInput) (AnomalyResult, error) {
	compiler, err := ast.CompileModules(modules)
	if err != nil {
		return AnomalyResult{}, fmt.Errorf("compile policies: %w", err)
	}
	rs, err := rego.New(
		rego.Query(anomalyQuery),
		rego.Compiler(compiler),
		rego.Input(buildInput(in)),
	).Eval(ctx)
	if err != nil {
		return AnomalyResult{}, fmt.Errorf("eval policies: %w", err)
	}
	return parseResult(rs)
}

// ValidateModule reports whether rules parse, compile, and declare package session.anomaly.
func ValidateModule(rules string) error {
	mod, err := ast.ParseModule("tenant.rego", rules)
	if err != nil {
		return fmt.Errorf("parse policy: %w", err)
	}
	if got := mod.Package.Path.String(); got != anomalyPackage {
		return fmt.Errorf("policy declares %s, want %s", got, anomalyPackage)
	}
	if _, err := ast.CompileModules(map[string]string{"tenant.rego": rules}); err != nil {
		return fmt.Errorf("compile policy: %w", err)
	}
	return nil
}

func buildInput(in AnomalyInput) map[string]interface{} {
	return map[string]interface{}{
		"session": map[string]interface{}{
			"id":      in.SessionID,
			"user_id": in.UserID,
			"last_ip": in.PreviousIP,
			"country": in.PreviousCountry,
		},
		"request": map[string]interface{}{
			"ip":      in.CurrentIP,
			"country": in.CurrentCountry,
		},
		"tenant": map[string]interface{}{
			"id":                      in.TenantID,
			"alert_on_ip_change":      in.AlertOnIPChange,
			"alert_on_country_change": in.AlertOnCountryChange,
		},
	}
}

func parseResult(rs rego.ResultSet) (AnomalyResult, error) {
	out := AnomalyResult{Severity: SeverityNone}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return out, fmt.Errorf("policy query returned no result")
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return out, fmt.Errorf("policy result has type %T", rs[0].Expressions[0].Value)
	}
	switch s, _ := doc["severity"].(string); Severity(s) {
	case SeverityLow, SeverityHigh:
		out.Severity = Severity(s)
	}
	if reasons, ok := doc["reasons"].([]interface{}); ok {
		for _, r := range reasons {
			if s, ok := r.(string); ok {
				out.Reasons = append(out.Reasons, s)
			}
		}
		sort.Strings(out.Reasons)
	}
	return out, nil
}
