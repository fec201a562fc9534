// Package policy implements the Tool Policy: a pure decision function
// mapping (tool name, risk) to an allow/confirm/deny verdict.
package policy

import "github.com/haasonsaas/nexus/internal/models"

// Decision is the verdict returned by Evaluate.
type Decision string

const (
	Allow   Decision = "allow"
	Confirm Decision = "confirm"
	Deny    Decision = "deny"
)

// Verdict pairs a Decision with the reason it was reached.
type Verdict struct {
	Decision Decision
	Reason   string
}

// Policy holds explicit per-tool overrides layered on top of the
// risk-based default. Order of evaluation: explicit deny-list, then
// explicit confirm-list, then the risk-based default
// (safe->allow, confirm->confirm, dangerous->deny).
type Policy struct {
	denyList    map[string]bool
	confirmList map[string]bool
}

// New creates a Policy with the given explicit deny and confirm lists.
func New(denyList, confirmList []string) *Policy {
	p := &Policy{
		denyList:    make(map[string]bool, len(denyList)),
		confirmList: make(map[string]bool, len(confirmList)),
	}
	for _, name := range denyList {
		p.denyList[name] = true
	}
	for _, name := range confirmList {
		p.confirmList[name] = true
	}
	return p
}

// Evaluate decides whether toolName, with the given risk, may run.
func (p *Policy) Evaluate(toolName string, risk models.Risk) Verdict {
	if p != nil && p.denyList[toolName] {
		return Verdict{Decision: Deny, Reason: "explicitly denied"}
	}
	if p != nil && p.confirmList[toolName] {
		return Verdict{Decision: Confirm, Reason: "explicitly requires confirmation"}
	}

	switch risk {
	case models.RiskSafe:
		return Verdict{Decision: Allow, Reason: "risk=safe"}
	case models.RiskConfirm:
		return Verdict{Decision: Confirm, Reason: "risk=confirm"}
	case models.RiskDangerous:
		return Verdict{Decision: Deny, Reason: "risk=dangerous denied by default"}
	default:
		return Verdict{Decision: Deny, Reason: "unknown risk level"}
	}
}
