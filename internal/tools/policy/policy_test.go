package policy

import (
	"testing"

	"github.com/haasonsaas/nexus/internal/models"
)

func TestPolicyMatrix(t *testing.T) {
	p := New([]string{"denied.tool"}, []string{"confirm.tool"})

	cases := []struct {
		name string
		risk models.Risk
		want Decision
	}{
		{"denied.tool", models.RiskSafe, Deny},
		{"denied.tool", models.RiskDangerous, Deny},
		{"confirm.tool", models.RiskSafe, Confirm},
		{"confirm.tool", models.RiskDangerous, Confirm},
		{"other", models.RiskSafe, Allow},
		{"other", models.RiskConfirm, Confirm},
		{"other", models.RiskDangerous, Deny},
	}

	for _, c := range cases {
		got := p.Evaluate(c.name, c.risk)
		if got.Decision != c.want {
			t.Errorf("Evaluate(%q, %q) = %q, want %q", c.name, c.risk, got.Decision, c.want)
		}
	}
}

func TestPolicyDenyListTakesPrecedenceOverConfirm(t *testing.T) {
	p := New([]string{"x"}, []string{"x"})
	got := p.Evaluate("x", models.RiskSafe)
	if got.Decision != Deny {
		t.Fatalf("Evaluate() = %q, want Deny", got.Decision)
	}
}
