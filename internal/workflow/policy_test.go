package workflow

import (
	"errors"
	"strings"
	"testing"

	"github.com/voltlink-io/onboardflow/internal/apperrors"
	"github.com/voltlink-io/onboardflow/internal/models"
)

var allRoles = []models.Role{
	models.RoleAdmin,
	models.RoleSales,
	models.RoleEngineer,
	models.RoleProcurement,
	models.RoleTechnician,
}

func TestForwardChainIsLinear(t *testing.T) {
	p := NewPolicy()

	for i, status := range models.AllStatuses {
		next := p.NextStatuses(status)
		if i == len(models.AllStatuses)-1 {
			if len(next) != 0 {
				t.Errorf("%s should be terminal, got next statuses %v", status, next)
			}
			continue
		}
		if len(next) != 1 {
			t.Fatalf("%s should have exactly one successor, got %v", status, next)
		}
		if next[0] != models.AllStatuses[i+1] {
			t.Errorf("%s successor: got %s, want %s", status, next[0], models.AllStatuses[i+1])
		}
	}
}

func TestValidateRejectsUnknownPairs(t *testing.T) {
	p := NewPolicy()

	for _, from := range models.AllStatuses {
		for _, to := range models.AllStatuses {
			if p.IsForward(from, to) || p.IsReverse(from, to) {
				continue
			}
			err := p.Validate(from, to, models.RoleAdmin)
			var invalid *apperrors.InvalidTransitionError
			if !errors.As(err, &invalid) {
				t.Errorf("Validate(%s, %s) = %v, want InvalidTransition", from, to, err)
				continue
			}
			// The failure message enumerates the valid next statuses.
			for _, next := range p.NextStatuses(from) {
				if !strings.Contains(err.Error(), string(next)) {
					t.Errorf("Validate(%s, %s) message %q should mention %s", from, to, err.Error(), next)
				}
			}
		}
	}
}

func TestForwardRoleGates(t *testing.T) {
	p := NewPolicy()

	for _, tr := range forwardTable {
		for _, role := range allRoles {
			err := p.Validate(tr.From, tr.To, role)
			allowed := tr.RequiredRole == "" || role == tr.RequiredRole || role == models.RoleAdmin
			if allowed && err != nil {
				t.Errorf("Validate(%s, %s, %s) = %v, want success", tr.From, tr.To, role, err)
			}
			if !allowed {
				var forbidden *apperrors.ForbiddenError
				if !errors.As(err, &forbidden) {
					t.Errorf("Validate(%s, %s, %s) = %v, want Forbidden", tr.From, tr.To, role, err)
				}
			}
		}
	}
}

func TestReverseEdgesAreAdminOnly(t *testing.T) {
	p := NewPolicy()

	if len(reverseTable) != 5 {
		t.Fatalf("expected 5 reverse edges, got %d", len(reverseTable))
	}

	for _, tr := range reverseTable {
		for _, role := range allRoles {
			err := p.Validate(tr.From, tr.To, role)
			if role == models.RoleAdmin {
				if err != nil {
					t.Errorf("Validate(%s, %s, ADMIN) = %v, want success", tr.From, tr.To, err)
				}
				continue
			}
			var forbidden *apperrors.ForbiddenError
			if !errors.As(err, &forbidden) {
				t.Errorf("Validate(%s, %s, %s) = %v, want Forbidden", tr.From, tr.To, role, err)
			}
		}
	}

	// The forward-side required role of the same stage must not be able
	// to reverse it.
	err := p.Validate(models.StatusScheduledVisit, models.StatusInitialization, models.RoleSales)
	var forbidden *apperrors.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Errorf("SALES reversing its own stage: got %v, want Forbidden", err)
	}
}

func TestRequiredRole(t *testing.T) {
	p := NewPolicy()

	if got := p.RequiredRole(models.StatusInitialization, models.StatusScheduledVisit); got != models.RoleSales {
		t.Errorf("RequiredRole(INITIALIZATION, SCHEDULED_VISIT) = %q, want SALES", got)
	}
	// The last forward edge is open to any role.
	if got := p.RequiredRole(models.StatusHardwarePreparedComplete, models.StatusReadyForInstallation); got != "" {
		t.Errorf("RequiredRole(prepared, ready) = %q, want empty", got)
	}
	// Non-edges have no role.
	if got := p.RequiredRole(models.StatusInitialization, models.StatusReadyForInstallation); got != "" {
		t.Errorf("RequiredRole(non-edge) = %q, want empty", got)
	}
}

func TestUngatedEdgeOpenToAllRoles(t *testing.T) {
	p := NewPolicy()

	for _, role := range allRoles {
		if err := p.Validate(models.StatusHardwarePreparedComplete, models.StatusReadyForInstallation, role); err != nil {
			t.Errorf("Validate(prepared, ready, %s) = %v, want success", role, err)
		}
	}
}
