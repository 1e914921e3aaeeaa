// Package workflow implements the onboarding task state machine: the
// role-gated status transition policy and the engine that executes
// transitions with their data requirements, compensation and side effects.
package workflow

import (
	"strings"

	"github.com/voltlink-io/onboardflow/internal/apperrors"
	"github.com/voltlink-io/onboardflow/internal/models"
)

// ForwardTransition is one allowed edge on the forward business path.
// RequiredRole of "" means any role may perform it; ADMIN always may.
// RequiredAction documents what payload must accompany the transition; the
// engine, not the policy, enforces it.
type ForwardTransition struct {
	From           models.TaskStatus
	To             models.TaskStatus
	RequiredRole   models.Role
	RequiredAction string
}

// ReverseTransition is one administrative roll-back edge
type ReverseTransition struct {
	From models.TaskStatus
	To   models.TaskStatus
}

var forwardTable = []ForwardTransition{
	{From: models.StatusInitialization, To: models.StatusScheduledVisit, RequiredRole: models.RoleSales, RequiredAction: "schedule_visit"},
	{From: models.StatusScheduledVisit, To: models.StatusRequirementsComplete, RequiredRole: models.RoleEngineer, RequiredAction: "submit_report"},
	{From: models.StatusRequirementsComplete, To: models.StatusHardwareProcurementComplete, RequiredRole: models.RoleProcurement, RequiredAction: "submit_hardware_list"},
	{From: models.StatusHardwareProcurementComplete, To: models.StatusHardwarePreparedComplete, RequiredRole: models.RoleTechnician, RequiredAction: "submit_device_list"},
	{From: models.StatusHardwarePreparedComplete, To: models.StatusReadyForInstallation, RequiredAction: "generate_qr_codes"},
}

var reverseTable = []ReverseTransition{
	{From: models.StatusScheduledVisit, To: models.StatusInitialization},
	{From: models.StatusRequirementsComplete, To: models.StatusScheduledVisit},
	{From: models.StatusHardwareProcurementComplete, To: models.StatusRequirementsComplete},
	{From: models.StatusHardwarePreparedComplete, To: models.StatusHardwareProcurementComplete},
	{From: models.StatusReadyForInstallation, To: models.StatusHardwarePreparedComplete},
}

// Policy decides whether a status move is allowed for a role. The tables
// are fixed configuration, built once and never mutated.
type Policy struct {
	forward []ForwardTransition
	reverse []ReverseTransition
}

// NewPolicy creates the policy over the built-in transition tables
func NewPolicy() *Policy {
	return &Policy{forward: forwardTable, reverse: reverseTable}
}

// IsForward reports whether from->to is a forward business edge
func (p *Policy) IsForward(from, to models.TaskStatus) bool {
	_, ok := p.forwardEdge(from, to)
	return ok
}

// IsReverse reports whether from->to is an administrative roll-back edge
func (p *Policy) IsReverse(from, to models.TaskStatus) bool {
	for _, tr := range p.reverse {
		if tr.From == from && tr.To == to {
			return true
		}
	}
	return false
}

// NextStatuses lists every status reachable by one forward edge from the
// given status (at most one by construction).
func (p *Policy) NextStatuses(from models.TaskStatus) []models.TaskStatus {
	var out []models.TaskStatus
	for _, tr := range p.forward {
		if tr.From == from {
			out = append(out, tr.To)
		}
	}
	return out
}

// RequiredRole returns the role gating a forward edge, or "" when any role
// may perform it. Reverse edges are always ADMIN and not covered here.
func (p *Policy) RequiredRole(from, to models.TaskStatus) models.Role {
	if tr, ok := p.forwardEdge(from, to); ok {
		return tr.RequiredRole
	}
	return ""
}

// Validate fails with InvalidTransition when no edge connects the two
// statuses, and with Forbidden when an edge exists but the role does not
// satisfy it. ADMIN satisfies every forward gate and is the only role
// allowed on reverse edges.
func (p *Policy) Validate(from, to models.TaskStatus, role models.Role) error {
	if tr, ok := p.forwardEdge(from, to); ok {
		if tr.RequiredRole != "" && role != tr.RequiredRole && role != models.RoleAdmin {
			return apperrors.NewForbidden("transition %s -> %s requires role %s", from, to, tr.RequiredRole)
		}
		return nil
	}

	if p.IsReverse(from, to) {
		if role != models.RoleAdmin {
			return apperrors.NewForbidden("reversing %s -> %s requires role %s", from, to, models.RoleAdmin)
		}
		return nil
	}

	next := p.NextStatuses(from)
	if len(next) == 0 {
		return apperrors.NewInvalidTransition("no transition from %s to %s: %s is a terminal status", from, to, from)
	}
	names := make([]string, len(next))
	for i, s := range next {
		names[i] = string(s)
	}
	return apperrors.NewInvalidTransition("no transition from %s to %s: valid next statuses are %s", from, to, strings.Join(names, ", "))
}

func (p *Policy) forwardEdge(from, to models.TaskStatus) (ForwardTransition, bool) {
	for _, tr := range p.forward {
		if tr.From == from && tr.To == to {
			return tr, true
		}
	}
	return ForwardTransition{}, false
}
