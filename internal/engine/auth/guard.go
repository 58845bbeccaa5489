package auth

import (
	"taskdesk/internal/domain"
)

type Transition string

const (
	TransitionSubmit   Transition = "submit"
	TransitionAssign   Transition = "assign"
	TransitionComplete Transition = "complete"
	TransitionCancel   Transition = "cancel"
)

// Rule is one row of the transition table.
type Rule struct {
	Name  Transition
	From  []domain.Status
	To    domain.Status
	allow func(a domain.Actor, r domain.TaskRequest) bool
}

// AllowsFrom reports whether s is a source status of the rule.
func (r Rule) AllowsFrom(s domain.Status) bool {
	for _, from := range r.From {
		if from == s {
			return true
		}
	}
	return false
}

// Permits evaluates the role/identity condition only.
func (r Rule) Permits(a domain.Actor, req domain.TaskRequest) bool {
	return r.allow(a, req)
}

func adminOr(cond func(domain.Actor, domain.TaskRequest) bool) func(domain.Actor, domain.TaskRequest) bool {
	return func(a domain.Actor, r domain.TaskRequest) bool {
		return a.IsAdmin() || cond(a, r)
	}
}

func owningRequester(a domain.Actor, r domain.TaskRequest) bool {
	return a.ID != "" && a.ID == r.RequesterID && a.HasRole(domain.RoleRequester)
}

func holds(role domain.Role) func(domain.Actor, domain.TaskRequest) bool {
	return func(a domain.Actor, _ domain.TaskRequest) bool { return a.HasRole(role) }
}

// transitions is the whole lifecycle policy. Each target status has exactly one row.
var transitions = []Rule{
	{
		Name:  TransitionSubmit,
		From:  []domain.Status{domain.StatusDraft},
		To:    domain.StatusSubmitted,
		allow: adminOr(owningRequester),
	},
	{
		Name:  TransitionAssign,
		From:  []domain.Status{domain.StatusSubmitted},
		To:    domain.StatusAssigned,
		allow: adminOr(holds(domain.RoleAssigner)),
	},
	{
		Name:  TransitionComplete,
		From:  []domain.Status{domain.StatusAssigned},
		To:    domain.StatusCompleted,
		allow: adminOr(holds(domain.RoleExecutor)),
	},
	{
		Name:  TransitionCancel,
		From:  []domain.Status{domain.StatusDraft, domain.StatusSubmitted, domain.StatusAssigned},
		To:    domain.StatusCancelled,
		allow: adminOr(owningRequester),
	},
}

// Transitions returns a copy of the transition table.
func Transitions() []Rule {
	out := make([]Rule, len(transitions))
	copy(out, transitions)
	return out
}

// TransitionFor returns the rule whose target is the given status.
func TransitionFor(target domain.Status) (Rule, bool) {
	for _, r := range transitions {
		if r.To == target {
			return r, true
		}
	}
	return Rule{}, false
}

// Lookup returns the rule by transition name.
func Lookup(name Transition) (Rule, bool) {
	for _, r := range transitions {
		if r.Name == name {
			return r, true
		}
	}
	return Rule{}, false
}

// CanTransition decides whether actor may move req to target. It has no side
// effects and is safe to call speculatively.
func CanTransition(a domain.Actor, req domain.TaskRequest, target domain.Status) bool {
	rule, ok := TransitionFor(target)
	if !ok {
		return false
	}
	return rule.AllowsFrom(req.Status) && rule.allow(a, req)
}

func CanEdit(a domain.Actor, req domain.TaskRequest) bool {
	if a.IsAdmin() {
		return true
	}
	return a.ID != "" && a.ID == req.RequesterID && req.Status == domain.StatusDraft
}

func CanDelete(a domain.Actor) bool {
	return a.IsAdmin()
}

func CanCreate(a domain.Actor) bool {
	return a.IsAdmin() || a.HasRole(domain.RoleRequester)
}

func CanManageCategories(a domain.Actor) bool {
	return a.IsAdmin()
}

func CanManageRoles(a domain.Actor) bool {
	return a.IsAdmin()
}
