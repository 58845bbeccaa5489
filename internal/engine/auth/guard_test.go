package auth

import (
	"testing"

	"github.com/stretchr/testify/require"

	"taskdesk/internal/domain"
)

// roleCombos returns every subset of the known roles.
func roleCombos() [][]domain.Role {
	var out [][]domain.Role
	n := len(domain.Roles)
	for mask := 0; mask < 1<<n; mask++ {
		var set []domain.Role
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				set = append(set, domain.Roles[i])
			}
		}
		out = append(out, set)
	}
	return out
}

var allowedPairs = map[[2]domain.Status]bool{
	{domain.StatusDraft, domain.StatusSubmitted}:     true,
	{domain.StatusSubmitted, domain.StatusAssigned}:  true,
	{domain.StatusAssigned, domain.StatusCompleted}:  true,
	{domain.StatusDraft, domain.StatusCancelled}:     true,
	{domain.StatusSubmitted, domain.StatusCancelled}: true,
	{domain.StatusAssigned, domain.StatusCancelled}:  true,
}

func TestUnlistedTransitionsAlwaysDenied(t *testing.T) {
	for _, from := range domain.Statuses {
		for _, to := range domain.Statuses {
			if allowedPairs[[2]domain.Status{from, to}] {
				continue
			}
			for _, roles := range roleCombos() {
				for _, actorID := range []string{"owner", "stranger"} {
					a := domain.Actor{ID: actorID, Roles: roles}
					req := domain.TaskRequest{ID: "r1", Status: from, RequesterID: "owner"}
					require.Falsef(t, CanTransition(a, req, to), "%s -> %s allowed for %s %v", from, to, actorID, roles)
				}
			}
		}
	}
}

func TestEveryStatusHasAtMostOneIncomingRule(t *testing.T) {
	seen := map[domain.Status]bool{}
	for _, r := range Transitions() {
		require.False(t, seen[r.To], "duplicate rule for %s", r.To)
		seen[r.To] = true
		for _, from := range r.From {
			require.False(t, from.IsTerminal(), "rule %s leaves terminal status %s", r.Name, from)
		}
	}
	_, ok := TransitionFor(domain.StatusInProgress)
	require.False(t, ok, "IN_PROGRESS must stay unreachable")
	_, ok = TransitionFor(domain.StatusDraft)
	require.False(t, ok)
}

func TestSubmitRoleGating(t *testing.T) {
	draft := domain.TaskRequest{ID: "r1", Status: domain.StatusDraft, RequesterID: "u1"}
	for _, roles := range roleCombos() {
		owner := domain.Actor{ID: "u1", Roles: roles}
		other := domain.Actor{ID: "u2", Roles: roles}
		isAdmin := owner.IsAdmin()
		require.Equal(t, isAdmin || owner.HasRole(domain.RoleRequester), CanTransition(owner, draft, domain.StatusSubmitted), "owner %v", roles)
		require.Equal(t, isAdmin, CanTransition(other, draft, domain.StatusSubmitted), "other %v", roles)
	}
}

func TestAssignCompleteCancelGating(t *testing.T) {
	cases := []struct {
		name   string
		actor  domain.Actor
		status domain.Status
		target domain.Status
		want   bool
	}{
		{"assigner assigns", domain.Actor{ID: "a", Roles: []domain.Role{domain.RoleAssigner}}, domain.StatusSubmitted, domain.StatusAssigned, true},
		{"executor cannot assign", domain.Actor{ID: "e", Roles: []domain.Role{domain.RoleExecutor}}, domain.StatusSubmitted, domain.StatusAssigned, false},
		{"admin assigns", domain.Actor{ID: "x", Roles: []domain.Role{domain.RoleAdmin}}, domain.StatusSubmitted, domain.StatusAssigned, true},
		{"assign from draft denied", domain.Actor{ID: "x", Roles: []domain.Role{domain.RoleAdmin}}, domain.StatusDraft, domain.StatusAssigned, false},
		{"executor completes", domain.Actor{ID: "e", Roles: []domain.Role{domain.RoleExecutor}}, domain.StatusAssigned, domain.StatusCompleted, true},
		{"assigner cannot complete", domain.Actor{ID: "a", Roles: []domain.Role{domain.RoleAssigner}}, domain.StatusAssigned, domain.StatusCompleted, false},
		{"owner cancels assigned", domain.Actor{ID: "u1", Roles: []domain.Role{domain.RoleRequester}}, domain.StatusAssigned, domain.StatusCancelled, true},
		{"owner without requester role", domain.Actor{ID: "u1", Roles: []domain.Role{domain.RoleExecutor}}, domain.StatusDraft, domain.StatusCancelled, false},
		{"other requester cannot cancel", domain.Actor{ID: "u2", Roles: []domain.Role{domain.RoleRequester}}, domain.StatusDraft, domain.StatusCancelled, false},
		{"cancel completed denied", domain.Actor{ID: "x", Roles: []domain.Role{domain.RoleAdmin}}, domain.StatusCompleted, domain.StatusCancelled, false},
		{"cancel twice denied", domain.Actor{ID: "x", Roles: []domain.Role{domain.RoleAdmin}}, domain.StatusCancelled, domain.StatusCancelled, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := domain.TaskRequest{ID: "r1", Status: tc.status, RequesterID: "u1"}
			require.Equal(t, tc.want, CanTransition(tc.actor, req, tc.target))
		})
	}
}

func TestEditAndDelete(t *testing.T) {
	owner := domain.Actor{ID: "u1"}
	admin := domain.Actor{ID: "x", Roles: []domain.Role{domain.RoleAdmin}}
	other := domain.Actor{ID: "u2", Roles: []domain.Role{domain.RoleRequester, domain.RoleAssigner, domain.RoleExecutor}}

	draft := domain.TaskRequest{Status: domain.StatusDraft, RequesterID: "u1"}
	submitted := domain.TaskRequest{Status: domain.StatusSubmitted, RequesterID: "u1"}

	require.True(t, CanEdit(owner, draft))
	require.False(t, CanEdit(owner, submitted))
	require.True(t, CanEdit(admin, submitted))
	require.False(t, CanEdit(other, draft))

	require.True(t, CanDelete(admin))
	require.False(t, CanDelete(owner))
	require.False(t, CanDelete(other))
}

func TestMergeRoles(t *testing.T) {
	got := MergeRoles(
		[]domain.Role{domain.RoleRequester, domain.RoleAdmin},
		[]domain.Role{domain.RoleAdmin, domain.RoleExecutor},
	)
	require.Equal(t, []domain.Role{domain.RoleAdmin, domain.RoleExecutor, domain.RoleRequester}, got)
}
