// Package assign computes role-based task assignments. Every function
// is pure: the roster and the task list come in as parameters and an
// updated task list comes out, so callers decide what to persist.
package assign

import "sort"

// Member is one roster entry. A member may hold several roles.
type Member struct {
	ID    string
	Name  string
	Roles []string
}

// HasRole reports whether the member currently holds role.
func (m Member) HasRole(role string) bool {
	for _, r := range m.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Task is the slice of a task the assignment pass reads and writes.
type Task struct {
	ID         string
	Role       string
	AssignedTo []string
}

// holders returns the sorted member IDs currently holding role.
func holders(roster []Member, role string) []string {
	ids := make([]string, 0, len(roster))
	for _, m := range roster {
		if m.HasRole(role) {
			ids = append(ids, m.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// OnRoleChanged applies one member gaining or losing one role to the
// task list. Only tasks tagged with that role are touched; every other
// task passes through with its assignee list untouched, so manual edits
// on unrelated tasks survive. roster must already reflect the change.
//
// For each matching task the member is added (if absent) or removed.
// When the roster no longer has any holder of the role the task's
// assignees become an empty list, never a stale or nil one. The pass is
// idempotent: applying the same change twice equals applying it once.
func OnRoleChanged(memberID, role string, added bool, roster []Member, tasks []Task) []Task {
	noHolders := len(holders(roster, role)) == 0
	out := make([]Task, len(tasks))
	copy(out, tasks)
	for i, t := range out {
		if t.Role != role || t.Role == "" {
			continue
		}
		switch {
		case noHolders:
			out[i].AssignedTo = []string{}
		case added:
			out[i].AssignedTo = addAssignee(t.AssignedTo, memberID)
		default:
			out[i].AssignedTo = removeAssignee(t.AssignedTo, memberID)
		}
	}
	return out
}

// addAssignee returns a fresh slice containing id exactly once.
func addAssignee(list []string, id string) []string {
	out := make([]string, 0, len(list)+1)
	seen := false
	for _, v := range list {
		if v == id {
			if seen {
				continue
			}
			seen = true
		}
		out = append(out, v)
	}
	if !seen {
		out = append(out, id)
	}
	return out
}

// removeAssignee returns a fresh slice without id. The result is empty,
// not nil, when id was the only assignee.
func removeAssignee(list []string, id string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// ReassignAll rewrites every role-tagged task's assignees from the
// roster. Meant for initial team formation; incremental changes should
// go through OnRoleChanged.
func ReassignAll(roster []Member, tasks []Task) []Task {
	byRole := map[string][]string{}
	out := make([]Task, len(tasks))
	copy(out, tasks)
	for i, t := range out {
		if t.Role == "" {
			continue
		}
		want, ok := byRole[t.Role]
		if !ok {
			want = holders(roster, t.Role)
			byRole[t.Role] = want
		}
		out[i].AssignedTo = append([]string{}, want...)
	}
	return out
}
