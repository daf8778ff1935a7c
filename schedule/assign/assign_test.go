package assign

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoster() []Member {
	return []Member{
		{ID: "m1", Name: "Ada", Roles: []string{"Logistics", "AE Manager"}},
		{ID: "m2", Name: "Bea", Roles: []string{"Logistics"}},
		{ID: "m3", Name: "Cyd", Roles: []string{"Analyst"}},
	}
}

func testTasks() []Task {
	return []Task{
		{ID: "t1", Role: "Logistics", AssignedTo: []string{"m2"}},
		{ID: "t2", Role: "AE Manager", AssignedTo: []string{"m1"}},
		{ID: "t3", Role: "", AssignedTo: []string{"someone"}},
		{ID: "t4", Role: "Analyst", AssignedTo: []string{"m3"}},
	}
}

func TestOnRoleChangedAdd(t *testing.T) {
	out := OnRoleChanged("m1", "Logistics", true, testRoster(), testTasks())
	require.Len(t, out, 4)
	assert.ElementsMatch(t, []string{"m1", "m2"}, out[0].AssignedTo)
}

func TestOnRoleChangedRemove(t *testing.T) {
	roster := testRoster()
	roster[1].Roles = nil // m2 dropped Logistics
	out := OnRoleChanged("m2", "Logistics", false, roster, testTasks())
	assert.Equal(t, []string{}, out[0].AssignedTo)
	assert.NotNil(t, out[0].AssignedTo)
}

func TestOnRoleChangedScoping(t *testing.T) {
	tasks := testTasks()
	out := OnRoleChanged("m1", "Logistics", true, testRoster(), tasks)

	// Tasks with a different role, or no role, pass through untouched.
	assert.Equal(t, tasks[1], out[1])
	assert.Equal(t, tasks[2], out[2])
	assert.Equal(t, tasks[3], out[3])
}

func TestOnRoleChangedIdempotent(t *testing.T) {
	once := OnRoleChanged("m1", "Logistics", true, testRoster(), testTasks())
	twice := OnRoleChanged("m1", "Logistics", true, testRoster(), once)
	assert.Equal(t, once, twice)

	// No duplicate entries even if the member was already assigned.
	assert.ElementsMatch(t, []string{"m1", "m2"}, twice[0].AssignedTo)
}

func TestOnRoleChangedLastHolderRemoved(t *testing.T) {
	roster := []Member{{ID: "m3", Roles: []string{"Analyst"}}}
	tasks := []Task{{ID: "t1", Role: "Logistics", AssignedTo: []string{"m2", "stale"}}}
	out := OnRoleChanged("m2", "Logistics", false, roster, tasks)
	assert.Equal(t, []string{}, out[0].AssignedTo)
}

func TestOnRoleChangedDoesNotMutateInput(t *testing.T) {
	tasks := testTasks()
	_ = OnRoleChanged("m1", "Logistics", true, testRoster(), tasks)
	assert.Equal(t, []string{"m2"}, tasks[0].AssignedTo)
}

func TestReassignAll(t *testing.T) {
	out := ReassignAll(testRoster(), testTasks())
	assert.ElementsMatch(t, []string{"m1", "m2"}, out[0].AssignedTo)
	assert.Equal(t, []string{"m1"}, out[1].AssignedTo)
	// Role-less tasks are never rewritten, even by the bulk pass.
	assert.Equal(t, []string{"someone"}, out[2].AssignedTo)
	assert.Equal(t, []string{"m3"}, out[3].AssignedTo)
}

func TestReassignAllEmptyRoster(t *testing.T) {
	out := ReassignAll(nil, testTasks())
	assert.Equal(t, []string{}, out[0].AssignedTo)
	assert.Equal(t, []string{}, out[1].AssignedTo)
	assert.Equal(t, []string{"someone"}, out[2].AssignedTo)
}

func TestHasRole(t *testing.T) {
	m := Member{ID: "m1", Roles: []string{"Logistics"}}
	assert.True(t, m.HasRole("Logistics"))
	assert.False(t, m.HasRole("Analyst"))
}
