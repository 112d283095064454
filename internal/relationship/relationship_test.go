package relationship

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hasEdge(edges []Edge, other string, typ Type, dir Direction) bool {
	for _, e := range edges {
		if e.OtherGUID == other && e.Type == typ && e.Direction == dir {
			return true
		}
	}
	return false
}

func TestAddRelationship_MirrorsInverse(t *testing.T) {
	m := New()
	require.NoError(t, m.AddRelationship("cluster-a", "broker-b", TypeContains, nil))

	fromA := m.GetRelated("cluster-a", nil, 1)
	fromB := m.GetRelated("broker-b", nil, 1)

	assert.True(t, hasEdge(fromA, "broker-b", TypeContains, DirectionOutgoing), "source must see outgoing CONTAINS")
	assert.True(t, hasEdge(fromB, "cluster-a", TypeContainedIn, DirectionIncoming), "target must see incoming CONTAINED_IN")
}

func TestAddRelationship_IdempotentOnTriple(t *testing.T) {
	m := New()
	require.NoError(t, m.AddRelationship("a", "b", TypeOwns, nil))
	require.NoError(t, m.AddRelationship("a", "b", TypeOwns, nil))

	related := m.GetRelated("a", nil, 1)
	count := 0
	for _, e := range related {
		if e.OtherGUID == "b" && e.Type == TypeOwns {
			count++
		}
	}
	assert.Equal(t, 1, count, "adding the same relationship twice must be equivalent to adding it once")
}

func TestAddRelationship_RejectsHierarchicalCycle(t *testing.T) {
	m := New()
	require.NoError(t, m.AddRelationship("a", "b", TypeContains, nil))
	require.NoError(t, m.AddRelationship("b", "c", TypeContains, nil))

	err := m.AddRelationship("c", "a", TypeContains, nil)
	assert.Error(t, err, "edge that would create a cycle must be rejected")

	related := m.GetRelated("a", nil, 1)
	assert.False(t, hasEdge(related, "c", TypeContainedIn, DirectionIncoming), "graph must be unchanged after the rejected add")
}

func TestAddRelationship_RejectsManagesCycle(t *testing.T) {
	m := New()
	require.NoError(t, m.AddRelationship("cluster", "group", TypeManages, nil))

	err := m.AddRelationship("group", "cluster", TypeManages, nil)
	assert.Error(t, err, "MANAGES edges participate in the hierarchy and must be cycle-checked")
}

func TestAddRelationship_RejectsCycleAcrossHierarchicalTypes(t *testing.T) {
	// The hierarchy is one DAG regardless of which hierarchical type each
	// edge uses: CONTAINS then OWNS then MANAGES back to the root is
	// still a cycle.
	m := New()
	require.NoError(t, m.AddRelationship("a", "b", TypeContains, nil))
	require.NoError(t, m.AddRelationship("b", "c", TypeOwns, nil))

	err := m.AddRelationship("c", "a", TypeManages, nil)
	assert.Error(t, err)
}

func TestAddRelationship_InverseDirectionJoinsHierarchy(t *testing.T) {
	// An edge expressed upward (child CONTAINED_IN parent) must land in
	// the same hierarchy bookkeeping as its downward form.
	m := New()
	require.NoError(t, m.AddRelationship("broker", "cluster", TypeContainedIn, nil))

	d, ok := m.Depth("broker")
	require.True(t, ok)
	assert.Equal(t, 1, d)

	err := m.AddRelationship("cluster", "broker", TypeContainedIn, nil)
	assert.Error(t, err, "reversing the edge would make broker its own ancestor")
}

func TestAddRelationship_UnknownTypeRejected(t *testing.T) {
	m := New()
	err := m.AddRelationship("a", "b", Type("BOGUS"), nil)
	assert.Error(t, err)
}

func TestDepth_TracksHierarchy(t *testing.T) {
	m := New()
	require.NoError(t, m.AddRelationship("cluster", "broker1", TypeContains, nil))

	d, ok := m.Depth("broker1")
	require.True(t, ok)
	assert.Equal(t, 1, d)

	_, ok = m.Depth("cluster")
	assert.False(t, ok, "root has no recorded parent entry")
}

func TestGetRelated_FiltersByType(t *testing.T) {
	m := New()
	require.NoError(t, m.AddRelationship("broker1", "topic1", TypeProducesTo, nil))
	require.NoError(t, m.AddRelationship("cluster", "broker1", TypeContains, nil))

	want := TypeProducesTo
	related := m.GetRelated("broker1", &want, 1)
	for _, e := range related {
		assert.Equal(t, TypeProducesTo, e.Type)
	}
	assert.True(t, hasEdge(related, "topic1", TypeProducesTo, DirectionOutgoing))
}

func TestGetRelated_MultiHop(t *testing.T) {
	m := New()
	require.NoError(t, m.AddRelationship("cluster", "broker1", TypeContains, nil))
	require.NoError(t, m.AddRelationship("broker1", "topic1", TypeProducesTo, nil))

	related := m.GetRelated("cluster", nil, 2)
	assert.True(t, hasEdge(related, "broker1", TypeContains, DirectionOutgoing))
	assert.True(t, hasEdge(related, "topic1", TypeProducesTo, DirectionOutgoing))
}
