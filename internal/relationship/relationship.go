// Package relationship implements the typed, bidirectional relationship
// graph between entities: inverse-pair bookkeeping, hierarchy depth
// tracking and cycle detection, held in sync.RWMutex-guarded maps keyed
// by GUID.
package relationship

import (
	"fmt"
	"sync"
	"time"

	"github.com/newrelic/mq-telemetry-pipeline/internal/errs"
)

// Type enumerates the relationship kinds.
type Type string

const (
	TypeContains       Type = "CONTAINS"
	TypeContainedIn    Type = "CONTAINED_IN"
	TypeOwns           Type = "OWNS"
	TypeBelongsTo      Type = "BELONGS_TO"
	TypeManages        Type = "MANAGES"
	TypeManagedBy      Type = "MANAGED_BY"
	TypeProducesTo     Type = "PRODUCES_TO"
	TypeConsumesFrom   Type = "CONSUMES_FROM"
	TypeCoordinates    Type = "COORDINATES"
	TypeCoordinatedBy  Type = "COORDINATED_BY"
	TypeReplicatesTo   Type = "REPLICATES_TO"
	TypeReplicatedFrom Type = "REPLICATED_FROM"
	TypeServes         Type = "SERVES"
	TypeServedBy       Type = "SERVED_BY"
)

var inverseOf = map[Type]Type{
	TypeContains:       TypeContainedIn,
	TypeContainedIn:    TypeContains,
	TypeOwns:           TypeBelongsTo,
	TypeBelongsTo:      TypeOwns,
	TypeManages:        TypeManagedBy,
	TypeManagedBy:      TypeManages,
	TypeProducesTo:     TypeConsumesFrom,
	TypeConsumesFrom:   TypeProducesTo,
	TypeCoordinates:    TypeCoordinatedBy,
	TypeCoordinatedBy:  TypeCoordinates,
	TypeReplicatesTo:   TypeReplicatedFrom,
	TypeReplicatedFrom: TypeReplicatesTo,
	TypeServes:         TypeServedBy,
	TypeServedBy:       TypeServes,
}

// Inverse returns the inverse relationship type.
func Inverse(t Type) (Type, bool) {
	inv, ok := inverseOf[t]
	return inv, ok
}

// hierarchyPair normalizes a hierarchical edge to its downward
// (parent, child) orientation regardless of which direction the caller
// expressed it in. ok is false for non-hierarchical types.
func hierarchyPair(src, tgt string, t Type) (parent, child string, ok bool) {
	switch t {
	case TypeContains, TypeOwns, TypeManages:
		return src, tgt, true
	case TypeContainedIn, TypeBelongsTo, TypeManagedBy:
		return tgt, src, true
	default:
		return "", "", false
	}
}

// Direction distinguishes outgoing edges (this node is the source) from
// incoming ones (this node is the target).
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

// Edge is one relationship as seen from a particular node: the other
// endpoint's GUID, the type as observed from this side, its direction and
// any attached metadata.
type Edge struct {
	OtherGUID string
	Type      Type
	Direction Direction
	Metadata  map[string]any
	CreatedAt time.Time
}

type edgeKey struct {
	src, tgt string
	typ      Type
}

// Manager is the single registry of relationship edges, guarded by a
// single-writer/multi-reader lock.
type Manager struct {
	mu sync.RWMutex

	// forward/backward hold, per GUID, the set of edges seen from that
	// node's perspective (forward = outgoing, backward = incoming).
	forward  map[string][]Edge
	backward map[string][]Edge

	// seen deduplicates on the (src, tgt, type) triple.
	seen map[edgeKey]bool

	// children/parent/depth track the hierarchical subgraph separately so
	// DFS cycle checks and depth lookups stay O(depth) rather than O(edges).
	children map[string][]string
	parent   map[string]string
	depth    map[string]int
}

// New constructs an empty relationship Manager.
func New() *Manager {
	return &Manager{
		forward:  make(map[string][]Edge),
		backward: make(map[string][]Edge),
		seen:     make(map[edgeKey]bool),
		children: make(map[string][]string),
		parent:   make(map[string]string),
		depth:    make(map[string]int),
	}
}

// AddRelationship installs src->tgt of type t (and its mirrored inverse
// on tgt) unless the triple has already been added or it is a
// hierarchical edge that would introduce a cycle.
func (m *Manager) AddRelationship(src, tgt string, t Type, meta map[string]any) error {
	inv, ok := Inverse(t)
	if !ok {
		return fmt.Errorf("%w: unknown relationship type %q", errs.ErrValidationFailed, t)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := edgeKey{src: src, tgt: tgt, typ: t}
	if m.seen[key] {
		return nil // re-adding is a no-op
	}

	parent, child, isHierarchy := hierarchyPair(src, tgt, t)
	if isHierarchy {
		if m.wouldCycle(parent, child) {
			return fmt.Errorf("%w: relationship %s from %s to %s would create a cycle", errs.ErrValidationFailed, t, src, tgt)
		}
	}

	now := time.Now()
	m.forward[src] = append(m.forward[src], Edge{OtherGUID: tgt, Type: t, Direction: DirectionOutgoing, Metadata: meta, CreatedAt: now})
	m.backward[tgt] = append(m.backward[tgt], Edge{OtherGUID: src, Type: inv, Direction: DirectionIncoming, Metadata: meta, CreatedAt: now})
	m.seen[key] = true
	m.seen[edgeKey{src: tgt, tgt: src, typ: inv}] = true

	if isHierarchy {
		m.children[parent] = append(m.children[parent], child)
		m.parent[child] = parent
		m.depth[child] = m.depth[parent] + 1
	}

	return nil
}

// wouldCycle reports whether adding a hierarchical edge parent->child
// would create a cycle, by DFS-searching downward from child for a path
// back to parent (the new edge itself is not yet installed, so this only
// needs to search the existing hierarchical subgraph, which spans every
// hierarchical type, not just CONTAINS).
func (m *Manager) wouldCycle(parent, child string) bool {
	if parent == child {
		return true
	}
	visited := make(map[string]bool)
	var dfs func(node string) bool
	dfs = func(node string) bool {
		if node == parent {
			return true
		}
		if visited[node] {
			return false
		}
		visited[node] = true
		for _, c := range m.children[node] {
			if dfs(c) {
				return true
			}
		}
		return false
	}
	return dfs(child)
}

// GetRelated returns every edge visible from guid, optionally filtered by
// type, reachable within depth hops via BFS and deduplicated on
// (otherGuid, type, direction). depth <= 0 means
// direct edges only (depth 1 semantics: immediate neighbors).
func (m *Manager) GetRelated(guid string, filterType *Type, maxDepth int) []Edge {
	if maxDepth <= 0 {
		maxDepth = 1
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	type visitKey struct {
		guid string
		typ  Type
		dir  Direction
	}
	visited := make(map[visitKey]bool)
	var out []Edge

	frontier := []string{guid}
	seenNodes := map[string]bool{guid: true}

	for d := 0; d < maxDepth && len(frontier) > 0; d++ {
		var next []string
		for _, node := range frontier {
			edges := append(append([]Edge{}, m.forward[node]...), m.backward[node]...)
			for _, e := range edges {
				if filterType != nil && e.Type != *filterType {
					continue
				}
				vk := visitKey{guid: e.OtherGUID, typ: e.Type, dir: e.Direction}
				if visited[vk] {
					continue
				}
				visited[vk] = true
				out = append(out, e)
				if !seenNodes[e.OtherGUID] {
					seenNodes[e.OtherGUID] = true
					next = append(next, e.OtherGUID)
				}
			}
		}
		frontier = next
	}

	return out
}

// Depth returns the hierarchy depth of guid (root clusters are depth 0),
// and false if guid has no recorded parent (it is a root or unknown).
func (m *Manager) Depth(guid string) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.depth[guid]
	return d, ok
}

// Parent returns the hierarchical parent of guid, if any.
func (m *Manager) Parent(guid string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.parent[guid]
	return p, ok
}
