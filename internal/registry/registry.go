// Package registry is the single GUID-keyed entity store: idempotent
// creation per entity kind, golden-metric refresh, auto-linking of
// CONTAINS/CONTAINED_IN edges on creation, and missing-tick eviction,
// under a sync.RWMutex single-writer/multi-reader discipline.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/newrelic/infra-integrations-sdk/v3/log"
	"github.com/newrelic/mq-telemetry-pipeline/internal/entity"
	"github.com/newrelic/mq-telemetry-pipeline/internal/errs"
	"github.com/newrelic/mq-telemetry-pipeline/internal/relationship"
)

// evictAfter is the number of consecutive missed ticks after which an
// absent entity is removed from the registry.
const evictAfter = 3

// Registry is the single source of truth for entities, keyed by GUID.
type Registry struct {
	mu        sync.RWMutex
	entities  map[string]*entity.Entity
	relations *relationship.Manager
	accountID int64
}

// New constructs an empty Registry bound to accountID (embedded in every
// GUID it synthesizes) and a shared relationship Manager used for
// auto-linking.
func New(accountID int64, relations *relationship.Manager) *Registry {
	return &Registry{
		entities:  make(map[string]*entity.Entity),
		relations: relations,
		accountID: accountID,
	}
}

// upsert is the shared idempotent-on-GUID path every createX method uses:
// on first sight it inserts a fresh entity; on repeat sight it refreshes
// Tags/Metadata/UpdatedAt in place and returns the same pointer,
// so repeat creation only moves UpdatedAt.
func (r *Registry) upsert(id entity.Identity, name string, provider entity.Provider, tags map[string]string, meta map[string]any) (*entity.Entity, bool) {
	guid := entity.GUIDFor(r.accountID, id)
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entities[guid]; ok {
		existing.Tags = tags
		existing.Metadata = meta
		existing.UpdatedAt = now
		existing.MarkSeen()
		return existing, false
	}

	e := &entity.Entity{
		Header: entity.Header{
			EntityType: id.Kind(),
			GUID:       guid,
			Name:       name,
			Provider:   provider,
			AccountID:  r.accountID,
			Tags:       tags,
			Metadata:   meta,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		Identity: id,
	}
	r.entities[guid] = e
	return e, true
}

// CreateParams holds the optional fields shared by every createX method.
type CreateParams struct {
	Name     string
	Provider entity.Provider
	Tags     map[string]string
	Metadata map[string]any
	// ClusterGUID, when non-empty, triggers CONTAINS/CONTAINED_IN
	// auto-linking from the cluster to the newly created entity.
	ClusterGUID string
}

// CreateCluster validates id and inserts (or refreshes) the corresponding
// Cluster entity.
func (r *Registry) CreateCluster(id entity.ClusterIdentity, p CreateParams) (*entity.Entity, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	e, created := r.upsert(id, p.Name, p.Provider, p.Tags, p.Metadata)
	if created {
		log.Debug("registry: created cluster %s", e.GUID)
	}
	return e, nil
}

// CreateBroker validates id, inserts (or refreshes) the Broker entity and,
// when p.ClusterGUID is set, auto-links CONTAINS from the cluster.
func (r *Registry) CreateBroker(id entity.BrokerIdentity, p CreateParams) (*entity.Entity, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	e, created := r.upsert(id, p.Name, p.Provider, p.Tags, p.Metadata)
	if created && p.ClusterGUID != "" {
		if err := r.relations.AddRelationship(p.ClusterGUID, e.GUID, relationship.TypeContains, nil); err != nil {
			log.Warn("registry: failed to auto-link broker %s under cluster %s: %v", e.GUID, p.ClusterGUID, err)
		}
	}
	return e, nil
}

// CreateTopic validates id, inserts (or refreshes) the Topic entity and,
// when p.ClusterGUID is set, auto-links CONTAINS from the cluster.
func (r *Registry) CreateTopic(id entity.TopicIdentity, p CreateParams) (*entity.Entity, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	e, created := r.upsert(id, p.Name, p.Provider, p.Tags, p.Metadata)
	if created && p.ClusterGUID != "" {
		if err := r.relations.AddRelationship(p.ClusterGUID, e.GUID, relationship.TypeContains, nil); err != nil {
			log.Warn("registry: failed to auto-link topic %s under cluster %s: %v", e.GUID, p.ClusterGUID, err)
		}
	}
	return e, nil
}

// CreateQueue validates id and inserts (or refreshes) the Queue entity.
// Queues have no cluster parent in the hierarchy; callers wire
// provider-specific relationships (e.g. SERVES) separately if needed.
func (r *Registry) CreateQueue(id entity.QueueIdentity, p CreateParams) (*entity.Entity, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	e, _ := r.upsert(id, p.Name, p.Provider, p.Tags, p.Metadata)
	return e, nil
}

// CreateConsumerGroup validates id and inserts (or refreshes) the
// ConsumerGroup entity, auto-linking MANAGES from the cluster when
// p.ClusterGUID is set (a consumer group is managed by, not contained in,
// its cluster -- it does not sit in the CONTAINS hierarchy).
func (r *Registry) CreateConsumerGroup(id entity.ConsumerGroupIdentity, p CreateParams) (*entity.Entity, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	e, created := r.upsert(id, p.Name, p.Provider, p.Tags, p.Metadata)
	if created && p.ClusterGUID != "" {
		if err := r.relations.AddRelationship(p.ClusterGUID, e.GUID, relationship.TypeManages, nil); err != nil {
			log.Warn("registry: failed to auto-link consumer group %s under cluster %s: %v", e.GUID, p.ClusterGUID, err)
		}
	}
	return e, nil
}

// Get returns the entity for guid, if present.
func (r *Registry) Get(guid string) (*entity.Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[guid]
	return e, ok
}

// UpdateGolden replaces an existing entity's golden metrics and
// metadata on every tick. It never mutates GUID-determining identity
// fields.
func (r *Registry) UpdateGolden(guid string, golden []entity.GoldenMetric, meta map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[guid]
	if !ok {
		return fmt.Errorf("%w: entity %s not found in registry", errs.ErrValidationFailed, guid)
	}
	e.Golden = golden
	for k, v := range meta {
		if e.Metadata == nil {
			e.Metadata = make(map[string]any)
		}
		e.Metadata[k] = v
	}
	e.UpdatedAt = time.Now()
	e.MarkSeen()
	return nil
}

// MarkSeen resets the missing-tick counter for guid. The createX and
// UpdateGolden paths already reset it, so the orchestrator does not call
// this directly.
func (r *Registry) MarkSeen(guid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entities[guid]; ok {
		e.MarkSeen()
	}
}

// SweepMissing increments the missing-tick counter for every entity NOT in
// the seen set this tick, and evicts those that have crossed evictAfter
// consecutive misses. It returns the GUIDs evicted.
func (r *Registry) SweepMissing(seenGUIDs map[string]bool) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []string
	for guid, e := range r.entities {
		if seenGUIDs[guid] {
			continue
		}
		if e.RecordMiss() >= evictAfter {
			delete(r.entities, guid)
			evicted = append(evicted, guid)
		}
	}
	return evicted
}

// Len reports the number of entities currently tracked.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}

// All returns a snapshot slice of every tracked entity (copy of the
// pointer slice, not of the entities themselves -- callers must not
// mutate identity fields once any event embedding the GUID has been
// published).
func (r *Registry) All() []*entity.Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.Entity, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, e)
	}
	return out
}
