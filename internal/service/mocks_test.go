package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/veritaslabs/veritas/internal/domain"
	"github.com/veritaslabs/veritas/internal/store"
)

// Map-backed stores for exercising the pipeline without Postgres. Guarded by
// a mutex because the epoch orchestrator processes beliefs concurrently.

type mockAgentStore struct {
	mu     sync.Mutex
	agents map[uuid.UUID]domain.Agent
}

func newMockAgentStore(agents ...domain.Agent) *mockAgentStore {
	m := &mockAgentStore{agents: make(map[uuid.UUID]domain.Agent)}
	for _, a := range agents {
		m.agents[a.ID] = a
	}
	return m
}

func (m *mockAgentStore) Create(ctx context.Context, a *domain.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[a.ID] = *a
	return nil
}

func (m *mockAgentStore) GetByID(ctx context.Context, id, tenantID uuid.UUID) (*domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (m *mockAgentStore) GetByExternalID(ctx context.Context, externalID string, tenantID uuid.UUID) (*domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.agents {
		if a.ExternalID == externalID {
			return &a, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockAgentStore) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Agent, 0, len(ids))
	for _, id := range ids {
		if a, ok := m.agents[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockAgentStore) IncrementActiveBeliefs(ctx context.Context, id uuid.UUID, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return store.ErrNotFound
	}
	a.ActiveBeliefCount += delta
	if a.ActiveBeliefCount < 0 {
		a.ActiveBeliefCount = 0
	}
	m.agents[id] = a
	return nil
}

type mockBeliefStore struct {
	mu      sync.Mutex
	beliefs map[uuid.UUID]domain.Belief
	deleted []uuid.UUID
	listErr error
	updates int
}

func newMockBeliefStore(beliefs ...domain.Belief) *mockBeliefStore {
	m := &mockBeliefStore{beliefs: make(map[uuid.UUID]domain.Belief)}
	for _, b := range beliefs {
		m.beliefs[b.ID] = b
	}
	return m
}

func (m *mockBeliefStore) Create(ctx context.Context, b *domain.Belief) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beliefs[b.ID] = *b
	return nil
}

func (m *mockBeliefStore) GetByID(ctx context.Context, id, tenantID uuid.UUID) (*domain.Belief, error) {
	return m.Get(ctx, id)
}

func (m *mockBeliefStore) Get(ctx context.Context, id uuid.UUID) (*domain.Belief, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.beliefs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &b, nil
}

func (m *mockBeliefStore) ListActive(ctx context.Context) ([]domain.Belief, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]domain.Belief, 0, len(m.beliefs))
	for _, b := range m.beliefs {
		if b.Status == domain.BeliefStatusActive {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *mockBeliefStore) UpdateAggregates(ctx context.Context, id uuid.UUID, aggregate, disagreementEntropy float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.beliefs[id]
	if !ok {
		return store.ErrNotFound
	}
	b.PreviousAggregate = aggregate
	b.PreviousDisagreementEntropy = disagreementEntropy
	m.beliefs[id] = b
	m.updates++
	return nil
}

func (m *mockBeliefStore) DeleteCascade(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.beliefs[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.beliefs, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockSubmissionStore struct {
	mu          sync.Mutex
	subs        map[uuid.UUID][]domain.Submission
	listErrFor  uuid.UUID
	listErr     error
	deactivated map[uuid.UUID]int64
}

func newMockSubmissionStore() *mockSubmissionStore {
	return &mockSubmissionStore{
		subs:        make(map[uuid.UUID][]domain.Submission),
		deactivated: make(map[uuid.UUID]int64),
	}
}

func (m *mockSubmissionStore) add(s domain.Submission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[s.BeliefID] = append(m.subs[s.BeliefID], s)
}

func (m *mockSubmissionStore) Upsert(ctx context.Context, s *domain.Submission) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.subs[s.BeliefID] {
		if existing.AgentID == s.AgentID {
			m.subs[s.BeliefID][i] = *s
			return false, nil
		}
	}
	m.subs[s.BeliefID] = append(m.subs[s.BeliefID], *s)
	return true, nil
}

func (m *mockSubmissionStore) ListByBelief(ctx context.Context, beliefID uuid.UUID) ([]domain.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil && beliefID == m.listErrFor {
		return nil, m.listErr
	}
	return append([]domain.Submission(nil), m.subs[beliefID]...), nil
}

func (m *mockSubmissionStore) ListAgentIDs(ctx context.Context, beliefID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil && beliefID == m.listErrFor {
		return nil, m.listErr
	}
	ids := make([]uuid.UUID, 0, len(m.subs[beliefID]))
	for _, s := range m.subs[beliefID] {
		ids = append(ids, s.AgentID)
	}
	return ids, nil
}

func (m *mockSubmissionStore) CountActiveAtEpoch(ctx context.Context, beliefID uuid.UUID, epoch int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.subs[beliefID] {
		if s.IsActive && s.Epoch == epoch {
			n++
		}
	}
	return n, nil
}

func (m *mockSubmissionStore) UpdateBeliefValue(ctx context.Context, beliefID, agentID uuid.UUID, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.subs[beliefID] {
		if s.AgentID == agentID {
			m.subs[beliefID][i].BeliefValue = value
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *mockSubmissionStore) DeactivateByBelief(ctx context.Context, beliefID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i, s := range m.subs[beliefID] {
		if s.IsActive {
			m.subs[beliefID][i].IsActive = false
			n++
		}
	}
	m.deactivated[beliefID] += n
	return n, nil
}

func (m *mockSubmissionStore) get(beliefID, agentID uuid.UUID) (domain.Submission, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs[beliefID] {
		if s.AgentID == agentID {
			return s, true
		}
	}
	return domain.Submission{}, false
}

type mockPositionStore struct {
	mu    sync.Mutex
	locks map[uuid.UUID]map[uuid.UUID]int64
}

func newMockPositionStore() *mockPositionStore {
	return &mockPositionStore{locks: make(map[uuid.UUID]map[uuid.UUID]int64)}
}

func (m *mockPositionStore) lock(beliefID, agentID uuid.UUID, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[beliefID] == nil {
		m.locks[beliefID] = make(map[uuid.UUID]int64)
	}
	m.locks[beliefID][agentID] += amount
}

func (m *mockPositionStore) Create(ctx context.Context, p *domain.Position) error {
	m.lock(p.BeliefID, p.AgentID, p.LockedAmount)
	return nil
}

func (m *mockPositionStore) GrossLocks(ctx context.Context, beliefID uuid.UUID) (map[uuid.UUID]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]int64, len(m.locks[beliefID]))
	for id, amount := range m.locks[beliefID] {
		if amount > 0 {
			out[id] = amount
		}
	}
	return out, nil
}

type mockRedistributionStore struct {
	mu      sync.Mutex
	applied map[string][]domain.RedistributionEntry
}

func newMockRedistributionStore() *mockRedistributionStore {
	return &mockRedistributionStore{applied: make(map[string][]domain.RedistributionEntry)}
}

func redistKey(beliefID uuid.UUID, epoch int64) string {
	return fmt.Sprintf("%s/%d", beliefID, epoch)
}

func (m *mockRedistributionStore) Apply(ctx context.Context, beliefID uuid.UUID, epoch int64, entries []domain.RedistributionEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := redistKey(beliefID, epoch)
	if _, ok := m.applied[key]; ok {
		return false, nil
	}
	m.applied[key] = append([]domain.RedistributionEntry(nil), entries...)
	return true, nil
}

func (m *mockRedistributionStore) ListByBeliefEpoch(ctx context.Context, beliefID uuid.UUID, epoch int64) ([]domain.RedistributionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.applied[redistKey(beliefID, epoch)]
	out := make([]domain.RedistributionEvent, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.RedistributionEvent{
			BeliefID:         beliefID,
			Epoch:            epoch,
			AgentID:          e.AgentID,
			InformationScore: e.InformationScore,
			StakeDelta:       e.StakeDelta,
			BeliefWeight:     e.GrossLock,
		})
	}
	return out, nil
}

type mockEpochStateStore struct {
	mu      sync.Mutex
	current int64
}

func (m *mockEpochStateStore) Current(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, nil
}

func (m *mockEpochStateStore) Advance(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current++
	return m.current, nil
}
