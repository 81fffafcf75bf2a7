package service

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/Strob0t/StratForge/internal/domain"
	"github.com/Strob0t/StratForge/internal/domain/content"
	"github.com/Strob0t/StratForge/internal/domain/schema"
	"github.com/Strob0t/StratForge/internal/domain/strategy"
	"github.com/Strob0t/StratForge/internal/port/broadcast"
	"github.com/Strob0t/StratForge/internal/port/cache"
	"github.com/Strob0t/StratForge/internal/port/database"
	"github.com/Strob0t/StratForge/internal/port/generator"
	"github.com/Strob0t/StratForge/internal/port/messagequeue"
	"github.com/Strob0t/StratForge/internal/port/schemaprovider"
)

var (
	_ database.Store          = (*mockStore)(nil)
	_ generator.Generator     = (*mockGenerator)(nil)
	_ schemaprovider.Provider = (*mockSchema)(nil)
	_ broadcast.Broadcaster   = (*mockBroadcaster)(nil)
	_ messagequeue.Queue      = (*mockQueue)(nil)
	_ cache.Cache             = (*mockCache)(nil)
)

// mockStore is an in-memory database.Store. It is safe for the concurrent
// access background score recomputation causes.
type mockStore struct {
	mu         sync.Mutex
	strategies map[string]*strategy.Strategy
	versions   map[string][]strategy.PillarVersion
	snapshots  []strategy.ScoreSnapshot
	variables  []schema.Variable
	nextID     int

	listVarsCalls int

	// Error hooks: set these to inject failures.
	commitErr    map[strategy.PillarType]error
	snapshotErr  error
	coherenceErr error

	// ctxAware makes pillar writes fail once their context is done, like pgx.
	ctxAware bool
}

func newMockStore() *mockStore {
	return &mockStore{
		strategies: make(map[string]*strategy.Strategy),
		versions:   make(map[string][]strategy.PillarVersion),
		commitErr:  make(map[strategy.PillarType]error),
	}
}

func (m *mockStore) id(prefix string) string {
	m.nextID++
	return prefix + "-" + strconv.Itoa(m.nextID)
}

// seed creates a strategy owned by owner with the given dataset.
func (m *mockStore) seed(owner string, dataset strategy.InterviewDataset) *strategy.Strategy {
	st, _ := m.CreateStrategy(context.Background(), strategy.CreateRequest{OwnerID: owner, Name: "Acme", Interview: dataset})
	return st
}

// setPillar overwrites pillar state directly, bypassing versioning.
func (m *mockStore) setPillar(strategyID string, t strategy.PillarType, status strategy.PillarStatus, content string, version int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.strategies[strategyID].Pillar(t)
	p.Status = status
	p.Content = nil
	if content != "" {
		p.Content = json.RawMessage(content)
	}
	p.Version = version
}

func (m *mockStore) pillar(strategyID string, t strategy.PillarType) strategy.Pillar {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.strategies[strategyID].Pillar(t)
}

func (m *mockStore) versionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, v := range m.versions {
		n += len(v)
	}
	return n
}

func (m *mockStore) snapshotCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snapshots)
}

func (m *mockStore) findPillar(pillarID string) *strategy.Pillar {
	for _, st := range m.strategies {
		for i := range st.Pillars {
			if st.Pillars[i].ID == pillarID {
				return &st.Pillars[i]
			}
		}
	}
	return nil
}

func cloneStrategy(st *strategy.Strategy) *strategy.Strategy {
	c := *st
	c.Interview = st.Interview.Clone()
	c.Pillars = slices.Clone(st.Pillars)
	return &c
}

func (m *mockStore) CreateStrategy(_ context.Context, req strategy.CreateRequest) (*strategy.Strategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := &strategy.Strategy{
		ID:        m.id("strategy"),
		OwnerID:   req.OwnerID,
		ParentID:  req.ParentID,
		Name:      req.Name,
		Phase:     strategy.PhaseDraft,
		Interview: req.Interview.Clone(),
		Version:   1,
		CreatedAt: time.Now(),
	}
	for _, t := range strategy.Stages {
		st.Pillars = append(st.Pillars, strategy.Pillar{ID: m.id("pillar"), StrategyID: st.ID, Type: t, Status: strategy.StatusIdle})
	}
	m.strategies[st.ID] = st
	return cloneStrategy(st), nil
}

func (m *mockStore) GetStrategy(_ context.Context, id string) (*strategy.Strategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.strategies[id]
	if !ok {
		return nil, fmt.Errorf("strategy %s: %w", id, domain.ErrNotFound)
	}
	return cloneStrategy(st), nil
}

func (m *mockStore) UpdateInterviewDataset(_ context.Context, id string, dataset strategy.InterviewDataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.strategies[id]
	if !ok {
		return domain.ErrNotFound
	}
	st.Interview = dataset.Clone()
	st.Version++
	return nil
}

func (m *mockStore) UpdateStrategyPhase(_ context.Context, id string, phase strategy.Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.strategies[id]
	if !ok {
		return domain.ErrNotFound
	}
	st.Phase = phase
	return nil
}

func (m *mockStore) UpdateCoherenceScore(_ context.Context, id string, score int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.coherenceErr != nil {
		return m.coherenceErr
	}
	st, ok := m.strategies[id]
	if !ok {
		return domain.ErrNotFound
	}
	st.CoherenceScore = score
	return nil
}

func (m *mockStore) ListPillars(_ context.Context, strategyID string) ([]strategy.Pillar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.strategies[strategyID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return slices.Clone(st.Pillars), nil
}

func (m *mockStore) GetPillar(_ context.Context, strategyID string, t strategy.PillarType) (*strategy.Pillar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.strategies[strategyID]
	if !ok || st.Pillar(t) == nil {
		return nil, domain.ErrNotFound
	}
	p := *st.Pillar(t)
	return &p, nil
}

func (m *mockStore) UpdatePillarStatus(ctx context.Context, pillarID string, status strategy.PillarStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctxAware && ctx.Err() != nil {
		return ctx.Err()
	}
	p := m.findPillar(pillarID)
	if p == nil {
		return domain.ErrNotFound
	}
	p.Status = status
	p.ErrorMessage = errMsg
	return nil
}

func (m *mockStore) CommitPillarContent(ctx context.Context, pillarID string, content json.RawMessage, actorID string) (*strategy.Pillar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctxAware && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	p := m.findPillar(pillarID)
	if p == nil {
		return nil, domain.ErrNotFound
	}
	if err := m.commitErr[p.Type]; err != nil {
		return nil, err
	}
	if p.HasContent() {
		m.versions[pillarID] = append(m.versions[pillarID], strategy.PillarVersion{
			ID:        m.id("version"),
			PillarID:  pillarID,
			Version:   p.Version,
			Content:   p.Content,
			CreatedBy: actorID,
		})
	}
	p.Content = content
	p.Status = strategy.StatusComplete
	p.ErrorMessage = ""
	p.Version++
	out := *p
	return &out, nil
}

func (m *mockStore) PatchPillarScore(_ context.Context, pillarID, field string, score int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.findPillar(pillarID)
	if p == nil {
		return domain.ErrNotFound
	}
	patched, ok, err := content.PatchScore(p.Content, field, score)
	if err != nil || !ok {
		return err
	}
	p.Content = patched
	return nil
}

func (m *mockStore) ListPillarVersions(_ context.Context, pillarID string) ([]strategy.PillarVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.versions[pillarID]), nil
}

func (m *mockStore) AppendScoreSnapshot(_ context.Context, snap *strategy.ScoreSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshotErr != nil {
		return m.snapshotErr
	}
	snap.ID = m.id("snapshot")
	snap.CreatedAt = time.Now()
	m.snapshots = append(m.snapshots, *snap)
	return nil
}

func (m *mockStore) ListScoreSnapshots(_ context.Context, strategyID string, limit int) ([]strategy.ScoreSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []strategy.ScoreSnapshot
	for i := len(m.snapshots) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if m.snapshots[i].StrategyID == strategyID {
			out = append(out, m.snapshots[i])
		}
	}
	return out, nil
}

func (m *mockStore) ListSchemaVariables(_ context.Context) ([]schema.Variable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listVarsCalls++
	return slices.Clone(m.variables), nil
}

func (m *mockStore) ReplaceSchemaVariables(_ context.Context, vars []schema.Variable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.variables = slices.Clone(vars)
	return nil
}

// mockGenerator returns {"stage":"<X>","run":<n>} per call unless failing
// names the stage, and records every request.
type mockGenerator struct {
	mu        sync.Mutex
	failing   map[strategy.PillarType]error
	requests  []generator.StageRequest
	calls     int
	proposals map[string]string
	backfill  []generator.BackfillRequest
	backErr   error
	// onStage runs before a stage is answered, outside the lock.
	onStage func(strategy.PillarType)
}

func (g *mockGenerator) Generate(_ context.Context, req generator.StageRequest) (json.RawMessage, error) {
	if g.onStage != nil {
		g.onStage(req.Stage)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	g.calls++
	if err := g.failing[req.Stage]; err != nil {
		return nil, fmt.Errorf("%w: %w", generator.ErrGeneration, err)
	}
	return json.RawMessage(fmt.Sprintf(`{"stage":%q,"call":%d}`, req.Stage, g.calls)), nil
}

func (g *mockGenerator) Backfill(_ context.Context, req generator.BackfillRequest) (map[string]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.backfill = append(g.backfill, req)
	if g.backErr != nil {
		return nil, g.backErr
	}
	return g.proposals, nil
}

// request returns the last request seen for stage t.
func (g *mockGenerator) request(t strategy.PillarType) (generator.StageRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := len(g.requests) - 1; i >= 0; i-- {
		if g.requests[i].Stage == t {
			return g.requests[i], true
		}
	}
	return generator.StageRequest{}, false
}

type mockSchema struct {
	vars []schema.Variable
	err  error
}

func newMockSchema(ids ...string) *mockSchema {
	s := &mockSchema{}
	for i, id := range ids {
		s.vars = append(s.vars, schema.Variable{ID: id, Pillar: strategy.TypeA, SortOrder: i})
	}
	return s
}

func (s *mockSchema) CurrentSchema(context.Context) ([]schema.Variable, error) {
	return s.vars, s.err
}

func (s *mockSchema) CurrentVariableIDs(context.Context) ([]string, error) {
	return schema.IDs(s.vars), s.err
}

type mockBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (m *mockBroadcaster) BroadcastEvent(_ context.Context, eventType string, _ any) {
	m.mu.Lock()
	m.events = append(m.events, eventType)
	m.mu.Unlock()
}

func (m *mockBroadcaster) count(eventType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e == eventType {
			n++
		}
	}
	return n
}

type mockQueue struct {
	mu        sync.Mutex
	published map[string][][]byte
	handlers  map[string]messagequeue.Handler
	err       error
}

func (q *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	if q.published == nil {
		q.published = make(map[string][][]byte)
	}
	q.published[subject] = append(q.published[subject], data)
	return nil
}

func (q *mockQueue) Subscribe(_ context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.handlers == nil {
		q.handlers = make(map[string]messagequeue.Handler)
	}
	q.handlers[subject] = handler
	return func() {}, nil
}

func (q *mockQueue) Drain() error      { return nil }
func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }

type mockRecomputer struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *mockRecomputer) Recompute(_ context.Context, strategyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, strategyID)
	return r.err
}

func (r *mockRecomputer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type mockCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	deletes int
}

func (c *mockCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mockCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = make(map[string][]byte)
	}
	c.data[key] = value
	return nil
}

func (c *mockCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	c.deletes++
	return nil
}
