package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"

	"github.com/Strob0t/StratForge/internal/adapter/ws"
	"github.com/Strob0t/StratForge/internal/domain"
	"github.com/Strob0t/StratForge/internal/domain/content"
	"github.com/Strob0t/StratForge/internal/domain/strategy"
	"github.com/Strob0t/StratForge/internal/port/messagequeue"
)

const (
	riskContent = `{"microSwots":[],"summary":"nothing yet"}`
	textContent = `"just text"`
)

func newScoreFixture(t *testing.T) (*mockStore, *ScoreService, *mockBroadcaster, string) {
	t.Helper()
	store := newMockStore()
	hub := &mockBroadcaster{}
	svc := NewScoreService(store, content.NewParser(), newMockSchema("A1"), hub, nil)
	st := store.seed("owner", strategy.InterviewDataset{"A1": "x"})
	store.setPillar(st.ID, strategy.TypeR, strategy.StatusComplete, riskContent, 1)
	store.setPillar(st.ID, strategy.TypeT, strategy.StatusComplete, textContent, 1)
	return store, svc, hub, st.ID
}

func TestRecalculateScores(t *testing.T) {
	store, svc, hub, id := newScoreFixture(t)

	res, err := svc.RecalculateScores(context.Background(), id, strategy.TriggerManual)
	if err != nil {
		t.Fatalf("RecalculateScores: %v", err)
	}

	// 2 of 8 complete, full coverage, one non-trivial pillar, no alignment, empty audit
	want := 6 + 20 + 2 + 0 + 0
	if res.CoherenceScore != want || res.CoherenceBreakdown.Total != want {
		t.Errorf("coherence = %d (%+v), want %d", res.CoherenceScore, res.CoherenceBreakdown, want)
	}
	if res.RiskScore == nil || *res.RiskScore != 45 {
		t.Fatalf("risk = %v, want 45", res.RiskScore)
	}
	if res.BmfScore != nil || res.BmfBreakdown != nil {
		t.Errorf("bmf = %v, want nil for unparsable T", res.BmfScore)
	}
	if len(res.Issues[strategy.TypeT]) == 0 {
		t.Error("T parse issue not reported")
	}

	got, _ := store.GetStrategy(context.Background(), id)
	if got.CoherenceScore != want {
		t.Errorf("stored coherence = %d, want %d", got.CoherenceScore, want)
	}

	var r map[string]json.RawMessage
	if err := json.Unmarshal(got.Pillar(strategy.TypeR).Content, &r); err != nil {
		t.Fatalf("unmarshal R: %v", err)
	}
	if string(r[content.RiskScoreField]) != "45" {
		t.Errorf("R riskScore = %s, want 45", r[content.RiskScoreField])
	}
	if string(r["summary"]) != `"nothing yet"` {
		t.Errorf("R summary = %s, patch touched other fields", r["summary"])
	}
	if string(got.Pillar(strategy.TypeT).Content) != textContent {
		t.Errorf("T content changed: %s", got.Pillar(strategy.TypeT).Content)
	}

	snaps, _ := store.ListScoreSnapshots(context.Background(), id, 0)
	if len(snaps) != 1 || snaps[0].Trigger != strategy.TriggerManual || *snaps[0].RiskScore != 45 || snaps[0].BmfScore != nil {
		t.Errorf("snapshots = %+v", snaps)
	}
	if hub.count(ws.EventScoresUpdated) != 1 {
		t.Error("scores.updated not broadcast")
	}
}

func TestRecalculateScoresAuditGating(t *testing.T) {
	tests := []struct {
		name     string
		status   strategy.PillarStatus
		content  string
		wantRisk bool
	}{
		{"complete and typed", strategy.StatusComplete, riskContent, true},
		{"errored with typed content", strategy.StatusError, riskContent, false},
		{"complete but raw", strategy.StatusComplete, `[1,2,3]`, false},
		{"idle and empty", strategy.StatusIdle, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, svc, _, id := newScoreFixture(t)
			store.setPillar(id, strategy.TypeR, tt.status, tt.content, 1)

			res, err := svc.RecalculateScores(context.Background(), id, strategy.TriggerManual)
			if err != nil {
				t.Fatalf("RecalculateScores: %v", err)
			}
			if (res.RiskScore != nil) != tt.wantRisk {
				t.Errorf("risk computed = %v, want %v", res.RiskScore != nil, tt.wantRisk)
			}
		})
	}
}

func TestRecalculateScoresPatchesDoubleEncodedContent(t *testing.T) {
	store, svc, _, id := newScoreFixture(t)
	wrapped, err := json.Marshal(riskContent)
	if err != nil {
		t.Fatal(err)
	}
	store.setPillar(id, strategy.TypeR, strategy.StatusComplete, string(wrapped), 1)

	res, err := svc.RecalculateScores(context.Background(), id, strategy.TriggerManual)
	if err != nil {
		t.Fatalf("RecalculateScores: %v", err)
	}
	if res.RiskScore == nil {
		t.Fatal("risk not computed for double-encoded R")
	}

	var r map[string]json.RawMessage
	if err := json.Unmarshal(store.pillar(id, strategy.TypeR).Content, &r); err != nil {
		t.Fatalf("stored R is not an object: %v", err)
	}
	if want := strconv.Itoa(*res.RiskScore); string(r[content.RiskScoreField]) != want {
		t.Errorf("stored riskScore = %s, want %s", r[content.RiskScoreField], want)
	}
	if string(r["summary"]) != `"nothing yet"` {
		t.Errorf("summary = %s, want it kept", r["summary"])
	}
}

func TestRecalculateScoresBmf(t *testing.T) {
	store, svc, _, id := newScoreFixture(t)
	store.setPillar(id, strategy.TypeT, strategy.StatusComplete,
		`{"triangulation":{"internalData":"a","marketData":"b","customerData":"c","synthesis":"d"}}`, 1)

	res, err := svc.RecalculateScores(context.Background(), id, strategy.TriggerManual)
	if err != nil {
		t.Fatalf("RecalculateScores: %v", err)
	}
	if res.BmfScore == nil || res.BmfBreakdown.TriangulationQuality != 25 {
		t.Fatalf("bmf = %+v, want triangulation 25", res.BmfBreakdown)
	}
	var body map[string]json.RawMessage
	_ = json.Unmarshal(store.pillar(id, strategy.TypeT).Content, &body)
	if _, ok := body[content.BmfScoreField]; !ok {
		t.Error("T content not patched with the bmf score")
	}
}

func TestRecalculateScoresEmptyStrategy(t *testing.T) {
	store := newMockStore()
	svc := NewScoreService(store, content.NewParser(), newMockSchema(), &mockBroadcaster{}, nil)
	st := store.seed("owner", nil)

	res, err := svc.RecalculateScores(context.Background(), st.ID, strategy.TriggerScheduled)
	if err != nil {
		t.Fatalf("RecalculateScores: %v", err)
	}
	if res.CoherenceScore != 0 || res.RiskScore != nil || res.BmfScore != nil {
		t.Errorf("result = %+v, want zero coherence and no audits", res)
	}
}

func TestRecalculateScoresSnapshotFailure(t *testing.T) {
	store, svc, _, id := newScoreFixture(t)
	store.snapshotErr = errors.New("history table locked")

	res, err := svc.RecalculateScores(context.Background(), id, strategy.TriggerManual)
	if err != nil {
		t.Fatalf("snapshot failure propagated: %v", err)
	}
	if res == nil || res.RiskScore == nil {
		t.Fatal("missing result")
	}
}

func TestRecalculateScoresErrors(t *testing.T) {
	store, svc, _, id := newScoreFixture(t)

	if _, err := svc.RecalculateScores(context.Background(), "missing", strategy.TriggerManual); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing strategy err = %v, want ErrNotFound", err)
	}
	if _, err := svc.RecalculateScores(context.Background(), id, "whenever"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("bad trigger err = %v, want ErrValidation", err)
	}

	errWrite := errors.New("write failed")
	store.coherenceErr = errWrite
	if _, err := svc.RecalculateScores(context.Background(), id, strategy.TriggerManual); !errors.Is(err, errWrite) {
		t.Errorf("coherence write err = %v, want propagated", err)
	}
}

func TestRecalculateScoresInheritsParentFoundation(t *testing.T) {
	store := newMockStore()
	svc := NewScoreService(store, content.NewParser(), newMockSchema(), &mockBroadcaster{}, nil)
	ctx := context.Background()

	parent := store.seed("owner", nil)
	store.setPillar(parent.ID, strategy.TypeA, strategy.StatusComplete,
		`{"archetype":"sage","purpose":"teach","values":[{"name":"clarity"}]}`, 1)
	store.setPillar(parent.ID, strategy.TypeD, strategy.StatusComplete,
		`{"positioning":"premium","toneOfVoice":{"personality":"calm"}}`, 1)

	child, _ := store.CreateStrategy(ctx, strategy.CreateRequest{OwnerID: "owner", ParentID: parent.ID, Name: "Sub"})
	orphan := store.seed("owner", nil)
	for _, id := range []string{child.ID, orphan.ID} {
		store.setPillar(id, strategy.TypeV, strategy.StatusComplete, `{"valueProposition":"fast"}`, 1)
	}

	withParent, err := svc.RecalculateScores(ctx, child.ID, strategy.TriggerManual)
	if err != nil {
		t.Fatalf("child: %v", err)
	}
	without, err := svc.RecalculateScores(ctx, orphan.ID, strategy.TriggerManual)
	if err != nil {
		t.Fatalf("orphan: %v", err)
	}
	if withParent.CoherenceBreakdown.CrossPillarAlignment <= without.CoherenceBreakdown.CrossPillarAlignment {
		t.Errorf("alignment with parent = %d, without = %d; want inheritance to help",
			withParent.CoherenceBreakdown.CrossPillarAlignment, without.CoherenceBreakdown.CrossPillarAlignment)
	}
}

func TestScoreHistory(t *testing.T) {
	_, svc, _, id := newScoreFixture(t)
	ctx := context.Background()
	for _, trig := range []strategy.Trigger{strategy.TriggerManual, strategy.TriggerQueue} {
		if _, err := svc.RecalculateScores(ctx, id, trig); err != nil {
			t.Fatalf("recalculate: %v", err)
		}
	}

	snaps, err := svc.History(ctx, id, 1)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(snaps) != 1 || snaps[0].Trigger != strategy.TriggerQueue {
		t.Errorf("history = %+v, want newest queue snapshot only", snaps)
	}
	if _, err := svc.History(ctx, "missing", 10); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing err = %v, want ErrNotFound", err)
	}
}

func TestRecomputeSubscriber(t *testing.T) {
	store, svc, _, id := newScoreFixture(t)
	q := &mockQueue{}

	if _, err := svc.StartRecomputeSubscriber(context.Background(), q); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	handler := q.handlers[messagequeue.SubjectScoresRecompute]
	if handler == nil {
		t.Fatal("no handler registered")
	}

	data, _ := json.Marshal(messagequeue.RecomputePayload{StrategyID: id})
	if err := handler(context.Background(), messagequeue.SubjectScoresRecompute, data); err != nil {
		t.Fatalf("handler: %v", err)
	}
	snaps, _ := store.ListScoreSnapshots(context.Background(), id, 0)
	if len(snaps) != 1 || snaps[0].Trigger != strategy.TriggerQueue {
		t.Errorf("snapshots = %+v, want one queue snapshot", snaps)
	}

	unknown, _ := json.Marshal(messagequeue.RecomputePayload{StrategyID: "gone"})
	if err := handler(context.Background(), messagequeue.SubjectScoresRecompute, unknown); err != nil {
		t.Errorf("unknown strategy err = %v, want nil (ack and drop)", err)
	}
}
