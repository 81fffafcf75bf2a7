package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Strob0t/StratForge/internal/domain"
	"github.com/Strob0t/StratForge/internal/domain/strategy"
)

const catalogYAML = `
variables:
  - id: brand_purpose
    label: Purpose
    pillar: A
    sort_order: 1
  - id: target_market
    label: Target market
    pillar: D
    sort_order: 1
`

func TestSchemaImport(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		want    int
		wantErr error
	}{
		{name: "valid catalog", doc: catalogYAML, want: 2},
		{name: "broken yaml", doc: "variables: [", wantErr: domain.ErrValidation},
		{name: "missing id", doc: "variables:\n  - pillar: A\n", wantErr: domain.ErrValidation},
		{name: "duplicate id", doc: "variables:\n  - {id: x, pillar: A}\n  - {id: x, pillar: D}\n", wantErr: domain.ErrValidation},
		{name: "unknown pillar", doc: "variables:\n  - {id: x, pillar: Z}\n", wantErr: domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			c := &mockCache{}
			svc := NewSchemaService(store, c, 0)

			n, err := svc.Import(context.Background(), []byte(tt.doc))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if c.deletes != 0 {
					t.Error("cache invalidated on failed import")
				}
				return
			}
			if err != nil {
				t.Fatalf("Import: %v", err)
			}
			if n != tt.want {
				t.Errorf("imported %d, want %d", n, tt.want)
			}
			if c.deletes != 1 {
				t.Errorf("cache deletes = %d, want 1", c.deletes)
			}
			vars, _ := svc.CurrentSchema(context.Background())
			if len(vars) != tt.want || vars[1].Pillar != strategy.TypeD {
				t.Errorf("schema = %+v", vars)
			}
		})
	}
}

func TestSchemaReadThroughCache(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := NewSchemaService(store, &mockCache{}, 0)
	if _, err := svc.Import(ctx, []byte(catalogYAML)); err != nil {
		t.Fatalf("Import: %v", err)
	}

	for range 3 {
		ids, err := svc.CurrentVariableIDs(ctx)
		if err != nil {
			t.Fatalf("CurrentVariableIDs: %v", err)
		}
		if len(ids) != 2 || ids[0] != "brand_purpose" {
			t.Fatalf("ids = %v", ids)
		}
	}
	if store.listVarsCalls != 1 {
		t.Errorf("store reads = %d, want 1", store.listVarsCalls)
	}

	if _, err := svc.Import(ctx, []byte("variables:\n  - {id: only, pillar: E}\n")); err != nil {
		t.Fatalf("reimport: %v", err)
	}
	ids, _ := svc.CurrentVariableIDs(ctx)
	if len(ids) != 1 || ids[0] != "only" {
		t.Errorf("ids after reimport = %v, want [only]", ids)
	}
	if store.listVarsCalls != 2 {
		t.Errorf("store reads = %d, want 2", store.listVarsCalls)
	}
}

func TestSchemaWithoutCache(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	svc := NewSchemaService(store, nil, 0)
	if _, err := svc.Import(ctx, []byte(catalogYAML)); err != nil {
		t.Fatalf("Import: %v", err)
	}
	_, _ = svc.CurrentSchema(ctx)
	_, _ = svc.CurrentSchema(ctx)
	if store.listVarsCalls != 2 {
		t.Errorf("store reads = %d, want 2", store.listVarsCalls)
	}
}
