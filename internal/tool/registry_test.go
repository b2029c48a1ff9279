package tool

import (
	"context"
	"testing"
)

func noopHandler(_ context.Context, _ Params) (any, error) { return nil, nil }

func TestRegistryFirstRegistrationWins(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	r.Register(Metadata{Name: "dup", Category: CategoryRead, Description: "first", Handler: noopHandler})
	r.Register(Metadata{Name: "dup", Category: CategoryWrite, Description: "second", Handler: noopHandler})

	meta, ok := r.Lookup("dup")
	if !ok {
		t.Fatal("tool not found")
	}
	if meta.Description != "first" || meta.Category != CategoryRead {
		t.Fatalf("duplicate registration replaced the original: %+v", meta)
	}
}

func TestRegistryRejectsInvalid(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	r.Register(Metadata{Name: "", Handler: noopHandler})
	r.Register(Metadata{Name: "no_handler"})
	if r.Len() != 0 {
		t.Fatalf("invalid registrations accepted, len=%d", r.Len())
	}
}

func TestRegistryListSortedAndFiltered(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	r.Register(Metadata{Name: "zeta", Category: CategoryRead, Handler: noopHandler})
	r.Register(Metadata{Name: "alpha", Category: CategoryWrite, Handler: noopHandler})
	r.Register(Metadata{Name: "mid", Category: CategoryRead, Handler: noopHandler})

	all := r.List("")
	if len(all) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(all))
	}
	if all[0].Name != "alpha" || all[1].Name != "mid" || all[2].Name != "zeta" {
		t.Fatalf("list not sorted: %v", all)
	}

	reads := r.List(CategoryRead)
	if len(reads) != 2 {
		t.Fatalf("expected 2 read tools, got %v", reads)
	}
	for _, info := range reads {
		if info.Category != CategoryRead {
			t.Fatalf("filter leaked category %s", info.Category)
		}
	}
}
