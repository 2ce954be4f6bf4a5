package persona

import "testing"

func TestResolveFallsBackToDefault(t *testing.T) {
	store := NewMemoryStore(Seed())

	p, ok := Resolve(store, "reviewer")
	if !ok || p.ID != "reviewer" {
		t.Fatalf("expected reviewer, got %+v", p)
	}

	p, ok = Resolve(store, "unknown")
	if !ok || p.ID != DefaultID {
		t.Fatalf("expected default persona, got %+v", p)
	}
}

func TestResolveEmptyStore(t *testing.T) {
	if _, ok := Resolve(NewMemoryStore(nil), "assistant"); ok {
		t.Fatal("expected no persona from an empty store")
	}
}

func TestListReturnsCopy(t *testing.T) {
	store := NewMemoryStore(Seed())
	items := store.List()
	items[0].Name = "changed"

	if p, _ := store.FindByID(items[0].ID); p.Name == "changed" {
		t.Fatal("List must not expose internal storage")
	}
}
