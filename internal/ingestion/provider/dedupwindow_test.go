package provider

import "testing"

func TestDedupWindow_FiltersRepeats(t *testing.T) {
	w := newDedupWindow(500)

	items := []RawNormalizedPair{{ExternalID: "A"}, {ExternalID: "B"}}
	survivors, dropped := w.Filter(items)
	if len(survivors) != 2 || dropped != 0 {
		t.Fatalf("expected both items to survive first pass, got %d survivors %d dropped", len(survivors), dropped)
	}

	items2 := []RawNormalizedPair{{ExternalID: "B"}, {ExternalID: "C"}}
	survivors2, dropped2 := w.Filter(items2)
	if len(survivors2) != 1 || survivors2[0].ExternalID != "C" {
		t.Fatalf("expected only C to survive, got %+v", survivors2)
	}
	if dropped2 != 1 {
		t.Fatalf("expected 1 dropped, got %d", dropped2)
	}
}

func TestDedupWindow_Eviction(t *testing.T) {
	w := newDedupWindow(2)
	w.CheckAndAdd("A")
	w.CheckAndAdd("B")
	w.CheckAndAdd("C") // evicts A

	if w.CheckAndAdd("A") {
		t.Fatal("A should have been evicted and treated as new")
	}
}

func TestDedupWindow_SeedFromResumeCursor(t *testing.T) {
	w := newDedupWindow(500)
	w.Seed("B")

	if !w.CheckAndAdd("B") {
		t.Fatal("seeded id should be reported as already seen")
	}
}
