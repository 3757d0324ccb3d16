package content

import (
	"reflect"
	"testing"
)

func sample() List {
	return List{
		{ID: "a", Texts: []string{"hello world"}},
		{ID: "b", Texts: []string{"second piece of text"}},
		{ID: Separator},
		{ID: "c", Texts: []string{"third piece"}},
	}
}

func TestSegmentForTranslationRoundTripIdentity(t *testing.T) {
	list := sample()
	units := SegmentForTranslation(list, Budgets{Section: 1, High: 100000})

	var got List
	for _, u := range units {
		got = append(got, u.Content...)
	}

	var want List
	for _, c := range list {
		if c.isSeparator() {
			continue
		}
		want = append(want, c)
	}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}
}

func TestSegmentForTranslationClosesOnOversizedItem(t *testing.T) {
	list := List{
		{ID: "a", Texts: []string{"short"}},
		{ID: "b", Texts: []string{"this one pushes the unit well past its tiny high budget indeed"}},
	}
	units := SegmentForTranslation(list, Budgets{Section: 1, High: 2})
	if len(units) < 2 {
		t.Fatalf("expected the oversized item to start a new unit, got %d units", len(units))
	}
	if units[0].Content[0].ID != "a" {
		t.Fatalf("expected first unit to retain the first item")
	}
}

func TestReplaceTextsPositional(t *testing.T) {
	list := sample()
	units := SegmentForTranslation(list, Budgets{Section: 1, High: 100000})
	u := units[0]

	rows := u.ToTranslatingList()
	restored := u.ReplaceTexts(rows)
	if !reflect.DeepEqual(restored, u.Content) {
		t.Fatalf("expected exact round trip, got %+v want %+v", restored, u.Content)
	}
}

func TestReplaceTextsColonTolerance(t *testing.T) {
	list := List{{ID: "a", Texts: []string{"x"}}, {ID: "b", Texts: []string{"y"}}}
	units := SegmentForTranslation(list, Budgets{Section: 1, High: 100000})
	u := units[0]

	variants := []string{":", "：", "׃", "∶"}
	for _, colon := range variants {
		rows := [][]string{
			{"1" + colon, "translated-x"},
			{"2" + colon, "translated-y"},
		}
		got := u.ReplaceTexts(rows)
		if got[0].Texts[0] != "translated-x" || got[1].Texts[0] != "translated-y" {
			t.Fatalf("colon variant %q not tolerated: %+v", colon, got)
		}
	}
}

func TestToEmbeddingStringEnsuresTrailingPeriod(t *testing.T) {
	c := Content{ID: "a", Texts: []string{"hello   world", "second clause"}}
	got := c.ToEmbeddingString()
	want := "hello world. second clause."
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestSegmentForEmbeddingGroupsByBudget(t *testing.T) {
	list := List{
		{ID: "a", Texts: []string{"alpha"}},
		{ID: "b", Texts: []string{"bravo"}},
		{ID: "c", Texts: []string{"charlie"}},
	}
	groups := SegmentForEmbedding(list, GroupBudgets{
		Unit:           Budgets{Section: 1, High: 1},
		MaxGroupTokens: 1000,
		MaxGroupItems:  2,
	})
	for _, g := range groups {
		if len(g) > 2 {
			t.Fatalf("group exceeds MaxGroupItems: %+v", g)
		}
	}
}
