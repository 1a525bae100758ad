// Package storetest keeps test suites against storedefs.Store.
package storetest

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"src.sel.sh/pkg/indexgroup"
	"src.sel.sh/pkg/store/storedefs"
)

var (
	history = []string{
		"resname SOL",
		"x < 2 and resname SOL",
		"within 0.5 of resnr 1",
		"resname PROT",
	}
	// Sequence numbers start at 1.
	historyStart = 1
	historyEnd   = historyStart + len(history)
)

// TestHistory tests the selection history functionality of a Store.
func TestHistory(t *testing.T, store storedefs.Store) {
	seq, err := store.NextSeq()
	if seq != historyStart || err != nil {
		t.Errorf("store.NextSeq() -> %v, %v, want %v, nil", seq, err, historyStart)
	}

	for i, text := range history {
		wantSeq := historyStart + i
		seq, err := store.AddEntry(text)
		if seq != wantSeq || err != nil {
			t.Errorf("store.AddEntry(%q) -> %v, %v, want %v, nil", text, seq, err, wantSeq)
		}
	}

	for i, wantText := range history {
		seq := i + historyStart
		text, err := store.Entry(seq)
		if text != wantText || err != nil {
			t.Errorf("store.Entry(%v) -> %q, %v, want %q, nil", seq, text, err, wantText)
		}
	}

	entries, err := store.Entries(historyStart, historyEnd)
	if err != nil {
		t.Errorf("store.Entries -> error %v", err)
	}
	var texts []string
	for _, e := range entries {
		texts = append(texts, e.Text)
	}
	if diff := cmp.Diff(history, texts); diff != "" {
		t.Errorf("store.Entries (-want +got):\n%s", diff)
	}

	tt := []struct {
		name   string
		f      func(int, string) (storedefs.Entry, error)
		seq    int
		prefix string
		want   storedefs.Entry
		err    error
	}{
		{"NextEntry", store.NextEntry, historyStart, "resname", storedefs.Entry{Text: history[0], Seq: 1}, nil},
		{"NextEntry", store.NextEntry, 2, "resname", storedefs.Entry{Text: history[3], Seq: 4}, nil},
		{"NextEntry", store.NextEntry, historyStart, "y", storedefs.Entry{}, storedefs.ErrNoMatchingEntry},
		{"PrevEntry", store.PrevEntry, historyEnd, "resname", storedefs.Entry{Text: history[3], Seq: 4}, nil},
		{"PrevEntry", store.PrevEntry, 4, "resname", storedefs.Entry{Text: history[0], Seq: 1}, nil},
		{"PrevEntry", store.PrevEntry, historyStart, "", storedefs.Entry{}, storedefs.ErrNoMatchingEntry},
	}
	for _, c := range tt {
		got, err := c.f(c.seq, c.prefix)
		if got != c.want || err != c.err {
			t.Errorf("store.%s(%v, %q) -> %v, %v, want %v, %v",
				c.name, c.seq, c.prefix, got, err, c.want, c.err)
		}
	}

	if err := store.DelEntry(historyStart); err != nil {
		t.Errorf("store.DelEntry(%v) -> error %v", historyStart, err)
	}
	if _, err := store.Entry(historyStart); err != storedefs.ErrNoMatchingEntry {
		t.Errorf("store.Entry of deleted entry -> %v, want ErrNoMatchingEntry", err)
	}
}

// TestGroups tests the index group functionality of a Store.
func TestGroups(t *testing.T, store storedefs.Store) {
	groups := indexgroup.Groups{
		{Name: "Protein", Indices: []int{5, 6, 7}},
		{Name: "SOL", Indices: []int{0, 1, 2, 3, 4}},
		{Name: "Odd", Indices: []int{9, 7, 1}},
	}
	for _, g := range groups {
		if err := store.PutGroup(g); err != nil {
			t.Errorf("store.PutGroup(%q) -> error %v", g.Name, err)
		}
	}
	if _, err := store.Group("Nope"); err != storedefs.ErrNoGroup {
		t.Errorf("store.Group(%q) -> %v, want ErrNoGroup", "Nope", err)
	}

	// Replacing keeps the position; indices keep their order.
	groups[1].Indices = []int{4, 3}
	if err := store.PutGroup(groups[1]); err != nil {
		t.Errorf("store.PutGroup -> error %v", err)
	}
	got, err := store.Groups()
	if err != nil {
		t.Errorf("store.Groups() -> error %v", err)
	}
	if diff := cmp.Diff(groups, got); diff != "" {
		t.Errorf("store.Groups() (-want +got):\n%s", diff)
	}

	g, err := got.Find("sol")
	if err != nil || g.Name != "SOL" {
		t.Errorf("Find(%q) on stored groups -> %v, %v", "sol", g, err)
	}

	if err := store.DelGroup("Protein"); err != nil {
		t.Errorf("store.DelGroup -> error %v", err)
	}
	if err := store.DelGroup("Protein"); err != storedefs.ErrNoGroup {
		t.Errorf("second store.DelGroup -> %v, want ErrNoGroup", err)
	}
	got, _ = store.Groups()
	if diff := cmp.Diff(groups[1:], got); diff != "" {
		t.Errorf("store.Groups() after delete (-want +got):\n%s", diff)
	}
}
