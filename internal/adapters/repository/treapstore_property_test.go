package repository

import (
	"context"
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

// TestTreapStoreMatchesModel drives random upserts and removes and checks
// every read against a sorted-slice model.
func TestTreapStoreMatchesModel(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		store := NewTreapStore(ctx)
		defer store.Close()

		model := map[string]float64{}
		steps := rapid.IntRange(1, 120).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			id := fmt.Sprintf("%d", rapid.IntRange(1, 25).Draw(rt, "player"))
			if rapid.IntRange(0, 4).Draw(rt, "op") == 0 {
				_ = store.Remove(ctx, testKey, id)
				delete(model, id)
				continue
			}
			v := float64(rapid.IntRange(-5, 50).Draw(rt, "value"))
			_ = store.Upsert(ctx, testKey, id, v)
			model[id] = v
		}

		want := referenceOrder(model)
		count, _ := store.Count(ctx, testKey)
		if count != len(want) {
			rt.Fatalf("count: expected %d, got %d", len(want), count)
		}
		for i, m := range want {
			rank, _ := store.Rank(ctx, testKey, m.ID)
			if rank != i+1 {
				rt.Fatalf("rank of %s: expected %d, got %d", m.ID, i+1, rank)
			}
		}
		for id, v := range model {
			got, _ := store.Value(ctx, testKey, id)
			if got != v {
				rt.Fatalf("value of %s: expected %v, got %v", id, v, got)
			}
			if v <= 0 {
				if rank, _ := store.Rank(ctx, testKey, id); rank != 0 {
					rt.Fatalf("non-positive member %s ranked %d", id, rank)
				}
			}
		}

		offset := rapid.IntRange(0, 30).Draw(rt, "offset")
		limit := rapid.IntRange(1, 30).Draw(rt, "limit")
		page, err := store.Range(ctx, testKey, offset, limit)
		if err != nil {
			rt.Fatalf("range: %v", err)
		}
		expected := want[min(offset, len(want)):min(offset+limit, len(want))]
		if len(page) != len(expected) {
			rt.Fatalf("page length: expected %d, got %d", len(expected), len(page))
		}
		for i := range page {
			if page[i] != expected[i] {
				rt.Fatalf("page[%d]: expected %+v, got %+v", i, expected[i], page[i])
			}
		}
	})
}

// TestTreapStoreRankMonotonic checks that raising a value never worsens rank.
func TestTreapStoreRankMonotonic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		store := NewTreapStore(ctx)
		defer store.Close()

		others := rapid.SliceOfN(rapid.Float64Range(0.5, 1000), 0, 40).Draw(rt, "others")
		for i, v := range others {
			_ = store.Upsert(ctx, testKey, fmt.Sprintf("o%d", i), v)
		}
		lo := rapid.Float64Range(0.5, 1000).Draw(rt, "lo")
		hi := lo + rapid.Float64Range(0, 500).Draw(rt, "delta")

		_ = store.Upsert(ctx, testKey, "p", lo)
		rankLo, _ := store.Rank(ctx, testKey, "p")
		_ = store.Upsert(ctx, testKey, "p", hi)
		rankHi, _ := store.Rank(ctx, testKey, "p")
		if rankHi > rankLo {
			rt.Fatalf("rank got worse: %d at %v, %d at %v", rankLo, lo, rankHi, hi)
		}
	})
}
