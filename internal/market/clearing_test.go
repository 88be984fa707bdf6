package market

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/check"
)

func bidIDs(bids []Bid) []string {
	out := make([]string, len(bids))
	for i, b := range bids {
		out[i] = b.ID
	}
	return out
}

func TestRankBids(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	bids := []Bid{
		{ID: "a", Amount: 1_200_000, PlacedAt: base.Add(10 * time.Second)},
		{ID: "b", Amount: 1_200_000, PlacedAt: base.Add(5 * time.Second)},
		{ID: "c", Amount: 1_500_000, PlacedAt: base.Add(20 * time.Second)},
	}

	ranked := RankBids(bids)
	check.Equal(t, []string{"c", "b", "a"}, bidIDs(ranked))
	// Input untouched.
	check.Equal(t, []string{"a", "b", "c"}, bidIDs(bids))
}

func TestRankBids_IDBreaksFullTies(t *testing.T) {
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	bids := []Bid{
		{ID: "z", Amount: 100, PlacedAt: at},
		{ID: "m", Amount: 100, PlacedAt: at},
		{ID: "b", Amount: 100, PlacedAt: at},
	}
	check.Equal(t, []string{"b", "m", "z"}, bidIDs(RankBids(bids)))
}

func TestRankBids_Empty(t *testing.T) {
	check.Equal(t, 0, len(RankBids(nil)))
}
