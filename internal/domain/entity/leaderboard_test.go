package entity

import "testing"

func TestScore(t *testing.T) {
	tests := []struct {
		value string
		want  int64
	}{
		{"0", 0},
		{"-50", 0},
		{"99.99", 0},
		{"100", 1},
		{"50099.99", 500},
		{"1000000", 10000},
	}
	for _, tt := range tests {
		if got := Score(d(tt.value)); got != tt.want {
			t.Errorf("Score(%s) = %d, want %d", tt.value, got, tt.want)
		}
	}
}

func TestBadgeFor(t *testing.T) {
	tests := []struct {
		score int64
		want  Badge
	}{
		{0, BadgeNone},
		{99, BadgeNone},
		{100, BadgeBronze},
		{499, BadgeBronze},
		{500, BadgeSilver},
		{1000, BadgeGold},
		{5000, BadgeSapphire},
		{9999, BadgeSapphire},
		{10000, BadgeDiamond},
		{250000, BadgeDiamond},
	}
	for _, tt := range tests {
		if got := BadgeFor(tt.score); got != tt.want {
			t.Errorf("BadgeFor(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestAssignRanks_CompetitionRanking(t *testing.T) {
	entries := []*LeaderboardEntry{
		{UserID: "carol", Score: 400},
		{UserID: "bob", Score: 500},
		{UserID: "alice", Score: 500},
	}

	AssignRanks(entries)

	want := map[string]int{"alice": 1, "bob": 1, "carol": 3}
	for _, e := range entries {
		if e.Rank != want[e.UserID] {
			t.Errorf("%s: expected rank %d, got %d", e.UserID, want[e.UserID], e.Rank)
		}
	}
	if entries[0].UserID != "alice" || entries[2].UserID != "carol" {
		t.Errorf("unexpected order: %s, %s, %s", entries[0].UserID, entries[1].UserID, entries[2].UserID)
	}
}

func TestAssignRanks_MultipleTieGroups(t *testing.T) {
	entries := []*LeaderboardEntry{
		{UserID: "a", Score: 10},
		{UserID: "b", Score: 10},
		{UserID: "c", Score: 10},
		{UserID: "d", Score: 7},
		{UserID: "e", Score: 7},
		{UserID: "f", Score: 1},
	}
	AssignRanks(entries)

	wantRanks := []int{1, 1, 1, 4, 4, 6}
	for i, e := range entries {
		if e.Rank != wantRanks[i] {
			t.Errorf("position %d (%s): expected rank %d, got %d", i, e.UserID, wantRanks[i], e.Rank)
		}
	}
}

func TestAssignRanks_Empty(t *testing.T) {
	AssignRanks(nil)
}
