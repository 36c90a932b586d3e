package entity

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Badge is the tier derived from a score.
type Badge string

const (
	BadgeNone     Badge = ""
	BadgeBronze   Badge = "Bronze"
	BadgeSilver   Badge = "Silver"
	BadgeGold     Badge = "Gold"
	BadgeSapphire Badge = "Sapphire"
	BadgeDiamond  Badge = "Diamond"
)

// scoreDivisor converts holdings value into points.
var scoreDivisor = decimal.NewFromInt(100)

// badgeThresholds is ordered from the highest tier down.
var badgeThresholds = []struct {
	min   int64
	badge Badge
}{
	{10000, BadgeDiamond},
	{5000, BadgeSapphire},
	{1000, BadgeGold},
	{500, BadgeSilver},
	{100, BadgeBronze},
}

// LeaderboardEntry is one user's standing.
type LeaderboardEntry struct {
	UserID        string
	Score         int64
	Badge         Badge
	Rank          int
	HoldingsValue decimal.Decimal
	UpdatedAt     time.Time
}

// Score returns floor(totalHoldingsValue / 100). Negative values score zero.
func Score(totalHoldingsValue decimal.Decimal) int64 {
	if !totalHoldingsValue.IsPositive() {
		return 0
	}
	return totalHoldingsValue.Div(scoreDivisor).Floor().IntPart()
}

// BadgeFor returns the badge tier for a score.
func BadgeFor(score int64) Badge {
	for _, t := range badgeThresholds {
		if score >= t.min {
			return t.badge
		}
	}
	return BadgeNone
}

// NewLeaderboardEntry scores a user's holdings value.
func NewLeaderboardEntry(userID string, holdingsValue decimal.Decimal) *LeaderboardEntry {
	score := Score(holdingsValue)
	return &LeaderboardEntry{
		UserID:        userID,
		Score:         score,
		Badge:         BadgeFor(score),
		HoldingsValue: holdingsValue,
		UpdatedAt:     time.Now().UTC(),
	}
}

// AssignRanks sorts entries by score descending and assigns standard competition
// ranks: equal scores share a rank and the next distinct score is ranked at its
// 1-based position. Ties are ordered by user id so the output is stable.
func AssignRanks(entries []*LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].UserID < entries[j].UserID
	})
	for i, e := range entries {
		if i > 0 && e.Score == entries[i-1].Score {
			e.Rank = entries[i-1].Rank
			continue
		}
		e.Rank = i + 1
	}
}
