// Package leaderboard scores users by the market value of their holdings and
// maintains the global ranking.
package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
	"github.com/archon-research/ledger-engine/internal/ports/inbound"
	"github.com/archon-research/ledger-engine/internal/ports/outbound"
)

var _ inbound.LeaderboardService = (*Service)(nil)

// Service recomputes scores and serves the ranked board.
type Service struct {
	repo   outbound.LeaderboardRepository
	cache  outbound.LeaderboardCache
	logger *slog.Logger

	// rankMu keeps rank recomputation from interleaving within this process.
	rankMu sync.Mutex
}

// NewService creates a leaderboard service. cache may be nil.
func NewService(repo outbound.LeaderboardRepository, cache outbound.LeaderboardCache, logger *slog.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("repo cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		cache:  cache,
		logger: logger.With("component", "leaderboard"),
	}, nil
}

// RecomputeUser rescores one user and re-ranks everyone.
func (s *Service) RecomputeUser(ctx context.Context, userID string) (*entity.LeaderboardEntry, error) {
	if userID == "" {
		return nil, entity.ErrInvalidUser
	}
	entry, err := s.score(ctx, userID)
	if err != nil {
		return nil, err
	}

	ranked, err := s.rerank(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range ranked {
		if e.UserID == userID {
			entry.Rank = e.Rank
			break
		}
	}
	return entry, nil
}

// RecomputeAll rescores every user already on the board, then re-ranks once.
// Used after price changes, which move every holder's value at once.
func (s *Service) RecomputeAll(ctx context.Context) (int, error) {
	current, err := s.repo.ListScores(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing scores: %w", err)
	}
	failed := 0
	for _, e := range current {
		if _, err := s.score(ctx, e.UserID); err != nil {
			failed++
			s.logger.Warn("failed to rescore user", "userId", e.UserID, "error", err)
		}
	}
	if _, err := s.rerank(ctx); err != nil {
		return 0, err
	}
	if failed > 0 {
		return len(current) - failed, fmt.Errorf("failed to rescore %d/%d users", failed, len(current))
	}
	return len(current), nil
}

func (s *Service) score(ctx context.Context, userID string) (*entity.LeaderboardEntry, error) {
	value, err := s.repo.HoldingsValue(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reading holdings value: %w", err)
	}
	entry := entity.NewLeaderboardEntry(userID, value)
	if err := s.repo.UpsertScore(ctx, entry); err != nil {
		return nil, fmt.Errorf("storing score: %w", err)
	}
	return entry, nil
}

func (s *Service) rerank(ctx context.Context) ([]*entity.LeaderboardEntry, error) {
	s.rankMu.Lock()
	defer s.rankMu.Unlock()

	all, err := s.repo.ListScores(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing scores: %w", err)
	}
	entity.AssignRanks(all)
	if err := s.repo.SaveRanks(ctx, all); err != nil {
		return nil, fmt.Errorf("saving ranks: %w", err)
	}

	// The cache is only written here, under rankMu, so it always holds the
	// board of the latest re-rank.
	if s.cache != nil {
		if err := s.cache.Set(ctx, all); err != nil {
			s.logger.Warn("leaderboard cache write failed", "error", err)
			if err := s.cache.Invalidate(ctx); err != nil {
				s.logger.Warn("failed to invalidate leaderboard cache", "error", err)
			}
		}
	}
	return all, nil
}

// Top returns the best limit entries in rank order. limit <= 0 returns all.
// A cache miss is served from the repository without filling the cache.
func (s *Service) Top(ctx context.Context, limit int) ([]*entity.LeaderboardEntry, error) {
	if s.cache != nil {
		entries, ok, err := s.cache.Get(ctx)
		if err != nil {
			s.logger.Warn("leaderboard cache read failed", "error", err)
		} else if ok {
			return head(entries, limit), nil
		}
	}

	entries, err := s.repo.ListScores(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing scores: %w", err)
	}
	if ranksMissing(entries) {
		entity.AssignRanks(entries)
	} else {
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].Rank != entries[j].Rank {
				return entries[i].Rank < entries[j].Rank
			}
			return entries[i].UserID < entries[j].UserID
		})
	}
	return head(entries, limit), nil
}

func ranksMissing(entries []*entity.LeaderboardEntry) bool {
	for _, e := range entries {
		if e.Rank <= 0 {
			return true
		}
	}
	return false
}

func head(entries []*entity.LeaderboardEntry, limit int) []*entity.LeaderboardEntry {
	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}
