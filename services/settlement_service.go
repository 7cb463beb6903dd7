package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"

	"github.com/saparbekov/pingpong-system/brackets"
	"github.com/saparbekov/pingpong-system/models"
	"github.com/saparbekov/pingpong-system/ratings"
	"github.com/saparbekov/pingpong-system/repositories"
)

// playerBonus accumulates everything settlement wants to write for one
// player: a bonus-only rating increment and an optional final placement.
type playerBonus struct {
	Points   int
	Position int
}

// SettlementService computes and applies the one-time completion bonuses of a
// tournament. Callers must invoke it exactly once per tournament, behind the
// status transition guard.
type SettlementService interface {
	Settle(ctx context.Context, tournamentID int) error
}

type settlementService struct {
	db             *sql.DB
	tournamentRepo repositories.TournamentRepository
	playerRepo     repositories.PlayerRepository
	matchRepo      repositories.MatchRepository
	notifications  NotificationService
	hub            *brackets.Hub
	logger         *slog.Logger
}

func NewSettlementService(
	db *sql.DB,
	tournamentRepo repositories.TournamentRepository,
	playerRepo repositories.PlayerRepository,
	matchRepo repositories.MatchRepository,
	notifications NotificationService,
	hub *brackets.Hub,
	logger *slog.Logger,
) SettlementService {
	return &settlementService{
		db:             db,
		tournamentRepo: tournamentRepo,
		playerRepo:     playerRepo,
		matchRepo:      matchRepo,
		notifications:  notifications,
		hub:            hub,
		logger:         logger,
	}
}

func (s *settlementService) Settle(ctx context.Context, tournamentID int) error {
	tournament, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return ErrTournamentNotFound
		}
		return fmt.Errorf("loading tournament %d: %w", tournamentID, err)
	}
	players, err := s.tournamentRepo.ListParticipants(ctx, tournamentID)
	if err != nil {
		return fmt.Errorf("listing participants of tournament %d: %w", tournamentID, err)
	}
	matches, err := s.matchRepo.List(ctx, repositories.MatchFilter{TournamentID: &tournamentID})
	if err != nil {
		return fmt.Errorf("listing matches of tournament %d: %w", tournamentID, err)
	}

	var bonuses map[int]*playerBonus
	switch tournament.Format {
	case models.FormatLeague:
		bonuses = computeLeagueBonuses(players, matches)
	case models.FormatKnockout, models.FormatGroupsKnockout:
		bonuses = computeKnockoutBonuses(players, matches, tournament.Format == models.FormatGroupsKnockout)
	default:
		return ErrUnknownFormat
	}

	if err := s.applyBonuses(ctx, tournamentID, bonuses); err != nil {
		return err
	}

	s.recomputeLevels(ctx)
	s.notifications.Notify(ctx, models.NotificationSystem,
		"Рейтинг обновлён", fmt.Sprintf("Бонусы турнира «%s» начислены", tournament.Name))
	if s.hub != nil {
		s.hub.BroadcastToRoom(strconv.Itoa(tournamentID), brackets.WebSocketMessage{
			Type:    brackets.EventRankingUpdated,
			Payload: map[string]int{"tournament_id": tournamentID},
		})
	}
	return nil
}

// applyBonuses writes the whole accumulator as one batch of atomic rating
// increments inside a single transaction.
func (s *settlementService) applyBonuses(ctx context.Context, tournamentID int, bonuses map[int]*playerBonus) error {
	ids := make([]int, 0, len(bonuses))
	for id := range bonuses {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning settlement transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		b := bonuses[id]
		if b.Points != 0 {
			if err := s.playerRepo.IncrementStats(ctx, tx, id, b.Points, 0, 0); err != nil {
				return fmt.Errorf("applying settlement bonus for player %d: %w", id, err)
			}
		}
		if b.Position > 0 {
			if err := s.tournamentRepo.SetParticipantPosition(ctx, tx, tournamentID, id, b.Position); err != nil {
				return fmt.Errorf("storing position for player %d: %w", id, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing settlement transaction: %w", err)
	}
	return nil
}

func (s *settlementService) recomputeLevels(ctx context.Context) {
	players, err := s.playerRepo.List(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "settlement: failed to list players for level recompute", slog.Any("error", err))
		return
	}
	ranked := players[:0]
	for _, p := range players {
		if !p.IsPlaceholder() {
			ranked = append(ranked, p)
		}
	}
	ratings.AssignLevels(ranked)
	if err := s.playerRepo.UpdateLevels(ctx, nil, ranked); err != nil {
		s.logger.ErrorContext(ctx, "settlement: failed to persist levels", slog.Any("error", err))
	}
}

// computeLeagueBonuses builds the league bonus table: a rank-based base
// amount, an opponent-strength component and a win-rate component.
func computeLeagueBonuses(players []*models.Player, matches []*models.Match) map[int]*playerBonus {
	levels := make(map[int]int, len(players))
	ids := make([]int, 0, len(players))
	for _, p := range players {
		ids = append(ids, p.ID)
		levels[p.ID] = p.Level
	}

	table := computeStandings(ids, matches)
	n := len(table)
	bonuses := make(map[int]*playerBonus, n)

	for i, entry := range table {
		rank := i + 1
		base := 0
		switch rank {
		case 1:
			base = 50 + minInt(n*3, 30)
		case 2:
			base = 35 + minInt(n*2, 20)
		case 3:
			base = 25 + minInt(n, 15)
		default:
			switch quantile := float64(rank) / float64(n); {
			case quantile <= 0.25:
				base = 20
			case quantile <= 0.50:
				base = 15
			case quantile <= 0.75:
				base = 10
			default:
				base = 5
			}
		}

		base += int(math.Round(avgOpponentLevel(entry.PlayerID, matches, levels) * 1.5))

		if entry.Played > 0 {
			winRate := float64(entry.Wins) / float64(entry.Played)
			switch {
			case winRate >= 0.8:
				base += 10
			case winRate >= 0.6:
				base += 5
			}
		}

		bonuses[entry.PlayerID] = &playerBonus{Points: base, Position: rank}
	}
	return bonuses
}

// avgOpponentLevel is the mean level of every opponent the player faced
// across completed matches.
func avgOpponentLevel(playerID int, matches []*models.Match, levels map[int]int) float64 {
	sum, count := 0, 0
	for _, m := range matches {
		if m.Status != models.MatchStatusCompleted {
			continue
		}
		switch playerID {
		case m.Player1ID:
			if lvl, ok := levels[m.Player2ID]; ok {
				sum += lvl
				count++
			}
		case m.Player2ID:
			if lvl, ok := levels[m.Player1ID]; ok {
				sum += lvl
				count++
			}
		}
	}
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count)
}

// computeKnockoutBonuses builds the bonus table of a knockout or groups
// tournament: per-group placement bonuses and the flat advance bonus for the
// group phase, then a round-survival bonus per knockout win, plus the flat
// runner-up and semifinalist amounts with final placements 1-3.
func computeKnockoutBonuses(players []*models.Player, matches []*models.Match, withGroups bool) map[int]*playerBonus {
	participant := make(map[int]bool, len(players))
	for _, p := range players {
		participant[p.ID] = true
	}
	bonuses := make(map[int]*playerBonus)
	add := func(playerID, points int) {
		if !participant[playerID] {
			return
		}
		if bonuses[playerID] == nil {
			bonuses[playerID] = &playerBonus{}
		}
		bonuses[playerID].Points += points
	}
	setPosition := func(playerID, position int) {
		if !participant[playerID] {
			return
		}
		if bonuses[playerID] == nil {
			bonuses[playerID] = &playerBonus{}
		}
		bonuses[playerID].Position = position
	}

	knockout := filterByStage(matches, models.StageKnockout)

	if withGroups {
		groupMatches := filterByStage(matches, models.StageGroup)
		for _, members := range playersByGroup(groupMatches) {
			table := computeStandings(members, groupMatches)
			for i, entry := range table {
				switch i {
				case 0:
					add(entry.PlayerID, 20)
				case 1:
					add(entry.PlayerID, 15)
				case 2:
					add(entry.PlayerID, 10)
				}
			}
		}
		advanced := make(map[int]bool)
		for _, m := range knockout {
			advanced[m.Player1ID] = true
			advanced[m.Player2ID] = true
		}
		for id := range advanced {
			add(id, 25)
		}
	}

	totalRounds := maxRoundOf(knockout)
	for _, m := range knockout {
		if winner := m.WinnerID(); winner != 0 {
			add(winner, roundSurvivalBonus(m.Round, totalRounds))
		}
	}

	for _, m := range filterByRound(knockout, totalRounds) {
		if winner := m.WinnerID(); winner != 0 {
			setPosition(winner, 1)
			add(m.LoserID(), 40)
			setPosition(m.LoserID(), 2)
		}
	}
	for _, m := range filterByRound(knockout, totalRounds-1) {
		if m.WinnerID() != 0 {
			add(m.LoserID(), 30)
			setPosition(m.LoserID(), 3)
		}
	}

	return bonuses
}

// roundSurvivalBonus rewards winning a knockout round: 60 for the final,
// 20 for the semifinal, 10 for every earlier round.
func roundSurvivalBonus(round, totalRounds int) int {
	switch totalRounds - round {
	case 0:
		return 60
	case 1:
		return 20
	default:
		return 10
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
