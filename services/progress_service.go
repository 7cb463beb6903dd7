package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/saparbekov/pingpong-system/brackets"
	"github.com/saparbekov/pingpong-system/models"
	"github.com/saparbekov/pingpong-system/repositories"
)

// ProgressService advances a tournament after one of its matches completes:
// knockout rounds are filled in as their feeder rounds finish, the knockout
// bracket of a groups tournament is created once the group phase ends, and
// the final's completion closes the tournament and triggers settlement.
type ProgressService interface {
	AdvanceAfterMatch(ctx context.Context, completed *models.Match) error
}

type progressService struct {
	db             *sql.DB
	matchRepo      repositories.MatchRepository
	playerRepo     repositories.PlayerRepository
	tournamentRepo repositories.TournamentRepository
	settlement     SettlementService
	notifications  NotificationService
	hub            *brackets.Hub
	logger         *slog.Logger
}

func NewProgressService(
	db *sql.DB,
	matchRepo repositories.MatchRepository,
	playerRepo repositories.PlayerRepository,
	tournamentRepo repositories.TournamentRepository,
	settlement SettlementService,
	notifications NotificationService,
	hub *brackets.Hub,
	logger *slog.Logger,
) ProgressService {
	return &progressService{
		db:             db,
		matchRepo:      matchRepo,
		playerRepo:     playerRepo,
		tournamentRepo: tournamentRepo,
		settlement:     settlement,
		notifications:  notifications,
		hub:            hub,
		logger:         logger,
	}
}

func (s *progressService) AdvanceAfterMatch(ctx context.Context, completed *models.Match) error {
	tournament, err := s.tournamentRepo.GetByID(ctx, completed.TournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return ErrTournamentNotFound
		}
		return fmt.Errorf("loading tournament %d: %w", completed.TournamentID, err)
	}
	if !tournament.UsesKnockoutStage() {
		return nil
	}

	if completed.Stage == models.StageGroup {
		return s.maybeStartKnockoutStage(ctx, tournament)
	}
	if completed.Stage == models.StageKnockout {
		return s.advanceKnockoutRound(ctx, tournament, completed.Round)
	}
	return nil
}

// advanceKnockoutRound re-queries the bracket and, when the given round is
// fully completed, slots its winners into the next round or, for the final,
// completes the tournament. Re-running it for an already-processed round is
// harmless: it rewrites the same player ids into the same slots.
func (s *progressService) advanceKnockoutRound(ctx context.Context, tournament *models.Tournament, round int) error {
	stage := models.StageKnockout
	knockout, err := s.matchRepo.List(ctx, repositories.MatchFilter{
		TournamentID: &tournament.ID,
		Stage:        &stage,
	})
	if err != nil {
		return fmt.Errorf("listing knockout matches of tournament %d: %w", tournament.ID, err)
	}

	// The completeness check is always made against fresh rows, never against
	// in-memory state, so concurrent completions in the same round converge.
	roundMatches := filterByRound(knockout, round)
	for _, m := range roundMatches {
		if m.Status != models.MatchStatusCompleted {
			return nil
		}
	}

	maxRound := maxRoundOf(knockout)
	if round >= maxRound {
		return s.completeTournament(ctx, tournament)
	}

	placeholder, err := s.playerRepo.FindPlaceholder(ctx)
	if err != nil {
		return fmt.Errorf("resolving TBD placeholder: %w", err)
	}

	nextRound := filterByRound(knockout, round+1)
	created := false
	for i := 0; i < len(roundMatches); i += 2 {
		player1 := roundMatches[i].WinnerID()
		player2 := 0
		if i+1 < len(roundMatches) {
			player2 = roundMatches[i+1].WinnerID()
		}
		// A drawn or unresolved source match, and the odd leftover's missing
		// partner, both advance as the TBD placeholder.
		if player1 == 0 {
			player1 = placeholder.ID
		}
		if player2 == 0 {
			player2 = placeholder.ID
		}

		slot := i / 2
		if slot < len(nextRound) {
			if err := s.matchRepo.UpdatePlayers(ctx, nil, nextRound[slot].ID, player1, player2); err != nil {
				return fmt.Errorf("slotting winners into match %d: %w", nextRound[slot].ID, err)
			}
			continue
		}

		match := &models.Match{
			TournamentID: tournament.ID,
			Player1ID:    player1,
			Player2ID:    player2,
			Date:         time.Now().Add(24 * time.Hour),
			Round:        round + 1,
			Stage:        models.StageKnockout,
			Status:       models.StatusScheduled,
			BestOfThree:  brackets.BestOfThreeRound(round+1, maxRound),
		}
		if err := s.matchRepo.Create(ctx, nil, match); err != nil {
			return fmt.Errorf("creating round %d match: %w", round+1, err)
		}
		created = true
	}

	s.notifications.Notify(ctx, models.NotificationTournament,
		"Новый раунд", fmt.Sprintf("Турнир «%s»: раунд %d готов", tournament.Name, round+1))
	if s.hub != nil {
		event := brackets.EventMatchUpdated
		if created {
			event = brackets.EventRoundCreated
		}
		s.hub.BroadcastToRoom(strconv.Itoa(tournament.ID), brackets.WebSocketMessage{
			Type:    event,
			Payload: map[string]int{"round": round + 1},
		})
	}
	return nil
}

// completeTournament flips the tournament to completed exactly once and runs
// settlement behind that guard.
func (s *progressService) completeTournament(ctx context.Context, tournament *models.Tournament) error {
	transitioned, err := s.tournamentRepo.CompleteIfActive(ctx, nil, tournament.ID)
	if err != nil {
		return fmt.Errorf("completing tournament %d: %w", tournament.ID, err)
	}
	if !transitioned {
		return nil
	}

	if err := s.settlement.Settle(ctx, tournament.ID); err != nil {
		return fmt.Errorf("settling tournament %d: %w", tournament.ID, err)
	}

	s.notifications.Notify(ctx, models.NotificationTournament,
		"Турнир завершён", fmt.Sprintf("Турнир «%s» завершён, бонусы начислены", tournament.Name))
	if s.hub != nil {
		s.hub.BroadcastToRoom(strconv.Itoa(tournament.ID), brackets.WebSocketMessage{
			Type:    brackets.EventTournamentCompleted,
			Payload: map[string]int{"tournament_id": tournament.ID},
		})
	}
	return nil
}

// maybeStartKnockoutStage creates the knockout bracket of a groups tournament
// once every group match is completed. The bracket is seeded cross-group:
// group winners meet other groups' runners-up first.
func (s *progressService) maybeStartKnockoutStage(ctx context.Context, tournament *models.Tournament) error {
	all, err := s.matchRepo.List(ctx, repositories.MatchFilter{TournamentID: &tournament.ID})
	if err != nil {
		return fmt.Errorf("listing matches of tournament %d: %w", tournament.ID, err)
	}

	groupMatches := filterByStage(all, models.StageGroup)
	for _, m := range groupMatches {
		if m.Status != models.MatchStatusCompleted {
			return nil
		}
	}
	if len(filterByStage(all, models.StageKnockout)) > 0 {
		// Bracket already materialized by a concurrent completion.
		return nil
	}

	advancers := knockoutEntrants(groupMatches, tournament.AdvanceCount)
	if len(advancers) < 2 {
		return s.completeTournament(ctx, tournament)
	}

	placeholder, err := s.playerRepo.FindPlaceholder(ctx)
	if err != nil {
		return fmt.Errorf("resolving TBD placeholder: %w", err)
	}

	seeded := make([]*models.Player, 0, len(advancers))
	for _, id := range advancers {
		seeded = append(seeded, &models.Player{ID: id})
	}
	matches, err := brackets.NewKnockoutGenerator().Generate(ctx, brackets.GenerateParams{
		Tournament:    tournament,
		Players:       seeded,
		PlaceholderID: placeholder.ID,
	})
	if err != nil {
		return fmt.Errorf("generating knockout bracket: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning knockout stage transaction: %w", err)
	}
	defer tx.Rollback()
	for _, m := range matches {
		if err := s.matchRepo.Create(ctx, tx, m); err != nil {
			return fmt.Errorf("creating knockout match: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing knockout stage transaction: %w", err)
	}

	s.notifications.Notify(ctx, models.NotificationTournament,
		"Плей-офф", fmt.Sprintf("Турнир «%s»: групповой этап завершён, сетка плей-офф создана", tournament.Name))
	if s.hub != nil {
		s.hub.BroadcastToRoom(strconv.Itoa(tournament.ID), brackets.WebSocketMessage{
			Type:    brackets.EventRoundCreated,
			Payload: map[string]int{"round": 1},
		})
	}
	return nil
}

// knockoutEntrants picks the top advanceCount players of each group and
// orders them so that first seeds meet the reversed list of second seeds.
// Deeper seeds are appended flat.
func knockoutEntrants(groupMatches []*models.Match, advanceCount int) []int {
	if advanceCount < 1 {
		advanceCount = 1
	}
	groups := playersByGroup(groupMatches)

	groupNames := make([]string, 0, len(groups))
	for name := range groups {
		groupNames = append(groupNames, name)
	}
	sort.Strings(groupNames)

	byRank := make([][]int, advanceCount)
	for _, name := range groupNames {
		table := computeStandings(groups[name], groupMatches)
		for rank := 0; rank < advanceCount && rank < len(table); rank++ {
			byRank[rank] = append(byRank[rank], table[rank].PlayerID)
		}
	}

	var seeds []int
	if advanceCount >= 2 {
		first, second := byRank[0], byRank[1]
		for i, id := range first {
			seeds = append(seeds, id)
			if j := len(second) - 1 - i; j >= 0 && j < len(second) {
				seeds = append(seeds, second[j])
			}
		}
		for _, rest := range byRank[2:] {
			seeds = append(seeds, rest...)
		}
	} else {
		seeds = byRank[0]
	}
	return seeds
}
