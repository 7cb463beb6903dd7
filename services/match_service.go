package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/saparbekov/pingpong-system/brackets"
	"github.com/saparbekov/pingpong-system/models"
	"github.com/saparbekov/pingpong-system/ratings"
	"github.com/saparbekov/pingpong-system/repositories"
)

// ScoreInput carries one score submission. For a single-game match both
// scores are the final result; for a best-of-three match they are the raw
// points of the game selected by Game (defaulting to the match's current
// game).
type ScoreInput struct {
	Player1Score *int `json:"player1_score"`
	Player2Score *int `json:"player2_score"`
	Game         int  `json:"game,omitempty"`
}

// CreateMatchInput describes a casual match played outside any tournament.
type CreateMatchInput struct {
	Player1ID   int       `json:"player1_id"`
	Player2ID   int       `json:"player2_id"`
	Date        time.Time `json:"date"`
	BestOfThree bool      `json:"best_of_three"`
}

type MatchService interface {
	CreateCasual(ctx context.Context, input CreateMatchInput) (*models.Match, error)
	GetByID(ctx context.Context, id int) (*models.Match, error)
	List(ctx context.Context, filter repositories.MatchFilter) ([]*models.Match, error)

	// SubmitScore records a score, settles ratings when the match completes
	// and triggers bracket progression for knockout matches.
	SubmitScore(ctx context.Context, matchID int, input ScoreInput) (*models.Match, error)

	// Delete removes a match, reversing its recorded wins/losses and, for
	// league tournaments, the exact rating deltas it applied.
	Delete(ctx context.Context, matchID int) error
}

type matchService struct {
	db             *sql.DB
	matchRepo      repositories.MatchRepository
	playerRepo     repositories.PlayerRepository
	tournamentRepo repositories.TournamentRepository
	progress       ProgressService
	notifications  NotificationService
	hub            *brackets.Hub
	logger         *slog.Logger
}

func NewMatchService(
	db *sql.DB,
	matchRepo repositories.MatchRepository,
	playerRepo repositories.PlayerRepository,
	tournamentRepo repositories.TournamentRepository,
	progress ProgressService,
	notifications NotificationService,
	hub *brackets.Hub,
	logger *slog.Logger,
) MatchService {
	return &matchService{
		db:             db,
		matchRepo:      matchRepo,
		playerRepo:     playerRepo,
		tournamentRepo: tournamentRepo,
		progress:       progress,
		notifications:  notifications,
		hub:            hub,
		logger:         logger,
	}
}

func (s *matchService) CreateCasual(ctx context.Context, input CreateMatchInput) (*models.Match, error) {
	if input.Player1ID == input.Player2ID {
		return nil, ErrMatchPlayersIdentical
	}
	for _, id := range []int{input.Player1ID, input.Player2ID} {
		if _, err := s.playerRepo.GetByID(ctx, id); err != nil {
			if errors.Is(err, repositories.ErrPlayerNotFound) {
				return nil, ErrPlayerNotFound
			}
			return nil, fmt.Errorf("loading player %d: %w", id, err)
		}
	}

	date := input.Date
	if date.IsZero() {
		date = time.Now()
	}
	match := &models.Match{
		Player1ID:   input.Player1ID,
		Player2ID:   input.Player2ID,
		Date:        date,
		Stage:       models.StageNone,
		Status:      models.StatusScheduled,
		BestOfThree: input.BestOfThree,
		CurrentGame: 1,
	}
	if err := s.matchRepo.Create(ctx, nil, match); err != nil {
		return nil, fmt.Errorf("creating casual match: %w", err)
	}
	return match, nil
}

func (s *matchService) GetByID(ctx context.Context, id int) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("loading match %d: %w", id, err)
	}
	s.attachPlayers(ctx, match)
	return match, nil
}

func (s *matchService) List(ctx context.Context, filter repositories.MatchFilter) ([]*models.Match, error) {
	return s.matchRepo.List(ctx, filter)
}

// attachPlayers best-effort loads the player relations for API responses.
func (s *matchService) attachPlayers(ctx context.Context, match *models.Match) {
	if p1, err := s.playerRepo.GetByID(ctx, match.Player1ID); err == nil {
		match.Player1 = p1
	}
	if p2, err := s.playerRepo.GetByID(ctx, match.Player2ID); err == nil {
		match.Player2 = p2
	}
}

func (s *matchService) SubmitScore(ctx context.Context, matchID int, input ScoreInput) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("loading match %d: %w", matchID, err)
	}
	if match.Status == models.MatchStatusCompleted {
		return nil, ErrMatchAlreadyCompleted
	}
	if input.Player1Score == nil || input.Player2Score == nil {
		return nil, ErrMatchMissingScores
	}
	if *input.Player1Score < 0 || *input.Player2Score < 0 {
		return nil, ErrMatchNegativeScore
	}

	player1, err := s.playerRepo.GetByID(ctx, match.Player1ID)
	if err != nil {
		return nil, fmt.Errorf("loading player %d: %w", match.Player1ID, err)
	}
	player2, err := s.playerRepo.GetByID(ctx, match.Player2ID)
	if err != nil {
		return nil, fmt.Errorf("loading player %d: %w", match.Player2ID, err)
	}
	if player1.IsPlaceholder() && player2.IsPlaceholder() {
		return nil, ErrMatchSlotUndecided
	}
	// One TBD side means a walkover: the match completes but moves no
	// ratings or win/loss counters.
	walkover := player1.IsPlaceholder() || player2.IsPlaceholder()

	if match.BestOfThree {
		if err := s.applyGameScore(match, input); err != nil {
			return nil, err
		}
	} else {
		if err := s.applySingleScore(match, input); err != nil {
			return nil, err
		}
	}

	var delta, bonus int
	settle := match.Status == models.MatchStatusCompleted && !walkover
	if settle {
		delta, bonus = s.computeRatingDeltas(ctx, match, player1, player2)
	}

	if err := s.persistResult(ctx, match, delta, bonus, settle); err != nil {
		return nil, err
	}

	if match.Status == models.MatchStatusCompleted {
		s.afterCompletion(ctx, match, player1, player2, settle)
		if !match.IsCasual() && match.Stage == models.StageKnockout {
			if err := s.progress.AdvanceAfterMatch(ctx, match); err != nil {
				return nil, fmt.Errorf("advancing bracket after match %d: %w", match.ID, err)
			}
		}
	}

	match.Player1 = player1
	match.Player2 = player2
	return match, nil
}

// applySingleScore resolves a plain single-game match.
func (s *matchService) applySingleScore(match *models.Match, input ScoreInput) error {
	p1, p2 := *input.Player1Score, *input.Player2Score
	if p1 == p2 {
		// Draws only exist inside league and group schedules.
		if match.IsCasual() || match.Stage == models.StageKnockout {
			return ErrMatchDrawNotAllowed
		}
	}
	match.Player1Score = intPtr(p1)
	match.Player2Score = intPtr(p2)
	match.Status = models.MatchStatusCompleted
	return nil
}

// applyGameScore records one game of a best-of-three match and re-derives the
// aggregate state from all three game slots.
func (s *matchService) applyGameScore(match *models.Match, input ScoreInput) error {
	game := input.Game
	if game == 0 {
		game = match.CurrentGame
	}
	if game < 1 || game > 3 {
		return ErrInvalidGameIndex
	}
	if !isValidGameScore(*input.Player1Score, *input.Player2Score) {
		return ErrInvalidGameScore
	}

	match.Games[game-1] = models.GameScore{
		Player1: intPtr(*input.Player1Score),
		Player2: intPtr(*input.Player2Score),
	}

	// Win counts are always re-derived by scanning every slot, so an edit of
	// an earlier game cannot leave stale counters behind.
	p1Wins, p2Wins := 0, 0
	for _, g := range match.Games {
		switch g.Winner() {
		case 1:
			p1Wins++
		case 2:
			p2Wins++
		}
	}
	match.Player1Wins = p1Wins
	match.Player2Wins = p2Wins
	match.Player1Score = intPtr(p1Wins)
	match.Player2Score = intPtr(p2Wins)

	if p1Wins >= 2 || p2Wins >= 2 {
		match.Status = models.MatchStatusCompleted
		match.CurrentGame = p1Wins + p2Wins
		if match.CurrentGame > 3 {
			match.CurrentGame = 3
		}
	} else {
		match.Status = models.StatusInProgress
		match.CurrentGame = s.nextUndecidedGame(match)
	}
	return nil
}

func (s *matchService) nextUndecidedGame(match *models.Match) int {
	for i, g := range match.Games {
		if !g.Decided() {
			return i + 1
		}
	}
	return 3
}

// computeRatingDeltas returns the winner-side Elo delta and the upset bonus
// for a completed match. A drawn match yields zero for both.
func (s *matchService) computeRatingDeltas(ctx context.Context, match *models.Match, player1, player2 *models.Player) (int, int) {
	winnerID := match.WinnerID()
	if winnerID == 0 {
		return 0, 0
	}
	winner, loser := player1, player2
	if winnerID == player2.ID {
		winner, loser = player2, player1
	}

	if match.BestOfThree {
		// Accumulate a K=16 delta for every decided game, from the match
		// winner's perspective.
		delta := 0
		for _, g := range match.Games {
			gameWinner := g.Winner()
			if gameWinner == 0 {
				continue
			}
			wonGame := (gameWinner == 1 && winner.ID == match.Player1ID) ||
				(gameWinner == 2 && winner.ID == match.Player2ID)
			delta += ratings.Delta(winner.Rating, loser.Rating, wonGame, ratings.KGame)
		}
		return delta, ratings.UpsetBonus(loser.Level)
	}

	k := s.kFactorFor(ctx, match)
	return ratings.Delta(winner.Rating, loser.Rating, true, k), ratings.UpsetBonus(loser.Level)
}

// kFactorFor selects the Elo K-factor from the match context: casual games
// move ratings the most, tournament matches less, finals the most of all.
func (s *matchService) kFactorFor(ctx context.Context, match *models.Match) int {
	if match.IsCasual() {
		return ratings.KCasual
	}
	if match.Stage == models.StageKnockout {
		stage := models.StageKnockout
		knockout, err := s.matchRepo.List(ctx, repositories.MatchFilter{
			TournamentID: &match.TournamentID,
			Stage:        &stage,
		})
		if err != nil {
			s.logger.WarnContext(ctx, "failed to resolve bracket depth, using league K-factor",
				slog.Int("match_id", match.ID), slog.Any("error", err))
			return ratings.KLeague
		}
		if match.Round >= maxRoundOf(knockout) {
			return ratings.KFinal
		}
	}
	return ratings.KLeague
}

// persistResult writes the match result and, when settle is set, both player
// stat updates in one transaction.
func (s *matchService) persistResult(ctx context.Context, match *models.Match, delta, bonus int, settle bool) error {
	winnerID := match.WinnerID()
	if settle && winnerID != 0 {
		match.EloDelta = intPtr(delta)
		match.BonusDelta = intPtr(bonus)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning match settlement transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.matchRepo.UpdateResult(ctx, tx, match); err != nil {
		return fmt.Errorf("updating match %d result: %w", match.ID, err)
	}
	if settle && winnerID != 0 {
		loserID := match.LoserID()
		if err := s.playerRepo.IncrementStats(ctx, tx, winnerID, delta+bonus, 1, 0); err != nil {
			return fmt.Errorf("applying winner stats for player %d: %w", winnerID, err)
		}
		if err := s.playerRepo.IncrementStats(ctx, tx, loserID, -delta, 0, 1); err != nil {
			return fmt.Errorf("applying loser stats for player %d: %w", loserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing match settlement transaction: %w", err)
	}
	return nil
}

// afterCompletion runs the best-effort side effects of a completed match:
// level recomputation, a notification and a live broadcast. None of them may
// fail the request; the rating updates are already committed.
func (s *matchService) afterCompletion(ctx context.Context, match *models.Match, player1, player2 *models.Player, settled bool) {
	if settled {
		s.recomputeLevels(ctx)
	}

	title := "Матч завершён"
	message := fmt.Sprintf("%s — %s: %d:%d", player1.Name, player2.Name,
		derefInt(match.Player1Score), derefInt(match.Player2Score))
	s.notifications.Notify(ctx, models.NotificationMatch, title, message)

	if !match.IsCasual() && s.hub != nil {
		s.hub.BroadcastToRoom(strconv.Itoa(match.TournamentID), brackets.WebSocketMessage{
			Type:    brackets.EventMatchUpdated,
			Payload: match,
		})
	}
}

// recomputeLevels reruns the percentile classifier over the whole population.
// Placeholder rows are excluded so the TBD sentinel never shifts percentiles.
func (s *matchService) recomputeLevels(ctx context.Context) {
	players, err := s.playerRepo.List(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "level recompute: failed to list players", slog.Any("error", err))
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
		s.logger.ErrorContext(ctx, "level recompute: failed to persist levels", slog.Any("error", err))
	}
}

func (s *matchService) Delete(ctx context.Context, matchID int) error {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return ErrMatchNotFound
		}
		return fmt.Errorf("loading match %d: %w", matchID, err)
	}

	winnerID := match.WinnerID()
	loserID := match.LoserID()
	reverseStats := match.Status == models.MatchStatusCompleted && winnerID != 0 && match.EloDelta != nil

	reverseRating := false
	if reverseStats && !match.IsCasual() {
		tournament, err := s.tournamentRepo.GetByID(ctx, match.TournamentID)
		if err != nil {
			return fmt.Errorf("loading tournament %d: %w", match.TournamentID, err)
		}
		reverseRating = tournament.Format == models.FormatLeague
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning match deletion transaction: %w", err)
	}
	defer tx.Rollback()

	if reverseStats {
		winnerDelta, loserDelta := 0, 0
		if reverseRating {
			winnerDelta = -(derefInt(match.EloDelta) + derefInt(match.BonusDelta))
			loserDelta = derefInt(match.EloDelta)
		}
		if err := s.playerRepo.IncrementStats(ctx, tx, winnerID, winnerDelta, -1, 0); err != nil {
			return fmt.Errorf("reversing winner stats for player %d: %w", winnerID, err)
		}
		if err := s.playerRepo.IncrementStats(ctx, tx, loserID, loserDelta, 0, -1); err != nil {
			return fmt.Errorf("reversing loser stats for player %d: %w", loserID, err)
		}
	}
	if err := s.matchRepo.Delete(ctx, tx, matchID); err != nil {
		return fmt.Errorf("deleting match %d: %w", matchID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing match deletion transaction: %w", err)
	}

	if reverseStats {
		s.recomputeLevels(ctx)
	}
	return nil
}
