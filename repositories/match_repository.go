package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/saparbekov/pingpong-system/models"
)

var (
	ErrMatchNotFound          = errors.New("match not found")
	ErrMatchTournamentInvalid = errors.New("match tournament conflict or invalid")
	ErrMatchPlayerInvalid     = errors.New("match player conflict or invalid")
)

// MatchFilter narrows List queries; nil fields are not applied.
type MatchFilter struct {
	TournamentID *int
	Stage        *models.MatchStage
	Round        *int
	Status       *models.MatchStatus
}

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, id int) (*models.Match, error)
	List(ctx context.Context, filter MatchFilter) ([]*models.Match, error)

	// UpdateResult persists every mutable result field of the match: scores,
	// the three game slots, win counters, current game, status and the cached
	// elo delta.
	UpdateResult(ctx context.Context, exec SQLExecutor, match *models.Match) error

	// UpdatePlayers re-slots a scheduled next-round match during bracket
	// progression and resets it to scheduled.
	UpdatePlayers(ctx context.Context, exec SQLExecutor, matchID, player1ID, player2ID int) error

	Delete(ctx context.Context, exec SQLExecutor, id int) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

const matchColumns = `
	id, tournament_id, player1_id, player2_id, date, round, stage, group_name, status,
	player1_score, player2_score, best_of_three,
	player1_game1_score, player2_game1_score,
	player1_game2_score, player2_game2_score,
	player1_game3_score, player2_game3_score,
	player1_wins, player2_wins, current_game, elo_delta, bonus_delta, created_at`

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	if exec == nil {
		exec = r.db
	}
	query := `
		INSERT INTO matches
			(tournament_id, player1_id, player2_id, date, round, stage, group_name, status,
			 player1_score, player2_score, best_of_three,
			 player1_game1_score, player2_game1_score,
			 player1_game2_score, player2_game2_score,
			 player1_game3_score, player2_game3_score,
			 player1_wins, player2_wins, current_game, elo_delta, bonus_delta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		RETURNING id, created_at`

	if match.CurrentGame == 0 {
		match.CurrentGame = 1
	}
	// tournament_id = 0 означает товарищеский матч и хранится как NULL.
	tournamentID := sql.NullInt64{Int64: int64(match.TournamentID), Valid: match.TournamentID != 0}
	err := exec.QueryRowContext(ctx, query,
		tournamentID,
		match.Player1ID,
		match.Player2ID,
		match.Date,
		match.Round,
		match.Stage,
		match.GroupName,
		match.Status,
		match.Player1Score,
		match.Player2Score,
		match.BestOfThree,
		match.Games[0].Player1, match.Games[0].Player2,
		match.Games[1].Player1, match.Games[1].Player2,
		match.Games[2].Player1, match.Games[2].Player2,
		match.Player1Wins,
		match.Player2Wins,
		match.CurrentGame,
		match.EloDelta,
		match.BonusDelta,
	).Scan(&match.ID, &match.CreatedAt)

	return r.handleMatchError(err)
}

func scanMatch(scan func(dest ...interface{}) error) (*models.Match, error) {
	match := &models.Match{}
	var tournamentID sql.NullInt64
	err := scan(
		&match.ID,
		&tournamentID,
		&match.Player1ID,
		&match.Player2ID,
		&match.Date,
		&match.Round,
		&match.Stage,
		&match.GroupName,
		&match.Status,
		&match.Player1Score,
		&match.Player2Score,
		&match.BestOfThree,
		&match.Games[0].Player1, &match.Games[0].Player2,
		&match.Games[1].Player1, &match.Games[1].Player2,
		&match.Games[2].Player1, &match.Games[2].Player2,
		&match.Player1Wins,
		&match.Player2Wins,
		&match.CurrentGame,
		&match.EloDelta,
		&match.BonusDelta,
		&match.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	match.TournamentID = int(tournamentID.Int64)
	return match, nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)
	match, err := scanMatch(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match by id %d: %w", id, err)
	}
	return match, nil
}

func (r *postgresMatchRepository) List(ctx context.Context, filter MatchFilter) ([]*models.Match, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + matchColumns + ` FROM matches WHERE 1=1`)

	args := []interface{}{}
	placeholderIndex := 1

	appendFilter := func(column string, value interface{}) {
		queryBuilder.WriteString(" AND " + column + " = $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		args = append(args, value)
		placeholderIndex++
	}

	if filter.TournamentID != nil {
		if *filter.TournamentID == 0 {
			queryBuilder.WriteString(" AND tournament_id IS NULL")
		} else {
			appendFilter("tournament_id", *filter.TournamentID)
		}
	}
	if filter.Stage != nil {
		appendFilter("stage", *filter.Stage)
	}
	if filter.Round != nil {
		appendFilter("round", *filter.Round)
	}
	if filter.Status != nil {
		appendFilter("status", *filter.Status)
	}

	// Stable ordering: progression pairs matches by id within a round.
	queryBuilder.WriteString(" ORDER BY round ASC, id ASC")

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		match, scanErr := scanMatch(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", scanErr)
		}
		matches = append(matches, match)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) UpdateResult(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	if exec == nil {
		exec = r.db
	}
	query := `
		UPDATE matches
		SET player1_score = $1, player2_score = $2, status = $3,
		    player1_game1_score = $4, player2_game1_score = $5,
		    player1_game2_score = $6, player2_game2_score = $7,
		    player1_game3_score = $8, player2_game3_score = $9,
		    player1_wins = $10, player2_wins = $11, current_game = $12,
		    elo_delta = $13, bonus_delta = $14
		WHERE id = $15`

	result, err := exec.ExecContext(ctx, query,
		match.Player1Score,
		match.Player2Score,
		match.Status,
		match.Games[0].Player1, match.Games[0].Player2,
		match.Games[1].Player1, match.Games[1].Player2,
		match.Games[2].Player1, match.Games[2].Player2,
		match.Player1Wins,
		match.Player2Wins,
		match.CurrentGame,
		match.EloDelta,
		match.BonusDelta,
		match.ID,
	)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) UpdatePlayers(ctx context.Context, exec SQLExecutor, matchID, player1ID, player2ID int) error {
	if exec == nil {
		exec = r.db
	}
	query := `UPDATE matches SET player1_id = $1, player2_id = $2, status = $3 WHERE id = $4`
	result, err := exec.ExecContext(ctx, query, player1ID, player2ID, models.StatusScheduled, matchID)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	if exec == nil {
		exec = r.db
	}
	result, err := exec.ExecContext(ctx, `DELETE FROM matches WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) handleMatchError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Constraint {
		case "matches_tournament_id_fkey":
			return ErrMatchTournamentInvalid
		case "matches_player1_id_fkey", "matches_player2_id_fkey":
			return ErrMatchPlayerInvalid
		}
	}
	return err
}
