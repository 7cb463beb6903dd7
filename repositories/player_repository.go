package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/saparbekov/pingpong-system/models"
)

var (
	ErrPlayerNotFound     = errors.New("player not found")
	ErrPlayerNameConflict = errors.New("player name conflict")
	ErrPlayerInUse        = errors.New("player is referenced by existing matches")
	ErrPlaceholderMissing = errors.New("TBD placeholder player not found")
)

type PlayerRepository interface {
	Create(ctx context.Context, player *models.Player) error
	GetByID(ctx context.Context, id int) (*models.Player, error)
	List(ctx context.Context) ([]*models.Player, error)
	Update(ctx context.Context, player *models.Player) error
	Delete(ctx context.Context, id int) error
	UpdateAvatarKey(ctx context.Context, playerID int, avatarKey *string) error

	// FindPlaceholder returns the sentinel player used for undecided bracket
	// slots, matched by name.
	FindPlaceholder(ctx context.Context) (*models.Player, error)

	// IncrementStats applies rating/wins/losses deltas as atomic increments,
	// never as read-modify-write, so concurrent settlements cannot clobber
	// each other.
	IncrementStats(ctx context.Context, exec SQLExecutor, playerID int, ratingDelta, winsDelta, lossesDelta int) error

	// UpdateLevels persists the level field of every given player.
	UpdateLevels(ctx context.Context, exec SQLExecutor, players []*models.Player) error
}

type postgresPlayerRepository struct {
	db *sql.DB
}

func NewPostgresPlayerRepository(db *sql.DB) PlayerRepository {
	return &postgresPlayerRepository{db: db}
}

const playerColumns = `id, name, rating, level, wins, losses, avatar_key, created_at`

func (r *postgresPlayerRepository) Create(ctx context.Context, player *models.Player) error {
	if player.Rating == 0 {
		player.Rating = models.DefaultRating
	}
	if player.Level == 0 {
		player.Level = 1
	}
	query := `
		INSERT INTO players (name, rating, level, wins, losses, avatar_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		player.Name,
		player.Rating,
		player.Level,
		player.Wins,
		player.Losses,
		player.AvatarKey,
	).Scan(&player.ID, &player.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrPlayerNameConflict
		}
		return err
	}
	return nil
}

func (r *postgresPlayerRepository) GetByID(ctx context.Context, id int) (*models.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE id = $1`

	player := &models.Player{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&player.ID,
		&player.Name,
		&player.Rating,
		&player.Level,
		&player.Wins,
		&player.Losses,
		&player.AvatarKey,
		&player.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlayerNotFound
		}
		return nil, fmt.Errorf("failed to scan player %d: %w", id, err)
	}
	return player, nil
}

func (r *postgresPlayerRepository) List(ctx context.Context) ([]*models.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players ORDER BY rating DESC, id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query players: %w", err)
	}
	defer rows.Close()

	players := make([]*models.Player, 0)
	for rows.Next() {
		player := &models.Player{}
		if scanErr := rows.Scan(
			&player.ID,
			&player.Name,
			&player.Rating,
			&player.Level,
			&player.Wins,
			&player.Losses,
			&player.AvatarKey,
			&player.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan player row: %w", scanErr)
		}
		players = append(players, player)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during player rows iteration: %w", err)
	}
	return players, nil
}

func (r *postgresPlayerRepository) Update(ctx context.Context, player *models.Player) error {
	query := `UPDATE players SET name = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, player.Name, player.ID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrPlayerNameConflict
		}
		return err
	}
	return checkAffectedRows(result, ErrPlayerNotFound)
}

func (r *postgresPlayerRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM players WHERE id = $1`, id)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			return ErrPlayerInUse
		}
		return err
	}
	return checkAffectedRows(result, ErrPlayerNotFound)
}

func (r *postgresPlayerRepository) UpdateAvatarKey(ctx context.Context, playerID int, avatarKey *string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE players SET avatar_key = $1 WHERE id = $2`, avatarKey, playerID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrPlayerNotFound)
}

func (r *postgresPlayerRepository) FindPlaceholder(ctx context.Context) (*models.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE name ILIKE '%TBD%' ORDER BY id ASC LIMIT 1`

	player := &models.Player{}
	err := r.db.QueryRowContext(ctx, query).Scan(
		&player.ID,
		&player.Name,
		&player.Rating,
		&player.Level,
		&player.Wins,
		&player.Losses,
		&player.AvatarKey,
		&player.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlaceholderMissing
		}
		return nil, fmt.Errorf("failed to scan placeholder player: %w", err)
	}
	return player, nil
}

func (r *postgresPlayerRepository) IncrementStats(ctx context.Context, exec SQLExecutor, playerID int, ratingDelta, winsDelta, lossesDelta int) error {
	if exec == nil {
		exec = r.db
	}
	query := `
		UPDATE players
		SET rating = rating + $1, wins = wins + $2, losses = losses + $3
		WHERE id = $4`

	result, err := exec.ExecContext(ctx, query, ratingDelta, winsDelta, lossesDelta, playerID)
	if err != nil {
		return fmt.Errorf("IncrementStats: failed to execute query for player %d: %w", playerID, err)
	}
	return checkAffectedRows(result, ErrPlayerNotFound)
}

func (r *postgresPlayerRepository) UpdateLevels(ctx context.Context, exec SQLExecutor, players []*models.Player) error {
	if exec == nil {
		exec = r.db
	}
	for _, p := range players {
		if _, err := exec.ExecContext(ctx, `UPDATE players SET level = $1 WHERE id = $2`, p.Level, p.ID); err != nil {
			return fmt.Errorf("UpdateLevels: failed for player %d: %w", p.ID, err)
		}
	}
	return nil
}
