package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/saparbekov/pingpong-system/brackets"
	"github.com/saparbekov/pingpong-system/models"
	"github.com/saparbekov/pingpong-system/repositories"
)

type CreateTournamentInput struct {
	Name         string                  `json:"name"`
	Format       models.TournamentFormat `json:"format"`
	Rounds       int                     `json:"rounds"`
	GroupCount   int                     `json:"group_count"`
	AdvanceCount int                     `json:"advance_count"`
	StartDate    time.Time               `json:"start_date"`
	PlayerIDs    []int                   `json:"player_ids"`
}

// UpdateTournamentInput carries a partial edit; nil fields stay unchanged.
type UpdateTournamentInput struct {
	Name         *string    `json:"name"`
	Rounds       *int       `json:"rounds"`
	GroupCount   *int       `json:"group_count"`
	AdvanceCount *int       `json:"advance_count"`
	StartDate    *time.Time `json:"start_date"`
}

type TournamentService interface {
	Create(ctx context.Context, input CreateTournamentInput) (*models.Tournament, error)
	GetByID(ctx context.Context, id int, includeRelations bool) (*models.Tournament, error)
	List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error)
	Update(ctx context.Context, id int, input UpdateTournamentInput) (*models.Tournament, error)

	// UpdateStatus validates the lifecycle transition; a manual move to
	// completed requires every terminal-stage match to be finished and runs
	// settlement behind the same once-only guard as automatic completion.
	UpdateStatus(ctx context.Context, id int, status models.TournamentStatus) (*models.Tournament, error)

	Delete(ctx context.Context, id int) error

	// AutoStartTournaments activates draft tournaments whose start date has
	// passed. Invoked periodically by the scheduler in cmd.
	AutoStartTournaments(ctx context.Context) error
}

type tournamentService struct {
	db             *sql.DB
	tournamentRepo repositories.TournamentRepository
	playerRepo     repositories.PlayerRepository
	matchRepo      repositories.MatchRepository
	settlement     SettlementService
	notifications  NotificationService
	hub            *brackets.Hub
	logger         *slog.Logger
}

func NewTournamentService(
	db *sql.DB,
	tournamentRepo repositories.TournamentRepository,
	playerRepo repositories.PlayerRepository,
	matchRepo repositories.MatchRepository,
	settlement SettlementService,
	notifications NotificationService,
	hub *brackets.Hub,
	logger *slog.Logger,
) TournamentService {
	return &tournamentService{
		db:             db,
		tournamentRepo: tournamentRepo,
		playerRepo:     playerRepo,
		matchRepo:      matchRepo,
		settlement:     settlement,
		notifications:  notifications,
		hub:            hub,
		logger:         logger,
	}
}

func (s *tournamentService) Create(ctx context.Context, input CreateTournamentInput) (*models.Tournament, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrTournamentNameEmpty
	}
	generator := brackets.ForFormat(input.Format)
	if generator == nil {
		return nil, ErrUnknownFormat
	}
	if len(input.PlayerIDs) < 2 {
		return nil, ErrNotEnoughPlayers
	}

	players := make([]*models.Player, 0, len(input.PlayerIDs))
	seen := make(map[int]bool, len(input.PlayerIDs))
	for _, id := range input.PlayerIDs {
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate player id %d", ErrValidationFailed, id)
		}
		seen[id] = true
		player, err := s.playerRepo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repositories.ErrPlayerNotFound) {
				return nil, ErrPlayerNotFound
			}
			return nil, fmt.Errorf("loading player %d: %w", id, err)
		}
		if player.IsPlaceholder() {
			return nil, fmt.Errorf("%w: the TBD placeholder cannot be registered", ErrValidationFailed)
		}
		players = append(players, player)
	}

	startDate := input.StartDate
	if startDate.IsZero() {
		startDate = time.Now()
	}
	tournament := &models.Tournament{
		Name:         name,
		Format:       input.Format,
		Status:       models.StatusDraft,
		Rounds:       input.Rounds,
		GroupCount:   input.GroupCount,
		AdvanceCount: input.AdvanceCount,
		StartDate:    startDate,
	}

	placeholderID := 0
	if input.Format == models.FormatKnockout {
		placeholder, err := s.playerRepo.FindPlaceholder(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolving TBD placeholder: %w", err)
		}
		placeholderID = placeholder.ID
	}

	matches, err := generator.Generate(ctx, brackets.GenerateParams{
		Tournament:    tournament,
		Players:       players,
		PlaceholderID: placeholderID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning tournament creation transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.tournamentRepo.Create(ctx, tx, tournament); err != nil {
		if errors.Is(err, repositories.ErrTournamentNameConflict) {
			return nil, ErrTournamentNameConflict
		}
		return nil, fmt.Errorf("creating tournament: %w", err)
	}
	if err := s.tournamentRepo.AddParticipants(ctx, tx, tournament.ID, input.PlayerIDs); err != nil {
		return nil, fmt.Errorf("registering participants: %w", err)
	}
	for _, m := range matches {
		m.TournamentID = tournament.ID
		if err := s.matchRepo.Create(ctx, tx, m); err != nil {
			return nil, fmt.Errorf("creating initial match: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing tournament creation transaction: %w", err)
	}

	s.notifications.Notify(ctx, models.NotificationTournament,
		"Новый турнир", fmt.Sprintf("Турнир «%s» создан (%s, %d участников)",
			tournament.Name, generator.GetName(), len(players)))

	attachRelations(tournament, players, matches)
	return tournament, nil
}

func attachRelations(t *models.Tournament, players []*models.Player, matches []*models.Match) {
	t.Participants = make([]models.Player, 0, len(players))
	for _, p := range players {
		t.Participants = append(t.Participants, *p)
	}
	t.Matches = make([]models.Match, 0, len(matches))
	for _, m := range matches {
		t.Matches = append(t.Matches, *m)
	}
}

func (s *tournamentService) GetByID(ctx context.Context, id int, includeRelations bool) (*models.Tournament, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("loading tournament %d: %w", id, err)
	}
	if !includeRelations {
		return tournament, nil
	}

	var (
		players []*models.Player
		matches []*models.Match
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		players, err = s.tournamentRepo.ListParticipants(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		matches, err = s.matchRepo.List(gctx, repositories.MatchFilter{TournamentID: &id})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading relations of tournament %d: %w", id, err)
	}

	attachRelations(tournament, players, matches)
	return tournament, nil
}

func (s *tournamentService) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	return s.tournamentRepo.List(ctx, filter)
}

// Update edits tournament fields. Only draft tournaments may be edited: once
// matches are being played the schedule parameters are frozen.
func (s *tournamentService) Update(ctx context.Context, id int, input UpdateTournamentInput) (*models.Tournament, error) {
	tournament, err := s.GetByID(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if tournament.Status != models.StatusDraft {
		return nil, fmt.Errorf("%w: only draft tournaments can be edited", ErrValidationFailed)
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, ErrTournamentNameEmpty
		}
		tournament.Name = name
	}
	if input.Rounds != nil {
		tournament.Rounds = *input.Rounds
	}
	if input.GroupCount != nil {
		tournament.GroupCount = *input.GroupCount
	}
	if input.AdvanceCount != nil {
		tournament.AdvanceCount = *input.AdvanceCount
	}
	if input.StartDate != nil {
		tournament.StartDate = *input.StartDate
	}

	if err := s.tournamentRepo.Update(ctx, tournament); err != nil {
		switch {
		case errors.Is(err, repositories.ErrTournamentNotFound):
			return nil, ErrTournamentNotFound
		case errors.Is(err, repositories.ErrTournamentNameConflict):
			return nil, ErrTournamentNameConflict
		}
		return nil, fmt.Errorf("updating tournament %d: %w", id, err)
	}
	return tournament, nil
}

func (s *tournamentService) UpdateStatus(ctx context.Context, id int, status models.TournamentStatus) (*models.Tournament, error) {
	switch status {
	case models.StatusDraft, models.StatusActive, models.TournamentStatusComplete, models.StatusTournamentCanceled:
	default:
		return nil, ErrTournamentInvalidStatus
	}

	tournament, err := s.GetByID(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if tournament.Status == models.TournamentStatusComplete {
		// Сюда попадает и повторный completed -> completed: занесение бонусов
		// уже прошло, повторный запрос отклоняем.
		return nil, ErrTournamentAlreadyCompleted
	}
	if tournament.Status == status {
		// No-op edits never re-run settlement.
		return tournament, nil
	}
	if !isStatusTransitionAllowed(tournament.Status, status) {
		return nil, ErrTournamentInvalidStatusTransition
	}

	if status == models.TournamentStatusComplete {
		if err := s.ensureFinishable(ctx, tournament); err != nil {
			return nil, err
		}
		transitioned, err := s.tournamentRepo.CompleteIfActive(ctx, nil, id)
		if err != nil {
			return nil, fmt.Errorf("completing tournament %d: %w", id, err)
		}
		if transitioned {
			if err := s.settlement.Settle(ctx, id); err != nil {
				return nil, fmt.Errorf("settling tournament %d: %w", id, err)
			}
			if s.hub != nil {
				s.hub.BroadcastToRoom(strconv.Itoa(id), brackets.WebSocketMessage{
					Type:    brackets.EventTournamentCompleted,
					Payload: map[string]int{"tournament_id": id},
				})
			}
		}
	} else {
		if err := s.tournamentRepo.UpdateStatus(ctx, nil, id, status); err != nil {
			return nil, fmt.Errorf("updating status of tournament %d: %w", id, err)
		}
		if status == models.StatusActive {
			s.notifications.Notify(ctx, models.NotificationTournament,
				"Турнир стартовал", fmt.Sprintf("Турнир «%s» начался", tournament.Name))
		}
	}

	tournament.Status = status
	return tournament, nil
}

// ensureFinishable rejects a manual completion while terminal-stage matches
// are still open: every match for a league, the deepest bracket round for
// knockout formats.
func (s *tournamentService) ensureFinishable(ctx context.Context, tournament *models.Tournament) error {
	matches, err := s.matchRepo.List(ctx, repositories.MatchFilter{TournamentID: &tournament.ID})
	if err != nil {
		return fmt.Errorf("listing matches of tournament %d: %w", tournament.ID, err)
	}

	if !tournament.UsesKnockoutStage() {
		for _, m := range matches {
			if m.Status != models.MatchStatusCompleted {
				return ErrTournamentNotFinished
			}
		}
		return nil
	}

	knockout := filterByStage(matches, models.StageKnockout)
	if len(knockout) == 0 {
		return ErrTournamentNotFinished
	}
	for _, m := range filterByRound(knockout, maxRoundOf(knockout)) {
		if m.Status != models.MatchStatusCompleted {
			return ErrTournamentNotFinished
		}
	}
	return nil
}

func (s *tournamentService) Delete(ctx context.Context, id int) error {
	err := s.tournamentRepo.Delete(ctx, id)
	if errors.Is(err, repositories.ErrTournamentNotFound) {
		return ErrTournamentNotFound
	}
	return err
}

func (s *tournamentService) AutoStartTournaments(ctx context.Context) error {
	due, err := s.tournamentRepo.ListForAutoStart(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("listing tournaments due for start: %w", err)
	}
	for _, t := range due {
		if err := s.tournamentRepo.UpdateStatus(ctx, nil, t.ID, models.StatusActive); err != nil {
			s.logger.ErrorContext(ctx, "failed to auto-start tournament",
				slog.Int("tournament_id", t.ID), slog.Any("error", err))
			continue
		}
		s.logger.InfoContext(ctx, "tournament auto-started",
			slog.Int("tournament_id", t.ID), slog.String("name", t.Name))
		s.notifications.Notify(ctx, models.NotificationTournament,
			"Турнир стартовал", fmt.Sprintf("Турнир «%s» начался", t.Name))
	}
	return nil
}
