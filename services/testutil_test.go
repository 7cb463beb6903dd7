package services

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/saparbekov/pingpong-system/models"
	"github.com/saparbekov/pingpong-system/repositories"
)

// Сервисы открывают транзакции напрямую через *sql.DB, поэтому тесты
// подсовывают драйвер-заглушку: Begin/Commit ничего не делают, а вся работа
// идёт через in-memory репозитории, игнорирующие executor.
type stubDriver struct{}

func (stubDriver) Open(string) (driver.Conn, error) { return stubConn{}, nil }

type stubConn struct{}

func (stubConn) Prepare(string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (stubConn) Close() error                        { return nil }
func (stubConn) Begin() (driver.Tx, error)           { return stubTx{}, nil }

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

var registerStubOnce sync.Once

func stubDB() *sql.DB {
	registerStubOnce.Do(func() {
		sql.Register("servicestub", stubDriver{})
	})
	db, err := sql.Open("servicestub", "")
	if err != nil {
		panic(err)
	}
	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ---- fake player repository ----

type fakePlayerRepo struct {
	players map[int]*models.Player
	levels  []int // ids whose level was last persisted
}

func newFakePlayerRepo(players ...*models.Player) *fakePlayerRepo {
	repo := &fakePlayerRepo{players: make(map[int]*models.Player)}
	for _, p := range players {
		repo.players[p.ID] = p
	}
	return repo
}

func (f *fakePlayerRepo) Create(_ context.Context, p *models.Player) error {
	p.ID = len(f.players) + 1
	p.CreatedAt = time.Now()
	f.players[p.ID] = p
	return nil
}

func (f *fakePlayerRepo) GetByID(_ context.Context, id int) (*models.Player, error) {
	p, ok := f.players[id]
	if !ok {
		return nil, repositories.ErrPlayerNotFound
	}
	clone := *p
	return &clone, nil
}

func (f *fakePlayerRepo) List(_ context.Context) ([]*models.Player, error) {
	out := make([]*models.Player, 0, len(f.players))
	for _, p := range f.players {
		clone := *p
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rating > out[j].Rating })
	return out, nil
}

func (f *fakePlayerRepo) Update(_ context.Context, p *models.Player) error {
	stored, ok := f.players[p.ID]
	if !ok {
		return repositories.ErrPlayerNotFound
	}
	stored.Name = p.Name
	return nil
}

func (f *fakePlayerRepo) Delete(_ context.Context, id int) error {
	if _, ok := f.players[id]; !ok {
		return repositories.ErrPlayerNotFound
	}
	delete(f.players, id)
	return nil
}

func (f *fakePlayerRepo) UpdateAvatarKey(_ context.Context, id int, key *string) error {
	p, ok := f.players[id]
	if !ok {
		return repositories.ErrPlayerNotFound
	}
	p.AvatarKey = key
	return nil
}

func (f *fakePlayerRepo) FindPlaceholder(_ context.Context) (*models.Player, error) {
	for _, p := range f.players {
		if p.IsPlaceholder() {
			clone := *p
			return &clone, nil
		}
	}
	return nil, repositories.ErrPlaceholderMissing
}

func (f *fakePlayerRepo) IncrementStats(_ context.Context, _ repositories.SQLExecutor, id int, ratingDelta, winsDelta, lossesDelta int) error {
	p, ok := f.players[id]
	if !ok {
		return repositories.ErrPlayerNotFound
	}
	p.Rating += ratingDelta
	p.Wins += winsDelta
	p.Losses += lossesDelta
	return nil
}

func (f *fakePlayerRepo) UpdateLevels(_ context.Context, _ repositories.SQLExecutor, players []*models.Player) error {
	f.levels = f.levels[:0]
	for _, p := range players {
		if stored, ok := f.players[p.ID]; ok {
			stored.Level = p.Level
		}
		f.levels = append(f.levels, p.ID)
	}
	return nil
}

// ---- fake match repository ----

type fakeMatchRepo struct {
	matches map[int]*models.Match
	nextID  int
}

func newFakeMatchRepo(matches ...*models.Match) *fakeMatchRepo {
	repo := &fakeMatchRepo{matches: make(map[int]*models.Match), nextID: 1}
	for _, m := range matches {
		if m.ID == 0 {
			m.ID = repo.nextID
		}
		if m.ID >= repo.nextID {
			repo.nextID = m.ID + 1
		}
		repo.matches[m.ID] = m
	}
	return repo
}

func (f *fakeMatchRepo) Create(_ context.Context, _ repositories.SQLExecutor, m *models.Match) error {
	m.ID = f.nextID
	f.nextID++
	if m.CurrentGame == 0 {
		m.CurrentGame = 1
	}
	m.CreatedAt = time.Now()
	clone := *m
	f.matches[m.ID] = &clone
	return nil
}

func (f *fakeMatchRepo) GetByID(_ context.Context, id int) (*models.Match, error) {
	m, ok := f.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	clone := *m
	return &clone, nil
}

func (f *fakeMatchRepo) List(_ context.Context, filter repositories.MatchFilter) ([]*models.Match, error) {
	var out []*models.Match
	for _, m := range f.matches {
		if filter.TournamentID != nil && m.TournamentID != *filter.TournamentID {
			continue
		}
		if filter.Stage != nil && m.Stage != *filter.Stage {
			continue
		}
		if filter.Round != nil && m.Round != *filter.Round {
			continue
		}
		if filter.Status != nil && m.Status != *filter.Status {
			continue
		}
		clone := *m
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Round != out[j].Round {
			return out[i].Round < out[j].Round
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f *fakeMatchRepo) UpdateResult(_ context.Context, _ repositories.SQLExecutor, m *models.Match) error {
	stored, ok := f.matches[m.ID]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	stored.Player1Score = m.Player1Score
	stored.Player2Score = m.Player2Score
	stored.Status = m.Status
	stored.Games = m.Games
	stored.Player1Wins = m.Player1Wins
	stored.Player2Wins = m.Player2Wins
	stored.CurrentGame = m.CurrentGame
	stored.EloDelta = m.EloDelta
	stored.BonusDelta = m.BonusDelta
	return nil
}

func (f *fakeMatchRepo) UpdatePlayers(_ context.Context, _ repositories.SQLExecutor, matchID, player1ID, player2ID int) error {
	stored, ok := f.matches[matchID]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	stored.Player1ID = player1ID
	stored.Player2ID = player2ID
	stored.Status = models.StatusScheduled
	return nil
}

func (f *fakeMatchRepo) Delete(_ context.Context, _ repositories.SQLExecutor, id int) error {
	if _, ok := f.matches[id]; !ok {
		return repositories.ErrMatchNotFound
	}
	delete(f.matches, id)
	return nil
}

// ---- fake tournament repository ----

type fakeTournamentRepo struct {
	tournaments  map[int]*models.Tournament
	participants map[int][]*models.Player
	positions    map[int]map[int]int // tournamentID -> playerID -> position
	completions  int
}

func newFakeTournamentRepo(tournaments ...*models.Tournament) *fakeTournamentRepo {
	repo := &fakeTournamentRepo{
		tournaments:  make(map[int]*models.Tournament),
		participants: make(map[int][]*models.Player),
		positions:    make(map[int]map[int]int),
	}
	for _, t := range tournaments {
		repo.tournaments[t.ID] = t
	}
	return repo
}

func (f *fakeTournamentRepo) setParticipants(tournamentID int, players ...*models.Player) {
	f.participants[tournamentID] = players
}

func (f *fakeTournamentRepo) Create(_ context.Context, _ repositories.SQLExecutor, t *models.Tournament) error {
	t.ID = len(f.tournaments) + 1
	t.CreatedAt = time.Now()
	f.tournaments[t.ID] = t
	return nil
}

func (f *fakeTournamentRepo) GetByID(_ context.Context, id int) (*models.Tournament, error) {
	t, ok := f.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	clone := *t
	return &clone, nil
}

func (f *fakeTournamentRepo) List(_ context.Context, _ repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	var out []models.Tournament
	for _, t := range f.tournaments {
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeTournamentRepo) Update(_ context.Context, t *models.Tournament) error {
	stored, ok := f.tournaments[t.ID]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	*stored = *t
	return nil
}

func (f *fakeTournamentRepo) UpdateStatus(_ context.Context, _ repositories.SQLExecutor, id int, status models.TournamentStatus) error {
	stored, ok := f.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	stored.Status = status
	return nil
}

func (f *fakeTournamentRepo) Delete(_ context.Context, id int) error {
	if _, ok := f.tournaments[id]; !ok {
		return repositories.ErrTournamentNotFound
	}
	delete(f.tournaments, id)
	return nil
}

func (f *fakeTournamentRepo) AddParticipants(_ context.Context, _ repositories.SQLExecutor, tournamentID int, playerIDs []int) error {
	for _, id := range playerIDs {
		f.participants[tournamentID] = append(f.participants[tournamentID], &models.Player{ID: id})
	}
	return nil
}

func (f *fakeTournamentRepo) ListParticipants(_ context.Context, tournamentID int) ([]*models.Player, error) {
	return f.participants[tournamentID], nil
}

func (f *fakeTournamentRepo) SetParticipantPosition(_ context.Context, _ repositories.SQLExecutor, tournamentID, playerID, position int) error {
	if f.positions[tournamentID] == nil {
		f.positions[tournamentID] = make(map[int]int)
	}
	f.positions[tournamentID][playerID] = position
	return nil
}

func (f *fakeTournamentRepo) CompleteIfActive(_ context.Context, _ repositories.SQLExecutor, id int) (bool, error) {
	stored, ok := f.tournaments[id]
	if !ok {
		return false, nil
	}
	if stored.Status == models.TournamentStatusComplete {
		return false, nil
	}
	stored.Status = models.TournamentStatusComplete
	f.completions++
	return true, nil
}

func (f *fakeTournamentRepo) ListForAutoStart(_ context.Context, now time.Time) ([]*models.Tournament, error) {
	var out []*models.Tournament
	for _, t := range f.tournaments {
		if t.Status == models.StatusDraft && !t.StartDate.After(now) {
			clone := *t
			out = append(out, &clone)
		}
	}
	return out, nil
}

func matchFilterForStage(tournamentID int, stage models.MatchStage) repositories.MatchFilter {
	return repositories.MatchFilter{TournamentID: &tournamentID, Stage: &stage}
}

// ---- fake collaborators ----

type fakeNotifications struct {
	titles []string
}

func (f *fakeNotifications) Notify(_ context.Context, _ models.NotificationType, title, _ string) {
	f.titles = append(f.titles, title)
}

func (f *fakeNotifications) List(context.Context, bool, int) ([]*models.Notification, error) {
	return nil, nil
}

func (f *fakeNotifications) MarkRead(context.Context, int) error { return nil }
func (f *fakeNotifications) MarkAllRead(context.Context) error   { return nil }

type fakeSettlement struct {
	settled []int
}

func (f *fakeSettlement) Settle(_ context.Context, tournamentID int) error {
	f.settled = append(f.settled, tournamentID)
	return nil
}
