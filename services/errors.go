package services

import "errors"

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	// Ресурс не найден (универсальная)
	ErrNotFound = errors.New("requested resource not found")

	// Ошибки валидации и бизнес-правил
	ErrValidationFailed    = errors.New("validation failed")
	ErrPlayerNameRequired  = errors.New("player name is required")
	ErrTournamentNameEmpty = errors.New("tournament name is required")
	ErrNotEnoughPlayers    = errors.New("not enough players for this tournament format")
	ErrUnknownFormat       = errors.New("unknown tournament format")

	// Ошибки матчей
	ErrMatchMissingScores    = errors.New("both scores are required to complete a match")
	ErrMatchNegativeScore    = errors.New("scores must not be negative")
	ErrInvalidGameScore      = errors.New("game must be won with at least 11 points and a 2 point margin")
	ErrInvalidGameIndex      = errors.New("game index must be between 1 and 3")
	ErrMatchAlreadyCompleted = errors.New("match is already completed")
	ErrMatchNotBestOfThree   = errors.New("match is not played as best of three")
	ErrMatchDrawNotAllowed   = errors.New("this match must have a winner")
	ErrMatchSlotUndecided    = errors.New("match still has an undecided TBD slot")
	ErrMatchPlayersIdentical = errors.New("player1 and player2 must be different")

	// Ошибки турниров
	ErrTournamentNotFinished             = errors.New("not all final stage matches are completed")
	ErrTournamentAlreadyCompleted        = errors.New("tournament is already completed")
	ErrTournamentInvalidStatus           = errors.New("invalid tournament status provided")
	ErrTournamentInvalidStatusTransition = errors.New("invalid tournament status transition")

	// Ошибки конфликтов
	ErrPlayerNameConflict     = errors.New("player name is already in use")
	ErrTournamentNameConflict = errors.New("tournament name already exists")

	// Ошибки, специфичные для сущностей
	ErrPlayerNotFound     = errors.New("player not found")
	ErrMatchNotFound      = errors.New("match not found")
	ErrTournamentNotFound = errors.New("tournament not found")

	// Ошибки аутентификации
	ErrAuthInvalidCredentials = errors.New("invalid email or password")
	ErrAuthEmailTaken         = errors.New("email is already taken")
	ErrPasswordTooShort       = errors.New("password is too short")
)
