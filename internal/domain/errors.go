package domain

import "errors"

var (
	// ErrGameNotFound is returned when a game ID has no persisted game.
	ErrGameNotFound = errors.New("game not found")
	// ErrGameAlreadyCompleted signals that a game is terminal and rejects
	// further mutation. A completion tick observing it must no-op.
	ErrGameAlreadyCompleted = errors.New("game already completed")
	// ErrProgressNotFound is returned when a player has no progress record in a game.
	ErrProgressNotFound = errors.New("player progress not found in game")
	// ErrQuestionBankNotFound indicates the question bank could not be loaded.
	ErrQuestionBankNotFound = errors.New("question bank not found")
	// ErrQuestionNotFound indicates a question ID is not part of the bank.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrSequenceComplete is returned when a player submits past the end of
	// the question sequence.
	ErrSequenceComplete = errors.New("question sequence already complete")
	// ErrBankTooSmall indicates a bank has fewer questions than a game needs.
	ErrBankTooSmall = errors.New("question bank too small for a game")
)
