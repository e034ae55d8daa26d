package domain

import "time"

// QuestionsPerGame is the length of the shared question sequence assigned to
// every game at creation time.
const QuestionsPerGame = 5

// Completion marks whether a player has answered the full question sequence.
// The zero value means not completed; a completed player carries the instant
// the final answer landed.
type Completion struct {
	Done bool
	At   time.Time
}

// CompletedAt builds a completed marker for the given instant.
func CompletedAt(t time.Time) Completion {
	return Completion{Done: true, At: t}
}

// Before reports whether this completion happened strictly before the other.
// Both sides must be completed for the comparison to be meaningful.
func (c Completion) Before(other Completion) bool {
	return c.Done && other.Done && c.At.Before(other.At)
}

// Answer is one answered (or forfeited) slot in a player's sequence.
// Text is nil for forfeited answers inserted by autocompletion.
type Answer struct {
	QuestionID string    `json:"questionId"`
	Text       *string   `json:"text"`
	Correct    bool      `json:"correct"`
	CreatedAt  time.Time `json:"createdAt"`
}

// PlayerProgress is one player's answer history and score within one game.
type PlayerProgress struct {
	PlayerID     string     `json:"playerId"`
	Answers      []Answer   `json:"answers"`
	AnswersCount int        `json:"answersCount"`
	Score        int        `json:"score"`
	Completion   Completion `json:"completion"`
}

// LastAnswerAt returns the timestamp of the most recent answer, or the zero
// time when no answers have been recorded.
func (p *PlayerProgress) LastAnswerAt() time.Time {
	if len(p.Answers) == 0 {
		return time.Time{}
	}
	return p.Answers[len(p.Answers)-1].CreatedAt
}

// QuestionAssignment pins one question to a position in a game's shared
// sequence. Position is zero-based and defines answer order for both players.
type QuestionAssignment struct {
	Position   int    `json:"position"`
	QuestionID string `json:"questionId"`
}

// Game is one paired quiz session between exactly two players.
// WinnerID is nil while the game is running and stays nil on a draw.
type Game struct {
	ID         string               `json:"id"`
	BankID     string               `json:"bankId"`
	First      PlayerProgress       `json:"first"`
	Second     PlayerProgress       `json:"second"`
	Questions  []QuestionAssignment `json:"questions"`
	StartedAt  time.Time            `json:"startedAt"`
	FinishedAt *time.Time           `json:"finishedAt"`
	WinnerID   *string              `json:"winnerId"`
}

// Finished reports whether the game has reached its terminal state.
func (g *Game) Finished() bool {
	return g.FinishedAt != nil
}

// ProgressOf returns the progress record owned by the given player.
func (g *Game) ProgressOf(playerID string) (*PlayerProgress, bool) {
	switch playerID {
	case g.First.PlayerID:
		return &g.First, true
	case g.Second.PlayerID:
		return &g.Second, true
	}
	return nil, false
}

// Question is one entry of a question bank. AnswerText is the canonical
// correct answer a submission is checked against.
type Question struct {
	ID         string `json:"id"`
	Prompt     string `json:"prompt"`
	AnswerText string `json:"answerText"`
}

// QuestionBank is a named pool of questions games draw their sequences from.
type QuestionBank struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
}

// Question looks up a bank entry by ID.
func (b QuestionBank) Question(questionID string) (Question, bool) {
	for _, q := range b.Questions {
		if q.ID == questionID {
			return q, true
		}
	}
	return Question{}, false
}
