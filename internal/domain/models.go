package domain

import (
	"maps"
	"time"
)

// Difficulty is one of easy, medium or hard.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Difficulties lists the levels in progression order.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

func (d Difficulty) Valid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// Rank orders difficulties easy < medium < hard; unknown values rank last.
func (d Difficulty) Rank() int {
	switch d {
	case DifficultyEasy:
		return 0
	case DifficultyMedium:
		return 1
	case DifficultyHard:
		return 2
	}
	return 3
}

// DefaultPoints is the score a question is worth when its author did not set one.
func (d Difficulty) DefaultPoints() int {
	switch d {
	case DifficultyMedium:
		return 20
	case DifficultyHard:
		return 30
	}
	return 10
}

// PackSource is the trust domain a pack was loaded from.
type PackSource string

const (
	SourceBuiltin PackSource = "builtin"
	SourceAPI     PackSource = "api"
	SourceUpload  PackSource = "upload"
)

// Sources lists the trust domains in merge order.
var Sources = []PackSource{SourceBuiltin, SourceAPI, SourceUpload}

// Question is a single multiple-choice item.
type Question struct {
	ID                    string         `json:"id"`
	Text                  string         `json:"text"`
	Options               []string       `json:"options"`
	CorrectIndex          int            `json:"correctIndex"`
	CorrectExplanation    string         `json:"correctExplanation,omitempty"`
	IncorrectExplanations map[int]string `json:"incorrectExplanations,omitempty"`
	Category              string         `json:"category"`
	Difficulty            Difficulty     `json:"difficulty"`
	Points                int            `json:"points"`
	Hints                 []string       `json:"hints,omitempty"`
	ImageURL              string         `json:"imageUrl,omitempty"`
	CodeSnippet           string         `json:"codeSnippet,omitempty"`

	PackID     string     `json:"packId,omitempty"`
	PackSource PackSource `json:"packSource,omitempty"`
}

// Clone returns a deep copy so callers can rearrange options without touching the source record.
func (q Question) Clone() Question {
	c := q
	c.Options = append([]string(nil), q.Options...)
	c.Hints = append([]string(nil), q.Hints...)
	if q.IncorrectExplanations != nil {
		c.IncorrectExplanations = maps.Clone(q.IncorrectExplanations)
	}
	return c
}

// Key is the composite identity used to resolve snapshot references.
func (q Question) Key() QuestionKey {
	return QuestionKey{ID: q.ID, Category: q.Category, Difficulty: q.Difficulty}
}

// QuestionKey identifies a question by (id, category, difficulty); bare ids are not unique across packs.
type QuestionKey struct {
	ID         string     `json:"id"`
	Category   string     `json:"category"`
	Difficulty Difficulty `json:"difficulty"`
}

// Pack is a validated bundle of categorized questions in canonical shape.
type Pack struct {
	ID           string                `json:"packId"`
	Name         string                `json:"packName"`
	Version      string                `json:"packVersion,omitempty"`
	Author       string                `json:"author,omitempty"`
	ContactEmail string                `json:"contactEmail,omitempty"`
	Categories   map[string][]Question `json:"categories"`
}

// QuestionCount sums questions across all categories.
func (p Pack) QuestionCount() int {
	n := 0
	for _, qs := range p.Categories {
		n += len(qs)
	}
	return n
}

// PackMeta describes a registered pack without its questions.
type PackMeta struct {
	ID            string     `json:"packId"`
	Name          string     `json:"packName"`
	Version       string     `json:"packVersion,omitempty"`
	Author        string     `json:"author,omitempty"`
	ContactEmail  string     `json:"contactEmail,omitempty"`
	Source        PackSource `json:"source"`
	Enabled       bool       `json:"enabled"`
	QuestionCount int        `json:"questionCount"`
	Categories    []string   `json:"categories"`
	LoadedAt      time.Time  `json:"loadedAt"`
}

// CacheEntry wraps a cached value with its timestamps; a nil ExpiresAt never expires.
type CacheEntry[T any] struct {
	Value     T          `json:"value"`
	CachedAt  time.Time  `json:"cachedAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// IsExpired reports whether the entry has passed its expiry at now.
func (e CacheEntry[T]) IsExpired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// CachedPack is the value stored in a pack cache entry.
type CachedPack struct {
	Pack   Pack       `json:"pack"`
	Source PackSource `json:"source"`
}

// Answer records the outcome of one submitted question.
type Answer struct {
	QuestionID    string `json:"questionId"`
	SelectedIndex int    `json:"selectedIndex"`
	CorrectIndex  int    `json:"correctIndex"`
	IsCorrect     bool   `json:"isCorrect"`
	PointsAwarded int    `json:"pointsAwarded"`
	TimeSpentMs   int64  `json:"timeSpentMs"`
}

// Feedback is returned to the player after each submission.
type Feedback struct {
	QuestionID    string `json:"questionId"`
	Correct       bool   `json:"correct"`
	SelectedIndex int    `json:"selectedIndex"`
	CorrectIndex  int    `json:"correctIndex"`
	PointsAwarded int    `json:"pointsAwarded"`
	Explanation   string `json:"explanation"`
	Score         int    `json:"score"`
	IsLast        bool   `json:"isLast"`
}

// Results summarize a completed session.
type Results struct {
	SessionID           string                          `json:"sessionId"`
	Category            string                          `json:"category"`
	Score               int                             `json:"score"`
	TotalPossiblePoints int                             `json:"totalPossiblePoints"`
	CorrectCount        int                             `json:"correctCount"`
	QuestionCount       int                             `json:"questionCount"`
	Percentage          int                             `json:"percentage"`
	HintsUsed           int                             `json:"hintsUsed"`
	BestStreak          int                             `json:"bestStreak"`
	Answers             []Answer                        `json:"answers"`
	ByDifficulty        map[Difficulty]DifficultyResult `json:"byDifficulty"`
	StartedAt           time.Time                       `json:"startedAt"`
	FinishedAt          time.Time                       `json:"finishedAt"`
}

// DifficultyResult breaks results down per difficulty level.
type DifficultyResult struct {
	Answered int `json:"answered"`
	Correct  int `json:"correct"`
}

// QuestionRef is how a snapshot points back at a question without embedding its body.
type QuestionRef struct {
	QuestionKey
	// OptionOrder maps presented position -> canonical option index.
	OptionOrder []int `json:"optionOrder"`
}

// Snapshot is the serializable, reference-only form of an in-progress session.
type Snapshot struct {
	SessionID           string        `json:"sessionId"`
	Category            string        `json:"category"`
	StartedAt           time.Time     `json:"startedAt"`
	Questions           []QuestionRef `json:"questions"`
	CurrentIndex        int           `json:"currentIndex"`
	AnswerSubmitted     bool          `json:"answerSubmitted"`
	Score               int           `json:"score"`
	TotalPossiblePoints int           `json:"totalPossiblePoints"`
	CorrectCount        int           `json:"correctCount"`
	Answers             []Answer      `json:"answers"`
	// HintsRevealed is indexed like Questions.
	HintsRevealed       []int         `json:"hintsRevealed"`
	SavedAt             time.Time     `json:"savedAt"`
}
