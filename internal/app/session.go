package app

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"quizpack/internal/domain"
)

const (
	// CategoryAll selects every category in the merged view.
	CategoryAll = "all"
	// CategoryRandom is accepted as a synonym of CategoryAll.
	CategoryRandom = "random"

	DefaultCorrectFeedback   = "Correct!"
	DefaultIncorrectFeedback = "Incorrect."
)

// SessionState is the position of an Engine in its state machine.
type SessionState int

const (
	StateIdle SessionState = iota
	StateInProgress
	StateAnswerSubmitted
	StateComplete
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInProgress:
		return "in_progress"
	case StateAnswerSubmitted:
		return "answer_submitted"
	case StateComplete:
		return "complete"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s SessionState) active() bool {
	return s == StateInProgress || s == StateAnswerSubmitted
}

// StartOptions configure a new session.
type StartOptions struct {
	Category         string `json:"category"`
	ShuffleQuestions bool   `json:"shuffleQuestions"`
	ShuffleOptions   bool   `json:"shuffleOptions"`
}

// Engine runs one quiz session at a time over a merged question view.
type Engine struct {
	now   func() time.Time
	rnd   *rand.Rand
	newID func() string

	mu            sync.Mutex
	state         SessionState
	id            string
	category      string
	startedAt     time.Time
	finishedAt    time.Time
	shownAt       time.Time
	questions     []domain.Question
	optionOrders  [][]int
	currentIndex  int
	score         int
	totalPossible int
	correctCount  int
	answers       []domain.Answer
	// hintsRevealed[i] counts hints shown for questions[i]; ids alone are not unique in a session.
	hintsRevealed []int
}

func NewEngine() *Engine {
	seed := uint64(time.Now().UnixNano())
	return NewEngineWithSource(time.Now, rand.New(rand.NewPCG(seed, rand.Uint64())))
}

// NewEngineWithSource allows deterministic timestamps and shuffles in tests.
func NewEngineWithSource(now func() time.Time, rnd *rand.Rand) *Engine {
	return &Engine{
		now:   now,
		rnd:   rnd,
		newID: uuid.NewString,
	}
}

// Start builds a new session: questions from the chosen category (or all of them) are
// bucketed by difficulty, optionally shuffled inside each bucket, and concatenated
// easy, medium, hard. Options are shuffled per question on a copy when requested.
func (e *Engine) Start(view map[string][]domain.Question, opts StartOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.active() {
		return &domain.InvalidStateError{Op: "start", State: e.state.String()}
	}

	category := strings.TrimSpace(opts.Category)
	var pool []domain.Question
	if category == "" || category == CategoryAll || category == CategoryRandom {
		category = CategoryAll
		for _, name := range sortedKeys(view) {
			pool = append(pool, view[name]...)
		}
	} else {
		pool = view[category]
	}

	buckets := make([][]domain.Question, len(domain.Difficulties))
	for _, q := range pool {
		rank := q.Difficulty.Rank()
		if rank >= len(buckets) {
			rank = len(buckets) - 1
		}
		buckets[rank] = append(buckets[rank], q)
	}
	var sequence []domain.Question
	for _, bucket := range buckets {
		if opts.ShuffleQuestions {
			e.rnd.Shuffle(len(bucket), func(i, j int) { bucket[i], bucket[j] = bucket[j], bucket[i] })
		}
		sequence = append(sequence, bucket...)
	}
	if len(sequence) == 0 {
		return &domain.NoQuestionsError{Category: category}
	}

	questions := make([]domain.Question, len(sequence))
	orders := make([][]int, len(sequence))
	for i, q := range sequence {
		if opts.ShuffleOptions {
			questions[i], orders[i] = ShuffleOptions(q, e.rnd)
		} else {
			questions[i], orders[i] = q.Clone(), identityOrder(len(q.Options))
		}
	}

	now := e.now()
	e.reset()
	e.id = e.newID()
	e.category = category
	e.startedAt = now
	e.shownAt = now
	e.questions = questions
	e.optionOrders = orders
	e.hintsRevealed = make([]int, len(questions))
	e.state = StateInProgress
	return nil
}

// Current returns a copy of the question being played.
func (e *Engine) Current() (domain.Question, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.active() {
		return domain.Question{}, &domain.InvalidStateError{Op: "current question", State: e.state.String()}
	}
	return e.questions[e.currentIndex].Clone(), nil
}

// SubmitAnswer scores the selected option for the current question. It is valid once per
// question; a rejected call leaves the session unchanged.
func (e *Engine) SubmitAnswer(selected int) (domain.Feedback, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateInProgress {
		return domain.Feedback{}, &domain.InvalidStateError{Op: "submit answer", State: e.state.String()}
	}
	q := e.questions[e.currentIndex]
	if selected < 0 || selected >= len(q.Options) {
		return domain.Feedback{}, fmt.Errorf("%w: index %d of %d options", domain.ErrOptionNotFound, selected, len(q.Options))
	}

	correct := selected == q.CorrectIndex
	awarded := 0
	if correct {
		awarded = q.Points
		e.correctCount++
	}
	e.score += awarded
	e.totalPossible += q.Points

	elapsed := e.now().Sub(e.shownAt).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	e.answers = append(e.answers, domain.Answer{
		QuestionID:    q.ID,
		SelectedIndex: selected,
		CorrectIndex:  q.CorrectIndex,
		IsCorrect:     correct,
		PointsAwarded: awarded,
		TimeSpentMs:   elapsed,
	})
	e.state = StateAnswerSubmitted

	return domain.Feedback{
		QuestionID:    q.ID,
		Correct:       correct,
		SelectedIndex: selected,
		CorrectIndex:  q.CorrectIndex,
		PointsAwarded: awarded,
		Explanation:   feedbackText(q, selected, correct),
		Score:         e.score,
		IsLast:        e.currentIndex == len(e.questions)-1,
	}, nil
}

func feedbackText(q domain.Question, selected int, correct bool) string {
	if correct {
		if q.CorrectExplanation != "" {
			return q.CorrectExplanation
		}
		return DefaultCorrectFeedback
	}
	if text, ok := q.IncorrectExplanations[selected]; ok && text != "" {
		return text
	}
	return DefaultIncorrectFeedback
}

// Advance moves past an answered question. It returns true when the session is complete.
func (e *Engine) Advance() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateAnswerSubmitted {
		return false, &domain.InvalidStateError{Op: "advance", State: e.state.String()}
	}
	e.currentIndex++
	now := e.now()
	if e.currentIndex >= len(e.questions) {
		e.state = StateComplete
		e.finishedAt = now
		return true, nil
	}
	e.state = StateInProgress
	e.shownAt = now
	return false, nil
}

// RevealHint returns the next unrevealed hint of the current question in authored order.
// ok is false once every hint has been shown; that is not an error.
func (e *Engine) RevealHint() (hint string, ok bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.active() {
		return "", false, &domain.InvalidStateError{Op: "reveal hint", State: e.state.String()}
	}
	q := e.questions[e.currentIndex]
	n := e.hintsRevealed[e.currentIndex]
	if n >= len(q.Hints) {
		return "", false, nil
	}
	e.hintsRevealed[e.currentIndex] = n + 1
	return q.Hints[n], true, nil
}

// Results summarizes a completed session.
func (e *Engine) Results() (domain.Results, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateComplete {
		return domain.Results{}, &domain.InvalidStateError{Op: "results", State: e.state.String()}
	}

	res := domain.Results{
		SessionID:           e.id,
		Category:            e.category,
		Score:               e.score,
		TotalPossiblePoints: e.totalPossible,
		CorrectCount:        e.correctCount,
		QuestionCount:       len(e.questions),
		Answers:             append([]domain.Answer(nil), e.answers...),
		ByDifficulty:        make(map[domain.Difficulty]domain.DifficultyResult),
		StartedAt:           e.startedAt,
		FinishedAt:          e.finishedAt,
	}
	if n := len(e.questions); n > 0 {
		res.Percentage = int(math.Round(float64(e.correctCount) / float64(n) * 100))
	}
	for _, n := range e.hintsRevealed {
		res.HintsUsed += n
	}
	streak := 0
	for i, a := range e.answers {
		d := e.questions[i].Difficulty
		dr := res.ByDifficulty[d]
		dr.Answered++
		if a.IsCorrect {
			dr.Correct++
			streak++
			res.BestStreak = max(res.BestStreak, streak)
		} else {
			streak = 0
		}
		res.ByDifficulty[d] = dr
	}
	return res, nil
}

// SessionStatus is a read-only view for presentation.
type SessionStatus struct {
	SessionID           string    `json:"sessionId"`
	State               string    `json:"state"`
	Category            string    `json:"category"`
	CurrentIndex        int       `json:"currentIndex"`
	QuestionCount       int       `json:"questionCount"`
	Score               int       `json:"score"`
	TotalPossiblePoints int       `json:"totalPossiblePoints"`
	CorrectCount        int       `json:"correctCount"`
	HintsRevealed       int       `json:"hintsRevealed"`
	HintsAvailable      int       `json:"hintsAvailable"`
	StartedAt           time.Time `json:"startedAt"`
}

func (e *Engine) Status() SessionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := SessionStatus{
		SessionID:           e.id,
		State:               e.state.String(),
		Category:            e.category,
		CurrentIndex:        e.currentIndex,
		QuestionCount:       len(e.questions),
		Score:               e.score,
		TotalPossiblePoints: e.totalPossible,
		CorrectCount:        e.correctCount,
		StartedAt:           e.startedAt,
	}
	if e.state.active() {
		q := e.questions[e.currentIndex]
		st.HintsRevealed = e.hintsRevealed[e.currentIndex]
		st.HintsAvailable = len(q.Hints)
	}
	return st
}

func (e *Engine) State() SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Abandon drops the current session and returns the engine to idle.
func (e *Engine) Abandon() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
}

func (e *Engine) reset() {
	e.state = StateIdle
	e.id = ""
	e.category = ""
	e.startedAt = time.Time{}
	e.finishedAt = time.Time{}
	e.shownAt = time.Time{}
	e.questions = nil
	e.optionOrders = nil
	e.currentIndex = 0
	e.score = 0
	e.totalPossible = 0
	e.correctCount = 0
	e.answers = nil
	e.hintsRevealed = nil
}

// Export captures an in-progress session as question references plus progress counters.
func (e *Engine) Export() (domain.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.active() {
		return domain.Snapshot{}, &domain.InvalidStateError{Op: "export", State: e.state.String()}
	}
	refs := make([]domain.QuestionRef, len(e.questions))
	for i, q := range e.questions {
		refs[i] = domain.QuestionRef{
			QuestionKey: q.Key(),
			OptionOrder: append([]int(nil), e.optionOrders[i]...),
		}
	}
	return domain.Snapshot{
		SessionID:           e.id,
		Category:            e.category,
		StartedAt:           e.startedAt,
		Questions:           refs,
		CurrentIndex:        e.currentIndex,
		AnswerSubmitted:     e.state == StateAnswerSubmitted,
		Score:               e.score,
		TotalPossiblePoints: e.totalPossible,
		CorrectCount:        e.correctCount,
		Answers:             append([]domain.Answer(nil), e.answers...),
		HintsRevealed:       append([]int(nil), e.hintsRevealed...),
		SavedAt:             e.now(),
	}, nil
}

// Restore rebuilds a session from snap by resolving every reference through view using
// (id, category, difficulty). Any reference that no longer resolves fails the whole
// restore with a *domain.StaleSessionError and leaves the engine idle.
func (e *Engine) Restore(snap domain.Snapshot, view map[string][]domain.Question) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.active() {
		return &domain.InvalidStateError{Op: "restore", State: e.state.String()}
	}
	if err := checkSnapshot(snap); err != nil {
		return err
	}

	index := make(map[domain.QuestionKey]domain.Question)
	for _, name := range sortedKeys(view) {
		for _, q := range view[name] {
			if _, dup := index[q.Key()]; !dup {
				index[q.Key()] = q
			}
		}
	}

	questions := make([]domain.Question, len(snap.Questions))
	orders := make([][]int, len(snap.Questions))
	for i, ref := range snap.Questions {
		q, ok := index[ref.QuestionKey]
		if !ok {
			return &domain.StaleSessionError{QuestionID: ref.ID, Category: ref.Category, Difficulty: ref.Difficulty}
		}
		order := ref.OptionOrder
		if len(order) == 0 {
			order = identityOrder(len(q.Options))
		}
		if !validOrder(order, len(q.Options)) {
			return &domain.StaleSessionError{
				QuestionID: ref.ID, Category: ref.Category, Difficulty: ref.Difficulty,
				Reason: "options changed",
			}
		}
		questions[i] = applyOptionOrder(q, order)
		orders[i] = append([]int(nil), order...)
	}

	e.reset()
	e.id = snap.SessionID
	e.category = snap.Category
	e.startedAt = snap.StartedAt
	e.shownAt = e.now()
	e.questions = questions
	e.optionOrders = orders
	e.currentIndex = snap.CurrentIndex
	e.score = snap.Score
	e.totalPossible = snap.TotalPossiblePoints
	e.correctCount = snap.CorrectCount
	e.answers = append([]domain.Answer(nil), snap.Answers...)
	e.hintsRevealed = make([]int, len(questions))
	copy(e.hintsRevealed, snap.HintsRevealed)
	if e.id == "" {
		e.id = e.newID()
	}
	e.state = StateInProgress
	if snap.AnswerSubmitted {
		e.state = StateAnswerSubmitted
	}
	return nil
}

// checkSnapshot verifies the counters in snap agree with each other before anything is resolved.
func checkSnapshot(snap domain.Snapshot) error {
	invalid := func(format string, args ...any) error {
		return &domain.ValidationError{Field: "snapshot", Reason: fmt.Sprintf(format, args...)}
	}
	n := len(snap.Questions)
	if n == 0 {
		return invalid("no questions")
	}
	if snap.CurrentIndex < 0 || snap.CurrentIndex >= n {
		return invalid("current index %d outside %d questions", snap.CurrentIndex, n)
	}
	wantAnswers := snap.CurrentIndex
	if snap.AnswerSubmitted {
		wantAnswers++
	}
	if len(snap.Answers) != wantAnswers {
		return invalid("%d answers recorded, expected %d", len(snap.Answers), wantAnswers)
	}
	score, correct := 0, 0
	for i, a := range snap.Answers {
		if a.QuestionID != snap.Questions[i].ID {
			return invalid("answer %d is for %q, expected %q", i, a.QuestionID, snap.Questions[i].ID)
		}
		score += a.PointsAwarded
		if a.IsCorrect {
			correct++
		}
	}
	if score != snap.Score || correct != snap.CorrectCount {
		return invalid("score or correct count disagrees with answers")
	}
	if snap.Score > snap.TotalPossiblePoints {
		return invalid("score %d exceeds total possible %d", snap.Score, snap.TotalPossiblePoints)
	}
	if len(snap.HintsRevealed) != 0 && len(snap.HintsRevealed) != n {
		return invalid("%d hint counts for %d questions", len(snap.HintsRevealed), n)
	}
	for i, count := range snap.HintsRevealed {
		if count < 0 {
			return invalid("negative hint count for question %d", i)
		}
	}
	return nil
}
