package app

import (
	"errors"
	"math/rand/v2"
	"reflect"
	"testing"
	"time"

	"quizpack/internal/domain"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func seededRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func newTestEngine(clock *fakeClock) *Engine {
	return NewEngineWithSource(clock.Now, seededRand(1))
}

func testQuestion(id string, d domain.Difficulty, points int, hints ...string) domain.Question {
	return domain.Question{
		ID:                    id,
		Text:                  "Question " + id,
		Options:               []string{"zero", "one", "two", "three"},
		CorrectIndex:          1,
		CorrectExplanation:    "Right: one.",
		IncorrectExplanations: map[int]string{2: "Two is a trap."},
		Category:              "misc",
		Difficulty:            d,
		Points:                points,
		Hints:                 hints,
	}
}

func miscView() map[string][]domain.Question {
	return map[string][]domain.Question{
		"misc": {
			testQuestion("m1", domain.DifficultyMedium, 20),
			testQuestion("e1", domain.DifficultyEasy, 10, "first hint", "second hint"),
			testQuestion("e2", domain.DifficultyEasy, 10),
		},
	}
}

func TestEngineScoresMixedSession(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(clock)
	if err := e.Start(miscView(), StartOptions{Category: "misc"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	selections := []int{1, 2, 0}
	var ids []string
	for i, sel := range selections {
		cur, err := e.Current()
		if err != nil {
			t.Fatalf("current: %v", err)
		}
		ids = append(ids, cur.ID)
		clock.Advance(1500 * time.Millisecond)
		fb, err := e.SubmitAnswer(sel)
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if fb.IsLast != (i == len(selections)-1) {
			t.Fatalf("IsLast wrong at %d", i)
		}
		done, err := e.Advance()
		if err != nil {
			t.Fatalf("advance: %v", err)
		}
		if done != (i == len(selections)-1) {
			t.Fatalf("completion reported at wrong index %d", i)
		}
	}
	if !reflect.DeepEqual(ids, []string{"e1", "e2", "m1"}) {
		t.Fatalf("expected easy questions first in authored order, got %v", ids)
	}

	res, err := e.Results()
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if res.Score != 10 || res.TotalPossiblePoints != 40 || res.CorrectCount != 1 || res.Percentage != 33 {
		t.Fatalf("unexpected results %+v", res)
	}
	if res.ByDifficulty[domain.DifficultyEasy] != (domain.DifficultyResult{Answered: 2, Correct: 1}) {
		t.Fatalf("unexpected easy breakdown %+v", res.ByDifficulty)
	}
	if res.Answers[0].TimeSpentMs != 1500 {
		t.Fatalf("expected 1500ms spent, got %d", res.Answers[0].TimeSpentMs)
	}
	if res.BestStreak != 1 {
		t.Fatalf("expected best streak 1, got %d", res.BestStreak)
	}
	if e.State() != StateComplete {
		t.Fatalf("expected complete, got %s", e.State())
	}
}

func TestEngineFeedbackExplanations(t *testing.T) {
	tests := []struct {
		name     string
		selected int
		want     string
	}{
		{"correct", 1, "Right: one."},
		{"authored incorrect", 2, "Two is a trap."},
		{"default incorrect", 3, DefaultIncorrectFeedback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(newFakeClock())
			if err := e.Start(miscView(), StartOptions{}); err != nil {
				t.Fatalf("start: %v", err)
			}
			fb, err := e.SubmitAnswer(tt.selected)
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			if fb.Explanation != tt.want {
				t.Fatalf("explanation = %q, want %q", fb.Explanation, tt.want)
			}
		})
	}
}

func TestEngineRejectsOutOfSequenceCalls(t *testing.T) {
	e := newTestEngine(newFakeClock())

	if _, err := e.SubmitAnswer(0); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("submit while idle: %v", err)
	}
	if _, err := e.Results(); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("results while idle: %v", err)
	}
	if err := e.Start(miscView(), StartOptions{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.Advance(); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("advance before answering: %v", err)
	}
	if err := e.Start(miscView(), StartOptions{}); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("start while in progress: %v", err)
	}

	if _, err := e.SubmitAnswer(9); !errors.Is(err, domain.ErrOptionNotFound) {
		t.Fatalf("expected ErrOptionNotFound, got %v", err)
	}
	if e.State() != StateInProgress {
		t.Fatalf("out-of-range answer changed state to %s", e.State())
	}

	if _, err := e.SubmitAnswer(1); err != nil {
		t.Fatalf("submit: %v", err)
	}
	before := e.Status()
	_, err := e.SubmitAnswer(0)
	var se *domain.InvalidStateError
	if !errors.As(err, &se) || se.State != "answer_submitted" {
		t.Fatalf("expected InvalidStateError on double submit, got %v", err)
	}
	if after := e.Status(); after != before {
		t.Fatalf("double submit changed session: %+v -> %+v", before, after)
	}
	if _, err := e.Results(); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("results before completion: %v", err)
	}
}

func TestEngineNoQuestions(t *testing.T) {
	e := newTestEngine(newFakeClock())
	err := e.Start(miscView(), StartOptions{Category: "astronomy"})
	var nq *domain.NoQuestionsError
	if !errors.As(err, &nq) || nq.Category != "astronomy" {
		t.Fatalf("expected NoQuestionsError, got %v", err)
	}
	if e.State() != StateIdle {
		t.Fatalf("failed start left state %s", e.State())
	}
	if err := e.Start(nil, StartOptions{}); !errors.Is(err, domain.ErrNoQuestions) {
		t.Fatalf("expected ErrNoQuestions on empty view, got %v", err)
	}
}

func TestEngineAllCategoriesAndRestartAfterComplete(t *testing.T) {
	view := miscView()
	view["art"] = []domain.Question{testQuestion("a1", domain.DifficultyHard, 30)}
	e := newTestEngine(newFakeClock())

	for _, cat := range []string{"", CategoryAll, CategoryRandom} {
		if err := e.Start(view, StartOptions{Category: cat}); err != nil {
			t.Fatalf("start %q: %v", cat, err)
		}
		if st := e.Status(); st.QuestionCount != 4 || st.Category != CategoryAll {
			t.Fatalf("category %q: unexpected status %+v", cat, st)
		}
		e.Abandon()
	}

	if err := e.Start(map[string][]domain.Question{"art": view["art"]}, StartOptions{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.SubmitAnswer(1); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := e.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := e.Start(view, StartOptions{Category: "misc"}); err != nil {
		t.Fatalf("start after complete: %v", err)
	}
	if st := e.Status(); st.Score != 0 || st.CurrentIndex != 0 {
		t.Fatalf("new session did not reset counters: %+v", st)
	}
}

func TestEngineHintsRevealInOrder(t *testing.T) {
	e := newTestEngine(newFakeClock())
	if _, _, err := e.RevealHint(); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("hint while idle: %v", err)
	}
	if err := e.Start(miscView(), StartOptions{}); err != nil {
		t.Fatalf("start: %v", err)
	}

	for _, want := range []string{"first hint", "second hint"} {
		hint, ok, err := e.RevealHint()
		if err != nil || !ok || hint != want {
			t.Fatalf("hint = %q, %v, %v; want %q", hint, ok, err, want)
		}
	}
	if _, ok, err := e.RevealHint(); ok || err != nil {
		t.Fatalf("expected hints exhausted without error, got ok=%v err=%v", ok, err)
	}
	if st := e.Status(); st.HintsRevealed != 2 || st.HintsAvailable != 2 {
		t.Fatalf("unexpected hint status %+v", st)
	}

	// Hints may still be read after answering.
	if _, err := e.SubmitAnswer(1); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, _, err := e.RevealHint(); err != nil {
		t.Fatalf("hint after submit: %v", err)
	}
	for range 2 {
		if _, err := e.Advance(); err != nil {
			t.Fatalf("advance: %v", err)
		}
		if _, err := e.SubmitAnswer(1); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	if _, err := e.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	res, err := e.Results()
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if res.HintsUsed != 2 {
		t.Fatalf("expected 2 hints used, got %d", res.HintsUsed)
	}
}

func TestEngineShuffleKeepsDifficultyOrder(t *testing.T) {
	var qs []domain.Question
	for i, d := range []domain.Difficulty{"hard", "easy", "medium", "easy", "hard", "medium", "easy", "medium", "hard"} {
		qs = append(qs, testQuestion(string(rune('a'+i)), d, d.DefaultPoints()))
	}
	view := map[string][]domain.Question{"misc": qs}

	for seed := uint64(1); seed <= 20; seed++ {
		e := NewEngineWithSource(newFakeClock().Now, seededRand(seed))
		if err := e.Start(view, StartOptions{ShuffleQuestions: true, ShuffleOptions: true}); err != nil {
			t.Fatalf("start: %v", err)
		}
		prev := -1
		for {
			cur, err := e.Current()
			if err != nil {
				t.Fatalf("current: %v", err)
			}
			if cur.Difficulty.Rank() < prev {
				t.Fatalf("seed %d: difficulty went backwards at %s", seed, cur.ID)
			}
			prev = cur.Difficulty.Rank()
			if cur.Options[cur.CorrectIndex] != "one" {
				t.Fatalf("seed %d: correct index not remapped for %s: %v", seed, cur.ID, cur.Options)
			}
			if _, err := e.SubmitAnswer(cur.CorrectIndex); err != nil {
				t.Fatalf("submit: %v", err)
			}
			done, err := e.Advance()
			if err != nil {
				t.Fatalf("advance: %v", err)
			}
			if done {
				break
			}
		}
	}
	if qs[0].Options[1] != "one" || qs[0].CorrectIndex != 1 {
		t.Fatalf("shuffling mutated the source question")
	}
}

func TestShuffleOptionsIsBijection(t *testing.T) {
	src := testQuestion("x", domain.DifficultyEasy, 10)
	for seed := uint64(0); seed < 10; seed++ {
		got, order := ShuffleOptions(src, seededRand(seed))
		if !validOrder(order, len(src.Options)) {
			t.Fatalf("order %v is not a permutation", order)
		}
		for i, orig := range order {
			if got.Options[i] != src.Options[orig] {
				t.Fatalf("option %d is %q, want %q", i, got.Options[i], src.Options[orig])
			}
		}
		if got.Options[got.CorrectIndex] != "one" {
			t.Fatalf("correct option moved away: %+v", got)
		}
		for idx, text := range got.IncorrectExplanations {
			if text == "Two is a trap." && got.Options[idx] != "two" {
				t.Fatalf("explanation not remapped: %+v", got)
			}
		}
	}
}

func TestEngineExportRestoreRoundTrip(t *testing.T) {
	clock := newFakeClock()
	view := miscView()
	e := NewEngineWithSource(clock.Now, seededRand(7))
	if err := e.Start(view, StartOptions{Category: "misc", ShuffleOptions: true}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := e.RevealHint(); err != nil {
		t.Fatalf("hint: %v", err)
	}
	first, _ := e.Current()
	if _, err := e.SubmitAnswer(first.CorrectIndex); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := e.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	second, _ := e.Current()
	snap, err := e.Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if snap.Questions[0].Category != "misc" || snap.Questions[0].Difficulty != domain.DifficultyEasy {
		t.Fatalf("snapshot ref missing composite key: %+v", snap.Questions[0])
	}

	restored := newTestEngine(clock)
	if err := restored.Restore(snap, view); err != nil {
		t.Fatalf("restore: %v", err)
	}
	got, err := restored.Current()
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if !reflect.DeepEqual(got, second) {
		t.Fatalf("restored question differs:\n got %+v\nwant %+v", got, second)
	}
	if before, after := e.Status(), restored.Status(); before != after {
		t.Fatalf("status differs after restore:\n got %+v\nwant %+v", after, before)
	}
	again, err := restored.Export()
	if err != nil {
		t.Fatalf("re-export: %v", err)
	}
	if !reflect.DeepEqual(again, snap) {
		t.Fatalf("re-exported snapshot differs")
	}
}

func TestEngineRestoreAfterSubmitKeepsState(t *testing.T) {
	e := newTestEngine(newFakeClock())
	if err := e.Start(miscView(), StartOptions{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.SubmitAnswer(0); err != nil {
		t.Fatalf("submit: %v", err)
	}
	snap, err := e.Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	restored := newTestEngine(newFakeClock())
	if err := restored.Restore(snap, miscView()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.State() != StateAnswerSubmitted {
		t.Fatalf("expected answer_submitted, got %s", restored.State())
	}
	if _, err := restored.SubmitAnswer(1); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("resubmit after restore: %v", err)
	}
}

func TestEngineRestoreStaleSnapshot(t *testing.T) {
	e := newTestEngine(newFakeClock())
	if err := e.Start(miscView(), StartOptions{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap, err := e.Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	tests := []struct {
		name string
		view func() map[string][]domain.Question
	}{
		{"question removed", func() map[string][]domain.Question {
			v := miscView()
			v["misc"] = v["misc"][:2]
			return v
		}},
		{"difficulty changed", func() map[string][]domain.Question {
			v := miscView()
			v["misc"][0].Difficulty = domain.DifficultyHard
			return v
		}},
		{"options changed", func() map[string][]domain.Question {
			v := miscView()
			v["misc"][1].Options = v["misc"][1].Options[:2]
			return v
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			restored := newTestEngine(newFakeClock())
			err := restored.Restore(snap, tt.view())
			var stale *domain.StaleSessionError
			if !errors.As(err, &stale) {
				t.Fatalf("expected StaleSessionError, got %v", err)
			}
			if restored.State() != StateIdle {
				t.Fatalf("failed restore left state %s", restored.State())
			}
		})
	}
}

func TestEngineRestoreRejectsInconsistentSnapshot(t *testing.T) {
	e := newTestEngine(newFakeClock())
	if err := e.Start(miscView(), StartOptions{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.SubmitAnswer(1); err != nil {
		t.Fatalf("submit: %v", err)
	}
	good, err := e.Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*domain.Snapshot)
	}{
		{"no questions", func(s *domain.Snapshot) { s.Questions = nil }},
		{"index out of range", func(s *domain.Snapshot) { s.CurrentIndex = 5 }},
		{"answer count", func(s *domain.Snapshot) { s.AnswerSubmitted = false }},
		{"score mismatch", func(s *domain.Snapshot) { s.Score = 99 }},
		{"score above total", func(s *domain.Snapshot) { s.TotalPossiblePoints = 0 }},
		{"negative hints", func(s *domain.Snapshot) { s.HintsRevealed = []int{-1, 0, 0} }},
		{"hint counts misaligned", func(s *domain.Snapshot) { s.HintsRevealed = []int{1} }},
		{"answer for other question", func(s *domain.Snapshot) { s.Answers[0].QuestionID = "m1" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := good
			snap.Questions = append([]domain.QuestionRef(nil), good.Questions...)
			snap.Answers = append([]domain.Answer(nil), good.Answers...)
			tt.mutate(&snap)
			restored := newTestEngine(newFakeClock())
			if err := restored.Restore(snap, miscView()); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestEngineAbandon(t *testing.T) {
	e := newTestEngine(newFakeClock())
	if err := e.Start(miscView(), StartOptions{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	e.Abandon()
	if e.State() != StateIdle {
		t.Fatalf("expected idle after abandon, got %s", e.State())
	}
	if _, err := e.Export(); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("export after abandon: %v", err)
	}
}

func TestEngineHintsTrackedPerQuestionNotPerID(t *testing.T) {
	alpha := testQuestion("q1", domain.DifficultyEasy, 10, "alpha hint")
	alpha.Category = "alpha"
	beta := testQuestion("q1", domain.DifficultyEasy, 10, "beta hint")
	beta.Category = "beta"
	view := map[string][]domain.Question{"alpha": {alpha}, "beta": {beta}}

	e := newTestEngine(newFakeClock())
	if err := e.Start(view, StartOptions{Category: CategoryAll}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if hint, ok, err := e.RevealHint(); err != nil || !ok || hint != "alpha hint" {
		t.Fatalf("first hint = %q, %v, %v", hint, ok, err)
	}
	if _, err := e.SubmitAnswer(1); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := e.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if st := e.Status(); st.HintsRevealed != 0 || st.HintsAvailable != 1 {
		t.Fatalf("second q1 inherited hint count: %+v", st)
	}

	snap, err := e.Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !reflect.DeepEqual(snap.HintsRevealed, []int{1, 0}) {
		t.Fatalf("hint counts = %v", snap.HintsRevealed)
	}
	restored := newTestEngine(newFakeClock())
	if err := restored.Restore(snap, view); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if hint, ok, err := restored.RevealHint(); err != nil || !ok || hint != "beta hint" {
		t.Fatalf("hint after restore = %q, %v, %v", hint, ok, err)
	}
}
