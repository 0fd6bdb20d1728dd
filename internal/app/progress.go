package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"quizpack/internal/domain"
)

const maxQuestionReports = 200

// Tracker persists high scores, aggregate statistics, the incomplete-session snapshot and
// question reports. Every method returns storage errors; callers are expected to log them
// and carry on, since a lost save must never interrupt play.
type Tracker struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewTracker(store Store, logger *slog.Logger) *Tracker {
	return NewTrackerWithClock(store, logger, time.Now)
}

// NewTrackerWithClock is test-only for deterministic timestamps.
func NewTrackerWithClock(store Store, logger *slog.Logger, now func() time.Time) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: store, logger: logger, now: now}
}

// RecordResults folds a completed session into the high scores and statistics and clears
// the incomplete-session snapshot. It reports whether the result is a new category best.
// A value that cannot be loaded is left as stored and its error returned.
func (t *Tracker) RecordResults(ctx context.Context, res domain.Results) (bool, error) {
	var errs []error

	newBest, err := t.recordHighScore(ctx, res)
	if err != nil {
		errs = append(errs, err)
	}
	if err := t.recordStats(ctx, res); err != nil {
		errs = append(errs, err)
	}
	if err := t.ClearSnapshot(ctx); err != nil {
		errs = append(errs, err)
	}
	return newBest, errors.Join(errs...)
}

func (t *Tracker) recordHighScore(ctx context.Context, res domain.Results) (bool, error) {
	scores, err := t.HighScores(ctx)
	if err != nil {
		return false, err
	}
	best, had := scores[res.Category]
	if had && (res.Score < best.Score || (res.Score == best.Score && res.Percentage <= best.Percentage)) {
		return false, nil
	}
	scores[res.Category] = domain.HighScore{
		Score:         res.Score,
		Percentage:    res.Percentage,
		CorrectCount:  res.CorrectCount,
		QuestionCount: res.QuestionCount,
		AchievedAt:    res.FinishedAt,
	}
	if err := t.store.SaveJSON(ctx, KeyHighScores, scores); err != nil {
		return true, fmt.Errorf("save high scores: %w", err)
	}
	return true, nil
}

func (t *Tracker) recordStats(ctx context.Context, res domain.Results) error {
	stats, err := t.Stats(ctx)
	if err != nil {
		return err
	}
	stats.QuizzesCompleted++
	stats.QuestionsAnswered += len(res.Answers)
	stats.CorrectAnswers += res.CorrectCount
	stats.TotalPoints += res.Score
	stats.HintsUsed += res.HintsUsed
	stats.BestStreak = max(stats.BestStreak, res.BestStreak)
	for _, a := range res.Answers {
		stats.TotalTimeMs += a.TimeSpentMs
	}
	cat := stats.Categories[res.Category]
	cat.Played++
	cat.Answered += len(res.Answers)
	cat.Correct += res.CorrectCount
	stats.Categories[res.Category] = cat
	stats.LastPlayedAt = res.FinishedAt
	if err := t.store.SaveJSON(ctx, KeyStats, stats); err != nil {
		return fmt.Errorf("save stats: %w", err)
	}
	return nil
}

func (t *Tracker) HighScores(ctx context.Context) (map[string]domain.HighScore, error) {
	scores := make(map[string]domain.HighScore)
	if _, err := t.store.LoadJSON(ctx, KeyHighScores, &scores); err != nil {
		return make(map[string]domain.HighScore), fmt.Errorf("load high scores: %w", err)
	}
	return scores, nil
}

func (t *Tracker) Stats(ctx context.Context) (domain.Stats, error) {
	var stats domain.Stats
	_, err := t.store.LoadJSON(ctx, KeyStats, &stats)
	if err != nil {
		stats = domain.Stats{}
		err = fmt.Errorf("load stats: %w", err)
	}
	if stats.Categories == nil {
		stats.Categories = make(map[string]domain.CategoryStat)
	}
	return stats, err
}

// SaveSnapshot stores the incomplete session so it can be resumed later.
func (t *Tracker) SaveSnapshot(ctx context.Context, snap domain.Snapshot) error {
	if err := t.store.SaveJSON(ctx, KeyIncompleteSession, snap); err != nil {
		return fmt.Errorf("save session snapshot: %w", err)
	}
	return nil
}

func (t *Tracker) LoadSnapshot(ctx context.Context) (domain.Snapshot, bool, error) {
	var snap domain.Snapshot
	ok, err := t.store.LoadJSON(ctx, KeyIncompleteSession, &snap)
	if err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("load session snapshot: %w", err)
	}
	return snap, ok, nil
}

func (t *Tracker) ClearSnapshot(ctx context.Context) error {
	if err := t.store.Remove(ctx, KeyIncompleteSession); err != nil {
		return fmt.Errorf("clear session snapshot: %w", err)
	}
	return nil
}

// ReportQuestion appends to the question-report log, keeping the most recent entries.
func (t *Tracker) ReportQuestion(ctx context.Context, report domain.QuestionReport) error {
	if strings.TrimSpace(report.QuestionID) == "" {
		return &domain.ValidationError{Field: "questionId", Reason: "missing"}
	}
	if strings.TrimSpace(report.Reason) == "" {
		return &domain.ValidationError{QuestionID: report.QuestionID, Field: "reason", Reason: "missing"}
	}
	if report.ReportedAt.IsZero() {
		report.ReportedAt = t.now()
	}

	reports, err := t.Reports(ctx)
	if err != nil {
		return err
	}
	reports = append(reports, report)
	if len(reports) > maxQuestionReports {
		reports = reports[len(reports)-maxQuestionReports:]
	}
	if err := t.store.SaveJSON(ctx, KeyQuestionReports, reports); err != nil {
		return fmt.Errorf("save question report: %w", err)
	}
	t.logger.Info("question reported", "question_id", report.QuestionID, "pack_id", report.PackID)
	return nil
}

func (t *Tracker) Reports(ctx context.Context) ([]domain.QuestionReport, error) {
	var reports []domain.QuestionReport
	if _, err := t.store.LoadJSON(ctx, KeyQuestionReports, &reports); err != nil {
		return nil, fmt.Errorf("load question reports: %w", err)
	}
	return reports, nil
}
