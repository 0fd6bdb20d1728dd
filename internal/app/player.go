package app

import (
	"context"
	"errors"
	"log/slog"

	"quizpack/internal/domain"
)

// Player drives one Engine for a presentation surface (WebSocket connection, terminal).
// It draws questions from the resolver's merged view, autosaves the session after every
// step and records results on completion. Persistence failures never fail a step; they
// are logged and passed to the warn callback.
type Player struct {
	engine   *Engine
	resolver *PackResolver
	tracker  *Tracker
	auth     Authenticator
	logger   *slog.Logger
	warn     func(string)
}

// PlayerOptions are optional collaborators of a Player.
type PlayerOptions struct {
	Logger *slog.Logger
	// Warn receives user-facing notices such as "progress not saved".
	Warn func(string)
}

// ProgressNotSaved is the notice sent when a snapshot or result could not be stored.
const ProgressNotSaved = "progress not saved"

func NewPlayer(engine *Engine, resolver *PackResolver, tracker *Tracker, auth Authenticator, opts PlayerOptions) *Player {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Warn == nil {
		opts.Warn = func(string) {}
	}
	return &Player{
		engine:   engine,
		resolver: resolver,
		tracker:  tracker,
		auth:     auth,
		logger:   opts.Logger,
		warn:     opts.Warn,
	}
}

// Step is the outcome of moving past an answered question.
type Step struct {
	Complete bool
	Question domain.Question
	Results  domain.Results
	NewBest  bool
}

func (p *Player) Start(ctx context.Context, opts StartOptions) (domain.Question, error) {
	if err := p.engine.Start(p.resolver.MergedQuestions(p.auth), opts); err != nil {
		return domain.Question{}, err
	}
	p.autosave(ctx)
	return p.engine.Current()
}

func (p *Player) Current() (domain.Question, error) {
	return p.engine.Current()
}

func (p *Player) Status() SessionStatus {
	return p.engine.Status()
}

func (p *Player) Answer(ctx context.Context, index int) (domain.Feedback, error) {
	fb, err := p.engine.SubmitAnswer(index)
	if err != nil {
		return domain.Feedback{}, err
	}
	p.autosave(ctx)
	return fb, nil
}

func (p *Player) Hint(ctx context.Context) (string, bool, error) {
	hint, ok, err := p.engine.RevealHint()
	if err != nil || !ok {
		return hint, ok, err
	}
	p.autosave(ctx)
	return hint, true, nil
}

// Next advances the session. On completion the results are recorded once and the
// saved snapshot is cleared.
func (p *Player) Next(ctx context.Context) (Step, error) {
	complete, err := p.engine.Advance()
	if err != nil {
		return Step{}, err
	}
	if !complete {
		p.autosave(ctx)
		q, err := p.engine.Current()
		return Step{Question: q}, err
	}

	res, err := p.engine.Results()
	if err != nil {
		return Step{}, err
	}
	newBest, err := p.tracker.RecordResults(ctx, res)
	if err != nil {
		p.logger.Warn(ProgressNotSaved, "session_id", res.SessionID, "error", err)
		p.warn(ProgressNotSaved)
	}
	return Step{Complete: true, Results: res, NewBest: newBest}, nil
}

// HasSavedSession reports whether an incomplete session snapshot exists.
func (p *Player) HasSavedSession(ctx context.Context) bool {
	_, ok, err := p.tracker.LoadSnapshot(ctx)
	if err != nil {
		p.logger.Warn("session snapshot unreadable", "error", err)
		return false
	}
	return ok
}

// Resume restores the saved incomplete session. A snapshot that no longer resolves
// against the current packs is discarded and the stale error returned.
func (p *Player) Resume(ctx context.Context) (domain.Question, error) {
	snap, ok, err := p.tracker.LoadSnapshot(ctx)
	if err != nil {
		return domain.Question{}, err
	}
	if !ok {
		return domain.Question{}, domain.ErrNoSavedSession
	}
	if err := p.engine.Restore(snap, p.resolver.MergedQuestions(p.auth)); err != nil {
		if errors.Is(err, domain.ErrStaleSession) || errors.Is(err, domain.ErrValidation) {
			p.logger.Info("discarding saved session", "session_id", snap.SessionID, "error", err)
			if cerr := p.tracker.ClearSnapshot(ctx); cerr != nil {
				p.logger.Warn("session snapshot not cleared", "error", cerr)
			}
		}
		return domain.Question{}, err
	}
	return p.engine.Current()
}

// Abandon ends the session without recording results and forgets the snapshot.
func (p *Player) Abandon(ctx context.Context) {
	p.engine.Abandon()
	if err := p.tracker.ClearSnapshot(ctx); err != nil {
		p.logger.Warn("session snapshot not cleared", "error", err)
	}
}

func (p *Player) autosave(ctx context.Context) {
	snap, err := p.engine.Export()
	if err != nil {
		return
	}
	if err := p.tracker.SaveSnapshot(ctx, snap); err != nil {
		p.logger.Warn(ProgressNotSaved, "session_id", snap.SessionID, "error", err)
		p.warn(ProgressNotSaved)
	}
}
