package app

import "context"

// Store is the persistence gateway (memory, SQLite, Redis, Postgres).
// Values are JSON-encoded by the implementation.
type Store interface {
	// LoadJSON decodes the value at key into dst and reports whether the key existed.
	LoadJSON(ctx context.Context, key string, dst any) (bool, error)
	SaveJSON(ctx context.Context, key string, v any) error
	Remove(ctx context.Context, key string) error
	// Keys lists stored keys starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Authenticator supplies the authentication signal and bearer credential.
// Both calls must be cheap; the resolver calls them on every merge.
type Authenticator interface {
	IsAuthenticated() bool
	Credential() string
}

// StaticAuth is a fixed Authenticator, handy for tests and one-shot CLI runs.
type StaticAuth struct {
	Authenticated bool
	Token         string
}

func (a StaticAuth) IsAuthenticated() bool { return a.Authenticated }
func (a StaticAuth) Credential() string    { return a.Token }

const (
	KeyHighScores        = "quiz:high-scores"
	KeyStats             = "quiz:stats"
	KeyIncompleteSession = "quiz:incomplete-session"
	KeyQuestionReports   = "quiz:question-reports"

	PackCachePrefix      = "quiz:pack-cache:"
	PackPreferencePrefix = "quiz:pack-enabled:"
)

func PackCacheKey(packID string) string      { return PackCachePrefix + packID }
func PackPreferenceKey(packID string) string { return PackPreferencePrefix + packID }
