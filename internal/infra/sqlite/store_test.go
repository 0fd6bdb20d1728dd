package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"quizpack/internal/app"
	"quizpack/internal/domain"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	scores := map[string]domain.HighScore{"science": {Score: 40, Percentage: 80}}
	if err := store.SaveJSON(ctx, app.KeyHighScores, scores); err != nil {
		t.Fatalf("save: %v", err)
	}
	scores["science"] = domain.HighScore{Score: 50, Percentage: 100}
	if err := store.SaveJSON(ctx, app.KeyHighScores, scores); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	var got map[string]domain.HighScore
	ok, err := store.LoadJSON(ctx, app.KeyHighScores, &got)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got["science"].Score != 50 {
		t.Fatalf("expected overwritten score 50, got %+v", got)
	}

	if err := store.Remove(ctx, app.KeyHighScores); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if ok, err := store.LoadJSON(ctx, app.KeyHighScores, &got); ok || err != nil {
		t.Fatalf("expected miss after remove, ok=%v err=%v", ok, err)
	}
}

func TestStoreKeysAndReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "quiz.db")

	store, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	expires := time.Now().Add(time.Hour)
	entry := domain.CacheEntry[domain.CachedPack]{
		Value:     domain.CachedPack{Pack: domain.Pack{ID: "remote", Name: "Remote"}, Source: domain.SourceAPI},
		CachedAt:  time.Now(),
		ExpiresAt: &expires,
	}
	if err := store.SaveJSON(ctx, app.PackCacheKey("remote"), entry); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveJSON(ctx, app.PackPreferenceKey("remote"), false); err != nil {
		t.Fatalf("save pref: %v", err)
	}
	store.Close()

	reopened, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	keys, err := reopened.Keys(ctx, app.PackCachePrefix)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != app.PackCacheKey("remote") {
		t.Fatalf("unexpected keys %v", keys)
	}

	var got domain.CacheEntry[domain.CachedPack]
	if _, err := reopened.LoadJSON(ctx, keys[0], &got); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Value.Source != domain.SourceAPI || got.ExpiresAt == nil {
		t.Fatalf("cache entry did not survive reopen: %+v", got)
	}
}
