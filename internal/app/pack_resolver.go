package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"quizpack/internal/domain"
)

// DefaultCacheTTL is how long a remotely fetched pack stays in the pack cache.
const DefaultCacheTTL = 7 * 24 * time.Hour

const discoveryConcurrency = 4

// PackFetcher talks to the remote pack endpoint.
type PackFetcher interface {
	// FetchPack returns the raw pack payload; HTTP failures are *domain.FetchError.
	FetchPack(ctx context.Context, endpoint, credential, packID string) ([]byte, error)
	// ListPackFiles returns the ids of the pack files published under endpoint.
	ListPackFiles(ctx context.Context, endpoint, credential string) ([]string, error)
}

type ResolverOptions struct {
	CacheTTL time.Duration
	Logger   *slog.Logger
	Clock    func() time.Time
}

// PackResolver owns the builtin, api and upload pack tables plus their metadata
// and produces the merged, authentication-filtered question view.
type PackResolver struct {
	store    Store
	fetcher  PackFetcher
	logger   *slog.Logger
	now      func() time.Time
	cacheTTL time.Duration
	sf       singleflight.Group

	mu     sync.RWMutex
	tables map[domain.PackSource]*packTable
	meta   map[string]*domain.PackMeta
	// epoch advances on Reset; gens[packID] advances when a pack is disabled or removed.
	// A remote fetch that observes either change on completion is discarded.
	epoch uint64
	gens  map[string]uint64
}

type packTable struct {
	order []string
	packs map[string]domain.Pack
}

func newPackTable() *packTable {
	return &packTable{packs: make(map[string]domain.Pack)}
}

func (t *packTable) put(pack domain.Pack) {
	if _, ok := t.packs[pack.ID]; !ok {
		t.order = append(t.order, pack.ID)
	}
	t.packs[pack.ID] = pack
}

func (t *packTable) remove(packID string) bool {
	if _, ok := t.packs[packID]; !ok {
		return false
	}
	delete(t.packs, packID)
	for i, id := range t.order {
		if id == packID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

func NewPackResolver(store Store, fetcher PackFetcher, opts ResolverOptions) *PackResolver {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	r := &PackResolver{
		store:    store,
		fetcher:  fetcher,
		logger:   opts.Logger,
		now:      opts.Clock,
		cacheTTL: opts.CacheTTL,
		meta:     make(map[string]*domain.PackMeta),
		gens:     make(map[string]uint64),
		tables:   make(map[domain.PackSource]*packTable, len(domain.Sources)),
	}
	for _, src := range domain.Sources {
		r.tables[src] = newPackTable()
	}
	return r
}

// RegisterBuiltinPack installs a statically authored pack. Re-registering an id overwrites it.
// Empty question categories and points are filled from the category key and difficulty.
func (r *PackResolver) RegisterBuiltinPack(pack domain.Pack) error {
	if strings.TrimSpace(pack.ID) == "" {
		return &domain.ValidationError{Field: "packId", Reason: "missing"}
	}
	if len(pack.Categories) == 0 {
		return &domain.ValidationError{PackID: pack.ID, Field: "categories", Reason: "must map category to questions"}
	}
	for name, qs := range pack.Categories {
		if strings.TrimSpace(name) == "" {
			return &domain.ValidationError{PackID: pack.ID, Field: "categories", Reason: "empty category name"}
		}
		if qs == nil {
			return &domain.ValidationError{PackID: pack.ID, Field: "categories." + name, Reason: "must be a question list"}
		}
	}
	if pack.Name == "" {
		pack.Name = pack.ID
	}

	stamped := stampPack(pack, domain.SourceBuiltin)
	for name, qs := range stamped.Categories {
		for i := range qs {
			if qs[i].Category == "" {
				qs[i].Category = name
			}
			if qs[i].Points == 0 {
				qs[i].Points = qs[i].Difficulty.DefaultPoints()
			}
		}
	}

	r.mu.Lock()
	meta := r.installLocked(stamped, domain.SourceBuiltin, nil)
	r.mu.Unlock()

	r.logger.Debug("registered builtin pack", "pack_id", meta.ID, "questions", meta.QuestionCount)
	return nil
}

// LoadRemotePack fetches, validates and caches an api pack. Concurrent loads of the same
// pack share one fetch, which a canceled caller does not abort. Fetch and validation failures leave existing data untouched.
func (r *PackResolver) LoadRemotePack(ctx context.Context, endpoint, credential, packID string) (domain.Pack, error) {
	if r.fetcher == nil {
		return domain.Pack{}, &domain.FetchError{URL: endpoint, Err: errors.New("no remote fetcher configured")}
	}
	// The shared load outlives any single caller; each caller stops waiting on its own ctx.
	ch := r.sf.DoChan(endpoint+"|"+packID, func() (any, error) {
		return r.loadRemote(context.WithoutCancel(ctx), endpoint, credential, packID)
	})
	select {
	case <-ctx.Done():
		return domain.Pack{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.Pack{}, res.Err
		}
		return res.Val.(domain.Pack), nil
	}
}

func (r *PackResolver) loadRemote(ctx context.Context, endpoint, credential, packID string) (domain.Pack, error) {
	r.mu.RLock()
	epoch, gen := r.epoch, r.gens[packID]
	r.mu.RUnlock()

	data, err := r.fetcher.FetchPack(ctx, endpoint, credential, packID)
	if err != nil {
		return domain.Pack{}, err
	}
	pack, err := ParsePack(data)
	if err != nil {
		return domain.Pack{}, err
	}
	pref := r.loadPreference(ctx, pack.ID)
	pack = stampPack(pack, domain.SourceAPI)

	r.mu.Lock()
	if r.epoch != epoch || r.gens[packID] != gen {
		r.mu.Unlock()
		r.logger.Info("discarding stale remote pack", "pack_id", pack.ID)
		return domain.Pack{}, domain.ErrFetchAbandoned
	}
	if err := r.checkNotBuiltinLocked(pack.ID); err != nil {
		r.mu.Unlock()
		return domain.Pack{}, err
	}
	meta := r.installLocked(pack, domain.SourceAPI, pref)
	r.mu.Unlock()

	now := r.now()
	expires := now.Add(r.cacheTTL)
	r.saveCache(ctx, pack, domain.SourceAPI, now, &expires)
	r.logger.Info("loaded remote pack", "pack_id", meta.ID, "questions", meta.QuestionCount)
	return pack, nil
}

// LoadUploadedPack validates a user-provided pack file and keeps it until removed.
// Payloads without a packId get "custom-<unix millis>".
func (r *PackResolver) LoadUploadedPack(ctx context.Context, data []byte) (domain.Pack, error) {
	pack, err := parsePack(data, func() string {
		return "custom-" + strconv.FormatInt(r.now().UnixMilli(), 10)
	})
	if err != nil {
		return domain.Pack{}, err
	}
	pref := r.loadPreference(ctx, pack.ID)
	pack = stampPack(pack, domain.SourceUpload)

	r.mu.Lock()
	if err := r.checkNotBuiltinLocked(pack.ID); err != nil {
		r.mu.Unlock()
		return domain.Pack{}, err
	}
	meta := r.installLocked(pack, domain.SourceUpload, pref)
	r.mu.Unlock()

	r.saveCache(ctx, pack, domain.SourceUpload, r.now(), nil)
	r.logger.Info("loaded uploaded pack", "pack_id", meta.ID, "questions", meta.QuestionCount)
	return pack, nil
}

// DiscoveryResult collects the outcome of DiscoverRemotePacks.
type DiscoveryResult struct {
	Loaded []string         `json:"loaded"`
	Failed map[string]error `json:"-"`
}

// DiscoverRemotePacks loads every pack file listed at endpoint. Individual failures are
// collected in Failed; an authentication failure aborts the whole run and is returned.
func (r *PackResolver) DiscoverRemotePacks(ctx context.Context, endpoint, credential string) (DiscoveryResult, error) {
	result := DiscoveryResult{Failed: make(map[string]error)}
	if r.fetcher == nil {
		return result, &domain.FetchError{URL: endpoint, Err: errors.New("no remote fetcher configured")}
	}
	ids, err := r.fetcher.ListPackFiles(ctx, endpoint, credential)
	if err != nil {
		return result, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(discoveryConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			pack, err := r.LoadRemotePack(gctx, endpoint, credential, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, domain.ErrAuth) {
					return err
				}
				result.Failed[id] = err
				return nil
			}
			result.Loaded = append(result.Loaded, pack.ID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	sort.Strings(result.Loaded)
	for id, ferr := range result.Failed {
		r.logger.Warn("remote pack skipped during discovery", "pack_id", id, "error", ferr)
	}
	return result, nil
}

// SetPackEnabled toggles a pack's visibility without touching its cached data.
func (r *PackResolver) SetPackEnabled(ctx context.Context, packID string, enabled bool) error {
	r.mu.Lock()
	meta, ok := r.meta[packID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrPackNotFound, packID)
	}
	meta.Enabled = enabled
	if !enabled {
		r.gens[packID]++
	}
	r.mu.Unlock()

	if err := r.store.SaveJSON(ctx, PackPreferenceKey(packID), enabled); err != nil {
		r.logger.Warn("pack preference not saved", "pack_id", packID, "error", err)
	}
	return nil
}

// RemoveUploadedPack deletes an uploaded pack from memory, metadata and cache.
func (r *PackResolver) RemoveUploadedPack(ctx context.Context, packID string) error {
	r.mu.Lock()
	meta, ok := r.meta[packID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrPackNotFound, packID)
	}
	if meta.Source != domain.SourceUpload {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", domain.ErrPackNotRemovable, packID, meta.Source)
	}
	r.tables[domain.SourceUpload].remove(packID)
	delete(r.meta, packID)
	r.gens[packID]++
	r.mu.Unlock()

	for _, key := range []string{PackCacheKey(packID), PackPreferenceKey(packID)} {
		if err := r.store.Remove(ctx, key); err != nil {
			r.logger.Warn("pack cache entry not removed", "key", key, "error", err)
		}
	}
	return nil
}

// MergedQuestions returns category -> questions across enabled packs, concatenated in
// builtin, api, upload order. Api packs are included only when auth reports authenticated.
// The returned questions share option slices with the pack tables and must not be mutated.
func (r *PackResolver) MergedQuestions(auth Authenticator) map[string][]domain.Question {
	authed := auth != nil && auth.IsAuthenticated()

	r.mu.RLock()
	defer r.mu.RUnlock()

	merged := make(map[string][]domain.Question)
	for _, src := range domain.Sources {
		if src == domain.SourceAPI && !authed {
			continue
		}
		table := r.tables[src]
		for _, id := range table.order {
			if m := r.meta[id]; m == nil || !m.Enabled {
				continue
			}
			for name, qs := range table.packs[id].Categories {
				merged[name] = append(merged[name], qs...)
			}
		}
	}
	return merged
}

// CategorySummary is a category name with its merged question count.
type CategorySummary struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func (r *PackResolver) Categories(auth Authenticator) []CategorySummary {
	merged := r.MergedQuestions(auth)
	out := make([]CategorySummary, 0, len(merged))
	for _, name := range sortedKeys(merged) {
		out = append(out, CategorySummary{Name: name, Count: len(merged[name])})
	}
	return out
}

// Packs lists pack metadata in merge order.
func (r *PackResolver) Packs() []domain.PackMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.PackMeta
	for _, src := range domain.Sources {
		for _, id := range r.tables[src].order {
			if m := r.meta[id]; m != nil {
				out = append(out, *m)
			}
		}
	}
	return out
}

// CacheLoadReport describes what LoadCachedPacks did with each cache entry.
type CacheLoadReport struct {
	Loaded   []string `json:"loaded"`
	Evicted  []string `json:"evicted"`
	Deferred []string `json:"deferred"`
	Skipped  []string `json:"skipped"`
}

// LoadCachedPacks restores api and upload packs from the pack cache. Expired api entries
// are evicted; unexpired api entries are left in the cache but not loaded while auth is
// unauthenticated. Packs already in memory are not replaced. Saved enable preferences are
// applied to every known pack, builtins included.
func (r *PackResolver) LoadCachedPacks(ctx context.Context, auth Authenticator) (CacheLoadReport, error) {
	var report CacheLoadReport
	authed := auth != nil && auth.IsAuthenticated()

	keys, err := r.store.Keys(ctx, PackCachePrefix)
	if err != nil {
		return report, fmt.Errorf("list pack cache: %w", err)
	}
	now := r.now()
	for _, key := range keys {
		packID := strings.TrimPrefix(key, PackCachePrefix)
		var entry domain.CacheEntry[domain.CachedPack]
		ok, err := r.store.LoadJSON(ctx, key, &entry)
		if err != nil {
			r.logger.Warn("unreadable pack cache entry", "key", key, "error", err)
			report.Skipped = append(report.Skipped, packID)
			continue
		}
		if !ok {
			continue
		}
		src := entry.Value.Source
		if src == domain.SourceAPI {
			if entry.IsExpired(now) {
				if err := r.store.Remove(ctx, key); err != nil {
					r.logger.Warn("expired pack cache entry not evicted", "key", key, "error", err)
				}
				report.Evicted = append(report.Evicted, packID)
				continue
			}
			if !authed {
				report.Deferred = append(report.Deferred, packID)
				continue
			}
		} else if src != domain.SourceUpload {
			report.Skipped = append(report.Skipped, packID)
			continue
		}
		if err := ValidatePack(entry.Value.Pack); err != nil {
			r.logger.Warn("invalid pack cache entry", "key", key, "error", err)
			report.Skipped = append(report.Skipped, packID)
			continue
		}

		pack := stampPack(entry.Value.Pack, src)
		r.mu.Lock()
		if _, present := r.tables[src].packs[pack.ID]; present {
			r.mu.Unlock()
			continue
		}
		if err := r.checkNotBuiltinLocked(pack.ID); err != nil {
			r.mu.Unlock()
			r.logger.Warn("cached pack shadows a builtin pack", "pack_id", pack.ID)
			report.Skipped = append(report.Skipped, packID)
			continue
		}
		r.installLocked(pack, src, nil)
		r.mu.Unlock()
		report.Loaded = append(report.Loaded, pack.ID)
	}

	r.applyPreferences(ctx)
	return report, nil
}

// Reset drops every api and upload pack from memory. Builtin packs stay.
// Cached entries are kept; fetches still in flight are discarded when they finish.
func (r *PackResolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, src := range []domain.PackSource{domain.SourceAPI, domain.SourceUpload} {
		for _, id := range r.tables[src].order {
			delete(r.meta, id)
		}
		r.tables[src] = newPackTable()
	}
	r.epoch++
}

// checkNotBuiltinLocked rejects api and upload packs that reuse a builtin pack id.
func (r *PackResolver) checkNotBuiltinLocked(packID string) error {
	if _, ok := r.tables[domain.SourceBuiltin].packs[packID]; ok {
		return &domain.ValidationError{PackID: packID, Field: "packId", Reason: "already used by a builtin pack"}
	}
	return nil
}

// installLocked stores pack in its table, evicting any same-id pack from other tables.
// Api and upload packs never reach here with a builtin id; a builtin registered later
// replaces them.
// The enabled flag is taken from pref, then the previous metadata, defaulting to true.
func (r *PackResolver) installLocked(pack domain.Pack, src domain.PackSource, pref *bool) domain.PackMeta {
	for _, other := range domain.Sources {
		if other != src && r.tables[other].remove(pack.ID) {
			r.logger.Warn("pack id collision, replacing", "pack_id", pack.ID, "old_source", other, "new_source", src)
		}
	}
	r.tables[src].put(pack)

	enabled := true
	if prev, ok := r.meta[pack.ID]; ok {
		enabled = prev.Enabled
	}
	if pref != nil {
		enabled = *pref
	}
	meta := domain.PackMeta{
		ID:            pack.ID,
		Name:          pack.Name,
		Version:       pack.Version,
		Author:        pack.Author,
		ContactEmail:  pack.ContactEmail,
		Source:        src,
		Enabled:       enabled,
		QuestionCount: pack.QuestionCount(),
		Categories:    sortedKeys(pack.Categories),
		LoadedAt:      r.now(),
	}
	r.meta[pack.ID] = &meta
	return meta
}

func (r *PackResolver) saveCache(ctx context.Context, pack domain.Pack, src domain.PackSource, cachedAt time.Time, expiresAt *time.Time) {
	entry := domain.CacheEntry[domain.CachedPack]{
		Value:     domain.CachedPack{Pack: pack, Source: src},
		CachedAt:  cachedAt,
		ExpiresAt: expiresAt,
	}
	if err := r.store.SaveJSON(ctx, PackCacheKey(pack.ID), entry); err != nil {
		r.logger.Warn("pack cache not saved", "pack_id", pack.ID, "error", err)
	}
}

func (r *PackResolver) loadPreference(ctx context.Context, packID string) *bool {
	var enabled bool
	ok, err := r.store.LoadJSON(ctx, PackPreferenceKey(packID), &enabled)
	if err != nil {
		r.logger.Warn("pack preference unreadable", "pack_id", packID, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return &enabled
}

func (r *PackResolver) applyPreferences(ctx context.Context) {
	keys, err := r.store.Keys(ctx, PackPreferencePrefix)
	if err != nil {
		r.logger.Warn("pack preferences unreadable", "error", err)
		return
	}
	for _, key := range keys {
		packID := strings.TrimPrefix(key, PackPreferencePrefix)
		pref := r.loadPreference(ctx, packID)
		if pref == nil {
			continue
		}
		r.mu.Lock()
		if m, ok := r.meta[packID]; ok {
			m.Enabled = *pref
		}
		r.mu.Unlock()
	}
}

// stampPack deep-copies pack and records provenance on every question.
func stampPack(pack domain.Pack, src domain.PackSource) domain.Pack {
	out := pack
	out.Categories = make(map[string][]domain.Question, len(pack.Categories))
	for name, qs := range pack.Categories {
		copied := make([]domain.Question, len(qs))
		for i, q := range qs {
			c := q.Clone()
			c.PackID = pack.ID
			c.PackSource = src
			copied[i] = c
		}
		out.Categories[name] = copied
	}
	return out
}
