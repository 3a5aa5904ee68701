// Package overlay keeps external ICS feeds parsed in memory and answers
// "what is happening outside the schedule this week".
package overlay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"raspored/internal/config"
	"raspored/internal/ics"
	appLog "raspored/internal/log"
	"raspored/internal/metrics"
	"raspored/internal/model"
	"raspored/internal/week"
)

// Fetcher downloads one feed.
type Fetcher interface {
	Fetch(ctx context.Context, feed ics.Feed) (ics.Payload, error)
}

// refreshTimeout bounds one scheduled refresh of all feeds.
const refreshTimeout = 2 * time.Minute

type Service struct {
	fetcher Fetcher
	metrics *metrics.Metrics

	mu      sync.RWMutex
	loc     *time.Location
	feeds   []ics.Feed
	entries map[string][]ics.Entry
	// byWeek memoizes expansions until the next refresh.
	byWeek map[week.ISOWeek][]model.Overlay

	cronMu  sync.Mutex
	cron    *cron.Cron
	cronID  cron.EntryID
	cronCtx context.Context
}

func NewService(fetcher Fetcher, loc *time.Location, m *metrics.Metrics) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		fetcher: fetcher,
		metrics: m,
		loc:     loc,
		entries: make(map[string][]ics.Entry),
		byWeek:  make(map[week.ISOWeek][]model.Overlay),
	}
}

// SetFeeds replaces the configured feeds. Entries of removed feeds are
// forgotten; new feeds appear after the next Refresh.
func (s *Service) SetFeeds(feeds []ics.Feed) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make(map[string]bool, len(feeds))
	for _, f := range feeds {
		keep[f.ID] = true
	}
	for id := range s.entries {
		if !keep[id] {
			delete(s.entries, id)
		}
	}
	s.feeds = append([]ics.Feed(nil), feeds...)
	s.invalidateLocked()
}

// SetLocation changes the display time zone.
func (s *Service) SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	s.mu.Lock()
	s.loc = loc
	s.invalidateLocked()
	s.mu.Unlock()
}

// Refresh fetches and parses every feed. A feed that fails keeps its
// previous entries; the failures are returned joined.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.RLock()
	feeds := append([]ics.Feed(nil), s.feeds...)
	s.mu.RUnlock()

	var errs []error
	fresh := make(map[string][]ics.Entry, len(feeds))
	for _, feed := range feeds {
		entries, err := s.load(ctx, feed)
		if err != nil {
			appLog.Error("overlay feed refresh failed", err, "feed", feed.ID, "url", ics.RedactURL(feed.URL))
			s.count(feed.ID, "error")
			errs = append(errs, fmt.Errorf("feed %s: %w", feed.ID, err))
			continue
		}
		s.count(feed.ID, "ok")
		fresh[feed.ID] = entries
	}

	s.mu.Lock()
	// feeds removed by SetFeeds during the fetch are not written back
	current := make(map[string]bool, len(s.feeds))
	for _, f := range s.feeds {
		current[f.ID] = true
	}
	total := 0
	for id, entries := range fresh {
		if current[id] {
			s.entries[id] = entries
		}
	}
	for _, entries := range s.entries {
		total += len(entries)
	}
	s.invalidateLocked()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.OverlayEntries.Set(float64(total))
	}
	appLog.Info("overlay refresh done", "feeds", len(feeds), "failed", len(errs), "entries", total)
	return errors.Join(errs...)
}

func (s *Service) load(ctx context.Context, feed ics.Feed) ([]ics.Entry, error) {
	payload, err := s.fetcher.Fetch(ctx, feed)
	if err != nil {
		return nil, err
	}
	return ics.Parse(feed.ID, payload.Body)
}

func (s *Service) count(feed, result string) {
	if s.metrics != nil {
		s.metrics.OverlayFetches.WithLabelValues(feed, result).Inc()
	}
}

// ForWeek returns the overlays touching wk, sorted by start.
func (s *Service) ForWeek(_ context.Context, wk week.ISOWeek) []model.Overlay {
	monday, err := wk.Monday()
	if err != nil {
		return nil
	}

	s.mu.RLock()
	cached, ok := s.byWeek[wk]
	s.mu.RUnlock()
	if ok {
		return cached
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.byWeek[wk]; ok {
		return cached
	}
	var all []ics.Entry
	for _, feed := range s.feeds {
		all = append(all, s.entries[feed.ID]...)
	}
	from := monday.In(s.loc)
	out := ics.Expand(all, from, monday.AddDays(7).In(s.loc), s.loc)
	if out == nil {
		out = []model.Overlay{}
	}
	s.byWeek[wk] = out
	return out
}

func (s *Service) invalidateLocked() {
	s.byWeek = make(map[week.ISOWeek][]model.Overlay)
}

// Start refreshes once and then on every tick of spec (standard 5-field
// cron syntax) until ctx is canceled.
func (s *Service) Start(ctx context.Context, spec string) error {
	s.cronMu.Lock()
	if s.cron != nil {
		s.cronMu.Unlock()
		return errors.New("overlay refresh already started")
	}
	c := cron.New()
	s.cron = c
	s.cronCtx = ctx
	s.cronMu.Unlock()

	if err := s.Reschedule(spec); err != nil {
		return err
	}
	c.Start()

	go func() {
		if err := s.Refresh(ctx); err != nil {
			appLog.Warn("initial overlay refresh incomplete", "cause", err.Error())
		}
	}()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		appLog.Debug("overlay scheduler stopped")
	}()
	return nil
}

// Reschedule swaps the refresh schedule of a started service.
func (s *Service) Reschedule(spec string) error {
	s.cronMu.Lock()
	defer s.cronMu.Unlock()
	if s.cron == nil {
		return errors.New("overlay refresh not started")
	}

	ctx := s.cronCtx
	id, err := s.cron.AddFunc(spec, func() {
		rctx, cancel := context.WithTimeout(ctx, refreshTimeout)
		defer cancel()
		if err := s.Refresh(rctx); err != nil {
			appLog.Warn("scheduled overlay refresh incomplete", "cause", err.Error())
		}
	})
	if err != nil {
		return fmt.Errorf("overlay refresh schedule %q: %w", spec, err)
	}
	if s.cronID != 0 {
		s.cron.Remove(s.cronID)
	}
	s.cronID = id
	appLog.Info("overlay refresh scheduled", "spec", spec)
	return nil
}

// FeedsFromConfig converts configured overlays into feeds, skipping entries
// without a URL. A missing ID falls back to the name, then the URL.
func FeedsFromConfig(list []config.OverlayConfig) []ics.Feed {
	var out []ics.Feed
	for _, oc := range list {
		if oc.URL == "" {
			continue
		}
		f := ics.Feed{ID: oc.ID, Name: oc.Name, URL: oc.URL}
		if f.ID == "" {
			f.ID = f.Name
		}
		if f.ID == "" {
			f.ID = f.URL
		}
		out = append(out, f)
	}
	return out
}
