// Package importer pulls subscribed ICS feeds into the event store.
package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"dealercal/internal/ics"
	appLog "dealercal/internal/log"
	"dealercal/internal/model"
)

// Fetcher is satisfied by *ics.Fetcher.
type Fetcher interface {
	FetchAll(ctx context.Context, sources []ics.Source) ([]ics.FetchResult, []error)
}

// Sink receives the converted events of one source; *store.Store
// satisfies it.
type Sink interface {
	ReplaceSource(sourceID string, events []model.Event) error
}

type Config struct {
	Sources  []ics.Source
	Location *time.Location
	// Backfill and Horizon bound the expansion window around now.
	Backfill time.Duration
	Horizon  time.Duration
	// MaxOccurrencesPerEvent is passed to the expander.
	MaxOccurrencesPerEvent int
}

// Report summarises one import run.
type Report struct {
	StartedAt  time.Time `json:"started_at"`
	Sources    int       `json:"sources"`
	Imported   int       `json:"imported"`
	Events     int       `json:"events"`
	Truncated  []string  `json:"truncated,omitempty"`
	Errors     []string  `json:"errors,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

type Importer struct {
	cfg     Config
	fetcher Fetcher
	sink    Sink

	// mu serialises runs; a cron tick and a manual trigger must not
	// interleave their ReplaceSource calls.
	mu sync.Mutex
}

func New(cfg Config, fetcher Fetcher, sink Sink) *Importer {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Importer{cfg: cfg, fetcher: fetcher, sink: sink}
}

// Run performs one import. Failing sources are recorded in the report and
// keep their previously imported events.
func (im *Importer) Run(ctx context.Context, now time.Time) (Report, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	began := time.Now()
	rep := Report{StartedAt: now, Sources: len(im.cfg.Sources)}
	if len(im.cfg.Sources) == 0 {
		return rep, nil
	}

	results, fetchErrs := im.fetcher.FetchAll(ctx, im.cfg.Sources)
	for _, err := range fetchErrs {
		rep.Errors = append(rep.Errors, err.Error())
	}

	local := now.In(im.cfg.Location)
	expandCfg := ics.ExpandConfig{
		DisplayLocation:        im.cfg.Location,
		RangeStart:             local.Add(-im.cfg.Backfill),
		RangeEnd:               local.Add(im.cfg.Horizon),
		MaxOccurrencesPerEvent: im.cfg.MaxOccurrencesPerEvent,
	}

	for _, res := range results {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		n, truncated, err := im.importOne(res, expandCfg)
		rep.Truncated = append(rep.Truncated, truncated...)
		if err != nil {
			rep.Errors = append(rep.Errors, err.Error())
			appLog.Error("import source failed", err, "id", res.Source.ID)
			continue
		}
		rep.Imported++
		rep.Events += n
	}

	rep.DurationMs = time.Since(began).Milliseconds()
	appLog.Info("import completed",
		"sources", rep.Sources,
		"imported", rep.Imported,
		"events", rep.Events,
		"errors", len(rep.Errors),
	)

	if rep.Imported == 0 {
		return rep, errors.New("importer: no source imported")
	}
	return rep, nil
}

func (im *Importer) importOne(res ics.FetchResult, cfg ics.ExpandConfig) (int, []string, error) {
	parsed, err := ics.ParseICS(res.Source, res.Body)
	if err != nil {
		return 0, nil, err
	}
	expanded, err := ics.ExpandOccurrences(parsed, cfg)
	if err != nil {
		return 0, nil, fmt.Errorf("importer: expand %s: %w", res.Source.ID, err)
	}

	events := make([]model.Event, 0, len(expanded.Occurrences))
	for _, occ := range expanded.Occurrences {
		events = append(events, model.EventFromOccurrence(occ))
	}
	if err := im.sink.ReplaceSource(res.Source.ID, events); err != nil {
		return 0, expanded.TruncatedEvents, fmt.Errorf("importer: store %s: %w", res.Source.ID, err)
	}
	return len(events), expanded.TruncatedEvents, nil
}

// Schedule registers Run on c using the cron spec. Runs started by the
// schedule use ctx.
func (im *Importer) Schedule(ctx context.Context, c *cron.Cron, spec string) (cron.EntryID, error) {
	id, err := c.AddFunc(spec, func() {
		if _, err := im.Run(ctx, time.Now()); err != nil {
			appLog.Error("scheduled import failed", err)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("importer: schedule %q: %w", spec, err)
	}
	return id, nil
}
