package collector

import (
	"context"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/ecobee-exporter/internal/auth"
	"codeberg.org/mutker/ecobee-exporter/internal/ecobee"
	"codeberg.org/mutker/ecobee-exporter/internal/errors"
	"codeberg.org/mutker/ecobee-exporter/internal/extract"
	"codeberg.org/mutker/ecobee-exporter/internal/logger"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Collector owns everything a collection cycle needs. It is built once at
// startup; RunCycle is the only entry point that changes state.
type Collector struct {
	mu sync.Mutex

	client     ecobee.Client
	lifecycle  *auth.Lifecycle
	extractors []extract.Named
	clock      clockwork.Clock
	log        logger.Logger

	descs descriptors
}

// Result is the outcome of one successful cycle.
type Result struct {
	Observations     []extract.Observation
	Thermostats      int
	ExtractionErrors map[string]int
	Duration         time.Duration
}

func New(client ecobee.Client, lifecycle *auth.Lifecycle, clock clockwork.Clock, log logger.Logger) *Collector {
	return &Collector{
		client:     client,
		lifecycle:  lifecycle,
		extractors: extract.Default(),
		clock:      clock,
		log:        log,
		descs:      newDescriptors(),
	}
}

// RunCycle collects observations for every registered thermostat at now.
// Auth failures and malformed identifiers abort the cycle; extraction
// failures only drop the affected extractor's output for one thermostat.
func (c *Collector) RunCycle(ctx context.Context, now time.Time) ([]extract.Observation, error) {
	res, err := c.run(ctx, now)
	if err != nil {
		return nil, err
	}
	return res.Observations, nil
}

func (c *Collector) run(ctx context.Context, now time.Time) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := c.clock.Now()
	cycleID := uuid.NewString()
	errFactory := errors.New()

	c.log.Debug().Str("cycle_id", cycleID).Time("now", now).Msg("Starting collection cycle")

	bundle := c.lifecycle.Load(ctx)
	if err := c.lifecycle.EnsureValid(ctx, bundle, now); err != nil {
		return nil, errFactory.Wrap(errors.ErrCollectFailed, err)
	}

	rawIDs, err := c.client.ListRegistered(ctx, bundle.AccessToken)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrRemote, err).WithMessage("list thermostats")
	}

	ids := make([]string, 0, len(rawIDs))
	for _, raw := range rawIDs {
		id, err := sanitizeID(raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	res := &Result{
		ExtractionErrors: make(map[string]int, len(c.extractors)),
	}
	for _, e := range c.extractors {
		res.ExtractionErrors[e.Name] = 0
	}

	for _, id := range ids {
		detail, err := c.client.FetchDetail(ctx, bundle.AccessToken, id)
		if err != nil {
			remoteErr := errFactory.Wrap(errors.ErrRemote, err)
			c.log.Warn().
				Str("cycle_id", cycleID).
				Str("thermostat", id).
				Str("error_code", string(remoteErr.Code())).
				Err(remoteErr).
				Msg("Failed to fetch thermostat detail, skipping")
			continue
		}
		res.Thermostats++

		for _, e := range c.extractors {
			obs, err := e.Extract(detail)
			if err != nil {
				res.ExtractionErrors[e.Name]++
				c.log.Warn().
					Str("cycle_id", cycleID).
					Str("thermostat", id).
					Str("thermostat_name", detail.Name).
					Str("extractor", e.Name).
					Err(err).
					Msg("Extraction failed, skipping")
				continue
			}
			res.Observations = append(res.Observations, obs...)
		}
	}

	res.Duration = c.clock.Since(start)

	c.log.Debug().
		Str("cycle_id", cycleID).
		Int("thermostats", res.Thermostats).
		Int("observations", len(res.Observations)).
		Dur("duration", res.Duration).
		Msg("Collection cycle finished")

	return res, nil
}

// sanitizeID strips separators and whitespace and requires the remainder to
// be a non-empty run of digits.
func sanitizeID(raw string) (string, error) {
	id := strings.Map(func(r rune) rune {
		switch r {
		case ':', '-', ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, raw)

	if id == "" {
		return "", errors.New().WithData(errors.ErrInvalidThermostatID, raw)
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return "", errors.New().WithData(errors.ErrInvalidThermostatID, raw)
		}
	}

	return id, nil
}
