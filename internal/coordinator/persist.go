package coordinator

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"tap-racer/internal/store"
)

const persistAttemptTimeout = 5 * time.Second

// persist commits rec with exponential backoff. After the retry budget the
// record is parked and flushed again ahead of the next race to finalize. The
// room leaves the index either way.
func (c *Coordinator) persist(rt *roomRuntime, rec store.MatchRecord) {
	ctx := context.Background()
	c.flushParked(ctx)
	defer c.remove(rt)

	for attempt := 1; attempt <= c.retryMax; attempt++ {
		err := c.commit(ctx, rec)
		if err == nil {
			log.Info().Str("match_id", rec.ID).Int("attempt", attempt).Msg("race_persisted")
			return
		}
		metricPersistFailures.Add(1)
		if attempt == c.retryMax {
			log.Error().Err(err).Str("match_id", rec.ID).Int("attempts", attempt).Msg("persist_parked")
			break
		}
		delay := c.retryBase * time.Duration(1<<(attempt-1))
		log.Warn().Err(err).Str("match_id", rec.ID).Int("attempt", attempt).Dur("retry_in", delay).Msg("persist_retry")
		if !c.sleep(ctx, delay) {
			break
		}
	}
	c.park(rec)
}

func (c *Coordinator) commit(ctx context.Context, rec store.MatchRecord) error {
	ctx, cancel := context.WithTimeout(ctx, persistAttemptTimeout)
	defer cancel()
	return c.store.CommitMatch(ctx, rec)
}

func (c *Coordinator) park(rec store.MatchRecord) {
	c.parkedMu.Lock()
	c.parked = append(c.parked, rec)
	metricPersistParked.Set(int64(len(c.parked)))
	c.parkedMu.Unlock()
}

// flushParked makes one attempt at every parked record. Records that still
// fail are parked again.
func (c *Coordinator) flushParked(ctx context.Context) {
	c.parkedMu.Lock()
	pending := c.parked
	c.parked = nil
	metricPersistParked.Set(0)
	c.parkedMu.Unlock()

	for _, rec := range pending {
		if err := c.commit(ctx, rec); err != nil {
			log.Warn().Err(err).Str("match_id", rec.ID).Msg("persist_parked_retry_failed")
			c.park(rec)
			continue
		}
		log.Info().Str("match_id", rec.ID).Msg("persist_parked_flushed")
	}
}

// Parked returns the records waiting for a successful commit.
func (c *Coordinator) Parked() []store.MatchRecord {
	c.parkedMu.Lock()
	defer c.parkedMu.Unlock()
	out := make([]store.MatchRecord, len(c.parked))
	copy(out, c.parked)
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
