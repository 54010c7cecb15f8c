package notifier

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"finalword/internal/eventbus"
	"finalword/internal/metrics"
	logx "finalword/pkg/logx"
)

const (
	EventSent     = "notifier.sent"
	EventRejected = "notifier.rejected"
	EventFailed   = "notifier.failed"
	EventDeduped  = "notifier.deduped"

	historyMax = 300
)

// Service is the synchronous delivery pipeline: dedup + rate limit + retry
// around a Transport. It is safe for concurrent use and Apply may swap its
// knobs at runtime.
type Service struct {
	mu sync.Mutex

	log   logx.Logger
	tr    Transport
	bus   eventbus.Bus
	store DedupStore
	now   func() time.Time

	cfg     Config
	limiter *rate.Limiter

	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, tr Transport, log logx.Logger, bus eventbus.Bus, store DedupStore) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	s := &Service{
		log:   log.With(logx.String("comp", "notifier")),
		tr:    tr,
		bus:   bus,
		store: store,
		now:   time.Now,
		dedup: map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	s.cfg = cfg
	// Burst = rate per sec, so a batch of due jobs isn't serialized too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Send delivers env. It returns (true, nil) when the transport accepted the
// mail for every recipient or the delivery key was already recorded,
// (false, nil) on a permanent rejection and (false, err) when every attempt
// failed transiently or ctx ended.
func (s *Service) Send(ctx context.Context, env Envelope) (bool, error) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	tr := s.tr
	s.mu.Unlock()

	if tr == nil {
		return false, ErrNoTransport
	}
	env.Recipients = cleanRecipients(env.Recipients)
	if len(env.Recipients) == 0 {
		// Nothing can ever be delivered; recording FAILED is the only outcome.
		s.record(env, "rejected", ErrNoRecipients)
		return false, nil
	}

	if cfg.DedupWindow > 0 && env.Key != "" && s.seen(ctx, env.Key) {
		s.bus.Publish(eventbus.Event{Type: EventDeduped, Data: SendEvent{MessageID: env.MessageID, Transport: tr.Name(), Key: env.Key, At: s.now()}})
		s.log.Info("delivery already recorded, skipping send", logx.MessageID(env.MessageID))
		return true, nil
	}

	mail, err := Render(env, cfg)
	if err != nil {
		return false, err
	}

	started := s.now()
	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	attempt := 0
	for attempt = 1; attempt <= maxAttempts; attempt++ {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				lastErr = err
				break
			}
		}

		err := tr.Deliver(ctx, mail)
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		if IsPermanent(err) {
			break
		}
		s.log.Debug("send attempt failed", logx.MessageID(env.MessageID), logx.Err(err),
			logx.Int("attempt", attempt), logx.Int("max", maxAttempts))
		if attempt >= maxAttempts || ctx.Err() != nil {
			break
		}

		metrics.IncNotifierRetry()
		if !sleepCtx(ctx, retryDelay(cfg, attempt, err)) {
			lastErr = ctx.Err()
			break
		}
	}
	metrics.ObserveNotifierSend(s.now().Sub(started))
	if attempt > maxAttempts {
		attempt = maxAttempts
	}

	ev := SendEvent{MessageID: env.MessageID, Transport: tr.Name(), Key: env.Key, Attempts: attempt, At: s.now()}
	switch {
	case lastErr == nil:
		s.remember(ctx, env.Key, cfg.DedupWindow)
		s.record(env, "ok", nil)
		s.bus.Publish(eventbus.Event{Type: EventSent, Data: ev})
		return true, nil
	case IsPermanent(lastErr):
		ev.Error = lastErr.Error()
		s.record(env, "rejected", lastErr)
		s.bus.Publish(eventbus.Event{Type: EventRejected, Data: ev})
		return false, nil
	default:
		ev.Error = lastErr.Error()
		s.record(env, "error", lastErr)
		s.bus.Publish(eventbus.Event{Type: EventFailed, Data: ev})
		return false, lastErr
	}
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) record(env Envelope, result string, err error) {
	metrics.IncNotifierSend(result)
	it := HistoryItem{At: s.now(), MessageID: env.MessageID, Result: result}
	if err != nil {
		it.Error = err.Error()
	}
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > historyMax {
		s.history = s.history[len(s.history)-historyMax:]
	}
	s.hmu.Unlock()
}

// seen checks the in-memory ledger, then the persistent one.
func (s *Service) seen(ctx context.Context, key string) bool {
	now := s.now()

	s.dmu.Lock()
	until, ok := s.dedup[key]
	s.dmu.Unlock()
	if ok && now.Before(until) {
		return true
	}

	if s.store == nil {
		return false
	}
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	until, ok, err := s.store.GetDedup(cctx, key)
	cancel()
	if err != nil {
		s.log.Warn("dedup lookup failed", logx.String("key", key), logx.Err(err))
		return false
	}
	if ok && now.Before(until) {
		s.dmu.Lock()
		s.dedup[key] = until
		s.dmu.Unlock()
		return true
	}
	return false
}

// remember records a successful delivery. The persistent write is
// synchronous: it must land before the caller commits the job completion.
func (s *Service) remember(ctx context.Context, key string, window time.Duration) {
	if key == "" || window <= 0 {
		return
	}
	now := s.now()
	until := now.Add(window)

	s.dmu.Lock()
	s.dedup[key] = until
	for k, u := range s.dedup {
		if !now.Before(u) {
			delete(s.dedup, k)
		}
	}
	s.dmu.Unlock()

	if s.store == nil {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.store.PutDedup(cctx, key, until); err != nil {
		s.log.Warn("dedup persist failed", logx.String("key", key), logx.Err(err))
	}
}

func cleanRecipients(rs []string) []string {
	out := rs[:0:0]
	for _, r := range rs {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func retryDelay(cfg Config, attempt int, err error) time.Duration {
	maxD := cfg.RetryMaxDelay
	if maxD <= 0 {
		maxD = 10 * time.Second
	}
	var ra RetryAfterError
	if errors.As(err, &ra) {
		return min(ra.RetryAfter(), maxD)
	}

	base := cfg.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	// Exponential backoff: base * 2^(attempt-1)
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxD {
			d = maxD
			break
		}
	}
	// Jitter 0.7..1.3
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	if d < 0 {
		return 0
	}
	return min(d, maxD)
}
