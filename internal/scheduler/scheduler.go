package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"StockDashboard/internal/config"
	"StockDashboard/internal/dashboard"
	"StockDashboard/internal/logging"
	"StockDashboard/internal/model"
)

// Runner performs one dashboard run.
type Runner interface {
	Run(ctx context.Context, p dashboard.Params) (*dashboard.Result, error)
}

// Publisher receives the result of every scheduled run.
type Publisher func(res *dashboard.Result)

// MarketGate reports whether the market for a symbol is open at t.
type MarketGate interface {
	IsOpen(symbol string, t time.Time) bool
}

// Refresher re-runs the dashboard on a fixed interval. An interval of zero
// disables auto-refresh.
type Refresher struct {
	Cron *cron.Cron
	Ctx  context.Context

	runner  Runner
	publish Publisher
	gate    MarketGate
	logger  zerolog.Logger
	now     func() time.Time

	mu       sync.Mutex
	params   dashboard.Params
	rolling  bool
	interval int
	entry    cron.EntryID
}

// NewRefresher creates a Refresher. gate may be nil to refresh around the clock.
func NewRefresher(ctx context.Context, runner Runner, publish Publisher, gate MarketGate) *Refresher {
	logger := log.With().Str("component", "scheduler").Logger()
	cronLog := cron.PrintfLogger(logging.CronLogger{Logger: logger})
	return &Refresher{
		Cron:    cron.New(cron.WithLogger(cronLog), cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog))),
		Ctx:     ctx,
		runner:  runner,
		publish: publish,
		gate:    gate,
		logger:  logger,
		now:     time.Now,
	}
}

// SetParams replaces the parameters of subsequent runs. When rolling is set
// the date range is moved forward to end on the current day at every run.
func (r *Refresher) SetParams(p dashboard.Params, rolling bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.params = p
	r.rolling = rolling
}

// Params returns the parameters of the next run.
func (r *Refresher) Params() dashboard.Params {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.params
}

// Interval returns the current refresh interval in seconds.
func (r *Refresher) Interval() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interval
}

// SetInterval reschedules the refresh job. Zero removes it.
func (r *Refresher) SetInterval(seconds int) error {
	if seconds < 0 || seconds > config.MaxRefreshSeconds {
		return fmt.Errorf("refresh interval must be between 0 and %d seconds, got %d", config.MaxRefreshSeconds, seconds)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entry != 0 {
		r.Cron.Remove(r.entry)
		r.entry = 0
	}
	r.interval = seconds
	if seconds == 0 {
		r.logger.Info().Msg("auto-refresh disabled")
		return nil
	}
	r.entry = r.Cron.Schedule(cron.Every(time.Duration(seconds)*time.Second), cron.FuncJob(r.tick))
	r.logger.Info().Int("seconds", seconds).Msg("auto-refresh scheduled")
	return nil
}

// Start starts the cron scheduler.
func (r *Refresher) Start() {
	r.Cron.Start()
	r.logger.Info().Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	<-r.Cron.Stop().Done()
	r.logger.Info().Msg("scheduler stopped")
}

// RunNow executes one refresh immediately and publishes the result.
func (r *Refresher) RunNow() (*dashboard.Result, error) {
	p := r.nextParams()
	res, err := r.runner.Run(r.Ctx, p)
	if err != nil {
		r.logger.Error().Err(err).Str("symbol", p.Symbol).Msg("refresh failed")
	}
	if res != nil && r.publish != nil {
		r.publish(res)
	}
	return res, err
}

func (r *Refresher) tick() {
	p := r.Params()
	if r.gate != nil && !r.gate.IsOpen(p.Symbol, r.now()) {
		r.logger.Debug().Str("symbol", p.Symbol).Msg("market closed, skipping refresh")
		return
	}
	_, _ = r.RunNow()
}

func (r *Refresher) nextParams() dashboard.Params {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.params
	if r.rolling {
		end := model.Day(r.now())
		if shift := end.Sub(model.Day(p.End)); shift > 0 {
			p.Start = model.Day(p.Start).Add(shift)
			p.End = end
		}
	}
	return p
}
