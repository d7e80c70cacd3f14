package tasks

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/NEDA-LABS/mintrelay/types"
	"github.com/NEDA-LABS/mintrelay/utils/logger"
	"github.com/go-co-op/gocron"
)

// HealthProber is the engine surface probed by the background job
type HealthProber interface {
	IsHealthy(ctx context.Context) bool
	Diagnose(ctx context.Context) types.DiagnosticReport
}

// healthProbe logs node, bundler and account health
type healthProbe struct {
	prober   HealthProber
	timeout  time.Duration
	failures atomic.Int64
}

// ConsecutiveFailures returns how many probes in a row found the backends unhealthy
func (p *healthProbe) ConsecutiveFailures() int64 {
	return p.failures.Load()
}

func (p *healthProbe) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if !p.prober.IsHealthy(ctx) {
		failures := p.failures.Add(1)
		logger.WithFields(logger.Fields{
			"ConsecutiveFailures": failures,
		}).Errorf("Dispatch backends are unreachable")
		return
	}

	if previous := p.failures.Swap(0); previous > 0 {
		logger.Infof("Dispatch backends recovered after %d failed probes", previous)
	}

	report := p.prober.Diagnose(ctx)
	if len(report.Issues) > 0 {
		logger.WithFields(logger.Fields{
			"Account": report.Account.Hex(),
			"Issues":  report.Issues,
		}).Warnf("Account diagnostics reported issues")
		return
	}
	logger.WithFields(logger.Fields{
		"Account":  report.Account.Hex(),
		"Deployed": report.Deployed != nil && *report.Deployed,
	}).Debugf("Health probe passed")
}

// StartCronJobs starts the background jobs. The returned scheduler must be stopped on shutdown.
func StartCronJobs(ctx context.Context, prober HealthProber, interval time.Duration) (*gocron.Scheduler, error) {
	scheduler := gocron.NewScheduler(time.UTC)

	probe := &healthProbe{prober: prober, timeout: min(interval, 30*time.Second)}
	_, err := scheduler.Every(interval).SingletonMode().Do(probe.run, ctx)
	if err != nil {
		return nil, err
	}

	scheduler.StartAsync()
	logger.WithFields(logger.Fields{
		"Interval": interval.String(),
	}).Infof("Cron jobs started")

	return scheduler, nil
}
