package tasks

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NEDA-LABS/mintrelay/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProber struct {
	healthy   atomic.Bool
	probes    atomic.Int64
	diagnosed atomic.Int64
}

func (s *stubProber) IsHealthy(ctx context.Context) bool {
	s.probes.Add(1)
	return s.healthy.Load()
}

func (s *stubProber) Diagnose(ctx context.Context) types.DiagnosticReport {
	s.diagnosed.Add(1)
	return types.DiagnosticReport{AccountResolved: true, BackendReachable: true}
}

func TestHealthProbeCountsConsecutiveFailures(t *testing.T) {
	prober := &stubProber{}
	probe := &healthProbe{prober: prober, timeout: time.Second}

	probe.run(context.Background())
	probe.run(context.Background())
	assert.Equal(t, int64(2), probe.ConsecutiveFailures())
	assert.Equal(t, int64(0), prober.diagnosed.Load())

	prober.healthy.Store(true)
	probe.run(context.Background())
	assert.Equal(t, int64(0), probe.ConsecutiveFailures())
	assert.Equal(t, int64(1), prober.diagnosed.Load())
}

func TestStartCronJobs(t *testing.T) {
	prober := &stubProber{}
	prober.healthy.Store(true)

	scheduler, err := StartCronJobs(context.Background(), prober, 50*time.Millisecond)
	require.NoError(t, err)
	defer scheduler.Stop()

	assert.Eventually(t, func() bool {
		return prober.probes.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)
}
