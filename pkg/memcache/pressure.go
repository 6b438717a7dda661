package memcache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/mem"
)

// PressureMonitorConfig configures the background eviction task that
// guards against system-wide memory pressure regardless of the
// Manager's own byte-capacity bound.
type PressureMonitorConfig struct {
	// ThresholdPercent is the system memory-used percentage at or above
	// which eviction begins.
	ThresholdPercent uint8

	// SafetyMarginPercent is how far below ThresholdPercent eviction
	// drives usage back down to before stopping.
	SafetyMarginPercent uint8

	// CheckInterval is how often the task samples system memory usage.
	CheckInterval time.Duration
}

// DefaultPressureMonitorConfig returns sane defaults: evict at
// thresholdPercent system memory used, down to 5 points below threshold,
// checked every 5 seconds.
func DefaultPressureMonitorConfig(thresholdPercent uint8) PressureMonitorConfig {
	return PressureMonitorConfig{
		ThresholdPercent:    thresholdPercent,
		SafetyMarginPercent: 5,
		CheckInterval:       5 * time.Second,
	}
}

// MemoryUsageFunc reports current system memory usage as a percentage.
// Abstracted behind a function type so tests can inject synthetic
// pressure without touching real system state.
type MemoryUsageFunc func() (usedPercent float64, err error)

// SystemMemoryUsage queries the process's host for current memory usage
// via gopsutil, the same library the teacher pack depends on
// transitively through testcontainers-go.
func SystemMemoryUsage() (float64, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return v.UsedPercent, nil
}

// RunPressureMonitor blocks, periodically sampling usageFn and evicting
// LRU entries from m until usage drops below threshold minus the safety
// margin, or the cache is empty. It returns when ctx is cancelled.
func RunPressureMonitor(ctx context.Context, m *Manager, cfg PressureMonitorConfig, usageFn MemoryUsageFunc, logger zerolog.Logger) {
	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	target := float64(cfg.ThresholdPercent) - float64(cfg.SafetyMarginPercent)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			usedPercent, err := usageFn()
			if err != nil {
				logger.Warn().Err(err).Msg("failed to sample system memory usage")
				continue
			}
			if usedPercent < float64(cfg.ThresholdPercent) {
				continue
			}

			evicted := 0
			for usedPercent >= target {
				if !m.EvictLRU() {
					break // cache empty, nothing left to evict
				}
				evicted++

				usedPercent, err = usageFn()
				if err != nil {
					logger.Warn().Err(err).Msg("failed to resample system memory usage during eviction")
					break
				}
			}
			if evicted > 0 {
				logger.Warn().
					Int("evicted", evicted).
					Float64("used_percent", usedPercent).
					Msg("evicted memory cache entries under pressure")
			}
		}
	}
}
