package monitor

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/phoenixops/incident-engine/internal/model"
)

// HostMetrics samples host CPU and memory so alerts arriving without the
// metrics the severity fallback needs can still be classified.
type HostMetrics struct {
	logger *zap.Logger
}

// NewHostMetrics creates a host metrics sampler.
func NewHostMetrics(logger *zap.Logger) *HostMetrics {
	return &HostMetrics{logger: logger.Named("host-metrics")}
}

// Sample reads current host CPU and memory utilization percentages.
func (h *HostMetrics) Sample() (cpuPercent, memPercent float64, err error) {
	cpuValues, err := cpu.Percent(time.Second, false)
	if err != nil {
		return 0, 0, err
	}

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, err
	}

	return cpuValues[0], memInfo.UsedPercent, nil
}

// Enrich fills in cpu_percentage and memory_percentage on an alert's metrics
// bag when the alert did not carry them. Alerts that already have the values
// are left untouched.
func (h *HostMetrics) Enrich(alert *model.Alert) {
	if alert.Metrics == nil {
		alert.Metrics = make(map[string]interface{})
	}

	_, hasCPU := model.MetricNumber(alert.Metrics, "cpu_percentage")
	_, hasMem := model.MetricNumber(alert.Metrics, "memory_percentage")
	if hasCPU && hasMem {
		return
	}

	cpuPercent, memPercent, err := h.Sample()
	if err != nil {
		h.logger.Warn("Failed to sample host metrics", zap.Error(err))
		return
	}

	if !hasCPU {
		alert.Metrics["cpu_percentage"] = cpuPercent
	}
	if !hasMem {
		alert.Metrics["memory_percentage"] = memPercent
	}

	h.logger.Debug("Alert metrics enriched from host",
		zap.Float64("cpu_percentage", cpuPercent),
		zap.Float64("memory_percentage", memPercent))
}
