package profiler

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/imalexlee/vk-gltf/engine/model"
)

// Profiler collects the metrics of one asset load: stage timings, GPU bytes allocated,
// transfer submissions and texture cache outcomes. It replaces process-wide counters;
// each load owns its own Profiler and hands the result to the Asset.
// A Profiler is not safe for concurrent use.
type Profiler struct {
	start          time.Time
	stage          string
	stageStart     time.Time
	metrics        model.LoadMetrics
	memStats       runtime.MemStats
	lastTotalAlloc uint64
}

// NewProfiler creates a Profiler and starts its total timer.
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler() *Profiler {
	p := &Profiler{
		start: time.Now(),
		metrics: model.LoadMetrics{
			StageDurations: make(map[string]time.Duration),
		},
	}
	runtime.ReadMemStats(&p.memStats)
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return p
}

// Begin starts timing a stage, ending the current one if any.
//
// Parameters:
//   - stage: the stage name, one of the model.Stage* constants
func (p *Profiler) Begin(stage string) {
	p.End()
	p.stage = stage
	p.stageStart = time.Now()
}

// End stops timing the current stage. Durations of repeated stages accumulate.
func (p *Profiler) End() {
	if p.stage == "" {
		return
	}
	p.metrics.StageDurations[p.stage] += time.Since(p.stageStart)
	p.stage = ""
}

// Allocated records a GPU allocation.
//
// Parameters:
//   - bytes: the allocation size
func (p *Profiler) Allocated(bytes uint64) {
	p.metrics.BytesAllocated += bytes
}

// StagingGrown records the new staging buffer capacity.
//
// Parameters:
//   - capacity: the staging buffer size in bytes
func (p *Profiler) StagingGrown(capacity uint64) {
	p.metrics.StagingCapacity = capacity
}

// Transferred records one completed blocking submission.
func (p *Profiler) Transferred() {
	p.metrics.Transfers++
}

// CacheHit records an image served from the texture cache.
func (p *Profiler) CacheHit() {
	p.metrics.CacheHits++
}

// CacheMiss records an image that had to be decoded and compressed.
func (p *Profiler) CacheMiss() {
	p.metrics.CacheMisses++
}

// Finish ends the current stage and returns the collected metrics.
//
// Returns:
//   - model.LoadMetrics: the metrics of the load
func (p *Profiler) Finish() model.LoadMetrics {
	p.End()
	p.metrics.Total = time.Since(p.start)

	runtime.ReadMemStats(&p.memStats)
	p.metrics.HostBytesAllocated = p.memStats.TotalAlloc - p.lastTotalAlloc
	return p.metrics
}

// Log writes a one-line summary of metrics at info level.
//
// Parameters:
//   - logger: the destination logger
//   - name: the asset name
//   - metrics: the metrics to report
func Log(logger *slog.Logger, name string, metrics model.LoadMetrics) {
	allocMB := float64(metrics.BytesAllocated) / 1024 / 1024
	hostMB := float64(metrics.HostBytesAllocated) / 1024 / 1024
	logger.Info("[Profiler] asset loaded",
		"asset", name,
		"total", metrics.Total,
		"gpu_mb", allocMB,
		"host_alloc_mb", hostMB,
		"staging_bytes", metrics.StagingCapacity,
		"transfers", metrics.Transfers,
		"cache_hits", metrics.CacheHits,
		"cache_misses", metrics.CacheMisses,
	)
	for _, stage := range []string{
		model.StageParse, model.StageImages, model.StageMeshes, model.StageSamplers, model.StageMaterials,
		model.StageTextures, model.StageNodes, model.StageScenes, model.StageLights,
	} {
		if d, ok := metrics.StageDurations[stage]; ok {
			logger.Debug("[Profiler] stage", "asset", name, "stage", stage, "duration", d)
		}
	}
}
