package build

import (
	"sync"
	"time"
)

// BuildRecord is one finished class build.
type BuildRecord struct {
	Class    Class
	Duration time.Duration
	Error    error
}

// BuildMetrics tracks build performance
type BuildMetrics struct {
	TotalBuilds      int64
	SuccessfulBuilds int64
	FailedBuilds     int64
	AverageDuration  time.Duration
	TotalDuration    time.Duration
	LastBuild        map[Class]time.Time
	mutex            sync.RWMutex
}

// NewBuildMetrics creates a new build metrics tracker
func NewBuildMetrics() *BuildMetrics {
	return &BuildMetrics{LastBuild: make(map[Class]time.Time)}
}

// RecordBuild records a build result in the metrics
func (bm *BuildMetrics) RecordBuild(record BuildRecord) {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.TotalBuilds++
	bm.TotalDuration += record.Duration

	if record.Error != nil {
		bm.FailedBuilds++
	} else {
		bm.SuccessfulBuilds++
		if bm.LastBuild == nil {
			bm.LastBuild = make(map[Class]time.Time)
		}
		bm.LastBuild[record.Class] = time.Now()
	}

	bm.AverageDuration = bm.TotalDuration / time.Duration(bm.TotalBuilds)
}

// MetricsSnapshot is a copy of BuildMetrics safe to read and serialize.
type MetricsSnapshot struct {
	TotalBuilds      int64         `json:"total_builds"`
	SuccessfulBuilds int64         `json:"successful_builds"`
	FailedBuilds     int64         `json:"failed_builds"`
	AverageDuration  time.Duration `json:"average_duration_ns"`
}

// GetSnapshot returns a snapshot of current metrics
func (bm *BuildMetrics) GetSnapshot() MetricsSnapshot {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()

	return MetricsSnapshot{
		TotalBuilds:      bm.TotalBuilds,
		SuccessfulBuilds: bm.SuccessfulBuilds,
		FailedBuilds:     bm.FailedBuilds,
		AverageDuration:  bm.AverageDuration,
	}
}

// GetSuccessRate returns the success rate as a percentage
func (bm *BuildMetrics) GetSuccessRate() float64 {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()

	if bm.TotalBuilds == 0 {
		return 0.0
	}

	return float64(bm.SuccessfulBuilds) / float64(bm.TotalBuilds) * 100.0
}
