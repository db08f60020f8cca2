package parallelism

import (
	"math"
	"testing"
)

func TestWeightedScore(t *testing.T) {
	tests := []struct {
		name   string
		load   SystemLoad
		numCPU int
		want   float64
	}{
		{"idle", SystemLoad{}, 4, 0},
		{"cpu only", SystemLoad{CPUUsage: 1}, 4, 0.4},
		{"memory only", SystemLoad{MemoryUsage: 0.5}, 4, 0.15},
		{"load average capped", SystemLoad{LoadAverage: 100}, 4, 0.1},
		{"load average per core", SystemLoad{LoadAverage: 2}, 4, 0.05},
		{"zero cores treated as one", SystemLoad{LoadAverage: 0.5}, 0, 0.05},
		{"mixed", SystemLoad{CPUUsage: 0.5, MemoryUsage: 0.3, IOWait: 0.2, LoadAverage: 2}, 2, 0.2 + 0.09 + 0.04 + 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.load.WeightedScore(DefaultLoadWeights, tt.numCPU)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("WeightedScore = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestLoadClassification(t *testing.T) {
	busy := SystemLoad{CPUUsage: 1, MemoryUsage: 1, IOWait: 0.5}
	if !busy.IsHighLoad() || !busy.IsModerateLoad() {
		t.Errorf("score %.2f should be high and moderate", busy.LoadScore())
	}

	moderate := SystemLoad{CPUUsage: 0.7, MemoryUsage: 0.6}
	if moderate.IsHighLoad() || !moderate.IsModerateLoad() {
		t.Errorf("score %.2f should be moderate only", moderate.LoadScore())
	}

	if (SystemLoad{}).IsModerateLoad() {
		t.Error("an idle sample is not moderate load")
	}
}
