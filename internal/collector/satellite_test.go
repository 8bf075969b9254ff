package collector_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisense/cropagent/internal/collector"
	"github.com/agrisense/cropagent/internal/model"
	"github.com/agrisense/cropagent/internal/noise"
	"github.com/agrisense/cropagent/internal/reference"
)

func TestSatellite_RiceAtPeak(t *testing.T) {
	august := time.Date(2026, time.August, 15, 0, 0, 0, 0, time.UTC)
	s := collector.NewSatellite(testDeps(august), nil)

	snap, err := s.Execute(context.Background(), runContext("Maharashtra", "Rice"))
	require.NoError(t, err)

	assert.Equal(t, 0.55, snap.NDVI.Current)
	assert.Equal(t, model.NDVIOptimal, snap.NDVI.Status)
	assert.Equal(t, "Dense vegetation", snap.NDVI.Interpretation)
	assert.Equal(t, 100, snap.HealthScore)
	assert.Equal(t, "excellent", snap.HealthStatus)

	assert.Equal(t, 225.0, snap.Coverage.TotalAgriculturalArea)
	assert.Equal(t, 70.0, snap.Coverage.HealthyAreaPct)

	assert.False(t, snap.Stress.Detected)
	assert.Equal(t, model.StressNone, snap.Stress.Overall)

	assert.Equal(t, "Vegetative", snap.GrowthStage.Current)
	assert.Equal(t, 15, snap.GrowthStage.DaysInStage)
	assert.Equal(t, "Flowering", snap.GrowthStage.Next)

	require.Len(t, snap.Historical.PreviousYears, 3)
	assert.Equal(t, 2025, snap.Historical.PreviousYears[0].Year)
}

func TestSatellite_OffPeakWheat(t *testing.T) {
	august := time.Date(2026, time.August, 15, 0, 0, 0, 0, time.UTC)
	s := collector.NewSatellite(testDeps(august), nil)

	snap, err := s.Execute(context.Background(), runContext("Punjab", "Wheat"))
	require.NoError(t, err)

	// Six months from the February peak scales the midpoint by 0.6.
	assert.Equal(t, 0.3, snap.NDVI.Current)
	assert.Equal(t, model.NDVIBelowOptimal, snap.NDVI.Status)
	assert.Equal(t, "Active Growth", snap.GrowthStage.Current)
}

func TestSatellite_BoundsHoldForAllCrops(t *testing.T) {
	tables := reference.Default()
	deps := testDeps(july)
	deps.Noise = noise.NewSeeded(99)

	for month := time.January; month <= time.December; month++ {
		deps.Clock = fixedClock(time.Date(2026, month, 1, 0, 0, 0, 0, time.UTC))
		s := collector.NewSatellite(deps, nil)
		for _, crop := range tables.Crops {
			snap, err := s.Execute(context.Background(), runContext("Gujarat", crop.Name))
			require.NoError(t, err)
			assert.GreaterOrEqual(t, snap.NDVI.Current, 0.1)
			assert.LessOrEqual(t, snap.NDVI.Current, 0.9)
			assert.GreaterOrEqual(t, snap.HealthScore, 0)
			assert.LessOrEqual(t, snap.HealthScore, 100)
			assert.GreaterOrEqual(t, snap.Coverage.HealthyAreaPct, 40.0)
			assert.LessOrEqual(t, snap.Coverage.HealthyAreaPct, 95.0)
		}
	}
}

func TestSatellite_StressDetected(t *testing.T) {
	august := time.Date(2026, time.August, 15, 0, 0, 0, 0, time.UTC)
	deps := testDeps(august)
	deps.Noise = noise.Constant(0.05)
	s := collector.NewSatellite(deps, nil)

	snap, err := s.Execute(context.Background(), runContext("Maharashtra", "Rice"))
	require.NoError(t, err)

	require.True(t, snap.Stress.Detected)
	assert.Equal(t, "water_stress", snap.Stress.Areas[0].Kind)
	assert.Equal(t, "nutrient_deficiency", snap.Stress.Areas[1].Kind)
	// Both draws pick the first severity: low.
	assert.Equal(t, model.StressLow, snap.Stress.Overall)
}
