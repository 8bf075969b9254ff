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
)

func TestSoil_BlackSoilInKharif(t *testing.T) {
	s := collector.NewSoil(testDeps(july), nil)

	snap, err := s.Execute(context.Background(), runContext("Maharashtra", "Rice"))
	require.NoError(t, err)

	assert.Equal(t, "Black", snap.SoilType)
	assert.Equal(t, []string{"Black", "Alluvial", "Laterite"}, snap.SoilTypes)
	assert.Equal(t, model.SeasonKharif, snap.Season)
	assert.Equal(t, model.DataSource("simulated"), snap.DataSource)

	// very_high retention 70, +15 kharif, jitter pinned at zero.
	assert.Equal(t, 85.0, snap.Moisture.Current)
	assert.Equal(t, model.MoistureHigh, snap.Moisture.Status)
	assert.Equal(t, model.Range{Min: 60, Max: 80}, snap.Moisture.Optimal)

	assert.Equal(t, 7.8, snap.PH.Current)
	assert.Equal(t, model.PHAlkaline, snap.PH.Status)

	assert.Equal(t, 258.0, snap.NPK.Nitrogen.Current)
	assert.Equal(t, model.NutrientSufficient, snap.NPK.Nitrogen.Status)
	assert.Equal(t, model.NutrientAdequate, snap.NPK.Phosphorus.Status)
	assert.Equal(t, model.NutrientAdequate, snap.NPK.Potassium.Status)

	assert.Equal(t, 75, snap.HealthScore)
	require.Len(t, snap.Recommendations, 2)
	assert.Equal(t, "drainage", snap.Recommendations[0].Category)
	assert.Equal(t, "Apply gypsum", snap.Recommendations[1].Action)
}

func TestSoil_DesertSoilInRabi(t *testing.T) {
	january := time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)
	s := collector.NewSoil(testDeps(january), nil)

	snap, err := s.Execute(context.Background(), runContext("Rajasthan", "Wheat"))
	require.NoError(t, err)

	assert.Equal(t, "Desert", snap.SoilType)
	assert.Equal(t, model.SeasonRabi, snap.Season)
	assert.Equal(t, 15.0, snap.Moisture.Current)
	assert.Equal(t, model.MoistureLow, snap.Moisture.Status)
	assert.Equal(t, model.NutrientDeficient, snap.NPK.Nitrogen.Status)
	assert.Equal(t, model.NutrientAdequate, snap.NPK.Phosphorus.Status)
	assert.Equal(t, model.NutrientDeficient, snap.NPK.Potassium.Status)
	assert.Equal(t, 40, snap.HealthScore)

	require.NotEmpty(t, snap.Recommendations)
	assert.Equal(t, "irrigation", snap.Recommendations[0].Category)
	assert.Equal(t, model.PriorityHigh, snap.Recommendations[0].Priority)
}

func TestSoil_FallbackIsTotal(t *testing.T) {
	deps := testDeps(july)
	deps.Noise = noise.NewSeeded(11)
	s := collector.NewSoil(deps, nil)

	// Unknown names still yield a complete snapshot from default priors.
	for _, rc := range []model.RunContext{
		runContext("Atlantis", "Quinoa"),
		runContext("Punjab", "Jute"),
	} {
		snap, err := s.Execute(context.Background(), rc)
		require.NoError(t, err)
		assert.NotEmpty(t, snap.SoilType)
		assert.GreaterOrEqual(t, snap.Moisture.Current, 10.0)
		assert.LessOrEqual(t, snap.Moisture.Current, 95.0)
		assert.GreaterOrEqual(t, snap.HealthScore, 0)
		assert.LessOrEqual(t, snap.HealthScore, 100)
		assert.NotEmpty(t, snap.Recommendations)
	}
}
