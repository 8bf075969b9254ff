package reference_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisense/cropagent/internal/model"
	"github.com/agrisense/cropagent/internal/reference"
)

func TestLoad(t *testing.T) {
	tables, err := reference.Load()
	require.NoError(t, err)

	require.Len(t, tables.Regions, 10)
	assert.Equal(t, "Maharashtra", tables.Regions[0].Name)
	assert.Equal(t, "West Bengal", tables.Regions[9].Name)
	assert.Equal(t, []string{"en", "hi", "mr"}, tables.LanguageCodes())
	assert.Equal(t, "en", tables.DefaultLanguage)
}

func TestRegionAndCropLookup(t *testing.T) {
	tables := reference.Default()

	r, ok := tables.Region("  punjab ")
	require.True(t, ok)
	assert.Equal(t, "Punjab", r.Name)
	assert.InDelta(t, 31.1471, r.Location().Latitude, 1e-9)
	assert.Equal(t, "पंजाब", r.LocalName("hi"))
	assert.Equal(t, "Punjab", r.LocalName("fr"))

	_, ok = tables.Region("Atlantis")
	assert.False(t, ok)

	c, ok := tables.Crop("WHEAT")
	require.True(t, ok)
	assert.Equal(t, reference.YieldRange{Min: 2.0, Avg: 3.5, Max: 5.0}, c.Yield)
	assert.True(t, c.InGrowingWindow(time.January))
	assert.False(t, c.InGrowingWindow(time.July))
}

func TestEveryRegionCropIsDefined(t *testing.T) {
	tables := reference.Default()
	for _, r := range tables.Regions {
		for _, name := range r.Crops {
			_, ok := tables.Crop(name)
			assert.True(t, ok, "%s lists %s", r.Name, name)
		}
	}
}

func TestFallbacks(t *testing.T) {
	tables := reference.Default()

	assert.Equal(t, "Alluvial", tables.SoilType("Peat").Name)
	assert.Equal(t, "very_high", tables.SoilType("black").WaterRetention)

	assert.Equal(t, "en", tables.Language("fr").Code)
	assert.Equal(t, "mr", tables.Language("mr").Code)
	assert.False(t, tables.HasLanguage("fr"))

	assert.Equal(t, []string{"Blast", "Brown Leaf Spot", "Bacterial Leaf Blight"}, tables.Diseases("Rice").Names)
	assert.Equal(t, []string{"Various fungal diseases"}, tables.Diseases("Maize").Names)

	assert.Equal(t, "Flowering", tables.GrowthStage("Rice", time.September).Stage)
	assert.Equal(t, "Active Growth", tables.GrowthStage("Maize", time.September).Stage)
}

func TestLanguageKeywordsAndLabels(t *testing.T) {
	en := reference.Default().Language("en")
	assert.Contains(t, en.Keywords[model.IntentWeather], "rain")
	assert.Equal(t, "Soil", en.Title("soil"))
	assert.Equal(t, "missing_key", en.Label("missing_key"))

	hi := reference.Default().Language("hi")
	assert.Contains(t, hi.Keywords[model.IntentIrrigation], "सिंचाई")
}
