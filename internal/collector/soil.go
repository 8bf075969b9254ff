package collector

import (
	"context"

	"github.com/agrisense/cropagent/internal/model"
	"github.com/agrisense/cropagent/internal/noise"
	"github.com/agrisense/cropagent/internal/reference"
)

var soilCapabilities = []string{"soil_type", "moisture", "ph", "npk", "soil_health", "soil_recommendations"}

// Nutrient thresholds in kg/ha: below low is deficient, above high is sufficient.
var nutrientThresholds = map[string]model.Range{
	"nitrogen":   {Min: 180, Max: 250},
	"phosphorus": {Min: 20, Max: 40},
	"potassium":  {Min: 150, Max: 220},
}

var retentionMoisture = map[string]float64{
	"very_high": 70,
	"high":      55,
	"medium":    40,
	"low":       25,
	"very_low":  15,
}

var fertilityMultiplier = map[string]float64{
	"high":   1.2,
	"medium": 1.0,
	"low":    0.7,
}

// Soil collects soil type, moisture, pH and macronutrients.
type Soil struct {
	base[model.SoilSnapshot]
}

// NewSoil creates a soil collector. A nil source always simulates.
func NewSoil(deps Deps, source Source[model.SoilSnapshot]) *Soil {
	return &Soil{base: newBase("soil", soilCapabilities, source, deps.withDefaults())}
}

// Execute returns a soil snapshot for the run's region and crop.
func (s *Soil) Execute(ctx context.Context, rc model.RunContext) (model.SoilSnapshot, error) {
	req := fetchRequest(s.deps.Tables, rc)
	snap, live, err := s.collect(ctx, req, s.simulate)
	if err != nil {
		return model.SoilSnapshot{}, err
	}
	if live {
		snap.DataSource = model.SourceLive
		snap.Location = req.Location
		if snap.ObservedAt.IsZero() {
			snap.ObservedAt = s.deps.Clock()
		}
	}
	return snap, nil
}

func (s *Soil) simulate(req FetchRequest) model.SoilSnapshot {
	tables := s.deps.Tables
	src := s.deps.Noise
	now := s.deps.Clock()
	crop := tables.CropOrGeneric(req.Crop)

	soilTypes := []string{tables.DefaultSoil}
	if r, ok := tables.Region(req.Region); ok && len(r.SoilTypes) > 0 {
		soilTypes = r.SoilTypes
	}
	st := tables.SoilType(soilTypes[0])
	season := model.SeasonOf(now.Month())

	moisture := retentionMoisture[st.WaterRetention]
	switch season {
	case model.SeasonKharif:
		moisture += 15
	case model.SeasonZaid:
		moisture -= 10
	}
	moisture = model.Round(model.Clamp(moisture+noise.Jitter(src, 10), 10, 95), 1)
	ph := model.Round(noise.Uniform(src, st.PH.Min, st.PH.Max), 1)

	mult, ok := fertilityMultiplier[st.Fertility]
	if !ok {
		mult = 1.0
	}
	n := model.Round(noise.Uniform(src, 150, 280)*mult, 1)
	p := model.Round(noise.Uniform(src, 10, 50)*mult, 1)
	k := model.Round(noise.Uniform(src, 100, 250)*mult, 1)

	snap := model.SoilSnapshot{
		Location:  req.Location,
		SoilType:  st.Name,
		SoilTypes: soilTypes,
		Season:    season,
		Moisture: model.MoistureReading{
			Current: moisture,
			Optimal: crop.OptimalMoisture,
			Status:  moistureStatus(moisture, crop.OptimalMoisture),
		},
		PH: model.PHReading{
			Current: ph,
			Optimal: crop.OptimalPH,
			Status:  phStatus(ph, crop.OptimalPH),
		},
		NPK: model.NPK{
			Nitrogen:   nutrient(n, nutrientThresholds["nitrogen"]),
			Phosphorus: nutrient(p, nutrientThresholds["phosphorus"]),
			Potassium:  nutrient(k, nutrientThresholds["potassium"]),
		},
		OrganicCarbon: model.Round(noise.Uniform(src, 0.3, 1.5), 2),
		Conductivity:  model.Round(noise.Uniform(src, 0.1, 2.0), 2),
		DataSource:    model.SourceSimulated,
		ObservedAt:    now,
	}
	snap.HealthScore = soilHealth(snap, src)
	snap.Recommendations = soilRecommendations(snap, crop)
	return snap
}

func moistureStatus(v float64, band model.Range) model.MoistureStatus {
	switch {
	case v < band.Min:
		return model.MoistureLow
	case v > band.Max:
		return model.MoistureHigh
	default:
		return model.MoistureOptimal
	}
}

func phStatus(v float64, band model.Range) model.PHStatus {
	switch {
	case v < band.Min:
		return model.PHAcidic
	case v > band.Max:
		return model.PHAlkaline
	default:
		return model.PHOptimal
	}
}

func nutrient(v float64, t model.Range) model.NutrientReading {
	status := model.NutrientAdequate
	switch {
	case v < t.Min:
		status = model.NutrientDeficient
	case v > t.Max:
		status = model.NutrientSufficient
	}
	return model.NutrientReading{Current: v, Unit: "kg/ha", Status: status}
}

func soilHealth(s model.SoilSnapshot, src noise.Source) int {
	score := 100
	if s.PH.Status != model.PHOptimal {
		score -= 15
	}
	switch s.Moisture.Status {
	case model.MoistureLow:
		score -= 20
	case model.MoistureHigh:
		score -= 10
	}
	if s.NPK.Nitrogen.Status == model.NutrientDeficient {
		score -= 15
	}
	if s.NPK.Phosphorus.Status == model.NutrientDeficient {
		score -= 10
	}
	if s.NPK.Potassium.Status == model.NutrientDeficient {
		score -= 10
	}
	return model.ClampInt(score+noise.Between(src, -5, 5), 0, 100)
}

func soilRecommendations(s model.SoilSnapshot, crop reference.Crop) []model.Recommendation {
	var recs []model.Recommendation
	switch s.Moisture.Status {
	case model.MoistureLow:
		recs = append(recs, model.Recommendation{
			Category: "irrigation", Priority: model.PriorityHigh,
			Action:  "Increase irrigation frequency",
			Details: "Soil moisture is below the optimal range for " + crop.Name,
		})
	case model.MoistureHigh:
		recs = append(recs, model.Recommendation{
			Category: "drainage", Priority: model.PriorityMedium,
			Action:  "Improve field drainage",
			Details: "Excess soil moisture can cause root rot",
		})
	}
	switch s.PH.Status {
	case model.PHAcidic:
		recs = append(recs, model.Recommendation{
			Category: "ph_correction", Priority: model.PriorityMedium,
			Action:  "Apply agricultural lime",
			Details: "Apply 2-4 tonnes/ha of lime to raise soil pH",
		})
	case model.PHAlkaline:
		recs = append(recs, model.Recommendation{
			Category: "ph_correction", Priority: model.PriorityMedium,
			Action:  "Apply gypsum",
			Details: "Apply 2-3 tonnes/ha of gypsum to lower soil pH",
		})
	}
	if s.NPK.Nitrogen.Status == model.NutrientDeficient {
		recs = append(recs, model.Recommendation{
			Category: "fertilizer", Priority: model.PriorityHigh,
			Action: "Apply Urea", Details: "Apply 100-120 kg/ha of Urea in split doses",
		})
	}
	if s.NPK.Phosphorus.Status == model.NutrientDeficient {
		recs = append(recs, model.Recommendation{
			Category: "fertilizer", Priority: model.PriorityHigh,
			Action: "Apply DAP", Details: "Apply 50-60 kg/ha of DAP at sowing",
		})
	}
	if s.NPK.Potassium.Status == model.NutrientDeficient {
		recs = append(recs, model.Recommendation{
			Category: "fertilizer", Priority: model.PriorityMedium,
			Action: "Apply MOP", Details: "Apply 40-50 kg/ha of Muriate of Potash",
		})
	}
	if len(recs) == 0 {
		recs = append(recs, model.Recommendation{
			Category: "maintenance", Priority: model.PriorityLow,
			Action: "Continue current practices", Details: "Soil conditions are suitable for " + crop.Name,
		})
	}
	return recs
}
