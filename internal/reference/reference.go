// Package reference holds the static agronomic, geographic and language
// tables. The tables are embedded YAML, parsed once and read-only after.
package reference

import (
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agrisense/cropagent/internal/model"
)

//go:embed data/*.yaml
var dataFS embed.FS

// Region is one supported state.
type Region struct {
	Name               string            `yaml:"name"`
	Names              map[string]string `yaml:"names"`
	Latitude           float64           `yaml:"lat"`
	Longitude          float64           `yaml:"lon"`
	Crops              []string          `yaml:"crops"`
	SoilTypes          []string          `yaml:"soil_types"`
	AgriculturalAreaHa float64           `yaml:"agricultural_area_ha"`
	Climate            string            `yaml:"climate"`
}

// Location returns the region centroid.
func (r Region) Location() model.Location {
	return model.Location{Latitude: r.Latitude, Longitude: r.Longitude}
}

// LocalName returns the region name in lang, falling back to English.
func (r Region) LocalName(lang string) string {
	if n, ok := r.Names[lang]; ok && n != "" {
		return n
	}
	return r.Name
}

// YieldRange is a crop's yield envelope in tonnes/hectare.
type YieldRange struct {
	Min float64 `yaml:"min"`
	Avg float64 `yaml:"avg"`
	Max float64 `yaml:"max"`
}

// NDVIBand is the optimal vegetation index band and its peak month.
type NDVIBand struct {
	Min       float64 `yaml:"min"`
	Max       float64 `yaml:"max"`
	PeakMonth int     `yaml:"peak_month"`
}

// Range returns the band as a model.Range.
func (b NDVIBand) Range() model.Range { return model.Range{Min: b.Min, Max: b.Max} }

// DiseaseInfo lists common diseases and a prevention note.
type DiseaseInfo struct {
	Names      []string `yaml:"names"`
	Prevention string   `yaml:"prevention"`
}

// StageWindow maps calendar months to a growth stage.
type StageWindow struct {
	Months       []int  `yaml:"months"`
	Stage        string `yaml:"stage"`
	Next         string `yaml:"next"`
	DurationDays int    `yaml:"duration_days"`
	DaysInStage  int    `yaml:"days_in_stage"`
}

// Crop holds the agronomic constants for one crop.
type Crop struct {
	Name               string            `yaml:"name"`
	Names              map[string]string `yaml:"names"`
	Yield              YieldRange        `yaml:"yield"`
	OptimalTemperature model.Range       `yaml:"optimal_temperature"`
	OptimalMoisture    model.Range       `yaml:"optimal_moisture"`
	OptimalPH          model.Range       `yaml:"optimal_ph"`
	NDVI               NDVIBand          `yaml:"ndvi"`
	GrowingMonths      []int             `yaml:"growing_months"`
	WaterLoving        bool              `yaml:"water_loving"`
	Diseases           *DiseaseInfo      `yaml:"diseases"`
	GrowthStages       []StageWindow     `yaml:"growth_stages"`
}

// LocalName returns the crop name in lang, falling back to English.
func (c Crop) LocalName(lang string) string {
	if n, ok := c.Names[lang]; ok && n != "" {
		return n
	}
	return c.Name
}

// InGrowingWindow reports whether m is one of the crop's growing months.
func (c Crop) InGrowingWindow(m time.Month) bool {
	for _, gm := range c.GrowingMonths {
		if time.Month(gm) == m {
			return true
		}
	}
	return false
}

// SoilType holds the constants for one soil class.
type SoilType struct {
	Name           string      `yaml:"name"`
	PH             model.Range `yaml:"ph"`
	WaterRetention string      `yaml:"water_retention"`
	Fertility      string      `yaml:"fertility"`
}

// Templates are the summary sentence templates of a language.
type Templates struct {
	Greeting      string `yaml:"greeting"`
	YieldGood     string `yaml:"yield_good"`
	YieldModerate string `yaml:"yield_moderate"`
	YieldPoor     string `yaml:"yield_poor"`
	RiskLow       string `yaml:"risk_low"`
	RiskMedium    string `yaml:"risk_medium"`
	RiskHigh      string `yaml:"risk_high"`
	Summary       string `yaml:"summary"`
}

// Language is the template set for one supported language.
type Language struct {
	Code       string                    `yaml:"code"`
	Name       string                    `yaml:"name"`
	Templates  Templates                 `yaml:"templates"`
	Titles     map[string]string         `yaml:"titles"`
	Labels     map[string]string         `yaml:"labels"`
	Irrigation map[string]string         `yaml:"irrigation"`
	Keywords   map[model.Intent][]string `yaml:"keywords"`
}

// Title returns the localized title for key, or key itself.
func (l Language) Title(key string) string {
	if v, ok := l.Titles[key]; ok {
		return v
	}
	return key
}

// Label returns the localized label for key, or key itself.
func (l Language) Label(key string) string {
	if v, ok := l.Labels[key]; ok {
		return v
	}
	return key
}

// Tables is the full set of reference data.
type Tables struct {
	Regions         []Region
	Crops           []Crop
	SoilTypes       []SoilType
	Languages       []Language
	DefaultLanguage string
	DefaultSoil     string
	GenericDiseases DiseaseInfo
	DefaultStage    StageWindow

	regionIdx map[string]int
	cropIdx   map[string]int
	soilIdx   map[string]int
	langIdx   map[string]int
}

type regionsFile struct {
	Regions []Region `yaml:"regions"`
}

type cropsFile struct {
	GenericDiseases DiseaseInfo `yaml:"generic_diseases"`
	DefaultStage    StageWindow `yaml:"default_growth_stage"`
	Crops           []Crop      `yaml:"crops"`
}

type soilsFile struct {
	Default   string     `yaml:"default"`
	SoilTypes []SoilType `yaml:"soil_types"`
}

type languagesFile struct {
	Default   string     `yaml:"default"`
	Languages []Language `yaml:"languages"`
}

var loadDefault = sync.OnceValues(Load)

// Default returns the embedded tables, parsed on first use. The data is
// compiled into the binary, so a parse failure is a programming error.
func Default() *Tables {
	t, err := loadDefault()
	if err != nil {
		panic(err)
	}
	return t
}

// Load parses and validates the embedded tables.
func Load() (*Tables, error) {
	var (
		rf regionsFile
		cf cropsFile
		sf soilsFile
		lf languagesFile
	)
	for name, dst := range map[string]any{
		"data/regions.yaml":   &rf,
		"data/crops.yaml":     &cf,
		"data/soils.yaml":     &sf,
		"data/languages.yaml": &lf,
	} {
		raw, err := dataFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("reference: read %s: %w", name, err)
		}
		if err := yaml.Unmarshal(raw, dst); err != nil {
			return nil, fmt.Errorf("reference: parse %s: %w", name, err)
		}
	}

	t := &Tables{
		Regions:         rf.Regions,
		Crops:           cf.Crops,
		SoilTypes:       sf.SoilTypes,
		Languages:       lf.Languages,
		DefaultLanguage: lf.Default,
		DefaultSoil:     sf.Default,
		GenericDiseases: cf.GenericDiseases,
		DefaultStage:    cf.DefaultStage,
		regionIdx:       make(map[string]int, len(rf.Regions)),
		cropIdx:         make(map[string]int, len(cf.Crops)),
		soilIdx:         make(map[string]int, len(sf.SoilTypes)),
		langIdx:         make(map[string]int, len(lf.Languages)),
	}
	for i, r := range t.Regions {
		t.regionIdx[strings.ToLower(r.Name)] = i
	}
	for i, c := range t.Crops {
		t.cropIdx[strings.ToLower(c.Name)] = i
	}
	for i, s := range t.SoilTypes {
		t.soilIdx[strings.ToLower(s.Name)] = i
	}
	for i, l := range t.Languages {
		t.langIdx[l.Code] = i
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tables) validate() error {
	var errs []error
	if len(t.Regions) == 0 || len(t.Crops) == 0 {
		errs = append(errs, errors.New("reference: regions and crops must not be empty"))
	}
	for _, r := range t.Regions {
		for _, c := range r.Crops {
			if _, ok := t.cropIdx[strings.ToLower(c)]; !ok {
				errs = append(errs, fmt.Errorf("reference: region %s lists unknown crop %s", r.Name, c))
			}
		}
		for _, s := range r.SoilTypes {
			if _, ok := t.soilIdx[strings.ToLower(s)]; !ok {
				errs = append(errs, fmt.Errorf("reference: region %s lists unknown soil type %s", r.Name, s))
			}
		}
	}
	for _, c := range t.Crops {
		if !(c.Yield.Min <= c.Yield.Avg && c.Yield.Avg <= c.Yield.Max) {
			errs = append(errs, fmt.Errorf("reference: crop %s has inconsistent yield range", c.Name))
		}
		if c.NDVI.PeakMonth < 1 || c.NDVI.PeakMonth > 12 {
			errs = append(errs, fmt.Errorf("reference: crop %s has invalid NDVI peak month", c.Name))
		}
	}
	if _, ok := t.soilIdx[strings.ToLower(t.DefaultSoil)]; !ok {
		errs = append(errs, fmt.Errorf("reference: default soil type %q not defined", t.DefaultSoil))
	}
	if _, ok := t.langIdx[t.DefaultLanguage]; !ok {
		errs = append(errs, fmt.Errorf("reference: default language %q not defined", t.DefaultLanguage))
	}
	return errors.Join(errs...)
}

// Region looks up a region by case-insensitive English name.
func (t *Tables) Region(name string) (Region, bool) {
	i, ok := t.regionIdx[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Region{}, false
	}
	return t.Regions[i], true
}

// Crop looks up a crop by case-insensitive English name.
func (t *Tables) Crop(name string) (Crop, bool) {
	i, ok := t.cropIdx[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Crop{}, false
	}
	return t.Crops[i], true
}

// SoilType looks up a soil class, falling back to the default class.
func (t *Tables) SoilType(name string) SoilType {
	if i, ok := t.soilIdx[strings.ToLower(name)]; ok {
		return t.SoilTypes[i]
	}
	return t.SoilTypes[t.soilIdx[strings.ToLower(t.DefaultSoil)]]
}

// HasLanguage reports whether code is a supported language.
func (t *Tables) HasLanguage(code string) bool {
	_, ok := t.langIdx[code]
	return ok
}

// Language returns the template set for code, falling back to the default.
func (t *Tables) Language(code string) Language {
	if i, ok := t.langIdx[code]; ok {
		return t.Languages[i]
	}
	return t.Languages[t.langIdx[t.DefaultLanguage]]
}

// LanguageCodes lists supported language codes in table order.
func (t *Tables) LanguageCodes() []string {
	out := make([]string, len(t.Languages))
	for i, l := range t.Languages {
		out[i] = l.Code
	}
	return out
}

// Diseases returns the crop's disease table or the generic fallback.
func (t *Tables) Diseases(crop string) DiseaseInfo {
	if c, ok := t.Crop(crop); ok && c.Diseases != nil {
		return *c.Diseases
	}
	return t.GenericDiseases
}

// GrowthStage returns the stage window covering month m, or the default.
func (t *Tables) GrowthStage(crop string, m time.Month) StageWindow {
	if c, ok := t.Crop(crop); ok {
		for _, w := range c.GrowthStages {
			for _, wm := range w.Months {
				if time.Month(wm) == m {
					return w
				}
			}
		}
	}
	return t.DefaultStage
}

// CropOrGeneric returns the named crop, or a crop carrying the generic
// agronomic defaults when the name is not in the table.
func (t *Tables) CropOrGeneric(name string) Crop {
	if c, ok := t.Crop(name); ok {
		return c
	}
	return Crop{
		Name:               name,
		Yield:              YieldRange{Min: 1.0, Avg: 2.5, Max: 4.0},
		OptimalTemperature: model.Range{Min: 20, Max: 30},
		OptimalMoisture:    model.Range{Min: 40, Max: 60},
		OptimalPH:          model.Range{Min: 6.0, Max: 7.5},
		NDVI:               NDVIBand{Min: 0.35, Max: 0.65, PeakMonth: 8},
	}
}
