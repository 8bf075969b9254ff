package pipeline

import (
	"fmt"
	"strings"

	"github.com/agrisense/cropagent/internal/model"
	"github.com/agrisense/cropagent/internal/reference"
)

// intentOrder is the precedence used when a query matches several intents.
var intentOrder = []model.Intent{
	model.IntentWeather,
	model.IntentSoil,
	model.IntentHealth,
	model.IntentIrrigation,
}

// parsed is the outcome of reading a free-text query.
type parsed struct {
	region string
	crop   string
	intent model.Intent
}

// parseQuery finds the first region and the first crop named in the query,
// scanning the tables in order and matching case-insensitively on English
// and localized names. The intent comes from the keyword lists of lang and
// of the default language.
func parseQuery(tables *reference.Tables, query, lang string) parsed {
	q := strings.ToLower(query)
	var p parsed

	for _, r := range tables.Regions {
		if mentions(q, r.Name, r.Names) {
			p.region = r.Name
			break
		}
	}
	for _, c := range tables.Crops {
		if mentions(q, c.Name, c.Names) {
			p.crop = c.Name
			break
		}
	}

	p.intent = model.IntentYield
	langs := []reference.Language{tables.Language(lang)}
	if lang != tables.DefaultLanguage {
		langs = append(langs, tables.Language(tables.DefaultLanguage))
	}
	for _, intent := range intentOrder {
		if matchesAny(q, langs, intent) {
			p.intent = intent
			break
		}
	}
	return p
}

func mentions(q, name string, local map[string]string) bool {
	if strings.Contains(q, strings.ToLower(name)) {
		return true
	}
	for _, n := range local {
		if n != "" && strings.Contains(q, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

func matchesAny(q string, langs []reference.Language, intent model.Intent) bool {
	for _, l := range langs {
		for _, kw := range l.Keywords[intent] {
			if strings.Contains(q, strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}

// resolved is the validated target of a run.
type resolved struct {
	region reference.Region
	crop   string
	lang   string
	intent model.Intent
}

// resolve applies the precedence caller value, then query text, then
// configured default. A caller value that is not in the tables is an
// error; an unknown name in the query text is simply not matched.
func (p *Pipeline) resolve(req Request) (resolved, error) {
	lang := req.Language
	if lang == "" || !p.tables.HasLanguage(lang) {
		lang = p.cfg.DefaultLanguage
	}
	q := parseQuery(p.tables, req.Query, lang)

	regionName := q.region
	if req.Region != "" {
		regionName = req.Region
	}
	if regionName == "" {
		regionName = p.cfg.DefaultRegion
	}
	region, ok := p.tables.Region(regionName)
	if !ok {
		return resolved{}, fmt.Errorf("%w: %q", ErrUnknownRegion, regionName)
	}

	cropName := q.crop
	if req.Crop != "" {
		cropName = req.Crop
	}
	if cropName == "" {
		cropName = p.cfg.DefaultCrop
	}
	crop, ok := p.tables.Crop(cropName)
	if !ok {
		return resolved{}, fmt.Errorf("%w: %q", ErrUnknownCrop, cropName)
	}

	return resolved{region: region, crop: crop.Name, lang: lang, intent: q.intent}, nil
}
