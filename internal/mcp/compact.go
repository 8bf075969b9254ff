package mcp

import (
	"github.com/agrisense/cropagent/internal/model"
)

// maxCompactRecommendations caps the advice list returned to assistants.
const maxCompactRecommendations = 3

// compactRun returns a minimal representation of a run for MCP responses.
// Drops charts, cards and raw snapshots that assistants don't act on.
func compactRun(res model.RunResult) map[string]any {
	m := map[string]any{
		"run_id":  res.ID,
		"state":   res.Context.Region,
		"crop":    res.Context.Crop,
		"intent":  res.Context.Intent,
		"success": res.Success,
	}
	if res.Response != nil {
		m["summary"] = res.Response.Summary.Text
		m["irrigation"] = res.Response.Irrigation.Message
	}
	if p := res.Prediction; p != nil {
		m["predicted_yield"] = p.PredictedYield
		m["unit"] = p.Unit
		m["confidence"] = p.Confidence
		m["risk_score"] = p.RiskScore
		m["risk_level"] = p.RiskLevel
		m["outlook"] = p.Outlook
		recs := p.Recommendations
		if len(recs) > maxCompactRecommendations {
			recs = recs[:maxCompactRecommendations]
		}
		advice := make([]string, 0, len(recs))
		for _, r := range recs {
			advice = append(advice, r.Action)
		}
		m["recommendations"] = advice
	}
	if a := res.Alerts; a != nil {
		m["overall_risk"] = a.Summary.Overall
		alerts := make([]map[string]any, 0, len(a.Active))
		for _, al := range a.Active {
			alerts = append(alerts, map[string]any{
				"type":     al.Kind,
				"severity": al.Severity,
				"action":   al.RecommendedAction,
			})
		}
		m["alerts"] = alerts
	}
	if len(res.Degraded) > 0 {
		m["degraded"] = res.Degraded
	}
	return m
}
