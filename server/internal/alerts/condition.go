package alerts

import (
	"strconv"
	"strings"

	"github.com/tibiaops/opsdash/pkg/types"
)

// evalCondition evaluates a rule condition string against a snapshot.
//
// Supported expressions (field operator value):
//
//	security.failed > 5
//	security.warnings >= 20
//	security.passed < 50
//	application.enemies_online >= 10
//	application.api_calls > 1000000
//	application.trolls_total > 500
//	application.bastex_total > 200
//	pipeline.total_deployments < 1
//	origin == sample
//
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed or the field is unknown.
func evalCondition(cond string, snap *types.MetricsSnapshot, origin types.Origin) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	if field == "origin" {
		switch op {
		case "==":
			return string(origin) == rhs, 0
		case "!=":
			return string(origin) != rhs, 0
		}
		return false, 0
	}

	v, ok := numericField(field, snap)
	if !ok {
		return false, 0
	}
	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return false, 0
	}
	return compareFloat(v, op, threshold), v
}

// numericField maps a field name to its value in the snapshot.
func numericField(field string, snap *types.MetricsSnapshot) (float64, bool) {
	group, name, ok := strings.Cut(field, ".")
	if !ok {
		return 0, false
	}
	switch group {
	case "security":
		if snap.Security == nil {
			return 0, false
		}
		switch name {
		case "passed":
			return float64(snap.Security.Passed), true
		case "warnings":
			return float64(snap.Security.Warnings), true
		case "failed":
			return float64(snap.Security.Failed), true
		}
	case "application":
		a := snap.Application
		if a == nil {
			return 0, false
		}
		switch name {
		case "trolls_total":
			return float64(a.TrollsTotal), true
		case "bastex_total":
			return float64(a.BastexTotal), true
		case "enemies_online":
			return float64(a.EnemiesOnline), true
		case "api_calls":
			return float64(a.APICalls), true
		case "worlds_monitored":
			return float64(a.WorldsMonitored), true
		case "guilds_monitored":
			return float64(a.GuildsMonitored), true
		}
	case "pipeline":
		if snap.Pipeline == nil {
			return 0, false
		}
		if name == "total_deployments" {
			return float64(snap.Pipeline.TotalDeployments), true
		}
	}
	return 0, false
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
