package alerts

import (
	"strconv"
	"strings"

	"github.com/herbieproject/herbie-dash/internal/poller"
)

const deltaPrefix = "delta."

// evalCondition evaluates a rule condition against a frame.
//
// Supported expressions (field operator value):
//
//	Moist < 20
//	delta.Temp > 3
//	warnings > 0
//	rows < 10
//	state == unavailable
//
// The field is everything before the last two tokens, so channel names may
// contain spaces. ok is false when the condition cannot be evaluated against
// this frame: malformed expression, unknown channel, missing delta or no
// snapshot. Callers leave the rule's alert state unchanged in that case.
func evalCondition(cond string, f *poller.Frame) (fires bool, value float64, ok bool) {
	field, op, rhs, parsed := parseCondition(cond)
	if !parsed {
		return false, 0, false
	}

	if field == "state" {
		switch op {
		case "==":
			return f.State == rhs, 0, true
		case "!=":
			return f.State != rhs, 0, true
		}
		return false, 0, false
	}

	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return false, 0, false
	}
	v, ok := numericField(field, f)
	if !ok {
		return false, 0, false
	}
	return compareFloat(v, op, threshold), v, validOp(op)
}

// parseCondition splits cond into field, operator and right-hand side.
func parseCondition(cond string) (field, op, rhs string, ok bool) {
	parts := strings.Fields(cond)
	n := len(parts)
	if n < 3 {
		return "", "", "", false
	}
	return strings.Join(parts[:n-2], " "), parts[n-2], parts[n-1], true
}

// conditionChannel returns the sensor channel a condition watches, or ""
// for state, warnings and rows conditions.
func conditionChannel(cond string) string {
	field, _, _, ok := parseCondition(cond)
	if !ok {
		return ""
	}
	switch field {
	case "state", "warnings", "rows":
		return ""
	}
	ch, _ := strings.CutPrefix(field, deltaPrefix)
	return ch
}

// numericField resolves a field name against the frame. Only fresh frames
// carry numeric fields; an unavailable frame's snapshot is the last good one.
func numericField(field string, f *poller.Frame) (float64, bool) {
	if f.Snapshot.Empty() || f.Stale {
		return 0, false
	}
	switch field {
	case "warnings":
		return float64(f.Snapshot.WarningCount), true
	case "rows":
		return float64(f.Snapshot.Len()), true
	}
	if ch, isDelta := strings.CutPrefix(field, deltaPrefix); isDelta {
		return f.Delta.Value(ch)
	}
	v, ok := f.Snapshot.Latest()[field]
	return v, ok
}

func validOp(op string) bool {
	switch op {
	case ">", ">=", "<", "<=", "==", "!=":
		return true
	}
	return false
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
