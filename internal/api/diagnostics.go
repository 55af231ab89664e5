package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/herbieproject/herbie-dash/internal/poller"
	"github.com/herbieproject/herbie-dash/internal/security"
	"github.com/herbieproject/herbie-dash/internal/snapshot"
)

// staleReadingAge is how far the newest row may lag the poll before the
// source is flagged as no longer logging.
const staleReadingAge = time.Hour

// DiagnosticHint is one human-readable insight about a source. The UI shows
// these as chips on the source card; Detail is the explanation on hover.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label shown on the chip.
	Title string `json:"title"`
	// Detail is the full explanation.
	Detail string `json:"detail"`
	// Value is an optional numeric value associated with this hint.
	Value *float64 `json:"value,omitempty"`
}

// computeDiagnostics derives diagnostic hints from a frame and the source's
// certificate check (nil when unknown), most severe first.
func computeDiagnostics(f *poller.Frame, cert *security.CertStatus) []DiagnosticHint {
	hints := certHints(cert)

	// Fetch failure.
	if f.Err != "" {
		detail := fmt.Sprintf(
			"The dashboard couldn't read this sensor log. The last attempt failed with: %q. "+
				"Check that the file or sheet still exists, that the endpoint is reachable "+
				"and that credentials are valid. Polling continues with backoff.",
			f.Err,
		)
		hints = append(hints, DiagnosticHint{
			Key:    "source_unavailable",
			Level:  "critical",
			Title:  "Can't read source",
			Detail: detail,
		})
		if f.Snapshot.Empty() {
			return hints
		}
		hints = append(hints, DiagnosticHint{
			Key:   "showing_last_good",
			Level: "info",
			Title: "Showing last good data",
			Detail: "Values and charts below come from the last successful poll. " +
				"They will refresh as soon as the source can be read again.",
		})
	}

	snap := f.Snapshot
	if snap.Empty() {
		return append(hints, DiagnosticHint{
			Key:    "awaiting",
			Level:  "info",
			Title:  "Waiting for data",
			Detail: "No snapshot has been read from this source yet.",
		})
	}

	// First snapshot, no delta yet.
	if f.Delta == nil && f.Err == "" {
		hints = append(hints, DiagnosticHint{
			Key:   "warming_up",
			Level: "info",
			Title: "Warming up",
			Detail: "This is the first reading. Changes are computed between two consecutive polls, " +
				"so deltas appear after the next poll. No action needed.",
		})
	}

	// Coercion warnings.
	nonNumeric, badTime := countWarnings(snap)
	if nonNumeric > 0 {
		v := float64(nonNumeric)
		hints = append(hints, DiagnosticHint{
			Key:   "non_numeric_cells",
			Level: "warning",
			Title: fmt.Sprintf("%d non-numeric cells", nonNumeric),
			Detail: fmt.Sprintf(
				"%d cells could not be read as numbers and are shown as 0. %s"+
					"This usually means the logger wrote an error string or a unit into a value column.",
				nonNumeric, firstWarning(snap, snapshot.WarnNonNumeric),
			),
			Value: &v,
		})
	}
	if badTime > 0 {
		v := float64(badTime)
		hints = append(hints, DiagnosticHint{
			Key:   "malformed_timestamps",
			Level: "warning",
			Title: fmt.Sprintf("%d bad timestamps", badTime),
			Detail: fmt.Sprintf(
				"%d rows have a missing or unreadable timestamp. They stay in the table but are "+
					"left out of the chart. %sAdd the logger's format to time_layouts if it is valid.",
				badTime, firstWarning(snap, snapshot.WarnMalformedTimestamp),
			),
			Value: &v,
		})
	}

	if snap.Filled > 0 {
		v := float64(snap.Filled)
		hints = append(hints, DiagnosticHint{
			Key:    "filled_cells",
			Level:  "info",
			Title:  fmt.Sprintf("%d empty cells", snap.Filled),
			Detail: fmt.Sprintf("%d empty cells were filled with 0.", snap.Filled),
			Value:  &v,
		})
	}

	// Column set changed between polls.
	if f.Delta != nil && len(f.Delta.Missing) > 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "columns_changed",
			Level: "warning",
			Title: "Columns changed",
			Detail: fmt.Sprintf(
				"The channels %s exist in only one of the last two polls, so they have no delta. "+
					"A header was renamed, added or removed in the source.",
				strings.Join(f.Delta.Missing, ", "),
			),
		})
	}

	// Logger stopped appending rows.
	if last, _ := snap.Last(); last.HasTime() && f.Err == "" {
		if age := f.PolledAt.Sub(last.Time); age > staleReadingAge {
			v := age.Hours()
			hints = append(hints, DiagnosticHint{
				Key:   "stale_readings",
				Level: "warning",
				Title: "No new readings",
				Detail: fmt.Sprintf(
					"The newest row is %s old. The source is reachable but the logger "+
						"doesn't seem to be writing. Check the sensor's power and connectivity.",
					age.Round(time.Minute),
				),
				Value: &v,
			})
		}
	}

	if len(hints) == 0 {
		rows := float64(snap.Len())
		hints = append(hints, DiagnosticHint{
			Key:   "healthy",
			Level: "ok",
			Title: "All clear",
			Detail: fmt.Sprintf(
				"%d rows read cleanly: no unreadable cells, no bad timestamps and fresh readings.",
				snap.Len(),
			),
			Value: &rows,
		})
	}
	return hints
}

// certHints reports certificates that need attention.
func certHints(cs *security.CertStatus) []DiagnosticHint {
	if cs == nil {
		return nil
	}
	days := float64(cs.DaysLeft)
	switch cs.Status {
	case security.CertExpired:
		return []DiagnosticHint{{
			Key:    "cert_expired",
			Level:  "critical",
			Title:  "Certificate expired",
			Detail: fmt.Sprintf("The TLS certificate of %s expired on %s. Fetches will fail until it is renewed.", cs.Endpoint, cs.NotAfter),
			Value:  &days,
		}}
	case security.CertExpiring:
		return []DiagnosticHint{{
			Key:    "cert_expiring",
			Level:  "warning",
			Title:  fmt.Sprintf("Certificate expires in %dd", cs.DaysLeft),
			Detail: fmt.Sprintf("The TLS certificate of %s expires on %s (issuer %q).", cs.Endpoint, cs.NotAfter, cs.Issuer),
			Value:  &days,
		}}
	case security.CertUnreachable:
		return []DiagnosticHint{{
			Key:    "cert_unverified",
			Level:  "warning",
			Title:  "TLS handshake failed",
			Detail: fmt.Sprintf("The certificate of %s could not be verified. Check the endpoint and tls.insecure_skip_verify.", cs.Endpoint),
		}}
	}
	return nil
}

// countWarnings splits the snapshot's retained warnings by kind, scaled up
// to WarningCount when the list was capped.
func countWarnings(snap *snapshot.Snapshot) (nonNumeric, badTime int) {
	for _, w := range snap.Warnings {
		switch w.Kind {
		case snapshot.WarnNonNumeric:
			nonNumeric++
		case snapshot.WarnMalformedTimestamp:
			badTime++
		}
	}
	kept := nonNumeric + badTime
	if kept > 0 && snap.WarningCount > kept {
		nonNumeric = nonNumeric * snap.WarningCount / kept
		badTime = snap.WarningCount - nonNumeric
	}
	return nonNumeric, badTime
}

func firstWarning(snap *snapshot.Snapshot, kind string) string {
	for _, w := range snap.Warnings {
		if w.Kind == kind {
			return fmt.Sprintf("First seen at row %d, column %q: %q. ", w.Row, w.Column, w.Value)
		}
	}
	return ""
}
