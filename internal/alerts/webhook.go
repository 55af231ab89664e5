package alerts

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// fact is one labelled value shown in chat notifications.
type fact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// facts lists the sensor context of a: source and its poll state, then the
// channel reading and its change when the rule watches a channel.
func facts(a *Alert) []fact {
	out := []fact{
		{"Source", a.SourceID},
		{"Source state", a.SourceState},
		{"Rule", a.Condition},
	}
	if a.Channel != "" {
		reading := "n/a"
		if a.Reading != nil {
			reading = fmt.Sprintf("%.2f", *a.Reading)
		}
		change := "n/a"
		if a.Delta != nil {
			change = fmt.Sprintf("%+.2f", *a.Delta)
		}
		out = append(out,
			fact{"Channel", a.Channel},
			fact{"Reading", reading},
			fact{"Change since last poll", change},
		)
		if a.ReadingAt != nil {
			out = append(out, fact{"Reading time", a.ReadingAt.UTC().Format(time.RFC3339)})
		}
	} else {
		out = append(out, fact{"Value", fmt.Sprintf("%g", a.Value)})
	}
	return out
}

// slackMessage is a Block Kit message with a plain-text fallback.
type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func slackPayload(a *Alert) slackMessage {
	headline := fmt.Sprintf("%s *%s* on `%s`", stateLabel(a), a.RuleName, a.SourceID)
	var fields []slackText
	for _, f := range facts(a) {
		fields = append(fields, slackText{Type: "mrkdwn", Text: fmt.Sprintf("*%s*\n%s", f.Name, f.Value)})
	}
	return slackMessage{
		Text: fmt.Sprintf("%s %s", stateLabel(a), a.Message),
		Blocks: []slackBlock{
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: headline}},
			{Type: "section", Fields: fields},
			{Type: "context", Elements: []slackText{{Type: "mrkdwn", Text: timeline(a)}}},
		},
	}
}

// teamsCard is an Office 365 connector MessageCard.
type teamsCard struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor"`
	Summary    string         `json:"summary"`
	Title      string         `json:"title"`
	Sections   []teamsSection `json:"sections"`
}

type teamsSection struct {
	ActivityTitle    string `json:"activityTitle"`
	ActivitySubtitle string `json:"activitySubtitle"`
	Facts            []fact `json:"facts"`
}

func teamsPayload(a *Alert) teamsCard {
	return teamsCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: severityColor(a),
		Summary:    a.Message,
		Title:      fmt.Sprintf("%s Herbie alert: %s", stateLabel(a), a.RuleName),
		Sections: []teamsSection{{
			ActivityTitle:    a.Message,
			ActivitySubtitle: timeline(a),
			Facts:            facts(a),
		}},
	}
}

// httpPayload is the generic webhook body: the full alert plus an event name
// receivers can route on.
type httpPayload struct {
	Event string `json:"event"`
	Alert *Alert `json:"alert"`
}

// deliver sends a to every configured webhook. Failures are logged.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}
		var body any
		switch strings.ToLower(wh.Type) {
		case "slack":
			body = slackPayload(a)
		case "teams":
			body = teamsPayload(a)
		case "http":
			body = httpPayload{Event: "alert." + a.State, Alert: a}
		default:
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err := e.post(url, body); err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type, "rule", a.RuleName, "source", a.SourceID, "err", err)
			continue
		}
		slog.Debug("alerts: webhook delivered", "type", wh.Type, "rule", a.RuleName, "state", a.State)
	}
}

// post sends body as JSON. Any non-2xx answer is an error.
func (e *Engine) post(url string, body any) error {
	resp, err := e.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(url)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode())
	}
	return nil
}

func timeline(a *Alert) string {
	s := "fired " + a.FiredAt.UTC().Format(time.RFC3339)
	if a.ResolvedAt != nil {
		s += ", resolved " + a.ResolvedAt.UTC().Format(time.RFC3339) +
			" after " + a.ResolvedAt.Sub(a.FiredAt).Round(time.Second).String()
	}
	return s
}

func stateLabel(a *Alert) string {
	if a.State == StateResolved {
		return "[RESOLVED]"
	}
	return "[" + strings.ToUpper(a.Severity) + "]"
}

// severityColor picks the card accent; resolved alerts are green.
func severityColor(a *Alert) string {
	if a.State == StateResolved {
		return "2EB67D"
	}
	switch a.Severity {
	case "critical":
		return "E01E5A"
	case "warning":
		return "ECB22E"
	default:
		return "36C5F0"
	}
}
