package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tibiaops/opsdash/pkg/types"
)

// fact is one labelled value of a notification.
type fact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// payloads builds the request body for each supported webhook type.
var payloads = map[string]func(a *Alert) ([]byte, error){
	"slack": slackPayload,
	"teams": teamsPayload,
	"http":  httpPayload,
}

// deliver posts a to every configured webhook. Failures are logged only.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}
		build, ok := payloads[wh.Type]
		if !ok {
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		body, err := build(a)
		if err == nil {
			err = e.post(url, body)
		}
		if err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type, "rule", a.RuleName, "state", a.State, "err", err)
			continue
		}
		slog.Debug("alerts: webhook delivered", "type", wh.Type, "rule", a.RuleName, "state", a.State)
	}
}

// headline is the one-line summary shared by the chat payloads.
func headline(a *Alert) string {
	h := fmt.Sprintf("%s %s is %s", severityLabel(a.Severity), a.RuleName, a.State)
	if a.Origin == types.OriginSample {
		h += " (dashboard is showing sample data)"
	}
	return h
}

// facts lists the snapshot values behind a, in display order.
func facts(a *Alert) []fact {
	d := a.Digest
	return []fact{
		{"Condition value", strconv.FormatFloat(a.Value, 'f', -1, 64)},
		{"Data origin", string(a.Origin)},
		{"Security scans", fmt.Sprintf("%d passed / %d warnings / %d failed", d.ScansPassed, d.ScansWarnings, d.ScansFailed)},
		{"Enemies online", strconv.Itoa(d.EnemiesOnline)},
		{"API calls", strconv.Itoa(d.APICalls)},
		{"Total deployments", strconv.Itoa(d.TotalDeployments)},
	}
}

func slackPayload(a *Alert) ([]byte, error) {
	type field struct {
		Title string `json:"title"`
		Value string `json:"value"`
		Short bool   `json:"short"`
	}
	fs := facts(a)
	fields := make([]field, 0, len(fs))
	for _, f := range fs {
		fields = append(fields, field{Title: f.Name, Value: f.Value, Short: true})
	}
	return json.Marshal(map[string]interface{}{
		"text": "*" + headline(a) + "*",
		"attachments": []map[string]interface{}{{
			"color":  "#" + severityColor(a.Severity, a.State),
			"text":   a.Message,
			"fields": fields,
		}},
	})
}

func teamsPayload(a *Alert) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColor(a.Severity, a.State),
		"summary":    headline(a),
		"title":      "OpsDash Alert: " + a.RuleName,
		"sections": []map[string]interface{}{{
			"activityTitle": headline(a),
			"text":          a.Message,
			"facts":         facts(a),
		}},
	})
}

// httpPayload sends the alert itself; origin and digest travel with it.
func httpPayload(a *Alert) ([]byte, error) {
	return json.Marshal(map[string]interface{}{"alert": a})
}

func (e *Engine) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityLabel(s string) string {
	switch s {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

// severityColor picks the card accent; resolved alerts are always green.
func severityColor(severity, state string) string {
	if state == "resolved" {
		return "3FB950"
	}
	switch severity {
	case "critical":
		return "F85149"
	case "warning":
		return "D29922"
	default:
		return "58A6FF"
	}
}
