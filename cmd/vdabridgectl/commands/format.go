// Package commands implements the vdabridgectl CLI commands.
package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dantte-lp/vdabridge/internal/bridge"
	"github.com/dantte-lp/vdabridge/internal/server"
	"github.com/dantte-lp/vdabridge/internal/vda"
)

const (
	formatJSON  = "json"
	formatTable = "table"
	valueNA     = "N/A"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// The admin API payloads already carry clean JSON field names, so the JSON
// formatters marshal them directly instead of going through view structs.

// formatStatus renders the daemon status in the requested format.
func formatStatus(st server.StatusResponse, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalJSON(st)
	case formatTable:
		return formatStatusTable(st)
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatAGVs renders a slice of AGV statuses in the requested format.
func formatAGVs(agvs []bridge.VehicleStatus, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalJSON(agvs)
	case formatTable:
		return formatAGVsTable(agvs)
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatAGV renders a single AGV status in the requested format.
func formatAGV(vs bridge.VehicleStatus, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalJSON(vs)
	case formatTable:
		return formatAGVDetail(vs)
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// --- Table formatters ---

func formatStatusTable(st server.StatusResponse) (string, error) {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Version:\t%s\n", st.Version)
	fmt.Fprintf(w, "Commit:\t%s\n", st.Commit)
	fmt.Fprintf(w, "Built At:\t%s\n", st.BuiltAt)
	fmt.Fprintf(w, "Uptime:\t%s\n", time.Duration(st.UptimeSeconds)*time.Second)
	fmt.Fprintf(w, "Broker Connected:\t%s\n", yesNo(st.Broker.Connected))

	if st.Broker.ClientID != "" {
		fmt.Fprintf(w, "Broker Client ID:\t%s\n", st.Broker.ClientID)
	}

	fmt.Fprintf(w, "AGVs Total:\t%d\n", st.Vehicles.Total)
	fmt.Fprintf(w, "AGVs Online:\t%d\n", st.Vehicles.Online)
	fmt.Fprintf(w, "AGVs Failed:\t%d\n", st.Vehicles.Failed)

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush tabwriter: %w", err)
	}

	return buf.String(), nil
}

func formatAGVsTable(agvs []bridge.VehicleStatus) (string, error) {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERIAL\tNICKNAME\tHOST\tCONNECTION\tPORTS\tLAST-STATE")

	for _, vs := range agvs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			vs.Serial,
			orNA(vs.Nickname),
			orNA(vs.Host),
			connectionColumn(vs),
			portsColumn(vs.Ports),
			agoOrNA(vs.LastStateAt),
		)
	}

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush tabwriter: %w", err)
	}

	return buf.String(), nil
}

func formatAGVDetail(vs bridge.VehicleStatus) (string, error) {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Serial:\t%s\n", vs.Serial)
	fmt.Fprintf(w, "Nickname:\t%s\n", orNA(vs.Nickname))
	fmt.Fprintf(w, "Manufacturer:\t%s\n", orNA(vs.Manufacturer))
	fmt.Fprintf(w, "Host:\t%s\n", orNA(vs.Host))
	fmt.Fprintf(w, "Online:\t%s\n", yesNo(vs.Online))
	fmt.Fprintf(w, "Failed:\t%s\n", yesNo(vs.Failed))
	fmt.Fprintf(w, "Connection:\t%s\n", orNA(vs.Connection))
	fmt.Fprintf(w, "Last State:\t%s\n", agoOrNA(vs.LastStateAt))

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush tabwriter: %w", err)
	}

	if len(vs.Ports) == 0 {
		return buf.String(), nil
	}

	buf.WriteString("\n")

	pw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(pw, "ROLE\tADDRESS\tSTATE\tSENT\tRECEIVED\tLAST-FRAME")

	for _, p := range vs.Ports {
		fmt.Fprintf(pw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			p.Role,
			p.Address,
			p.State,
			p.FramesSent,
			p.FramesReceived,
			agoOrNA(p.LastFrameAt),
		)
	}

	if err := pw.Flush(); err != nil {
		return "", fmt.Errorf("flush tabwriter: %w", err)
	}

	return buf.String(), nil
}

// --- Monitor message formatting ---

// messageView is the JSON envelope for one monitored MQTT message.
type messageView struct {
	Timestamp    string          `json:"timestamp"`
	Manufacturer string          `json:"manufacturer"`
	Serial       string          `json:"serial"`
	Kind         string          `json:"kind"`
	Payload      json.RawMessage `json:"payload"`
}

// formatMessage renders one MQTT message as a single table line or a JSON
// envelope, depending on the requested format.
func formatMessage(topic vda.Topic, payload []byte, format string) string {
	if format != formatJSON {
		return fmt.Sprintf("[%s] %-14s %s/%s  %s",
			time.Now().Format(time.RFC3339),
			topic.Kind,
			topic.Manufacturer,
			topic.SerialNumber,
			compactPayload(payload),
		)
	}

	raw := json.RawMessage(payload)
	if !json.Valid(payload) {
		// Non-JSON payloads are embedded as a quoted string.
		raw, _ = json.Marshal(string(payload))
	}

	env := messageView{
		Timestamp:    time.Now().Format(time.RFC3339),
		Manufacturer: topic.Manufacturer,
		Serial:       topic.SerialNumber,
		Kind:         string(topic.Kind),
		Payload:      raw,
	}

	data, err := json.Marshal(env)
	if err != nil {
		return valueNA
	}

	return string(data)
}

// compactPayload strips insignificant whitespace so each message stays on
// one line. Non-JSON payloads pass through unchanged.
func compactPayload(payload []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		return string(payload)
	}

	return buf.String()
}

// --- JSON formatter ---

func marshalJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal to JSON: %w", err)
	}

	return string(data), nil
}

// --- Column helpers ---

func connectionColumn(vs bridge.VehicleStatus) string {
	switch {
	case vs.Failed:
		return "FAILED"
	case vs.Connection != "":
		return vs.Connection
	default:
		return valueNA
	}
}

// portsColumn summarizes port sessions as connected/total. The state
// strings come from the admin API, "Connected" meaning an established
// socket with a live receive loop.
func portsColumn(ports []bridge.PortStatus) string {
	connected := 0

	for _, p := range ports {
		if p.State == "Connected" {
			connected++
		}
	}

	return fmt.Sprintf("%d/%d", connected, len(ports))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}

	return "no"
}

func orNA(s string) string {
	if s == "" {
		return valueNA
	}

	return s
}

func agoOrNA(t time.Time) string {
	if t.IsZero() {
		return valueNA
	}

	return time.Since(t).Round(time.Second).String() + " ago"
}
