package output

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrinter_Tools_Empty(t *testing.T) {
	var buf bytes.Buffer
	p := NewWithWriter(&buf)

	p.Tools(nil)

	if !strings.Contains(buf.String(), "no tools registered") {
		t.Errorf("Tools(nil) should report no tools, got %q", buf.String())
	}
}

func TestPrinter_Tools_WithData(t *testing.T) {
	var buf bytes.Buffer
	p := NewWithWriter(&buf)

	p.Tools([]ToolSummary{
		{Name: "echo", Kind: "subprocess", Description: "echoes input", Busy: false},
		{Name: "weather", Kind: "openapi", Description: "fetches forecast", Busy: true},
	})

	got := buf.String()
	if !strings.Contains(got, "TOOLS") {
		t.Error("Tools() should contain section header")
	}
	if !strings.Contains(got, "NAME") || !strings.Contains(got, "KIND") {
		t.Error("Tools() should contain NAME and KIND headers")
	}
	if !strings.Contains(got, "echo") || !strings.Contains(got, "weather") {
		t.Error("Tools() should contain tool names")
	}
}

func TestPrinter_Clients_Empty(t *testing.T) {
	var buf bytes.Buffer
	p := NewWithWriter(&buf)

	p.Clients(nil)

	if !strings.Contains(buf.String(), "no clients connected") {
		t.Errorf("Clients(nil) should report no clients, got %q", buf.String())
	}
}

func TestPrinter_Clients_WithData(t *testing.T) {
	var buf bytes.Buffer
	p := NewWithWriter(&buf)

	p.Clients([]ClientSummary{
		{ID: "client-1", State: "initialized", ActiveRequests: 2, IdleSeconds: 5},
	})

	got := buf.String()
	if !strings.Contains(got, "CLIENTS") {
		t.Error("Clients() should contain section header")
	}
	if !strings.Contains(got, "client-1") {
		t.Error("Clients() should contain client ID")
	}
	if !strings.Contains(got, "initialized") {
		t.Error("Clients() should contain client state")
	}
}

func TestPrinter_Executions_Empty(t *testing.T) {
	var buf bytes.Buffer
	p := NewWithWriter(&buf)

	p.Executions(nil)

	if !strings.Contains(buf.String(), "no executions in flight") {
		t.Errorf("Executions(nil) should report no executions, got %q", buf.String())
	}
}

func TestPrinter_Executions_WithData(t *testing.T) {
	var buf bytes.Buffer
	p := NewWithWriter(&buf)

	p.Executions([]ExecutionSummary{
		{Token: "tok-1", ClientID: "client-1", Tool: "echo", State: "active", ElapsedMS: 120, IdleMS: 10},
	})

	got := buf.String()
	if !strings.Contains(got, "EXECUTIONS") {
		t.Error("Executions() should contain section header")
	}
	if !strings.Contains(got, "tok-1") {
		t.Error("Executions() should contain execution token")
	}
	if !strings.Contains(got, "echo") {
		t.Error("Executions() should contain tool name")
	}
}

func TestColorState(t *testing.T) {
	tests := []struct {
		state    string
		contains string // Non-TTY won't have colors, but function should not panic
	}{
		{"running", "running"},
		{"ready", "ready"},
		{"failed", "failed"},
		{"error", "error"},
		{"exited", "exited"},
		{"pending", "pending"},
		{"creating", "creating"},
		{"stopped", "stopped"},
		{"unknown", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			result := colorState(tt.state)
			if !strings.Contains(result, tt.contains) {
				t.Errorf("colorState(%q) = %q, should contain %q", tt.state, result, tt.contains)
			}
		})
	}
}

func TestClientStateColor(t *testing.T) {
	cases := map[string]string{
		"initialized":  "running",
		"initializing": "pending",
		"new":          "pending",
	}
	for in, want := range cases {
		if got := clientStateColor(in); got != want {
			t.Errorf("clientStateColor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExecutionStateColor(t *testing.T) {
	cases := map[string]string{
		"active":    "running",
		"cancelled": "stopped",
		"finished":  "ready",
	}
	for in, want := range cases {
		if got := executionStateColor(in); got != want {
			t.Errorf("executionStateColor(%q) = %q, want %q", in, got, want)
		}
	}
}
