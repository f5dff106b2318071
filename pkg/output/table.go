package output

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// ToolSummary contains data for the registered-tools table.
type ToolSummary struct {
	Name        string
	Kind        string // subprocess, openapi, script
	Description string
	Busy        bool // has an in-flight call (activity_counter > 0)
}

// ClientSummary contains data for the active-clients table.
type ClientSummary struct {
	ID             string
	State          string // new, initializing, initialized
	ActiveRequests int
	IdleSeconds    int64
}

// ExecutionSummary contains data for the in-flight-executions table.
type ExecutionSummary struct {
	Token        string
	ClientID     string
	Tool         string
	State        string // active, cancelled, finished
	ElapsedMS    int64
	IdleMS       int64
}

// Tools prints the registered-tools table.
func (p *Printer) Tools(tools []ToolSummary) {
	if len(tools) == 0 {
		p.Println("no tools registered")
		return
	}

	p.Section("TOOLS")

	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.SetStyle(p.tableStyle())
	t.AppendHeader(table.Row{"Name", "Kind", "Description", "Busy"})

	for _, tool := range tools {
		busy := "no"
		if tool.Busy {
			busy = "yes"
			if p.isTTY {
				busy = colorState("running")
			}
		}
		t.AppendRow(table.Row{tool.Name, tool.Kind, tool.Description, busy})
	}

	t.Render()
	p.Println()
}

// Clients prints the active-clients table.
func (p *Printer) Clients(clients []ClientSummary) {
	if len(clients) == 0 {
		p.Println("no clients connected")
		return
	}

	p.Section("CLIENTS")

	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.SetStyle(p.tableStyle())
	t.AppendHeader(table.Row{"ID", "State", "Active Requests", "Idle (s)"})

	for _, c := range clients {
		state := c.State
		if p.isTTY {
			state = colorState(clientStateColor(c.State))
		}
		t.AppendRow(table.Row{c.ID, state, c.ActiveRequests, c.IdleSeconds})
	}

	t.Render()
	p.Println()
}

// Executions prints the in-flight-executions table.
func (p *Printer) Executions(executions []ExecutionSummary) {
	if len(executions) == 0 {
		p.Println("no executions in flight")
		return
	}

	p.Section("EXECUTIONS")

	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.SetStyle(p.tableStyle())
	t.AppendHeader(table.Row{"Token", "Client", "Tool", "State", "Elapsed (ms)", "Idle (ms)"})

	for _, e := range executions {
		state := e.State
		if p.isTTY {
			state = colorState(executionStateColor(e.State))
		}
		t.AppendRow(table.Row{e.Token, e.ClientID, e.Tool, state, e.ElapsedMS, e.IdleMS})
	}

	t.Render()
	p.Println()
}

// clientStateColor maps a lifecycle state name to the closest colorState
// bucket (running/pending/stopped/etc.) so client tables reuse the same
// palette as tool and execution tables.
func clientStateColor(state string) string {
	switch state {
	case "initialized":
		return "running"
	case "initializing", "new":
		return "pending"
	default:
		return state
	}
}

// executionStateColor maps an execution state name to the closest
// colorState bucket.
func executionStateColor(state string) string {
	switch state {
	case "active":
		return "running"
	case "cancelled":
		return "stopped"
	case "finished":
		return "ready"
	default:
		return state
	}
}

// colorState applies color to state based on status.
func colorState(state string) string {
	var style lipgloss.Style
	switch state {
	case "running", "ready":
		style = lipgloss.NewStyle().Foreground(ColorGreen)
	case "failed", "error", "exited":
		style = lipgloss.NewStyle().Foreground(ColorRed)
	case "pending", "creating":
		style = lipgloss.NewStyle().Foreground(ColorAmber)
	case "stopped":
		style = lipgloss.NewStyle().Foreground(ColorMuted)
	default:
		style = lipgloss.NewStyle().Foreground(ColorGray)
	}
	return style.Render(state)
}

// tableStyle returns the standard amber-themed table style.
func (p *Printer) tableStyle() table.Style {
	style := table.StyleRounded
	if p.isTTY {
		style.Color.Header = text.Colors{text.FgHiYellow, text.Bold}
		style.Color.Border = text.Colors{text.FgHiBlack}
	}
	style.Options.SeparateRows = false
	return style
}

// Section prints a section header.
func (p *Printer) Section(title string) {
	if p.isTTY {
		style := lipgloss.NewStyle().Foreground(ColorAmber).Bold(true)
		p.Println(style.Render(title))
	} else {
		p.Println(title)
	}
}
