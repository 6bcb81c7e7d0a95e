package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/chemistrywow31/claudecode"
)

const maxToolOutput = 400

// renderer prints messages for a human. Plain output carries no escape
// sequences.
type renderer struct {
	w     io.Writer
	plain bool

	userStyle     lipgloss.Style
	toolStyle     lipgloss.Style
	thinkingStyle lipgloss.Style
	metaStyle     lipgloss.Style
	doneStyle     lipgloss.Style
	errorStyle    lipgloss.Style
}

func newRenderer(w io.Writer, plain bool) *renderer {
	return &renderer{
		w:             w,
		plain:         plain,
		userStyle:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		toolStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
		thinkingStyle: lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("8")),
		metaStyle:     lipgloss.NewStyle().Faint(true),
		doneStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		errorStyle:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	}
}

func (r *renderer) paint(style lipgloss.Style, s string) string {
	if r.plain {
		return s
	}
	return style.Render(s)
}

// Render writes one message.
func (r *renderer) Render(msg claudecode.Message) error {
	var lines []string

	switch m := msg.(type) {
	case *claudecode.UserMessage:
		lines = append(lines, r.paint(r.userStyle, "> "+m.Text))

	case *claudecode.AssistantMessage:
		if m.Thinking != "" {
			lines = append(lines, r.paint(r.thinkingStyle, "(thinking) "+m.Thinking))
		}
		for _, block := range m.Content {
			lines = append(lines, r.block(block))
		}

	case *claudecode.ThinkingMessage:
		lines = append(lines, r.paint(r.thinkingStyle, "(thinking) "+m.Content))

	case *claudecode.SystemMessage:
		lines = append(lines, r.paint(r.metaStyle, "[system] "+m.Title))

	case *claudecode.ResultMessage:
		lines = append(lines, r.result(m))
	}

	if len(lines) == 0 {
		return nil
	}
	_, err := fmt.Fprintln(r.w, strings.Join(lines, "\n"))
	return err
}

func (r *renderer) block(block claudecode.ContentBlock) string {
	switch b := block.(type) {
	case claudecode.TextBlock:
		return b.Text
	case claudecode.ToolUseBlock:
		return r.paint(r.toolStyle, fmt.Sprintf("[tool] %s %s", b.Name, compactJSON(b.Input)))
	case claudecode.ToolResultBlock:
		label := "[tool result]"
		style := r.metaStyle
		if b.IsError {
			label = "[tool error]"
			style = r.errorStyle
		}
		return r.paint(style, label+" "+truncate(outputText(b.Output), maxToolOutput))
	}
	return ""
}

func (r *renderer) result(m *claudecode.ResultMessage) string {
	if m.IsError {
		detail := m.Status
		if m.Result != "" {
			detail += ": " + m.Result
		}
		return r.paint(r.errorStyle, "[failed] "+detail)
	}

	parts := []string{m.Status}
	if m.NumTurns > 0 {
		unit := "turns"
		if m.NumTurns == 1 {
			unit = "turn"
		}
		parts = append(parts, fmt.Sprintf("%d %s", m.NumTurns, unit))
	}
	if cost, ok := m.CostUSD(); ok {
		parts = append(parts, fmt.Sprintf("$%.4f", cost))
	}
	if m.DurationMS > 0 {
		parts = append(parts, (time.Duration(m.DurationMS) * time.Millisecond).String())
	}
	return r.paint(r.doneStyle, "[done] "+strings.Join(parts, " · "))
}

func outputText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return compactJSON(v)
}

func compactJSON(v any) string {
	if v == nil {
		return "{}"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
