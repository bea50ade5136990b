package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rcliao/data-assistant/internal/model"
)

var (
	colorUser      = lipgloss.Color("#2196F3")
	colorAssistant = lipgloss.Color("#8BC34A")
	colorError     = lipgloss.Color("#e53935")
	colorMuted     = lipgloss.Color("#888888")

	titleStyle     = lipgloss.NewStyle().Bold(true)
	headerStyle    = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle      = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle     = lipgloss.NewStyle().Foreground(colorMuted)
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(colorUser)
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAssistant)
	errorStyle     = lipgloss.NewStyle().Foreground(colorError)
	sqlStyle       = lipgloss.NewStyle().Italic(true).Foreground(colorMuted)
)

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(b))
}

// table renders rows under headers with padded columns.
type table struct {
	title   string
	headers []string
	rows    [][]string
}

func (t *table) add(row ...string) {
	t.rows = append(t.rows, row)
}

func (t *table) String() string {
	var sb strings.Builder
	if t.title != "" {
		sb.WriteString(titleStyle.Render(t.title))
		sb.WriteString("\n")
	}
	if len(t.rows) == 0 {
		sb.WriteString(mutedStyle.Render("(none)"))
		return sb.String()
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}
	for i := range widths {
		widths[i] += 2
	}

	sep := mutedStyle.Render("|")
	for i, h := range t.headers {
		sb.WriteString(headerStyle.Width(widths[i]).Render(h))
		if i < len(t.headers)-1 {
			sb.WriteString(sep)
		}
	}
	sb.WriteString("\n")
	for i, w := range widths {
		sb.WriteString(mutedStyle.Render(strings.Repeat("-", w)))
		if i < len(widths)-1 {
			sb.WriteString(mutedStyle.Render("+"))
		}
	}
	for _, row := range t.rows {
		sb.WriteString("\n")
		for i := range t.headers {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			sb.WriteString(cellStyle.Width(widths[i]).Render(cell))
			if i < len(t.headers)-1 {
				sb.WriteString(sep)
			}
		}
	}
	return sb.String()
}

func datasetTable(snap model.Snapshot, selected []string) string {
	t := &table{
		title:   fmt.Sprintf("Datasets (%d)", len(snap.Datasets)),
		headers: []string{"", "ID", "NAME", "OWNER", "ROWS", "FILE"},
	}
	for _, d := range snap.Datasets {
		mark := ""
		for _, id := range selected {
			if id == d.ID {
				mark = "*"
				break
			}
		}
		t.add(mark, d.ID, d.Name, d.Owner, strconv.Itoa(d.RowCount), d.OriginalFilename)
	}
	return t.String()
}

// rowsTable renders result rows. Column order follows columns when given,
// otherwise the sorted keys of the first row.
func rowsTable(columns []string, rows []map[string]any) string {
	if len(columns) == 0 && len(rows) > 0 {
		for k := range rows[0] {
			columns = append(columns, k)
		}
		sort.Strings(columns)
	}
	t := &table{headers: columns}
	for _, r := range rows {
		cells := make([]string, len(columns))
		for i, c := range columns {
			cells[i] = formatCell(r[c])
		}
		t.add(cells...)
	}
	return t.String()
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// renderMessage writes one transcript entry in text form.
func renderMessage(w io.Writer, m model.ChatMessage) {
	switch m.Role {
	case model.RoleUser:
		fmt.Fprintf(w, "%s %s\n", userStyle.Render("you>"), m.Content)
	default:
		style := assistantStyle
		if m.Result == nil || m.Result.Failed() {
			style = errorStyle.Bold(true)
		}
		fmt.Fprintf(w, "%s %s\n", style.Render("assistant>"), m.Content)
		if m.Result == nil {
			return
		}
		if m.Result.SQL != nil && *m.Result.SQL != "" {
			fmt.Fprintln(w, sqlStyle.Render(*m.Result.SQL))
		}
		if len(m.Result.Rows) > 0 {
			fmt.Fprintln(w, rowsTable(nil, m.Result.Rows))
		}
	}
}
