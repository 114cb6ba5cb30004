// Package export renders a list snapshot as a Markdown or HTML report.
package export

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"budgetlist/internal/core"
	appweb "budgetlist/web"
)

const (
	FormatMarkdown = "md"
	FormatHTML     = "html"
)

var (
	markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))
	page     = template.Must(template.ParseFS(appweb.TemplatesFS, "templates/report.html"))
	now      = time.Now
)

var statusLabels = map[core.BudgetStatus]string{
	core.StatusOK:         "Within budget",
	core.StatusWarning:    "Warning",
	core.StatusCritical:   "Critical",
	core.StatusOverBudget: "Over budget",
}

// Markdown renders the list, its totals and its items.
func Markdown(s *core.Snapshot) string {
	var b strings.Builder
	t := s.Totals

	fmt.Fprintf(&b, "# %s\n\n", escape(title(s.List)))
	fmt.Fprintf(&b, "**Status:** %s\n\n", statusLabels[t.Status])

	b.WriteString("| Budget | Spent | Remaining | Used |\n")
	b.WriteString("|---:|---:|---:|---:|\n")
	fmt.Fprintf(&b, "| %s | %s | %s | %s%% |\n\n",
		s.List.Budget, t.Spent, t.Remaining, t.Ratio.Shift(2).StringFixed(1))

	if len(s.List.Items) == 0 {
		b.WriteString("_No items yet._\n")
		return b.String()
	}

	fmt.Fprintf(&b, "## Items (%d, %d units)\n\n", t.ItemCount, t.Units)
	b.WriteString("| Item | Qty | Unit value | Line total |\n")
	b.WriteString("|---|---:|---:|---:|\n")
	for _, it := range s.List.Items {
		fmt.Fprintf(&b, "| %s | %d | %s | %s |\n", escape(it.Name), it.Quantity, it.UnitValue, it.LineTotal())
	}
	fmt.Fprintf(&b, "| **Total** | %d | | **%s** |\n", t.Units, t.Spent)
	return b.String()
}

// HTML converts the Markdown report and wraps it in a standalone page.
func HTML(s *core.Snapshot) ([]byte, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(Markdown(s)), &body); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}

	var out bytes.Buffer
	err := page.Execute(&out, struct {
		Title       string
		Status      string
		StatusLabel string
		Body        template.HTML
		Generated   string
	}{
		Title:       title(s.List),
		Status:      s.Totals.Status.String(),
		StatusLabel: statusLabels[s.Totals.Status],
		Body:        template.HTML(body.String()), // goldmark drops raw HTML by default
		Generated:   now().UTC().Format(time.RFC1123),
	})
	if err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}
	return out.Bytes(), nil
}

// ContentType returns the media type for format, or "" if unsupported.
func ContentType(format string) string {
	switch format {
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return ""
	}
}

func title(l core.List) string {
	if l.Name == "" {
		return "Untitled list"
	}
	return l.Name
}

var mdEscaper = strings.NewReplacer(
	`\`, `\\`, "|", `\|`, "*", `\*`, "_", `\_`, "`", "\\`",
	"[", `\[`, "]", `\]`, "<", `\<`, ">", `\>`, "#", `\#`,
	"\n", " ", "\r", " ",
)

func escape(s string) string {
	return mdEscaper.Replace(s)
}
