// Package table converts blockquote values into rows for terminal tables.
package table

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/agentstation/blockquote/internal/cmd/emoji"
	"github.com/agentstation/blockquote/pkg/constants"
	"github.com/agentstation/blockquote/pkg/reconcile"
	"github.com/agentstation/blockquote/pkg/records"
)

// Align represents column alignment in tables.
type Align int

const (
	// AlignDefault uses the default alignment (skip).
	AlignDefault Align = iota
	// AlignLeft aligns content to the left.
	AlignLeft
	// AlignCenter centers content.
	AlignCenter
	// AlignRight aligns content to the right.
	AlignRight
)

// Data represents table formatting data to avoid import cycles.
type Data struct {
	Headers         []string
	Rows            [][]string
	ColumnAlignment []Align
}

// maxTextWidth is where post text is cut in narrow tables.
const maxTextWidth = 60

// RecordsToTableData converts records to table format. Wide adds the
// author, the due date and the post text.
func RecordsToTableData(recs []records.Record, wide bool, now time.Time) Data {
	headers := []string{"ID", "Quotes", "Created", "Last Updated", "Status"}
	align := []Align{AlignLeft, AlignLeft, AlignLeft, AlignLeft, AlignCenter}
	if wide {
		headers = append(headers, "Due", "Author", "Text")
		align = append(align, AlignLeft, AlignLeft, AlignLeft)
	}

	rows := make([][]string, 0, len(recs))
	for i := range recs {
		r := &recs[i]
		row := []string{
			r.ID,
			orDash(r.ForeignRef),
			FormatTime(r.CreatedAt),
			FormatTime(r.LastUpdated),
			Status(r),
		}
		if wide {
			due := "-"
			if r.IsCandidate() {
				due = FormatTime(r.DueAt(now))
			}
			row = append(row, due, author(r.Post), Truncate(postText(r.Post), maxTextWidth))
		}
		rows = append(rows, row)
	}

	return Data{Headers: headers, Rows: rows, ColumnAlignment: align}
}

// RecordToTableData renders one record as a property list.
func RecordToTableData(r *records.Record, now time.Time) Data {
	due := "-"
	if r.IsCandidate() {
		due = FormatTime(r.DueAt(now))
	}

	rows := [][]string{
		{"ID", r.ID},
		{"Quotes", orDash(r.ForeignRef)},
		{"Status", Status(r)},
		{"Created", FormatTime(r.CreatedAt)},
		{"Last Updated", FormatTime(r.LastUpdated)},
		{"Next Check", due},
	}
	if r.Post != nil {
		rows = append(rows,
			[]string{"Author", author(r.Post)},
			[]string{"URL", orDash(r.Post.URL)},
			[]string{"Text", orDash(r.Post.Text)},
		)
		if q := r.Post.Quoted; q != nil {
			rows = append(rows, []string{"Quoted Text", quotedText(q)})
		}
	}

	return Data{
		Headers:         []string{"Property", "Value"},
		Rows:            rows,
		ColumnAlignment: []Align{AlignLeft, AlignLeft},
	}
}

// ResultToTableData summarizes a reconciliation run.
func ResultToTableData(res *reconcile.Result) Data {
	deleted := "-"
	if len(res.MarkedDeleted) > 0 {
		deleted = strings.Join(res.MarkedDeleted, ", ")
	}

	return Data{
		Headers: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Run", res.RunID.String()},
			{"Elapsed", res.Elapsed.Round(time.Millisecond).String()},
			{"Pulled", strconv.Itoa(res.Pulled)},
			{"Found", strconv.Itoa(res.Found)},
			{"Squelched", strconv.Itoa(res.Squelched)},
			{"Upserted", strconv.Itoa(res.Upserted)},
			{"Marked Deleted", deleted},
			{"Mismatch", yesNo(res.Mismatch)},
			{"Backoff Tripped", yesNo(res.BackoffTripped)},
		},
		ColumnAlignment: []Align{AlignLeft, AlignRight},
	}
}

// PropertiesToTableData renders ordered key/value pairs. Keys are
// snake_case and become title-cased labels.
func PropertiesToTableData(keys []string, values map[string]string) Data {
	caser := cases.Title(language.English)
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{caser.String(strings.ReplaceAll(k, "_", " ")), orDash(values[k])})
	}
	return Data{
		Headers:         []string{"Property", "Value"},
		Rows:            rows,
		ColumnAlignment: []Align{AlignLeft, AlignLeft},
	}
}

// Status is the display status of a record.
func Status(r *records.Record) string {
	switch {
	case r.Deleted:
		return emoji.Error + " deleted"
	case r.ForeignRef == "":
		return emoji.Optional + " untracked"
	default:
		return emoji.Success + " live"
	}
}

// FormatTime renders t for humans, or "-" for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(constants.TimeFormatHuman)
}

// Truncate cuts s to n runes, marking the cut with an ellipsis, and folds
// newlines so rows stay on one line.
func Truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return orDash(s)
	}
	return string(runes[:n-3]) + "..."
}

func author(p *records.Post) string {
	if p == nil || p.Author == nil || p.Author.Username == "" {
		return "-"
	}
	return "@" + p.Author.Username
}

func postText(p *records.Post) string {
	if p == nil {
		return ""
	}
	return p.Text
}

func quotedText(p *records.Post) string {
	switch {
	case p.Unavailable:
		return emoji.Unknown + " unavailable"
	case p.Truncated:
		return emoji.Spinner
	default:
		return orDash(p.Text)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
