// Package report renders simulation runs as downloadable artifacts and
// stores them in blob storage, either inline or through a queued worker.
package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"simpidemic/internal/core"
	"simpidemic/internal/engine"
)

// Format is an artifact encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
	FormatPNG  Format = "png"
)

// ErrUnsupportedFormat is wrapped by ParseFormats and Render.
var ErrUnsupportedFormat = errors.New("report: unsupported format")

// DefaultFormats is used when a request names none.
var DefaultFormats = []Format{FormatJSON, FormatCSV}

// ContentType returns the MIME type stored with the artifact.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv"
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatPNG:
		return "image/png"
	}
	return "application/octet-stream"
}

// ParseFormats validates and de-duplicates names, keeping their order.
// Empty input yields DefaultFormats.
func ParseFormats(names []string) ([]Format, error) {
	var out []Format
	seen := map[Format]bool{}
	for _, name := range names {
		for _, part := range strings.Split(name, ",") {
			f := Format(strings.ToLower(strings.TrimSpace(part)))
			if f == "" || seen[f] {
				continue
			}
			switch f {
			case FormatJSON, FormatCSV, FormatHTML, FormatPNG:
			default:
				return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, part)
			}
			seen[f] = true
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		out = append(out, DefaultFormats...)
	}
	return out, nil
}

// Strings converts formats back to their names.
func Strings(formats []Format) []string {
	out := make([]string, len(formats))
	for i, f := range formats {
		out[i] = string(f)
	}
	return out
}

// Render encodes run in format.
func Render(format Format, run core.Run) ([]byte, error) {
	if run.Result == nil && format != FormatJSON {
		return nil, fmt.Errorf("render %s: run has no result", format)
	}
	switch format {
	case FormatJSON:
		return json.MarshalIndent(run, "", "  ")
	case FormatCSV:
		return renderCSV(run.Result)
	case FormatHTML:
		return renderHTML(run)
	case FormatPNG:
		return renderPNG(run)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// CSVHeader lists the columns written by the CSV renderer.
var CSVHeader = []string{
	"day", "susceptible", "infected", "recovered", "in_treatment", "dead",
	"new_infections", "ending_infection", "needing_treatment", "beginning_treatment",
	"ending_treatment", "recovered_after_treatment", "died_after_treatment",
	"died_untreated", "lost_immunity",
}

// WriteCSV writes one row per day of res.
func WriteCSV(w *csv.Writer, res *engine.ResultSet) error {
	if err := w.Write(CSVHeader); err != nil {
		return err
	}
	for d := range res.Infected {
		c, _ := res.Day(d)
		var f engine.Flow
		if d < len(res.Flows) {
			f = res.Flows[d]
		}
		row := []int64{
			c.Susceptible, c.Infected, c.Recovered, c.InTreatment, c.Dead,
			f.NewInfections, f.EndingInfection, f.NeedingTreatment, f.BeginningTreatment,
			f.EndingTreatment, f.RecoveredAfterTreatment, f.DiedAfterTreatment,
			f.DiedUntreated, f.LostImmunity,
		}
		record := make([]string, 0, len(row)+1)
		record = append(record, strconv.Itoa(d))
		for _, v := range row {
			record = append(record, strconv.FormatInt(v, 10))
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func renderCSV(res *engine.ResultSet) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(csv.NewWriter(&buf), res); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var htmlReport = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
<p>Peak infected {{.Summary.PeakInfected}} on day {{.Summary.PeakDay}}; total dead {{.Summary.TotalDead}}.</p>
<table>
<thead><tr><th>day</th>{{range .Series}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{range .Rows}}<tr><td>{{.Day}}</td><td>{{.S}}</td><td>{{.I}}</td><td>{{.R}}</td><td>{{.T}}</td><td>{{.D}}</td></tr>
{{end}}</tbody>
</table>
</body></html>
`))

type htmlRow struct {
	Day           int
	S, I, R, T, D int64
}

func renderHTML(run core.Run) ([]byte, error) {
	res := run.Result
	rows := make([]htmlRow, 0, len(res.Infected))
	for d := range res.Infected {
		c, _ := res.Day(d)
		rows = append(rows, htmlRow{Day: d, S: c.Susceptible, I: c.Infected, R: c.Recovered, T: c.InTreatment, D: c.Dead})
	}
	var buf bytes.Buffer
	err := htmlReport.Execute(&buf, struct {
		Title   string
		Summary engine.Summary
		Series  []string
		Rows    []htmlRow
	}{title(run), res.Summary(), engine.SeriesNames, rows})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Chart builds a line plot of every compartment series.
func Chart(run core.Run) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title(run)
	p.X.Label.Text = "day"
	p.Y.Label.Text = "people"
	var lines []any
	for _, name := range engine.SeriesNames {
		series := run.Result.Series(name)
		pts := make(plotter.XYs, len(series))
		for d, v := range series {
			pts[d].X = float64(d)
			pts[d].Y = v
		}
		lines = append(lines, name, pts)
	}
	if err := plotutil.AddLinePoints(p, lines...); err != nil {
		return nil, fmt.Errorf("chart: %w", err)
	}
	p.Legend.Top = true
	return p, nil
}

func renderPNG(run core.Run) ([]byte, error) {
	p, err := Chart(run)
	if err != nil {
		return nil, err
	}
	w, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return nil, fmt.Errorf("chart: %w", err)
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("chart: %w", err)
	}
	return buf.Bytes(), nil
}

func title(run core.Run) string {
	if run.Scenario != nil && run.Scenario.Name != "" {
		return run.Scenario.Name
	}
	return "simulation"
}
