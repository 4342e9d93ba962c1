package ui

import (
	"strconv"
	"strings"
	"time"

	gomponents "maragu.dev/gomponents"
	data "maragu.dev/gomponents-datastar"
	html "maragu.dev/gomponents/html"

	"duck-etl/internal/domain"
)

const stylesheet = `body{font-family:system-ui,sans-serif;margin:0;color:#1f2328}
.layout{max-width:1100px;margin:0 auto;padding:24px}
.card{border:1px solid #d0d7de;border-radius:6px;padding:16px;margin-bottom:16px}
table{width:100%;border-collapse:collapse}
th,td{text-align:left;padding:6px 8px;border-bottom:1px solid #eaeef2;font-size:14px}
.muted{color:#59636e;font-size:13px}
.label{display:inline-block;padding:0 7px;border-radius:2em;border:1px solid #d0d7de;font-size:12px}
.label-success{border-color:#1a7f37;color:#1a7f37}
.label-danger{border-color:#cf222e;color:#cf222e}
.label-attention{border-color:#9a6700;color:#9a6700}`

type pipelineRowData struct {
	Name     string
	URL      string
	Schedule string
	Models   int
	Paused   bool
	Running  bool
}

type runRowData struct {
	ID        string
	Status    string
	Trigger   string
	Started   string
	Finished  string
	Processed int
	Skipped   int
	Error     string
}

type ledgerRowData struct {
	FileName    string
	FileVersion string
	ProcessedAt string
}

type pipelineDetailData struct {
	Name        string
	Description string
	Schedule    string
	Paused      bool
	Running     bool
	Models      []string
	Runs        []runRowData
	Ledger      []ledgerRowData
}

func page(title string, body ...gomponents.Node) gomponents.Node {
	return html.HTML(
		html.Lang("en"),
		html.Head(
			html.Meta(html.Charset("utf-8")),
			html.Meta(html.Name("viewport"), html.Content("width=device-width, initial-scale=1")),
			html.TitleEl(gomponents.Text(title+" | ETL")),
			html.StyleEl(gomponents.Raw(stylesheet)),
			html.Script(
				html.Type("module"),
				html.Src("https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.7/bundles/datastar.js"),
			),
		),
		html.Body(
			html.Main(
				html.Class("layout"),
				html.P(html.Class("muted"), html.A(html.Href("/ui"), gomponents.Text("Pipelines"))),
				html.H1(gomponents.Text(title)),
				gomponents.Group(body),
			),
		),
	)
}

func overviewPage(rows []pipelineRowData) gomponents.Node {
	if len(rows) == 0 {
		return page("Pipelines", html.Div(html.Class("card"), html.P(html.Class("muted"), gomponents.Text("No pipelines registered."))))
	}
	tableRows := make([]gomponents.Node, 0, len(rows))
	for i := range rows {
		row := rows[i]
		tableRows = append(tableRows, html.Tr(
			data.Show(containsExpr(row.Name)),
			html.Td(html.A(html.Href(row.URL), gomponents.Text(row.Name))),
			html.Td(gomponents.Text(row.Schedule)),
			html.Td(gomponents.Text(strconv.Itoa(row.Models))),
			html.Td(stateLabel(row.Paused, row.Running)),
		))
	}
	return page(
		"Pipelines",
		html.Div(
			data.Signals(map[string]any{"q": ""}),
			html.Div(html.Class("card"),
				html.Input(html.Type("search"), html.Placeholder("Filter by pipeline name"), data.Bind("q"), html.AutoComplete("off")),
			),
			html.Div(html.Class("card"),
				html.Table(
					html.THead(html.Tr(th("Name"), th("Schedule"), th("Models"), th("State"))),
					html.TBody(gomponents.Group(tableRows)),
				),
			),
		),
	)
}

func pipelineDetailPage(d pipelineDetailData) gomponents.Node {
	runRows := make([]gomponents.Node, 0, len(d.Runs))
	for i := range d.Runs {
		r := d.Runs[i]
		runRows = append(runRows, html.Tr(
			td(r.ID),
			html.Td(runStatusLabel(r.Status)),
			td(r.Trigger),
			td(r.Started),
			td(r.Finished),
			td(strconv.Itoa(r.Processed)),
			td(strconv.Itoa(r.Skipped)),
			td(r.Error),
		))
	}
	ledgerRows := make([]gomponents.Node, 0, len(d.Ledger))
	for i := range d.Ledger {
		f := d.Ledger[i]
		ledgerRows = append(ledgerRows, html.Tr(td(f.FileName), td(f.FileVersion), td(f.ProcessedAt)))
	}

	models := "-"
	if len(d.Models) > 0 {
		models = strings.Join(d.Models, ", ")
	}
	return page(
		"Pipeline: "+d.Name,
		html.Div(html.Class("card"),
			html.P(gomponents.Text(d.Description)),
			html.P(html.Class("muted"), gomponents.Text("Schedule: "+d.Schedule)),
			html.P(html.Class("muted"), gomponents.Text("Models: "+models)),
			stateLabel(d.Paused, d.Running),
		),
		html.Div(html.Class("card"),
			html.H2(gomponents.Text("Recent runs")),
			tableOrEmpty(runRows, "No runs recorded.",
				th("Run ID"), th("Status"), th("Trigger"), th("Started"), th("Finished"), th("Processed"), th("Skipped"), th("Error")),
		),
		html.Div(html.Class("card"),
			html.H2(gomponents.Text("Ledger")),
			tableOrEmpty(ledgerRows, "No files processed yet.", th("File"), th("Version"), th("Processed at")),
		),
	)
}

func errorPage(title, message string) gomponents.Node {
	return page(title, html.Div(html.Class("card"), html.P(gomponents.Text(message))))
}

func tableOrEmpty(rows []gomponents.Node, empty string, header ...gomponents.Node) gomponents.Node {
	if len(rows) == 0 {
		return html.P(html.Class("muted"), gomponents.Text(empty))
	}
	return html.Table(html.THead(html.Tr(header...)), html.TBody(gomponents.Group(rows)))
}

func stateLabel(paused, running bool) gomponents.Node {
	switch {
	case running:
		return label("running", "attention")
	case paused:
		return label("paused", "")
	default:
		return label("idle", "success")
	}
}

func runStatusLabel(status string) gomponents.Node {
	switch status {
	case domain.PipelineRunStatusSuccess:
		return label(status, "success")
	case domain.PipelineRunStatusFailed:
		return label(status, "danger")
	default:
		return label(status, "attention")
	}
}

func label(text, tone string) gomponents.Node {
	className := "label"
	if tone != "" {
		className += " label-" + tone
	}
	return html.Span(html.Class(className), gomponents.Text(text))
}

func th(text string) gomponents.Node { return html.Th(gomponents.Text(text)) }
func td(text string) gomponents.Node { return html.Td(gomponents.Text(text)) }

func containsExpr(value string) string {
	return "$q === '' || " + strconv.Quote(strings.ToLower(value)) + ".includes($q.toLowerCase())"
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.UTC().Format(time.RFC3339)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
