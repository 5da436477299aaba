package output

import (
	"fmt"
	"html/template"
	"io"

	"github.com/buemura/jarhunter/pkg/types"
)

// HTMLFormatter renders the report as a self-contained HTML page with
// styled status badges and expandable error details.
type HTMLFormatter struct{}

func (f *HTMLFormatter) Format(w io.Writer, report *types.Report) error {
	return htmlTpl.Execute(w, templateData{Report: report, Counts: statusCounts(report)})
}

type templateData struct {
	Report *types.Report
	Counts map[types.Status]int
}

// statusClass maps a Status to a CSS class name.
func statusClass(s types.Status) string {
	switch s {
	case types.StatusVulnerable:
		return "vulnerable"
	case types.StatusPotentiallyVulnerable:
		return "potential"
	case types.StatusMitigated:
		return "mitigated"
	default:
		return "safe"
	}
}

var funcMap = template.FuncMap{
	"statusClass":      statusClass,
	"statusVulnerable": func() types.Status { return types.StatusVulnerable },
	"statusPotential":  func() types.Status { return types.StatusPotentiallyVulnerable },
	"statusMitigated":  func() types.Status { return types.StatusMitigated },
	"detectedAt":       func(e types.ReportEntry) string { return e.DetectedAt.Format(detectedAtLayout) },
}

var htmlTpl = template.Must(template.New("report").Funcs(funcMap).Parse(fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Jarhunter Scan Report</title>
<style>%s</style>
</head>
<body>
<div class="container">
  <h1>Jarhunter Scan Report{{with .Report.Hostname}} &mdash; {{.}}{{end}}</h1>

  <div class="summary-bar">
    <span class="badge vulnerable">{{index .Counts statusVulnerable}} Vulnerable</span>
    <span class="badge potential">{{index .Counts statusPotential}} Potential</span>
    <span class="badge mitigated">{{index .Counts statusMitigated}} Mitigated</span>
    <span class="total">{{.Report.Metrics.ScanDirCount}} directories, {{.Report.Metrics.ScanFileCount}} files scanned</span>
  </div>

  <section class="scanner-section">
  {{if not .Report.Entries}}
    <p class="no-findings">No vulnerable files found.</p>
  {{else}}
    <table>
      <thead>
        <tr><th>Status</th><th>Path</th><th>Product</th><th>Version</th><th>CVE</th><th>Fixed</th><th>Detected at</th></tr>
      </thead>
      <tbody>
        {{range .Report.Entries}}
        <tr>
          <td><span class="badge {{statusClass .Status}}">{{.Status}}</span></td>
          <td>{{.Path}}{{with .Entry}}<div class="entry">{{.}}</div>{{end}}</td>
          <td>{{.Product}}</td>
          <td>{{.Version}}</td>
          <td>{{.CVE}}</td>
          <td>{{if .Fixed}}yes{{else}}no{{end}}</td>
          <td>{{detectedAt .}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
  {{end}}
  </section>

  {{if .Report.Errors}}
  <section class="scanner-section">
    <details>
      <summary>{{len .Report.Errors}} files could not be scanned</summary>
      {{range .Report.Errors}}<div class="error-box">{{.Message}}</div>{{end}}
    </details>
  </section>
  {{end}}
</div>
</body>
</html>`, cssStyles)))

const cssStyles = `
*{box-sizing:border-box;margin:0;padding:0}
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Roboto,Helvetica,Arial,sans-serif;
     line-height:1.6;color:#1a1a2e;background:#f5f5fa;padding:2rem}
.container{max-width:960px;margin:0 auto}
h1{margin-bottom:1rem;font-size:1.8rem}
h2{margin:1.5rem 0 .75rem;font-size:1.3rem;border-bottom:2px solid #e0e0e0;padding-bottom:.3rem}
.summary-bar{display:flex;gap:.5rem;flex-wrap:wrap;align-items:center;margin-bottom:1.5rem}
.total{margin-left:.5rem;font-weight:600}
.badge{display:inline-block;padding:2px 10px;border-radius:12px;font-size:.8rem;font-weight:700;color:#fff;text-transform:uppercase}
.badge.vulnerable{background:#d32f2f}
.badge.potential{background:#f9a825;color:#333}
.badge.mitigated{background:#0288d1}
.badge.safe{background:#388e3c}
.entry{font-size:.8rem;color:#555;word-break:break-all}
table{width:100%;border-collapse:collapse;margin-bottom:1rem}
th,td{text-align:left;padding:.5rem .75rem;border-bottom:1px solid #e0e0e0}
th{background:#eaeaea;font-weight:600}
tr:hover{background:#f0f0ff}
details{margin-top:.4rem}
summary{cursor:pointer;color:#1565c0;font-size:.85rem}
.error-box{background:#ffebee;color:#c62828;padding:.75rem 1rem;border-radius:6px;margin-bottom:1rem}
.no-findings{color:#666;font-style:italic}
.scanner-section{margin-bottom:2rem}
`
