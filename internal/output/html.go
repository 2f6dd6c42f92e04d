package output

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/kuroyamii/playwright-stress-test/internal/metrics"
	"github.com/kuroyamii/playwright-stress-test/internal/sysinfo"
)

// HTMLReportData contains all data needed for the HTML report template.
type HTMLReportData struct {
	GeneratedAt string
	Report      Report
	StepsJSON   string
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"formatDuration": func(d time.Duration) string {
		return d.Round(time.Millisecond).String()
	},
	"formatFloat": func(f float64) string {
		return fmt.Sprintf("%.2f", f)
	},
	"formatBytes":  sysinfo.FormatBytes,
	"bucketLabels": func() []string { return metrics.BucketLabels },
	"sortedPaths":  metrics.SortedPaths,
	"sortedErrors": metrics.SortedErrors,
}).Parse(htmlTemplate))

// GenerateHTMLReport generates a standalone HTML report.
func GenerateHTMLReport(w io.Writer, r Report) error {
	stepsJSON, err := json.Marshal(r.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	data := HTMLReportData{
		GeneratedAt: time.Now().Format(time.RFC3339),
		Report:      r,
		StepsJSON:   string(stepsJSON),
	}
	if err := reportTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Stress Test Report</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: #f5f7fa;
            color: #2c3e50;
            line-height: 1.6;
            padding: 20px;
        }
        .container {
            max-width: 1400px;
            margin: 0 auto;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0,0,0,0.1);
            overflow: hidden;
        }
        header {
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: white;
            padding: 30px 40px;
        }
        header h1 {
            font-size: 2rem;
            margin-bottom: 10px;
        }
        header .meta {
            opacity: 0.9;
            font-size: 0.9rem;
        }
        .content {
            padding: 40px;
        }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(250px, 1fr));
            gap: 20px;
            margin-bottom: 40px;
        }
        .card {
            background: #f8f9fa;
            border-radius: 8px;
            padding: 20px;
            border-left: 4px solid #667eea;
        }
        .card h3 {
            font-size: 0.9rem;
            color: #6c757d;
            text-transform: uppercase;
            letter-spacing: 0.5px;
            margin-bottom: 10px;
        }
        .card .value {
            font-size: 2rem;
            font-weight: bold;
            color: #2c3e50;
        }
        .card .subvalue {
            font-size: 0.85rem;
            color: #6c757d;
            margin-top: 5px;
        }
        .card.success {
            border-left-color: #10b981;
        }
        .card.error {
            border-left-color: #ef4444;
        }
        .card.warning {
            border-left-color: #f59e0b;
        }
        .section {
            margin-bottom: 40px;
        }
        .section h2 {
            font-size: 1.5rem;
            margin-bottom: 20px;
            padding-bottom: 10px;
            border-bottom: 2px solid #e5e7eb;
        }
        .chart-container {
            background: white;
            border-radius: 8px;
            padding: 20px;
            margin-bottom: 30px;
            border: 1px solid #e5e7eb;
        }
        .chart-container h3 {
            font-size: 1.1rem;
            margin-bottom: 15px;
            color: #4b5563;
        }
        .chart {
            width: 100%;
            height: 300px;
        }
        table {
            width: 100%;
            border-collapse: collapse;
            background: white;
        }
        th, td {
            text-align: left;
            padding: 12px;
            border-bottom: 1px solid #e5e7eb;
        }
        th {
            background: #f8f9fa;
            font-weight: 600;
            color: #4b5563;
            font-size: 0.9rem;
            text-transform: uppercase;
            letter-spacing: 0.5px;
        }
        tr:hover {
            background: #f8f9fa;
        }
        .badge {
            display: inline-block;
            padding: 4px 12px;
            border-radius: 12px;
            font-size: 0.85rem;
            font-weight: 600;
        }
        .badge-success {
            background: #d1fae5;
            color: #065f46;
        }
        .badge-error {
            background: #fee2e2;
            color: #991b1b;
        }
        .latency-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(150px, 1fr));
            gap: 15px;
            margin-top: 20px;
        }
        .latency-item {
            background: #f8f9fa;
            padding: 15px;
            border-radius: 6px;
            text-align: center;
        }
        .latency-item .label {
            font-size: 0.85rem;
            color: #6c757d;
            margin-bottom: 5px;
        }
        .latency-item .value {
            font-size: 1.3rem;
            font-weight: bold;
            color: #2c3e50;
        }
        .no-data {
            text-align: center;
            padding: 40px;
            color: #6c757d;
            font-style: italic;
        }
        .mono {
            font-family: ui-monospace, SFMono-Regular, Menlo, monospace;
            font-size: 0.85rem;
        }
    </style>
    <script src="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.iife.min.js"></script>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.min.css">
</head>
<body>
    <div class="container">
        <header>
            <h1>Stress Test Report</h1>
            <div class="meta" style="margin-top: 5px;">Run {{.Report.RunID}} | {{.Report.Mode}} mode | {{.Report.Probe}} probe | {{.Report.LoadShape}} shape</div>
            <div class="meta">Generated: {{.GeneratedAt}} | Duration: {{formatDuration .Report.Duration}}</div>
        </header>

        <div class="content">
            <!-- Summary Cards -->
            <div class="grid">
                <div class="card {{if .Report.Passed}}success{{else}}error{{end}}">
                    <h3>Result</h3>
                    <div class="value">{{if .Report.Passed}}PASS{{else}}FAIL{{end}}</div>
                    {{if .Report.Interrupted}}<div class="subvalue">interrupted</div>{{end}}
                </div>
                {{if eq .Report.Mode "capacity"}}
                <div class="card">
                    <h3>Max Supported Users</h3>
                    <div class="value">{{.Report.MaxSupportedUsers}}</div>
                    <div class="subvalue">{{len .Report.Steps}} step(s) attempted</div>
                </div>
                {{end}}
                <div class="card">
                    <h3>Success Threshold</h3>
                    <div class="value">{{formatFloat .Report.SuccessThreshold}}%</div>
                </div>
                <div class="card warning">
                    <h3>Latency Threshold</h3>
                    <div class="value">{{.Report.LatencyThresholdMs}}ms</div>
                    <div class="subvalue">average response time</div>
                </div>
            </div>

            {{if gt (len .Report.Steps) 1}}
            <div class="section">
                <h2>Escalation</h2>
                <div class="chart-container">
                    <h3>Success Rate and Average Response Time by Users</h3>
                    <div id="steps-chart" class="chart"></div>
                </div>
            </div>
            {{end}}

            <div class="section">
                <h2>Steps</h2>
                <table>
                    <thead>
                        <tr>
                            <th>Step</th>
                            <th>Users</th>
                            <th>Requests</th>
                            <th>Success</th>
                            <th>Avg</th>
                            <th>P90</th>
                            <th>RPS</th>
                            <th>Status</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .Report.Steps}}
                        <tr>
                            <td>{{.Step}}</td>
                            <td>{{.Users}}</td>
                            <td>{{.TotalRequests}}</td>
                            <td>{{.SuccessRate}}%</td>
                            <td>{{.AvgResponseTime}}ms</td>
                            <td>{{.P90ResponseTime}}ms</td>
                            <td>{{formatFloat .RequestsPerSecond}}</td>
                            <td>
                                {{if .Passed}}
                                <span class="badge badge-success">PASS</span>
                                {{else}}
                                <span class="badge badge-error">FAIL</span>
                                {{end}}
                            </td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>

            {{range .Report.Steps}}
            <div class="section">
                <h2>Step {{.Step}}: {{.Users}} users</h2>
                <div class="latency-grid">
                    <div class="latency-item"><div class="label">Min</div><div class="value">{{.MinResponseTime}}ms</div></div>
                    <div class="latency-item"><div class="label">Avg</div><div class="value">{{.AvgResponseTime}}ms</div></div>
                    <div class="latency-item"><div class="label">P50</div><div class="value">{{.P50ResponseTime}}ms</div></div>
                    <div class="latency-item"><div class="label">P90</div><div class="value">{{.P90ResponseTime}}ms</div></div>
                    <div class="latency-item"><div class="label">P99</div><div class="value">{{.P99ResponseTime}}ms</div></div>
                    <div class="latency-item"><div class="label">Max</div><div class="value">{{.MaxResponseTime}}ms</div></div>
                </div>

                <div class="latency-grid">
                    {{$buckets := .ResponseTimeBuckets}}
                    {{range bucketLabels}}
                    <div class="latency-item"><div class="label">{{.}}</div><div class="value">{{index $buckets .}}</div></div>
                    {{end}}
                </div>

                {{if .Thresholds}}
                <h3 style="margin: 20px 0 10px;">Thresholds</h3>
                <table>
                    <thead><tr><th>Threshold</th><th>Actual</th><th>Status</th></tr></thead>
                    <tbody>
                        {{range .Thresholds}}
                        <tr>
                            <td class="mono">{{.Expression}}</td>
                            <td>{{formatFloat .Actual}}</td>
                            <td>{{if .Pass}}<span class="badge badge-success">PASS</span>{{else}}<span class="badge badge-error">FAIL</span>{{end}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
                {{end}}

                {{if .Paths}}
                <h3 style="margin: 20px 0 10px;">Paths</h3>
                <table>
                    <thead><tr><th>Domain</th><th>Path</th><th>Requests</th><th>Success</th><th>Avg</th></tr></thead>
                    <tbody>
                        {{range sortedPaths .Paths}}
                        <tr>
                            <td>{{.Domain}}</td>
                            <td class="mono">{{.Path}}</td>
                            <td>{{.Requests}}</td>
                            <td>{{.SuccessRate}}%</td>
                            <td>{{.AvgResponseTime}}ms</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
                {{end}}

                {{$errors := sortedErrors .ErrorTypes}}
                {{if $errors}}
                <h3 style="margin: 20px 0 10px;">Errors</h3>
                <table>
                    <thead><tr><th>Type</th><th>Count</th><th>Examples</th></tr></thead>
                    <tbody>
                        {{range $errors}}
                        <tr>
                            <td><strong>{{.Type}}</strong></td>
                            <td>{{.Count}}</td>
                            <td class="mono">{{range .Examples}}{{.URL}}: {{.Message}}<br>{{end}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
                {{else}}
                <div class="no-data">No errors recorded</div>
                {{end}}
            </div>
            {{end}}

            {{with .Report.System}}
            <div class="section">
                <h2>Host</h2>
                <table>
                    <tbody>
                        <tr><th>Hostname</th><td>{{.Hostname}}</td></tr>
                        <tr><th>Platform</th><td>{{.OS}} {{.Platform}} {{.PlatformVersion}} ({{.Arch}})</td></tr>
                        <tr><th>Kernel</th><td>{{.KernelVersion}}</td></tr>
                        <tr><th>CPU</th><td>{{.CPUModel}} ({{.CPUCores}} cores)</td></tr>
                        <tr><th>Memory</th><td>{{formatBytes .MemAvailable}} available of {{formatBytes .MemTotal}}</td></tr>
                        <tr><th>Load</th><td>{{formatFloat .Load1}} {{formatFloat .Load5}} {{formatFloat .Load15}}</td></tr>
                    </tbody>
                </table>
            </div>
            {{end}}

            {{if .Report.URLs}}
            <div class="section">
                <h2>Targets</h2>
                <table>
                    <tbody>
                        {{range .Report.URLs}}
                        <tr><td class="mono">{{.}}</td></tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}
        </div>
    </div>

    {{if gt (len .Report.Steps) 1}}
    <script>
        const steps = JSON.parse({{.StepsJSON}});
        if (steps && steps.length > 1) {
            const data = [
                steps.map(s => s.users),
                steps.map(s => s.success_rate),
                steps.map(s => s.avg_response_time_ms)
            ];
            new uPlot({
                title: "Escalation",
                width: document.getElementById('steps-chart').offsetWidth,
                height: 300,
                scales: { x: { time: false } },
                series: [
                    { label: "Users" },
                    { label: "Success %", stroke: "#10b981", width: 2, scale: "%" },
                    { label: "Avg (ms)", stroke: "#ef4444", width: 2, scale: "ms" }
                ],
                axes: [
                    { label: "Users" },
                    { label: "Success %", scale: "%" },
                    { label: "Avg (ms)", scale: "ms", side: 1 }
                ]
            }, data, document.getElementById('steps-chart'));
        }
    </script>
    {{end}}
</body>
</html>
`
