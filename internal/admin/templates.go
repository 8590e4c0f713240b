package admin

import (
	"bytes"
	"html/template"
	"net/http"
	"time"

	"github.com/tkingovr/routegate/api"
)

var funcMap = template.FuncMap{
	"statusColor": statusColor,
	"ms": func(d time.Duration) string {
		return d.Round(time.Microsecond).String()
	},
}

var pageTmpls = map[string]*template.Template{
	"overview": template.Must(template.New("overview").Funcs(funcMap).Parse(navHTML + rowHTML + overviewHTML)),
	"routes":   template.Must(template.New("routes").Funcs(funcMap).Parse(navHTML + rowHTML + routesHTML)),
	"access":   template.Must(template.New("access").Funcs(funcMap).Parse(navHTML + rowHTML + accessHTML)),
}

var rowTmpl = template.Must(template.New("access-row").Funcs(funcMap).Parse(rowHTML))

func renderPage(w http.ResponseWriter, name string, data map[string]any) {
	tmpl, ok := pageTmpls[name]
	if !ok {
		http.Error(w, "unknown page: "+name, http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func renderAccessRow(record *api.AccessRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := rowTmpl.ExecuteTemplate(&buf, "row", record); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const navHTML = `{{define "nav"}}
<nav class="bg-gray-900 border-b border-gray-700 px-6 py-4">
    <div class="flex items-center justify-between max-w-7xl mx-auto">
        <div class="flex items-center space-x-2">
            <span class="text-xl font-bold text-white">routegate</span>
            <span class="text-xs bg-gray-700 text-gray-300 px-2 py-1 rounded">Admin</span>
        </div>
        <div class="flex space-x-4">
            <a href="/" class="px-3 py-2 rounded hover:bg-gray-800 {{if eq .Page "overview"}}bg-gray-800 text-white{{else}}text-gray-400{{end}}">Overview</a>
            <a href="/routes" class="px-3 py-2 rounded hover:bg-gray-800 {{if eq .Page "routes"}}bg-gray-800 text-white{{else}}text-gray-400{{end}}">Routes</a>
            <a href="/access" class="px-3 py-2 rounded hover:bg-gray-800 {{if eq .Page "access"}}bg-gray-800 text-white{{else}}text-gray-400{{end}}">Access Log</a>
            <a href="/metrics" class="px-3 py-2 rounded hover:bg-gray-800 text-gray-400">Metrics</a>
        </div>
    </div>
</nav>
{{end}}`

// rowHTML is kept on one line so it fits in a single SSE data field.
const rowHTML = `{{define "row"}}<tr class="border-b border-gray-700 hover:bg-gray-800"><td class="px-4 py-2 text-gray-400 text-xs">{{.Timestamp.Format "15:04:05"}}</td><td class="px-4 py-2">{{.Method}}</td><td class="px-4 py-2 font-mono text-sm">{{.Path}}</td><td class="px-4 py-2 font-mono text-sm text-gray-400">{{.UpstreamPath}}</td><td class="px-4 py-2">{{.Route}}</td><td class="px-4 py-2"><span class="px-2 py-1 rounded text-xs font-bold {{statusColor .Status}}">{{.Status}}</span></td><td class="px-4 py-2 text-gray-400 text-xs">{{ms .Duration}}</td><td class="px-4 py-2 text-red-300 text-xs">{{.Error}}</td></tr>{{end}}`

const headHTML = `<!DOCTYPE html>
<html lang="en" class="dark">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>routegate admin</title>
    <script src="https://cdn.tailwindcss.com"></script>
    <script src="https://unpkg.com/htmx.org@2.0.4"></script>
    <script src="https://unpkg.com/htmx-ext-sse@2.2.2/sse.js"></script>
    <style>body { background-color: #0f172a; color: #e2e8f0; }</style>
</head>
<body class="min-h-screen">
{{template "nav" .}}
<main class="max-w-7xl mx-auto px-6 py-8">`

const footHTML = `</main>
</body>
</html>`

const overviewHTML = headHTML + `
<h1 class="text-2xl font-bold mb-6">Overview</h1>
<div class="grid grid-cols-1 md:grid-cols-5 gap-6 mb-8">
    <div class="bg-gray-900 border border-gray-700 rounded-lg p-6">
        <div class="text-gray-400 text-sm mb-1">Routes</div>
        <div class="text-3xl font-bold text-white">{{.Routes}}</div>
    </div>
    <div class="bg-gray-900 border border-gray-700 rounded-lg p-6">
        <div class="text-gray-400 text-sm mb-1">Total Requests</div>
        <div class="text-3xl font-bold text-white">{{.Stats.TotalRequests}}</div>
    </div>
    <div class="bg-gray-900 border border-green-900 rounded-lg p-6">
        <div class="text-green-400 text-sm mb-1">Successful</div>
        <div class="text-3xl font-bold text-green-300">{{.Stats.SuccessCount}}</div>
    </div>
    <div class="bg-gray-900 border border-yellow-900 rounded-lg p-6">
        <div class="text-yellow-400 text-sm mb-1">Client Errors</div>
        <div class="text-3xl font-bold text-yellow-300">{{.Stats.ClientErrors}}</div>
    </div>
    <div class="bg-gray-900 border border-red-900 rounded-lg p-6">
        <div class="text-red-400 text-sm mb-1">Server Errors</div>
        <div class="text-3xl font-bold text-red-300">{{.Stats.ServerErrors}}</div>
    </div>
</div>
<div class="grid grid-cols-1 md:grid-cols-2 gap-6">
    <div class="bg-gray-900 border border-gray-700 rounded-lg p-6">
        <h2 class="text-lg font-bold mb-4">By Route</h2>
        {{range $route, $count := .Stats.ByRoute}}
        <div class="flex justify-between py-1 border-b border-gray-800">
            <span class="text-gray-300 font-mono text-sm">{{$route}}</span>
            <span class="text-gray-400">{{$count}}</span>
        </div>
        {{else}}<p class="text-gray-500">No data yet</p>{{end}}
    </div>
    <div class="bg-gray-900 border border-gray-700 rounded-lg p-6">
        <h2 class="text-lg font-bold mb-4">By Status</h2>
        {{range $status, $count := .Stats.ByStatus}}
        <div class="flex justify-between py-1 border-b border-gray-800">
            <span class="text-gray-300 font-mono text-sm">{{$status}}</span>
            <span class="text-gray-400">{{$count}}</span>
        </div>
        {{else}}<p class="text-gray-500">No data yet</p>{{end}}
    </div>
</div>
` + footHTML

const routesHTML = headHTML + `
<h1 class="text-2xl font-bold mb-6">Routes</h1>
<div class="bg-gray-900 border border-gray-700 rounded-lg overflow-hidden mb-8">
    <table class="w-full text-sm text-left">
        <thead class="bg-gray-800 text-gray-400 uppercase text-xs">
            <tr>
                <th class="px-4 py-3">ID</th>
                <th class="px-4 py-3">Path</th>
                <th class="px-4 py-3">URI</th>
                <th class="px-4 py-3">Rewrite</th>
                <th class="px-4 py-3">Filters</th>
            </tr>
        </thead>
        <tbody>
            {{range .Routes}}
            <tr class="border-b border-gray-700">
                <td class="px-4 py-2 font-bold">{{.ID}}{{if .RegoGuard}} <span class="text-xs text-blue-300">guarded</span>{{end}}</td>
                <td class="px-4 py-2 font-mono">{{range .Methods}}{{.}} {{end}}{{.Path}}</td>
                <td class="px-4 py-2 font-mono text-xs">{{.URI}}</td>
                <td class="px-4 py-2 font-mono text-xs">{{.Rewrite}}</td>
                <td class="px-4 py-2 font-mono text-xs">{{range .Filters}}<div>{{.}}</div>{{end}}</td>
            </tr>
            {{else}}
            <tr><td colspan="5" class="px-4 py-6 text-center text-gray-500">No routes configured</td></tr>
            {{end}}
        </tbody>
    </table>
</div>
<h2 class="text-lg font-bold mb-4">Route File</h2>
<div class="bg-gray-900 border border-gray-700 rounded-lg p-6">
    <pre class="font-mono text-sm text-gray-300 whitespace-pre-wrap">{{.RoutesYAML}}</pre>
</div>
` + footHTML

const accessHTML = headHTML + `
<div class="flex justify-between items-center mb-6">
    <h1 class="text-2xl font-bold">Access Log</h1>
    <span class="text-sm text-gray-400">Live updates via SSE</span>
</div>
<div class="bg-gray-900 border border-gray-700 rounded-lg overflow-hidden">
    <table class="w-full text-sm text-left">
        <thead class="bg-gray-800 text-gray-400 uppercase text-xs">
            <tr>
                <th class="px-4 py-3">Time</th>
                <th class="px-4 py-3">Method</th>
                <th class="px-4 py-3">Path</th>
                <th class="px-4 py-3">Upstream Path</th>
                <th class="px-4 py-3">Route</th>
                <th class="px-4 py-3">Status</th>
                <th class="px-4 py-3">Duration</th>
                <th class="px-4 py-3">Error</th>
            </tr>
        </thead>
        <tbody id="access-table"
               hx-ext="sse"
               sse-connect="/access/stream"
               sse-swap="access"
               hx-swap="afterbegin">
            {{range .Records}}{{template "row" .}}
            {{end}}
        </tbody>
    </table>
</div>
` + footHTML
