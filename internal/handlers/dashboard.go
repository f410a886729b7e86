package handlers

import (
	"html/template"
	"net/http"

	"traffic-platform/pkg/logging"
)

type stationOption struct {
	ID    string
	Label string
}

type dashboardData struct {
	Stations    []stationOption
	Selected    string
	DefaultDate string
	LastDate    string
}

var dashboardPage = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Traffic Dashboard</title>
    <script src="https://cdn.plot.ly/plotly-2.27.0.min.js"></script>
    <style>
        body { font-family: sans-serif; margin: 2em; color: #222; }
        .controls { display: flex; gap: 1em; align-items: center; margin-bottom: 1em; }
        .cards { display: flex; gap: 1em; margin-bottom: 1em; }
        .card { border: 1px solid #ddd; border-radius: 6px; padding: 1em; min-width: 16em; }
        .percent { font-size: 2.5em; font-weight: bold; }
        .higher { color: #c0392b; } .lower { color: #27ae60; } .similar, .unknown { color: #555; }
        .error { color: #c0392b; }
    </style>
</head>
<body>
    <h1>Traffic Dashboard</h1>
    <div class="controls">
        <label>Station
            <select id="station">
                {{range .Stations}}<option value="{{.ID}}"{{if eq .ID $.Selected}} selected{{end}}>{{.Label}}</option>
                {{end}}
            </select>
        </label>
        <label>Date <input type="date" id="date" value="{{.DefaultDate}}"></label>
        {{if .LastDate}}<span>Data up to {{.LastDate}}</span>{{end}}
    </div>
    <div class="cards">
        <div class="card">
            <h3>Predicted traffic</h3>
            <div id="percent" class="percent"></div>
            <div id="predicted"></div>
            <p id="indicator"></p>
        </div>
        <div class="card">
            <h3>Weather at noon</h3>
            <div id="weather"></div>
        </div>
    </div>
    <div id="chart" style="height: 420px;"></div>
    <p id="error" class="error"></p>
    <script>
        const station = document.getElementById("station");
        const date = document.getElementById("date");

        function day(ts) { return ts.substring(0, 10); }

        async function refresh() {
            document.getElementById("error").textContent = "";
            let url = "/api/stations/" + encodeURIComponent(station.value) + "/dashboard";
            if (date.value) { url += "?date=" + date.value; }

            const resp = await fetch(url);
            const body = await resp.json();
            if (!resp.ok) {
                document.getElementById("error").textContent = body.message;
                return;
            }

            const p = body.prediction;
            const percent = document.getElementById("percent");
            percent.textContent = p.indicator.percent + "%";
            percent.className = "percent " + p.indicator.level;
            document.getElementById("predicted").textContent = Math.round(p.predicted) + " vehicles on " + day(p.date);
            document.getElementById("indicator").textContent = p.indicator.text;

            const weather = document.getElementById("weather");
            if (body.weather) {
                const w = body.weather;
                weather.textContent = w.temperature_celsius.toFixed(1) + " °C, " +
                    w.precipitation_mm.toFixed(1) + " mm rain, " +
                    w.sunshine_hours.toFixed(1) + " h sun, " +
                    w.wind_speed_ms.toFixed(1) + " m/s wind";
            } else {
                weather.textContent = body.weather_error || "no forecast";
            }

            const history = p.history || [];
            Plotly.newPlot("chart", [
                {
                    x: history.map(r => day(r.target_date)),
                    y: history.map(r => r.actual),
                    name: "Actual", mode: "lines+markers"
                },
                {
                    x: history.map(r => day(r.target_date)),
                    y: history.map(r => r.predicted),
                    name: "Model fit", mode: "lines+markers", line: {dash: "dot"}
                },
                {
                    x: [day(p.date)], y: [p.predicted],
                    name: "Prediction", mode: "markers", marker: {size: 12}
                }
            ], {title: station.options[station.selectedIndex].text, yaxis: {title: "Vehicles per day"}});
        }

        station.addEventListener("change", refresh);
        date.addEventListener("change", refresh);
        if (station.value) { refresh(); }
    </script>
</body>
</html>`))

// Dashboard handles GET / and renders the single-page dashboard
func (h *TrafficHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	data := dashboardData{Selected: r.URL.Query().Get("station")}

	directory := h.predictions.Stations()
	for _, station := range directory.List() {
		data.Stations = append(data.Stations, stationOption{ID: station.StationID, Label: directory.Label(station.StationID)})
	}

	if !h.options.DefaultDate.IsZero() {
		data.DefaultDate = h.options.DefaultDate.Format(dateLayout)
	}
	if last := h.predictions.LastDate(); !last.IsZero() {
		data.LastDate = last.Format(dateLayout)
		if data.DefaultDate == "" {
			data.DefaultDate = last.AddDate(0, 0, 1).Format(dateLayout)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardPage.Execute(w, data); err != nil {
		h.logger.Error(r.Context(), "[DASHBOARD_RENDER_ERROR] Failed to render dashboard", logging.Fields{}, err)
	}
}
