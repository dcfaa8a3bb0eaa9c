package api

import (
	"fmt"
	"html"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fuomag9/targetwatch/internal/monitor"
)

// HandleUptimeBadge renders the windowed uptime of a target as an SVG badge.
func HandleUptimeBadge(svc *monitor.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.UptimeStats(r.Context(), chi.URLParam(r, "id"))
		if writeServiceError(w, logger, err) {
			return
		}

		text, color := "N/A", "gray"
		if stats.TotalChecks > 0 {
			text = fmt.Sprintf("%.2f%%", stats.UptimePercentage)
			color = uptimeColor(stats.UptimePercentage)
		}
		writeBadge(w, "uptime", text, color)
	}
}

// HandleStatusBadge renders the latest outcome of a target as up or down.
func HandleStatusBadge(svc *monitor.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := svc.Outcomes(r.Context(), chi.URLParam(r, "id"), 1)
		if writeServiceError(w, logger, err) {
			return
		}

		text, color := "unknown", "gray"
		if len(rows) > 0 {
			if rows[0].Success {
				text, color = "up", "brightgreen"
			} else {
				text, color = "down", "red"
			}
		}
		writeBadge(w, "status", text, color)
	}
}

func uptimeColor(pct float64) string {
	switch {
	case pct >= 99.9:
		return "brightgreen"
	case pct >= 99.0:
		return "green"
	case pct >= 95.0:
		return "yellowgreen"
	case pct >= 90.0:
		return "yellow"
	default:
		return "red"
	}
}

func writeBadge(w http.ResponseWriter, label, message, color string) {
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	_, _ = w.Write([]byte(generateBadgeSVG(label, message, color)))
}

var badgeColors = map[string]string{
	"brightgreen": "#4c1",
	"green":       "#97ca00",
	"yellowgreen": "#a4a61d",
	"yellow":      "#dfb317",
	"red":         "#e05d44",
	"gray":        "#555",
}

// generateBadgeSVG generates a shields.io style badge
func generateBadgeSVG(label, message, color string) string {
	hexColor, ok := badgeColors[color]
	if !ok {
		hexColor = badgeColors["gray"]
	}

	labelWidth := len(label)*6 + 10
	messageWidth := len(message)*6 + 10
	totalWidth := labelWidth + messageWidth
	label, message = html.EscapeString(label), html.EscapeString(message)

	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%[1]d" height="20">
  <linearGradient id="b" x2="0" y2="100%%">
    <stop offset="0" stop-color="#bbb" stop-opacity=".1"/>
    <stop offset="1" stop-opacity=".1"/>
  </linearGradient>
  <mask id="a">
    <rect width="%[1]d" height="20" rx="3" fill="#fff"/>
  </mask>
  <g mask="url(#a)">
    <path fill="#555" d="M0 0h%[2]dv20H0z"/>
    <path fill="%[3]s" d="M%[2]d 0h%[4]dv20H%[2]dz"/>
    <path fill="url(#b)" d="M0 0h%[1]dv20H0z"/>
  </g>
  <g fill="#fff" text-anchor="middle" font-family="DejaVu Sans,Verdana,Geneva,sans-serif" font-size="11">
    <text x="%[5]d" y="15" fill="#010101" fill-opacity=".3">%[6]s</text>
    <text x="%[5]d" y="14">%[6]s</text>
    <text x="%[7]d" y="15" fill="#010101" fill-opacity=".3">%[8]s</text>
    <text x="%[7]d" y="14">%[8]s</text>
  </g>
</svg>`,
		totalWidth, labelWidth, hexColor, messageWidth,
		labelWidth/2, label,
		labelWidth+messageWidth/2, message,
	)
}
