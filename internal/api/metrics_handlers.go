package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fuomag9/targetwatch/internal/jobs"
	"github.com/fuomag9/targetwatch/internal/monitor"
)

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// HandlePrometheusMetrics exports metrics in Prometheus text format
func HandlePrometheusMetrics(summarizer *jobs.Summarizer, executor *monitor.Executor, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := summarizer.Summarize(r.Context())
		if err != nil {
			logger.Error("metrics_summary_error", zap.Error(err))
			http.Error(w, "Failed to collect metrics", http.StatusInternalServerError)
			return
		}
		tasks := executor.Snapshot()

		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		fmt.Fprintln(w, "# HELP targetwatch_target_up Last probe result (1 = up, 0 = down)")
		fmt.Fprintln(w, "# TYPE targetwatch_target_up gauge")
		for _, t := range tasks {
			if t.Up == nil {
				continue
			}
			v := 0
			if *t.Up {
				v = 1
			}
			fmt.Fprintf(w, "targetwatch_target_up{target_id=\"%s\"} %d\n", labelEscaper.Replace(t.TargetID), v)
		}

		fmt.Fprintln(w, "# HELP targetwatch_target_uptime_percentage Uptime over the most recent outcome window")
		fmt.Fprintln(w, "# TYPE targetwatch_target_uptime_percentage gauge")
		for id, pct := range sum.UptimeByTarget() {
			fmt.Fprintf(w, "targetwatch_target_uptime_percentage{target_id=\"%s\"} %.2f\n", labelEscaper.Replace(id), pct)
		}

		fmt.Fprintln(w, "# HELP targetwatch_target_probes_total Probes performed by the current task")
		fmt.Fprintln(w, "# TYPE targetwatch_target_probes_total counter")
		for _, t := range tasks {
			fmt.Fprintf(w, "targetwatch_target_probes_total{target_id=\"%s\"} %d\n", labelEscaper.Replace(t.TargetID), t.Cycles)
		}

		fmt.Fprintln(w, "# HELP targetwatch_targets_total Registered targets")
		fmt.Fprintln(w, "# TYPE targetwatch_targets_total gauge")
		fmt.Fprintf(w, "targetwatch_targets_total %d\n", sum.TotalTargets)

		fmt.Fprintln(w, "# HELP targetwatch_targets_active Active targets")
		fmt.Fprintln(w, "# TYPE targetwatch_targets_active gauge")
		fmt.Fprintf(w, "targetwatch_targets_active %d\n", sum.ActiveTargets)

		fmt.Fprintln(w, "# HELP targetwatch_tasks_running Polling tasks currently running")
		fmt.Fprintln(w, "# TYPE targetwatch_tasks_running gauge")
		fmt.Fprintf(w, "targetwatch_tasks_running %d\n", len(tasks))

		fmt.Fprintln(w, "# HELP targetwatch_uptime_average_percentage Mean uptime across active targets")
		fmt.Fprintln(w, "# TYPE targetwatch_uptime_average_percentage gauge")
		fmt.Fprintf(w, "targetwatch_uptime_average_percentage %.2f\n", sum.AverageUptime)

		fmt.Fprintln(w, "# HELP targetwatch_scrape_timestamp_seconds Time of this scrape")
		fmt.Fprintln(w, "# TYPE targetwatch_scrape_timestamp_seconds gauge")
		fmt.Fprintf(w, "targetwatch_scrape_timestamp_seconds %d\n", time.Now().Unix())
	}
}
