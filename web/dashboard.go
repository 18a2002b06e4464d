package web

import (
	_ "embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/swarmscore/swarmscore/internal/registry"
	"github.com/swarmscore/swarmscore/internal/weights"
)

var log = logging.Logger("web")

//go:embed templates/dashboard.html.tmpl
var dashboardTemplateHTML string

type dashboardData struct {
	ComputedAt string
	Scores     []weights.ScoreEntry
	Workers    []registry.Worker
}

func formatScore(s float64) string {
	return fmt.Sprintf("%.4f", s)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format("2006-01-02 15:04:05 MST")
}

// DashboardHandler renders the read-only operator dashboard.
func DashboardHandler(reg *registry.Registry, manager *weights.Manager) http.HandlerFunc {
	tmpl := template.Must(template.New("dashboard").Funcs(template.FuncMap{
		"formatScore": formatScore,
		"formatTime":  formatTime,
	}).Parse(dashboardTemplateHTML))

	return func(w http.ResponseWriter, r *http.Request) {
		scores, computedAt := manager.Scores()

		data := dashboardData{
			ComputedAt: formatTime(computedAt),
			Scores:     scores,
			Workers:    reg.Workers(),
		}

		if err := tmpl.Execute(w, data); err != nil {
			log.Errorf("executing dashboard template: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
	}
}
