package dashboard

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"robotfleet-sim/internal/telemetry"
)

//go:embed templates/*.tmpl
var templates embed.FS

// Params fill the dashboard templates.
type Params struct {
	FleetID     string
	StateTable  string
	HealthTable string
}

// DefaultParams targets the tables the GreptimeDB writer fills.
func DefaultParams(fleetID string) Params {
	return Params{FleetID: fleetID, StateTable: telemetry.StateTableName, HealthTable: "fleet_health"}
}

// Render parses dashboard templates and writes rendered dashboards to outDir.
// Templates read datasource UIDs from the environment via the env function.
func Render(outDir string, p Params) error {
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
	}

	names, err := templates.ReadDir("templates")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for _, e := range names {
		t, err := template.New(e.Name()).Funcs(funcMap).ParseFS(templates, "templates/"+e.Name())
		if err != nil {
			return err
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(e.Name(), ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		if err := t.Execute(f, p); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
