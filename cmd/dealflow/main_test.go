package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
)

// writeConfig writes a config file rooted in dir and returns its path.
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	yaml := fmt.Sprintf(`storage:
  data_path: %s
config_dir: %s
scheduler:
  timezone: UTC
logging:
  level: error
financial:
  rental:
    hud_data_path: %s
`, filepath.Join(dir, "data"), filepath.Join(dir, "config"), filepath.Join(dir, "hud.json"))
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestDecodeProperties(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{"array", `[{"zpid":"1"},{"zpid":"2"}]`, 2, false},
		{"snapshot object", `{"zipCode":"78701","properties":[{"zpid":"1"}]}`, 1, false},
		{"empty array", ` [] `, 0, false},
		{"object without properties", `{"zipCode":"78701"}`, 0, true},
		{"malformed", `[{"zpid":`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			props, err := decodeProperties([]byte(tt.input))
			if tt.wantErr {
				if !errors.Is(err, models.ErrValidation) {
					t.Fatalf("err = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(props) != tt.want {
				t.Errorf("got %d properties, want %d", len(props), tt.want)
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, "version", "--config", writeConfig(t, dir))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "dealflow dev") {
		t.Errorf("output = %q", out)
	}
}

func TestReferenceConvertThenAnalyze(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	csvPath := filepath.Join(dir, "fmr.csv")
	csvData := "Zip Code,Bedrooms,Fair Market Rent,Year,County,State\n" +
		"78701,2,\"$1,650\",2025,Travis,TX\n" +
		"78702,3,1900,2025,Travis,TX\n"
	if err := os.WriteFile(csvPath, []byte(csvData), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "--config", cfgPath, "reference", "convert", csvPath, filepath.Join(dir, "hud.json"))
	if err != nil {
		t.Fatalf("convert: %v (%s)", err, out)
	}
	if !strings.Contains(out, "Wrote 2 records (long layout, 0 rejected)") {
		t.Errorf("convert output = %q", out)
	}

	out, err = run(t, "--config", cfgPath, "reference", "stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out, "Records:    2") || !strings.Contains(out, "Zip codes:  2") {
		t.Errorf("stats output = %q", out)
	}

	propsPath := filepath.Join(dir, "listings.json")
	props := `[{"zpid":"1","address":"1 Congress Ave, Austin, TX 78701","price":250000,"bedrooms":2,"bathrooms":2,"livingArea":1000},
	           {"zpid":"2","address":"2 Congress Ave, Austin, TX 78701","price":0,"bedrooms":2,"livingArea":1000}]`
	if err := os.WriteFile(propsPath, []byte(props), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err = run(t, "--config", cfgPath, "analyze", propsPath, "--save")
	if err != nil {
		t.Fatalf("analyze: %v (%s)", err, out)
	}
	for _, want := range []string{"Properties: 2 | Analyzed: 1 | Failed: 1", "1 Congress Ave", "HUD/HIGH", "ERRORS (1)"} {
		if !strings.Contains(out, want) {
			t.Errorf("analyze output missing %q:\n%s", want, out)
		}
	}

	exportPath := filepath.Join(dir, "analysis.csv")
	if _, err := run(t, "--config", cfgPath, "export", "analysis", "--out", exportPath); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Split(strings.TrimSpace(string(data)), "\n"); len(lines) != 2 {
		t.Errorf("export has %d lines, want header + 1:\n%s", len(lines), data)
	}
}

func TestAnalyzeRequiresInput(t *testing.T) {
	dir := t.TempDir()
	if _, err := run(t, "--config", writeConfig(t, dir), "analyze"); err == nil {
		t.Fatal("expected error without a file or --zip")
	}
}
