package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/star/satvis/internal/pipeline"
	"github.com/star/satvis/internal/propagation"
	"github.com/star/satvis/internal/tle"
)

const issTLE = `ISS (ZARYA)
1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9996
2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495057
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.tle")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "2025-02-14T12:00:00Z", want: time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)},
		{in: "2025-02-14T13:00:00+01:00", want: time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)},
		{in: "1739534400", want: time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)},
		{in: "yesterday", wantErr: true},
		{in: "2025-02-14", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTime(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseTime(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("parseTime(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}

	now, err := parseTime("now")
	if err != nil || time.Since(now) > time.Minute {
		t.Errorf("parseTime(now) = %v, %v", now, err)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" https://a.example/x , ,https://b.example/y,")
	want := []string{"https://a.example/x", "https://b.example/y"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitList = %q, want %q", got, want)
	}
}

func TestLoadTLEConfig(t *testing.T) {
	t.Setenv("SATVIS_TLE_GROUP", "stations")
	t.Setenv("SATVIS_TLE_EXTRA_URLS", "https://a.example/x,https://b.example/y")
	t.Setenv("SATVIS_TLE_REFRESH", "10s") // below the minimum
	t.Setenv("SATVIS_FETCH_ATTEMPTS", "5")

	cfg := loadTLEConfig(discardLogger())
	if cfg.Group != "stations" {
		t.Errorf("Group = %q", cfg.Group)
	}
	if len(cfg.ExtraSourceURLs) != 2 {
		t.Errorf("ExtraSourceURLs = %q", cfg.ExtraSourceURLs)
	}
	if cfg.Refresh != 6*time.Hour {
		t.Errorf("Refresh = %v, want default", cfg.Refresh)
	}
	if cfg.FetchAttempts != 5 {
		t.Errorf("FetchAttempts = %d", cfg.FetchAttempts)
	}
}

func TestLoadQueryConfig(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		t.Setenv("SATVIS_WORKERS", "3")
		t.Setenv("SATVIS_MIN_ELEVATION", "-5")
		t.Setenv("SATVIS_GRAVITY", "WGS84")
		t.Setenv("SATVIS_UT1_OFFSET", "-250ms")

		cfg := loadQueryConfig(discardLogger())
		if cfg.Pipeline.Workers != 3 || cfg.Pipeline.ThresholdDeg != -5 || cfg.Gravity != propagation.GravityWGS84 {
			t.Errorf("cfg = %+v", cfg)
		}
		if cfg.Transform.UT1Offset != -250*time.Millisecond {
			t.Errorf("UT1Offset = %v, want -250ms", cfg.Transform.UT1Offset)
		}
	})

	t.Run("invalid falls back", func(t *testing.T) {
		t.Setenv("SATVIS_WORKERS", "0")
		t.Setenv("SATVIS_MIN_ELEVATION", "91")
		t.Setenv("SATVIS_GRAVITY", "egm96")
		t.Setenv("SATVIS_UT1_OFFSET", "2s")

		cfg := loadQueryConfig(discardLogger())
		def := pipeline.DefaultConfig()
		if cfg.Pipeline != def || cfg.Gravity != propagation.GravityWGS72 || cfg.Transform.UT1Offset != 0 {
			t.Errorf("cfg = %+v, want defaults", cfg)
		}
	})
}

func TestLoadServerConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadServerConfig(discardLogger())
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Addr != ":8080" || cfg.TrustProxy || cfg.Auth.Enabled {
			t.Errorf("cfg = %+v", cfg)
		}
	})

	t.Run("auth without token", func(t *testing.T) {
		t.Setenv("SATVIS_AUTH_ENABLED", "true")
		if _, err := loadServerConfig(discardLogger()); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("auth flag not boolean", func(t *testing.T) {
		t.Setenv("SATVIS_AUTH_ENABLED", "maybe")
		if _, err := loadServerConfig(discardLogger()); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("auth and proxy", func(t *testing.T) {
		t.Setenv("SATVIS_HTTP_ADDR", "127.0.0.1:9000")
		t.Setenv("SATVIS_TRUST_PROXY", "1")
		t.Setenv("SATVIS_AUTH_ENABLED", "true")
		t.Setenv("SATVIS_AUTH_TOKEN", "s3cret")

		cfg, err := loadServerConfig(discardLogger())
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Addr != "127.0.0.1:9000" || !cfg.TrustProxy || !cfg.Auth.Enabled || cfg.Auth.Token != "s3cret" {
			t.Errorf("cfg = %+v", cfg)
		}
	})
}

func TestLoadCatalogFile(t *testing.T) {
	cat, err := loadCatalogFile(writeCatalog(t, issTLE), discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if cat.Len() != 1 || cat.Records[0].NoradID != 25544 {
		t.Errorf("records = %+v", cat.Records)
	}
	if cat.FetchedAt.IsZero() || !strings.HasSuffix(cat.Source, "catalog.tle") {
		t.Errorf("source = %q fetched_at = %v", cat.Source, cat.FetchedAt)
	}

	_, err = loadCatalogFile(writeCatalog(t, "not a catalog\n"), discardLogger())
	if !errors.Is(err, tle.ErrNoRecords) {
		t.Errorf("err = %v, want ErrNoRecords", err)
	}

	if _, err := loadCatalogFile(filepath.Join(t.TempDir(), "missing.tle"), discardLogger()); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestVisibleCommand(t *testing.T) {
	path := writeCatalog(t, issTLE)

	stdout, _, err := execute(t, "visible",
		"--file", path,
		"--lat", "0", "--lon", "0",
		"--time", "2025-02-14T12:00:00.750Z",
		"--all", "--json",
	)
	if err != nil {
		t.Fatal(err)
	}

	var report pipeline.Report
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("decode: %v\n%s", err, stdout)
	}
	if report.CatalogSize != 1 || len(report.Results) != 1 || len(report.Failures) != 0 {
		t.Fatalf("report = %+v", report)
	}
	if want := time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC); !report.Time.Equal(want) {
		t.Errorf("time = %v, want %v", report.Time, want)
	}
	if report.ThresholdDeg != 10 {
		t.Errorf("threshold = %v, want 10", report.ThresholdDeg)
	}
	if report.Results[0].NoradID != 25544 {
		t.Errorf("result = %+v", report.Results[0])
	}
}

func TestVisibleCommandTable(t *testing.T) {
	path := writeCatalog(t, issTLE)

	stdout, stderr, err := execute(t, "visible",
		"--file", path,
		"--lat", "0", "--lon", "0",
		"--time", "1739534400",
		"--min-elevation", "-90",
	)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "NORAD") || !strings.Contains(stdout, "25544") {
		t.Errorf("stdout = %q", stdout)
	}
	if !strings.Contains(stderr, "1 of 1 satellites above -90.0 deg") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestVisibleCommandErrors(t *testing.T) {
	path := writeCatalog(t, issTLE)

	tests := []struct {
		name string
		args []string
	}{
		{"missing lat", []string{"visible", "--file", path, "--lon", "0"}},
		{"bad time", []string{"visible", "--file", path, "--lat", "0", "--lon", "0", "--time", "soon"}},
		{"bad elevation", []string{"visible", "--file", path, "--lat", "0", "--lon", "0", "--min-elevation", "95"}},
		{"bad latitude", []string{"visible", "--file", path, "--lat", "91", "--lon", "0"}},
		{"bad gravity", []string{"visible", "--file", path, "--lat", "0", "--lon", "0", "--gravity", "egm96"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := execute(t, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestCatalogCommand(t *testing.T) {
	path := writeCatalog(t, issTLE+"garbage line\n")

	stdout, _, err := execute(t, "catalog", "--file", path, "--list", "--json")
	if err != nil {
		t.Fatal(err)
	}

	var sum catalogSummary
	if err := json.Unmarshal([]byte(stdout), &sum); err != nil {
		t.Fatalf("decode: %v\n%s", err, stdout)
	}
	if sum.Count != 1 || len(sum.Skipped) != 1 || len(sum.Records) != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	rec := sum.Records[0]
	if rec.NoradID != 25544 || rec.Name != "ISS (ZARYA)" || rec.Model != "near-earth" {
		t.Errorf("record = %+v", rec)
	}
	if rec.PeriodMinutes < 92 || rec.PeriodMinutes > 93 {
		t.Errorf("period = %v", rec.PeriodMinutes)
	}
}

func TestPassesCommand(t *testing.T) {
	path := writeCatalog(t, issTLE)

	stdout, _, err := execute(t, "passes",
		"--file", path,
		"--norad", "25544", "--norad", "99999",
		"--lat", "40.7128", "--lon", "-74.0060",
		"--start", "2025-02-14T00:00:00Z",
		"--hours", "24",
		"--min-elevation", "0",
		"--json",
	)
	if err != nil {
		t.Fatal(err)
	}

	var results []struct {
		NoradID int               `json:"norad_id"`
		Passes  []json.RawMessage `json:"passes"`
		Error   string            `json:"error"`
	}
	if err := json.Unmarshal([]byte(stdout), &results); err != nil {
		t.Fatalf("decode: %v\n%s", err, stdout)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].NoradID != 25544 || results[0].Error != "" || len(results[0].Passes) == 0 {
		t.Errorf("ISS = %+v", results[0])
	}
	if results[1].NoradID != 99999 || results[1].Error == "" {
		t.Errorf("missing satellite = %+v", results[1])
	}
}

func TestLoadStreamConfig(t *testing.T) {
	t.Setenv("SATVIS_STREAM_MAX_PER_IP", "2")
	t.Setenv("SATVIS_STREAM_KEEPALIVE", "10ms") // below the minimum

	cfg := loadStreamConfig(discardLogger(), true)
	if cfg.MaxConcurrentPerIP != 2 || !cfg.TrustProxy || cfg.KeepaliveInterval != 30*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
}
