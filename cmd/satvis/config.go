package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/star/satvis/internal/api"
	"github.com/star/satvis/internal/auth"
	"github.com/star/satvis/internal/pipeline"
	"github.com/star/satvis/internal/propagation"
	"github.com/star/satvis/internal/stream"
	"github.com/star/satvis/internal/tle"
	"github.com/star/satvis/internal/transform"
	"github.com/star/satvis/internal/visibility"
)

// newLogger builds the JSON logger. Unknown levels fall back to info.
func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// tleConfig describes where catalogs come from and how often.
type tleConfig struct {
	SourceURL       string
	Group           string
	ExtraSourceURLs []string
	Refresh         time.Duration
	FetchAttempts   int
}

func loadTLEConfig(logger *slog.Logger) tleConfig {
	cfg := tleConfig{
		Group:         "visual",
		Refresh:       tle.DefaultRefreshInterval,
		FetchAttempts: 3,
	}

	if v := os.Getenv("SATVIS_TLE_SOURCE_URL"); v != "" {
		cfg.SourceURL = v
	}

	if v := os.Getenv("SATVIS_TLE_GROUP"); v != "" {
		cfg.Group = v
	}

	if v := os.Getenv("SATVIS_TLE_EXTRA_URLS"); v != "" {
		cfg.ExtraSourceURLs = splitList(v)
	}

	if v := os.Getenv("SATVIS_TLE_REFRESH"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < time.Minute {
			logger.Warn("invalid SATVIS_TLE_REFRESH value, using default", "value", v, "default", cfg.Refresh.String())
		} else {
			cfg.Refresh = d
		}
	}

	if v := os.Getenv("SATVIS_FETCH_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SATVIS_FETCH_ATTEMPTS value, using default", "value", v, "default", cfg.FetchAttempts)
		} else {
			cfg.FetchAttempts = n
		}
	}

	logger.Info("TLE config",
		"source_url", cfg.SourceURL,
		"group", cfg.Group,
		"extra_urls", cfg.ExtraSourceURLs,
		"refresh", cfg.Refresh.String(),
		"fetch_attempts", cfg.FetchAttempts,
	)

	return cfg
}

// queryConfig groups the settings that shape a visibility query.
type queryConfig struct {
	Pipeline  pipeline.Config
	Gravity   propagation.Gravity
	Transform transform.Config
}

func loadQueryConfig(logger *slog.Logger) queryConfig {
	cfg := queryConfig{
		Pipeline: pipeline.Config{
			Workers:      runtime.NumCPU(),
			ThresholdDeg: visibility.DefaultThresholdDeg,
		},
		Gravity:   propagation.DefaultConfig().Gravity,
		Transform: transform.DefaultConfig(),
	}

	if v := os.Getenv("SATVIS_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SATVIS_WORKERS value, using default", "value", v, "default", cfg.Pipeline.Workers)
		} else {
			cfg.Pipeline.Workers = n
		}
	}

	if v := os.Getenv("SATVIS_MIN_ELEVATION"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < -90 || f > 90 {
			logger.Warn("invalid SATVIS_MIN_ELEVATION value, using default", "value", v, "default", cfg.Pipeline.ThresholdDeg)
		} else {
			cfg.Pipeline.ThresholdDeg = f
		}
	}

	if v := os.Getenv("SATVIS_GRAVITY"); v != "" {
		g, err := propagation.ParseGravity(v)
		if err != nil {
			logger.Warn("invalid SATVIS_GRAVITY value, using default", "value", v, "default", string(cfg.Gravity))
		} else {
			cfg.Gravity = g
		}
	}

	if v := os.Getenv("SATVIS_UT1_OFFSET"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < -transform.MaxUT1Offset || d > transform.MaxUT1Offset {
			logger.Warn("invalid SATVIS_UT1_OFFSET value, using default", "value", v, "default", cfg.Transform.UT1Offset.String())
		} else {
			cfg.Transform.UT1Offset = d
		}
	}

	logger.Info("query config",
		"workers", cfg.Pipeline.Workers,
		"min_elevation_deg", cfg.Pipeline.ThresholdDeg,
		"gravity", string(cfg.Gravity),
		"ut1_offset", cfg.Transform.UT1Offset.String(),
	)

	return cfg
}

func loadServerConfig(logger *slog.Logger) (api.Config, error) {
	cfg := api.Config{Addr: ":8080"}

	if v := os.Getenv("SATVIS_HTTP_ADDR"); v != "" {
		cfg.Addr = v
	}

	if v := os.Getenv("SATVIS_TRUST_PROXY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid SATVIS_TRUST_PROXY value, defaulting to false", "value", v)
		} else {
			cfg.TrustProxy = b
		}
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		return cfg, err
	}
	cfg.Auth = authCfg

	return cfg, nil
}

func loadStreamConfig(logger *slog.Logger, trustProxy bool) stream.Config {
	cfg := stream.DefaultConfig()
	cfg.TrustProxy = trustProxy

	if v := os.Getenv("SATVIS_STREAM_MAX_PER_IP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SATVIS_STREAM_MAX_PER_IP value, using default", "value", v, "default", cfg.MaxConcurrentPerIP)
		} else {
			cfg.MaxConcurrentPerIP = n
		}
	}

	if v := os.Getenv("SATVIS_STREAM_KEEPALIVE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < time.Second {
			logger.Warn("invalid SATVIS_STREAM_KEEPALIVE value, using default", "value", v, "default", cfg.KeepaliveInterval.String())
		} else {
			cfg.KeepaliveInterval = d
		}
	}

	logger.Info("stream config",
		"max_per_ip", cfg.MaxConcurrentPerIP,
		"max_total", cfg.MaxConcurrent,
		"keepalive", cfg.KeepaliveInterval.String(),
	)

	return cfg
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	if v := os.Getenv("SATVIS_AUTH_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, errors.New("SATVIS_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("SATVIS_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("SATVIS_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseTime accepts RFC 3339, Unix seconds, or "now".
func parseTime(v string) (time.Time, error) {
	if v == "" || v == "now" {
		return time.Now().UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("time %q: want RFC 3339, Unix seconds or \"now\"", v)
}
