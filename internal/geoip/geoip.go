// Package geoip resolves client IPs to country/city data from a local MMDB
// file, with atomic hot-swap reload and mirror-list download on refresh.
package geoip

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oschwald/maxminddb-golang/v2"
	"github.com/rs/zerolog"

	"github.com/newapi-sidecar/sidecar/internal/config"
)

// Record is the subset of MMDB fields the dashboard displays.
type Record struct {
	CountryCode string `maxminddb:"country_code"`
	CountryName string `maxminddb:"country_name"`
	City        string `maxminddb:"city"`
}

type rawRecord struct {
	Country struct {
		ISOCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
}

// Service resolves IPs against a hot-swappable MMDB reader.
type Service struct {
	path    string
	mirrors []string
	logger  zerolog.Logger

	reader atomic.Pointer[maxminddb.Reader]
	mu     sync.Mutex // serializes reload/download
}

// New constructs a GeoIP service. The database is opened by the first
// Reload call, not here, so a missing file at boot does not fail startup;
// Lookup does not open it and returns ok=false until a Reload succeeds.
func New(cfg config.GeoIPConfig, logger zerolog.Logger) *Service {
	return &Service{
		path:    cfg.DBPath,
		mirrors: cfg.Mirrors,
		logger:  logger,
	}
}

// Reload (re)opens the MMDB file and atomically swaps the active reader.
func (s *Service) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err != nil {
		if err := s.download(ctx); err != nil {
			return fmt.Errorf("geoip database unavailable: %w", err)
		}
	}

	reader, err := maxminddb.Open(s.path)
	if err != nil {
		return fmt.Errorf("open geoip database: %w", err)
	}

	old := s.reader.Swap(reader)
	if old != nil {
		old.Close()
	}
	s.logger.Info().Str("path", s.path).Msg("GeoIP database loaded")
	return nil
}

// Ready reports whether a database is currently loaded.
func (s *Service) Ready() bool { return s.reader.Load() != nil }

// Lookup resolves one IP address. Returns ok=false when no reader is loaded
// or the address is not found.
func (s *Service) Lookup(ipStr string) (Record, bool) {
	reader := s.reader.Load()
	if reader == nil {
		return Record{}, false
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return Record{}, false
	}

	var raw rawRecord
	result := reader.Lookup(ip)
	if err := result.Decode(&raw); err != nil {
		return Record{}, false
	}

	return Record{
		CountryCode: raw.Country.ISOCode,
		CountryName: raw.Country.Names["en"],
		City:        raw.City.Names["en"],
	}, true
}

// LookupBatch resolves many IPs in one pass, skipping ones that fail.
func (s *Service) LookupBatch(ips []string) map[string]Record {
	out := make(map[string]Record, len(ips))
	for _, ip := range ips {
		if rec, ok := s.Lookup(ip); ok {
			out[ip] = rec
		}
	}
	return out
}

// download fetches the MMDB from the first working mirror, writing to a
// temp file and renaming atomically so a half-written file never becomes
// the active path.
func (s *Service) download(ctx context.Context) error {
	if len(s.mirrors) == 0 {
		return fmt.Errorf("no geoip mirrors configured")
	}

	var lastErr error
	for _, mirror := range s.mirrors {
		if err := s.downloadFrom(ctx, mirror); err != nil {
			lastErr = err
			s.logger.Warn().Err(err).Str("mirror", mirror).Msg("GeoIP mirror download failed")
			continue
		}
		return nil
	}
	return fmt.Errorf("all geoip mirrors failed: %w", lastErr)
}

func (s *Service) downloadFrom(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d from %s", resp.StatusCode, url)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "geoip-*.mmdb.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, s.path)
}

// Close releases the active reader.
func (s *Service) Close() error {
	if reader := s.reader.Load(); reader != nil {
		return reader.Close()
	}
	return nil
}
