package services

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// UnknownLocation is recorded when geolocation is unavailable or the
// lookup fails. Unknown locations never trigger new-location alerts.
const UnknownLocation = "Unknown"

// GeoPoint is the resolved location of one client IP.
type GeoPoint struct {
	City      string
	Country   string
	Latitude  float64
	Longitude float64
}

// Label renders the point for display and audit entries, "City, Country".
func (g GeoPoint) Label() string {
	if g.City == "" {
		return UnknownLocation
	}
	if g.Country == "" {
		return g.City
	}
	return g.City + ", " + g.Country
}

// GeoService resolves client IPs to coarse locations.
type GeoService interface {
	Locate(ip string) GeoPoint
	Close() error
}

// MaxMindGeoService resolves IPs against a local MaxMind City database.
// Lookups never leave the process.
type MaxMindGeoService struct {
	reader *geoip2.Reader
	logger *slog.Logger
}

// NewMaxMindGeoService opens the mmdb file at path.
func NewMaxMindGeoService(path string, logger *slog.Logger) (*MaxMindGeoService, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip database: %w", err)
	}
	return &MaxMindGeoService{reader: reader, logger: logger}, nil
}

// Locate resolves ip to a city-level point. Any failure degrades to the
// unknown point rather than surfacing an error to the login path.
func (s *MaxMindGeoService) Locate(ip string) GeoPoint {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return GeoPoint{}
	}

	record, err := s.reader.City(parsed)
	if err != nil {
		s.logger.Warn("geoip lookup failed", slog.String("ip", ip), slog.Any("error", err))
		return GeoPoint{}
	}

	return GeoPoint{
		City:      record.City.Names["en"],
		Country:   record.Country.Names["en"],
		Latitude:  record.Location.Latitude,
		Longitude: record.Location.Longitude,
	}
}

func (s *MaxMindGeoService) Close() error {
	return s.reader.Close()
}

// NoopGeoService is used when no geoip database is configured. Every
// lookup resolves to the unknown point.
type NoopGeoService struct{}

func (NoopGeoService) Locate(string) GeoPoint { return GeoPoint{} }
func (NoopGeoService) Close() error           { return nil }
