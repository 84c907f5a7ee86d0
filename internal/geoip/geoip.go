// Package geoip wraps the GeoIP database reader behind a narrow
// interface. The database file and its binary format are an external
// collaborator; this package only adapts a concrete implementation
// (github.com/oschwald/geoip2-golang, backed by
// github.com/oschwald/maxminddb-golang) to the shape the enrichment
// stage needs.
package geoip

import (
	"net"

	"github.com/oschwald/geoip2-golang"
)

// CountryLookup resolves an IP to an ISO-3166-1 alpha-2 country code.
type CountryLookup interface {
	Country(ip string) (string, bool)
}

// Reader adapts *geoip2.Reader to CountryLookup.
type Reader struct {
	db *geoip2.Reader
}

// Open opens the MaxMind database at path.
func Open(path string) (*Reader, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{db: db}, nil
}

// Close releases the underlying mmap'd database file.
func (r *Reader) Close() error {
	return r.db.Close()
}

// Country returns the ISO country code for ip, or ("", false) on a
// lookup miss or parse failure.
func (r *Reader) Country(ip string) (string, bool) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", false
	}
	record, err := r.db.Country(parsed)
	if err != nil || record.Country.IsoCode == "" {
		return "", false
	}
	return record.Country.IsoCode, true
}

// Noop is a CountryLookup that never resolves anything, used when no
// GeoIP database is configured.
type Noop struct{}

func (Noop) Country(string) (string, bool) { return "", false }
