// Package geoip annotates addresses with country and network owner from a
// MaxMind DB file (GeoLite2 Country, City or ASN).
package geoip

import (
	"fmt"
	"net"

	"github.com/oschwald/maxminddb-golang"
)

// Annotation is what the database knows about one address.
type Annotation struct {
	IP      net.IP `json:"ip"`
	Network string `json:"network,omitempty"`
	Country string `json:"country,omitempty"`
	ASN     uint   `json:"asn,omitempty"`
	Org     string `json:"as_org,omitempty"`
}

// record covers the fields shared by the Country, City and ASN editions.
type record struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	ASN uint   `maxminddb:"autonomous_system_number"`
	Org string `maxminddb:"autonomous_system_organization"`
}

type DB struct {
	reader *maxminddb.Reader
}

func Open(path string) (*DB, error) {
	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip db %s: %w", path, err)
	}
	return &DB{reader: reader}, nil
}

func (db *DB) Close() error {
	return db.reader.Close()
}

// Type returns the database edition, e.g. GeoLite2-ASN.
func (db *DB) Type() string {
	return db.reader.Metadata.DatabaseType
}

// Lookup returns the annotation for ip. ok is false when the database has no
// entry covering ip.
func (db *DB) Lookup(ip net.IP) (Annotation, bool, error) {
	var rec record
	network, ok, err := db.reader.LookupNetwork(ip, &rec)
	if err != nil {
		return Annotation{}, false, fmt.Errorf("geoip lookup %s: %w", ip, err)
	}
	if !ok {
		return Annotation{IP: ip}, false, nil
	}
	ann := Annotation{
		IP:      ip,
		Country: rec.Country.ISOCode,
		ASN:     rec.ASN,
		Org:     rec.Org,
	}
	if network != nil {
		ann.Network = network.String()
	}
	return ann, true, nil
}
