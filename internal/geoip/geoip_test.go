package geoip

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// Minimal MaxMind DB encoder: just enough of the format for a one-node IPv4
// tree whose right branch (addresses >= 128.0.0.0) points at one record.

func encString(s string) []byte {
	n := len(s)
	if n < 29 {
		return append([]byte{0x40 | byte(n)}, s...)
	}
	return append([]byte{0x40 | 29, byte(n - 29)}, s...)
}

func encUint16(v uint16) []byte {
	return []byte{0xa0 | 2, byte(v >> 8), byte(v)}
}

func encUint32(v uint32) []byte {
	return []byte{0xc0 | 4, byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func encMap(kv ...[]byte) []byte {
	out := []byte{0xe0 | byte(len(kv)/2)}
	for _, b := range kv {
		out = append(out, b...)
	}
	return out
}

func buildDB(t *testing.T) string {
	t.Helper()
	const nodeCount = 1
	var buf []byte
	// node 0: left = nodeCount (no data), right = data offset 0.
	right := nodeCount + 16
	buf = append(buf, 0, 0, nodeCount, 0, 0, byte(right))
	buf = append(buf, make([]byte, 16)...)
	buf = append(buf, encMap(
		encString("country"), encMap(encString("iso_code"), encString("NL")),
		encString("autonomous_system_number"), encUint32(64496),
		encString("autonomous_system_organization"), encString("Example Transit"),
	)...)
	buf = append(buf, "\xab\xcd\xefMaxMind.com"...)
	buf = append(buf, encMap(
		encString("node_count"), encUint32(nodeCount),
		encString("record_size"), encUint16(24),
		encString("ip_version"), encUint16(4),
		encString("database_type"), encString("Test-ASN"),
		encString("binary_format_major_version"), encUint16(2),
		encString("binary_format_minor_version"), encUint16(0),
	)...)

	path := filepath.Join(t.TempDir(), "test.mmdb")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write db: %v", err)
	}
	return path
}

func TestLookup(t *testing.T) {
	db, err := Open(buildDB(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if got := db.Type(); got != "Test-ASN" {
		t.Fatalf("type = %q", got)
	}

	ip := net.ParseIP("192.0.2.7")
	ann, ok, err := db.Lookup(ip)
	if err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}
	want := Annotation{
		IP:      ip,
		Network: "128.0.0.0/1",
		Country: "NL",
		ASN:     64496,
		Org:     "Example Transit",
	}
	if diff := cmp.Diff(want, ann); diff != "" {
		t.Fatalf("annotation mismatch (-want +got):\n%s", diff)
	}
}

func TestLookupMiss(t *testing.T) {
	db, err := Open(buildDB(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	ann, ok, err := db.Lookup(net.ParseIP("10.1.2.3"))
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if ok || ann.Country != "" || ann.ASN != 0 {
		t.Fatalf("expected miss, got %+v", ann)
	}
}

func TestLookupIPv6InIPv4Database(t *testing.T) {
	db, err := Open(buildDB(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if _, _, err := db.Lookup(net.ParseIP("2001:db8::1")); err == nil {
		t.Fatalf("expected error for ipv6 lookup in ipv4 database")
	}
}

func TestOpenErrors(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.mmdb")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	bad := filepath.Join(t.TempDir(), "bad.mmdb")
	if err := os.WriteFile(bad, []byte("not a database"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Open(bad)
	if err == nil || !strings.Contains(err.Error(), "open geoip db") {
		t.Fatalf("error = %v", err)
	}
}
