package geoip

import "testing"

func TestNoop_AlwaysMisses(t *testing.T) {
	var n Noop
	country, ok := n.Country("8.8.8.8")
	if ok || country != "" {
		t.Fatalf("expected a miss, got %q, %v", country, ok)
	}
}

func TestReader_MalformedIPIsMiss(t *testing.T) {
	r := &Reader{}
	country, ok := r.Country("not-an-ip")
	if ok || country != "" {
		t.Fatalf("expected a miss for an unparseable IP, got %q, %v", country, ok)
	}
}
