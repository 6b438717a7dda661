package fingerprint

import (
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDerive_Deterministic(t *testing.T) {
	headers := []HeaderPair{
		{Name: "Accept", Value: "application/json"},
		{Name: "X-Request-Id", Value: "abc"},
	}

	a := Derive("GET", "/orders?page=1", headers, nil)
	b := Derive("GET", "/orders?page=1", headers, nil)

	if a != b {
		t.Fatal("Derive is not deterministic for identical input")
	}
}

func TestDerive_HeaderOrderIndependent(t *testing.T) {
	h1 := []HeaderPair{
		{Name: "Accept", Value: "application/json"},
		{Name: "X-Request-Id", Value: "abc"},
	}
	h2 := []HeaderPair{
		{Name: "X-Request-Id", Value: "abc"},
		{Name: "Accept", Value: "application/json"},
	}

	if Derive("GET", "/orders", h1, nil) != Derive("GET", "/orders", h2, nil) {
		t.Fatal("fingerprint changed when header order was permuted")
	}
}

func TestDerive_HeaderOrderIndependent_Randomized(t *testing.T) {
	base := []HeaderPair{
		{Name: "A", Value: "1"},
		{Name: "B", Value: "2"},
		{Name: "C", Value: "3"},
		{Name: "D", Value: "4"},
	}
	want := Derive("POST", "/x", base, nil)

	for i := 0; i < 20; i++ {
		shuffled := make([]HeaderPair, len(base))
		copy(shuffled, base)
		rand.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		if got := Derive("POST", "/x", shuffled, nil); got != want {
			t.Fatalf("permutation %d changed fingerprint", i)
		}
	}
}

func TestDerive_IgnoredHeaderDoesNotAffectResult(t *testing.T) {
	ignored := map[string]struct{}{"x-request-id": {}}

	without := Derive("GET", "/orders", []HeaderPair{
		{Name: "Accept", Value: "application/json"},
	}, ignored)

	with := Derive("GET", "/orders", []HeaderPair{
		{Name: "Accept", Value: "application/json"},
		{Name: "X-Request-Id", Value: "anything-at-all"},
	}, ignored)

	if without != with {
		t.Fatal("ignored header changed the fingerprint")
	}
}

func TestDerive_IgnoredHeaderCaseInsensitive(t *testing.T) {
	ignored := map[string]struct{}{"x-request-id": {}}

	a := Derive("GET", "/orders", []HeaderPair{{Name: "X-REQUEST-ID", Value: "1"}}, ignored)
	b := Derive("GET", "/orders", nil, ignored)

	if a != b {
		t.Fatal("ignored header comparison is not case-insensitive")
	}
}

func TestDerive_MethodCaseNormalized(t *testing.T) {
	if Derive("get", "/x", nil, nil) != Derive("GET", "/x", nil, nil) {
		t.Fatal("method case affected fingerprint")
	}
}

func TestDerive_DifferentPathsDiffer(t *testing.T) {
	if Derive("GET", "/a", nil, nil) == Derive("GET", "/b", nil, nil) {
		t.Fatal("distinct paths produced identical fingerprints")
	}
}

func TestDerive_QueryStringParticipates(t *testing.T) {
	if Derive("GET", "/x?a=1", nil, nil) == Derive("GET", "/x?a=2", nil, nil) {
		t.Fatal("distinct query strings produced identical fingerprints")
	}
}

func TestHex_Length(t *testing.T) {
	fp := Derive("GET", "/x", nil, nil)
	if len(fp.Hex()) != 64 {
		t.Errorf("Hex() length = %d, want 64", len(fp.Hex()))
	}
}

func TestFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/orders?region=10000002", nil)
	req.Header.Set("Accept", "application/json")

	fp := FromRequest(req, nil)
	if fp.Hex() == "" {
		t.Fatal("FromRequest produced empty fingerprint")
	}

	req2 := httptest.NewRequest(http.MethodGet, "/orders?region=10000002", nil)
	req2.Header.Set("Accept", "application/json")
	if FromRequest(req2, nil) != fp {
		t.Fatal("FromRequest is not deterministic across equivalent requests")
	}
}

func TestObjectKey(t *testing.T) {
	fp := Derive("GET", "/x", nil, nil)
	key := ObjectKey("shop", fp)
	want := "cache/shop/" + fp.Hex()
	if key != want {
		t.Errorf("ObjectKey() = %q, want %q", key, want)
	}
}

func TestObjectKeyPrefix(t *testing.T) {
	if ObjectKeyPrefix("shop") != "cache/shop/" {
		t.Errorf("ObjectKeyPrefix() = %q", ObjectKeyPrefix("shop"))
	}
}
