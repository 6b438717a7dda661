// Package fingerprint derives the stable cache-key digest CacheBolt uses
// to identify a request's cacheable identity across processes.
package fingerprint

import (
	"crypto/sha256"
	"net/http"
	"sort"
	"strings"
)

// Fingerprint is a 32-byte SHA-256 digest identifying a (method, path,
// query, filtered-header-set) tuple.
type Fingerprint [sha256.Size]byte

// Hex returns the hex-encoded digest, as used for object-store keys.
func (f Fingerprint) Hex() string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(f)*2)
	for i, b := range f {
		out[i*2] = hextable[b>>4]
		out[i*2+1] = hextable[b&0x0f]
	}
	return string(out)
}

// HeaderPair is a single (name, value) pair as it appears on the wire.
type HeaderPair struct {
	Name  string
	Value string
}

// Derive computes the Fingerprint for method + pathAndQuery + headers,
// after removing any header whose lowercased name is in ignored.
//
// Algorithm: build the canonical byte string
//
//	METHOD\n
//	PATH_AND_QUERY\n
//	name:value\n   (for each filtered header, lowercased name, sorted)
//
// and feed it to SHA-256. Header names are normalized to lowercase before
// filtering and before sorting, so permuting a request's headers, or
// adding/removing an ignored header, never changes the result.
func Derive(method, pathAndQuery string, headers []HeaderPair, ignored map[string]struct{}) Fingerprint {
	filtered := make([]HeaderPair, 0, len(headers))
	for _, h := range headers {
		name := strings.ToLower(h.Name)
		if _, skip := ignored[name]; skip {
			continue
		}
		filtered = append(filtered, HeaderPair{Name: name, Value: h.Value})
	}

	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].Name != filtered[j].Name {
			return filtered[i].Name < filtered[j].Name
		}
		return filtered[i].Value < filtered[j].Value
	})

	h := sha256.New()
	h.Write([]byte(strings.ToUpper(method)))
	h.Write([]byte{'\n'})
	h.Write([]byte(pathAndQuery))
	h.Write([]byte{'\n'})
	for _, hp := range filtered {
		h.Write([]byte(hp.Name))
		h.Write([]byte{':'})
		h.Write([]byte(hp.Value))
		h.Write([]byte{'\n'})
	}

	var out Fingerprint
	copy(out[:], h.Sum(nil))
	return out
}

// FromRequest extracts method, path+query, and header pairs from an
// *http.Request and derives its Fingerprint.
func FromRequest(r *http.Request, ignored map[string]struct{}) Fingerprint {
	pathAndQuery := r.URL.Path
	if r.URL.RawQuery != "" {
		pathAndQuery += "?" + r.URL.RawQuery
	}

	pairs := make([]HeaderPair, 0, len(r.Header))
	for name, values := range r.Header {
		for _, v := range values {
			pairs = append(pairs, HeaderPair{Name: name, Value: v})
		}
	}

	return Derive(r.Method, pathAndQuery, pairs, ignored)
}

// ObjectKey returns the object-store key for a fingerprint under appID,
// per the layout cache/{app_id}/{fingerprint_hex}.
func ObjectKey(appID string, fp Fingerprint) string {
	return "cache/" + appID + "/" + fp.Hex()
}

// ObjectKeyPrefix returns the object-store key prefix for an app, used by
// admin purge to delete every persisted entry for that app.
func ObjectKeyPrefix(appID string) string {
	return "cache/" + appID + "/"
}
