// Package domainname normalizes user-supplied domain names into the
// canonical form stored and routed by the platform.
package domainname

import (
	"errors"
	"strings"
)

// ErrInvalid indicates the input cannot be a registrable domain name.
var ErrInvalid = errors.New("invalid domain name")

// Normalize lowercases a raw domain, stripping scheme, leading www and
// trailing slashes. All stored and routed domains pass through here so
// lookups compare equal forms.
func Normalize(raw string) (string, error) {
	d := strings.TrimSpace(strings.ToLower(raw))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	d = strings.TrimPrefix(d, "www.")
	d = strings.TrimSuffix(d, ".")
	if d == "" || strings.ContainsAny(d, " \t") {
		return "", ErrInvalid
	}
	if _, _, err := Split(d); err != nil {
		return "", err
	}
	return d, nil
}

// Split separates a normalized domain into its label and TLD. Multi-label
// TLDs (co.uk) are treated as everything after the first dot.
func Split(domain string) (label, tld string, err error) {
	i := strings.Index(domain, ".")
	if i <= 0 || i == len(domain)-1 {
		return "", "", ErrInvalid
	}
	return domain[:i], domain[i+1:], nil
}
