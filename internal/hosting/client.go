// Package hosting wraps the hosting platform's custom-domain attach and
// verify operations.
package hosting

import (
	"context"
	"fmt"
)

// Client is the hosting surface consumed by fulfillment and verification.
type Client interface {
	// Attach binds a domain to the platform's hosting project. The result
	// reports whether DNS already resolves; when it does not, it carries
	// the record the user must configure.
	Attach(ctx context.Context, domain string) (AttachResult, error)

	// Verify re-checks a previously attached domain.
	Verify(ctx context.Context, domain string) (AttachResult, error)
}

// DNSRecord is a record the user must create at their DNS provider.
type DNSRecord struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AttachResult is the normalized outcome of an attach or verify call.
type AttachResult struct {
	Domain   string
	Verified bool
	// Required is set when Verified is false.
	Required *DNSRecord
}

// APIError is a non-2xx response from the hosting platform.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hosting: %s (%s, http %d)", e.Message, e.Code, e.Status)
}
