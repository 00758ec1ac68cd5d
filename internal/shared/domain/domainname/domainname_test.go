package domainname

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", "example.com", "example.com", false},
		{"uppercase", "EXAMPLE.Com", "example.com", false},
		{"scheme and slash", "https://example.com/", "example.com", false},
		{"www prefix", "www.example.co.uk", "example.co.uk", false},
		{"path stripped", "http://example.com/about?x=1", "example.com", false},
		{"trailing dot", "example.com.", "example.com", false},
		{"no tld", "localhost", "", true},
		{"empty", "  ", "", true},
		{"dot only", ".com", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplit(t *testing.T) {
	label, tld, err := Split("example.co.uk")
	require.NoError(t, err)
	assert.Equal(t, "example", label)
	assert.Equal(t, "co.uk", tld)

	_, _, err = Split("example")
	assert.ErrorIs(t, err, ErrInvalid)
}
