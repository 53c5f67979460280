// Package directory reads the published list of measurement servers and
// picks the one to measure against.
package directory

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrSourceUnavailable is returned when the directory cannot be fetched
	// or opened.
	ErrSourceUnavailable = errors.New("server list source unavailable")

	// ErrParse is returned when the directory is not well-formed XML or has
	// no root element.
	ErrParse = errors.New("could not parse server list")

	// ErrNoUsableServer is returned when selection criteria match no server.
	ErrNoUsableServer = errors.New("no usable server")

	// ErrMalformedURL is returned when a server URL cannot be turned into a
	// download URL.
	ErrMalformedURL = errors.New("malformed server url")
)

// ServerRecord is one candidate endpoint of the directory. An empty field
// means the attribute was absent.
type ServerRecord struct {
	ID      string
	Country string
	// City is the "name" attribute of the server element.
	City string
	// Provider is the "sponsor" attribute of the server element.
	Provider string
	// URL is the upload endpoint.
	URL string
}

// Usable reports whether country, city and provider are all present.
func (r ServerRecord) Usable() bool {
	return r.Country != "" && r.City != "" && r.Provider != ""
}

// String returns the record as "country, city (provider)".
func (r ServerRecord) String() string {
	return fmt.Sprintf("%s, %s (%s)", r.Country, r.City, r.Provider)
}

// Criteria restricts selection. Empty fields are not applied. Matching is
// exact and case-sensitive.
type Criteria struct {
	Country  string `yaml:"country,omitempty"`
	City     string `yaml:"city,omitempty"`
	Provider string `yaml:"provider,omitempty"`
	ID       string `yaml:"id,omitempty"`
}

// Empty reports whether no criterion is set.
func (c Criteria) Empty() bool {
	return c == Criteria{}
}

// Match reports whether r satisfies every criterion that is set.
func (c Criteria) Match(r ServerRecord) bool {
	return matches(c.Country, r.Country) &&
		matches(c.City, r.City) &&
		matches(c.Provider, r.Provider) &&
		matches(c.ID, r.ID)
}

func matches(want, got string) bool {
	return want == "" || want == got
}

// String returns the criteria that are set as space-separated key=value
// pairs.
func (c Criteria) String() string {
	var parts []string
	for _, kv := range [][2]string{
		{"country", c.Country},
		{"city", c.City},
		{"provider", c.Provider},
		{"id", c.ID},
	} {
		if kv[1] != "" {
			parts = append(parts, kv[0]+"="+strconv.Quote(kv[1]))
		}
	}
	return strings.Join(parts, " ")
}
