// Package cargo implements the identity and index-path conventions of the
// Cargo sparse registry protocol: crate artifact identity, index entry
// sharding, and the synthesized registry config.json.
package cargo

import (
	"fmt"
	"strings"
)

// downloadAPISuffix is the fixed trailing segment of a crate download URL.
const downloadAPISuffix = "/download"

// CrateID identifies one immutable crate artifact by name and version.
type CrateID struct {
	name    string
	version string
}

// NewCrateID builds a CrateID from its parts. Neither field is validated or
// encoded; callers pass through whatever the URL contained.
func NewCrateID(name, version string) CrateID {
	return CrateID{name: name, version: version}
}

// Name returns the crate name.
func (c CrateID) Name() string { return c.name }

// Version returns the crate version string.
func (c CrateID) Version() string { return c.version }

func (c CrateID) String() string {
	return fmt.Sprintf("%s v%s", c.name, c.version)
}

// CrateIDFromDownloadURL parses "{name}/{version}/download" as found after
// the /api/v1/crates/ prefix. It accepts exactly two slash-separated
// segments before the trailing "/download" and rejects anything else.
func CrateIDFromDownloadURL(s string) (CrateID, bool) {
	nameVersion, ok := strings.CutSuffix(s, downloadAPISuffix)
	if !ok {
		return CrateID{}, false
	}

	parts := strings.Split(nameVersion, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return CrateID{}, false
	}

	return CrateID{name: parts[0], version: parts[1]}, true
}

// DownloadURLSuffix builds the relative crate download URL, the inverse of
// CrateIDFromDownloadURL.
func (c CrateID) DownloadURLSuffix() string {
	return fmt.Sprintf("%s/%s%s", c.name, c.version, downloadAPISuffix)
}

// FileName builds the crate archive's file name for cache storage.
func (c CrateID) FileName() string {
	return fmt.Sprintf("%s-%s.crate", c.name, c.version)
}

// CachePath builds the relative crate file path for cache storage:
// "{name}/{name}-{version}.crate".
func (c CrateID) CachePath() string {
	return c.name + "/" + c.FileName()
}
