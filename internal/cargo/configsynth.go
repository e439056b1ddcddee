package cargo

import "strings"

// configJSONName is the sparse-index sentinel path for the registry
// bootstrap document.
const configJSONName = "config.json"

// IsConfigJSONPath reports whether the remainder of an /index/ request path
// names the config.json sentinel.
func IsConfigJSONPath(s string) bool {
	return s == configJSONName
}

// GenConfigJSON synthesizes the sparse-registry config.json document that
// redirects a client's crate downloads back through this proxy. It produces
// exactly `{"dl":"<dl>","api":"<api>"}`, with no whitespace and no extra
// fields: Cargo does not tolerate a trailing slash on "dl".
func GenConfigJSON(proxyURL, upstreamURL string) string {
	dl := strings.TrimSuffix(proxyURL, "/") + "/api/v1/crates"
	api := strings.TrimSuffix(upstreamURL, "/")

	return `{"dl":"` + dl + `","api":"` + api + `"}`
}
