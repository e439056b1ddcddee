package cargo

import "time"

// httpTimeLayout is RFC 1123 with a fixed "GMT" zone, the wire format HTTP
// requires for Last-Modified and If-Modified-Since.
const httpTimeLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// ParseHTTPTime parses an RFC 1123 HTTP-date, the wire format of the
// Last-Modified and If-Modified-Since headers.
func ParseHTTPTime(s string) (time.Time, bool) {
	if t, err := time.Parse(httpTimeLayout, s); err == nil {
		return t.UTC(), true
	}
	// Tolerate a literal zone abbreviation other than GMT (time.RFC1123).
	if t, err := time.Parse(time.RFC1123, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// FormatHTTPTime formats an instant as an RFC 1123 HTTP-date in GMT, as
// required for If-Modified-Since and Last-Modified header values.
func FormatHTTPTime(t time.Time) string {
	return t.UTC().Format(httpTimeLayout)
}
