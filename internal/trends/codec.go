package trends

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// The backend prepends an anti-JSON-hijacking prefix to every data
// response. Three literal variants are accepted; they must be checked
// longest first so the bare form never truncates a newline form.
var securityPrefixes = [][]byte{
	[]byte(")]}'\\n"), // escaped newline, 6 bytes
	[]byte(")]}'\n"),  // real newline, 5 bytes
	[]byte(")]}'"),    // bare, 4 bytes
}

// StripSecurityPrefix removes exactly one matching prefix variant from the
// body, or returns it unchanged when none matches.
func StripSecurityPrefix(body []byte) []byte {
	for _, p := range securityPrefixes {
		if bytes.HasPrefix(body, p) {
			return body[len(p):]
		}
	}
	return body
}

// Decode strips the security prefix and unmarshals the body into v.
// A body whose first non-whitespace byte is '<' is an HTML error or CAPTCHA
// page; it is classified as blocked before any JSON decode is attempted.
func Decode(body []byte, v any) error {
	stripped := StripSecurityPrefix(body)
	payload := bytes.TrimLeft(stripped, " \t\r\n")

	if len(payload) > 0 && payload[0] == '<' {
		return fmt.Errorf("decode: got HTML page: %w", ErrBlocked)
	}
	if len(payload) == 0 {
		return fmt.Errorf("decode: empty body: %w", ErrMalformedResponse)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode: %v: %w", err, ErrMalformedResponse)
	}
	return nil
}
