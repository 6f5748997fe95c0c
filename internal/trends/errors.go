package trends

import "errors"

// Sentinel errors for the acquisition protocol. Callers classify failures
// with errors.Is; wrapped variants carry request-specific detail.
var (
	// ErrInvalidQuery marks input that resolved to an empty keyword. It is
	// raised before any network call and skips the item locally.
	ErrInvalidQuery = errors.New("invalid query: empty keyword")

	// ErrBlocked marks a disguised failure: an HTML error/CAPTCHA page or a
	// 429/403 status instead of widget data.
	ErrBlocked = errors.New("blocked by backend")

	// ErrMalformedResponse marks a body that decodes to neither the expected
	// security prefix nor valid JSON. Backend drift and transient blocks are
	// indistinguishable here, so it is retried the same way.
	ErrMalformedResponse = errors.New("malformed response body")
)
