package bypass

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Response is the subset of an HTTP exchange the detectors inspect.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Detector examines a response to determine whether the backend served a
// disguised failure instead of widget data.
type Detector func(res *Response) (detected bool, source string)

// DefaultDetectors returns the standard list of block detectors for the
// trends backend.
func DefaultDetectors() []Detector {
	return []Detector{
		detectRateLimit,
		detectSorryPage,
		detectCaptchaForm,
		detectHTMLError,
	}
}

// Analyze runs the response through all provided detectors and returns the
// first detection source, if any.
func Analyze(res *Response, detectors []Detector) (bool, string) {
	if res == nil {
		return false, ""
	}
	for _, d := range detectors {
		if detected, source := d(res); detected {
			return true, source
		}
	}
	return false, ""
}

// detectRateLimit treats 429 and 403 as abuse-detection responses. The
// backend uses both interchangeably when it throttles a client identity.
func detectRateLimit(res *Response) (bool, string) {
	if res.StatusCode == http.StatusTooManyRequests {
		return true, "RateLimit429"
	}
	if res.StatusCode == http.StatusForbidden {
		return true, "Forbidden403"
	}
	return false, ""
}

// detectSorryPage looks for the interstitial the backend redirects blocked
// clients to.
func detectSorryPage(res *Response) (bool, string) {
	if bytes.Contains(res.Body, []byte("google.com/sorry/")) ||
		bytes.Contains(res.Body, []byte("/sorry/index")) {
		return true, "SorryPage"
	}
	return false, ""
}

// detectCaptchaForm looks for an embedded CAPTCHA challenge.
func detectCaptchaForm(res *Response) (bool, string) {
	if bytes.Contains(res.Body, []byte("captcha-form")) ||
		bytes.Contains(res.Body, []byte("g-recaptcha")) ||
		bytes.Contains(res.Body, []byte("recaptcha/api")) {
		return true, "Captcha"
	}
	return false, ""
}

// detectHTMLError classifies any HTML document where JSON was expected.
// Error pages arrive with a 200 status often enough that the body shape is
// the only reliable signal.
func detectHTMLError(res *Response) (bool, string) {
	trimmed := bytes.TrimLeft(res.Body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '<' {
		return true, "HTMLBody"
	}
	return false, ""
}

// PageTitle extracts the <title> of a blocked HTML page for diagnostics.
// Returns "" when the body is not parseable HTML or carries no title.
func PageTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
