package marketdata

import (
	"errors"
	"net/http"
	"strings"
)

// Kind is the category of an upstream failure. Route handlers pick their
// status code from it, so the mapping of known messages must stay stable.
type Kind int

const (
	KindServer Kind = iota
	KindRateLimited
	KindInvalidSymbol
	KindNetwork
	KindTimeout
	KindInvalidCredential
)

var kindNames = map[Kind]string{
	KindServer:            "Server",
	KindRateLimited:       "RateLimited",
	KindInvalidSymbol:     "InvalidSymbol",
	KindNetwork:           "Network",
	KindTimeout:           "Timeout",
	KindInvalidCredential: "InvalidCredential",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Server"
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// InvalidCrumbPhrase is the upstream's wording for a rejected crumb. It is
// matched exactly: a looser match would retry unrelated failures.
const InvalidCrumbPhrase = "Invalid Crumb"

// ErrInvalidArgument is wrapped by validation failures. Nothing is fetched
// or cached for such calls.
var ErrInvalidArgument = errors.New("invalid argument")

type rule struct {
	kind  Kind
	match func(err error) bool
}

// rules are tried in order; the first match wins. The upstream exposes no
// error codes, so this keys off message wording and will misclassify
// silently if that wording changes.
var rules = []rule{
	{KindRateLimited, containsAny("rate limit", "too many requests")},
	{KindInvalidSymbol, containsAny("invalid symbol", "not found")},
	{KindNetwork, containsAny("network", "connection", "no such host")},
	{KindTimeout, containsAny("timeout", "timed out", "deadline exceeded")},
	{KindInvalidCredential, exactly(InvalidCrumbPhrase)},
}

// Classify maps err onto a Kind by its message. Unrecognised errors, and
// nil, are KindServer.
func Classify(err error) Kind {
	if err == nil {
		return KindServer
	}
	for _, r := range rules {
		if r.match(err) {
			return r.kind
		}
	}
	return KindServer
}

// ClassifyMessage classifies a bare message.
func ClassifyMessage(msg string) Kind {
	return Classify(errors.New(msg))
}

// HTTPStatus is the status code a handler should answer with for err.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, ErrInvalidArgument) {
		return http.StatusBadRequest
	}
	switch Classify(err) {
	case KindInvalidSymbol:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func containsAny(phrases ...string) func(error) bool {
	return func(err error) bool {
		msg := strings.ToLower(err.Error())
		for _, p := range phrases {
			if strings.Contains(msg, p) {
				return true
			}
		}
		return false
	}
}

// exactly matches when err, or any error it wraps, has exactly phrase as
// its message.
func exactly(phrase string) func(error) bool {
	return func(err error) bool {
		for e := err; e != nil; e = errors.Unwrap(e) {
			if e.Error() == phrase {
				return true
			}
		}
		return false
	}
}
