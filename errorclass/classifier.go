// Package errorclass implements the canonical AI-protocol error taxonomy: 13
// codes (E1001-E9999) each carrying retryable/fallbackable/category metadata,
// and the precedence chain that classifies a raw provider response into one
// of them. Grounded on original_source/src/error_code.rs.
package errorclass

import "fmt"

// Code is one of the 13 canonical error codes.
type Code string

const (
	InvalidRequest   Code = "E1001"
	Authentication   Code = "E1002"
	PermissionDenied Code = "E1003"
	NotFound         Code = "E1004"
	RequestTooLarge  Code = "E1005"
	RateLimited      Code = "E2001"
	QuotaExhausted   Code = "E2002"
	ServerError      Code = "E3001"
	Overloaded       Code = "E3002"
	Timeout          Code = "E3003"
	Conflict         Code = "E4001"
	Cancelled        Code = "E4002"
	Unknown          Code = "E9999"
)

// Category groups codes for coarse-grained handling (the breaker only counts
// "rate" and "server").
type Category string

const (
	CategoryClient      Category = "client"
	CategoryRate        Category = "rate"
	CategoryServer      Category = "server"
	CategoryOperational Category = "operational"
	CategoryUnknown     Category = "unknown"
)

type descriptor struct {
	name         string
	retryable    bool
	fallbackable bool
	category     Category
}

var descriptors = map[Code]descriptor{
	InvalidRequest:   {"invalid_request", false, false, CategoryClient},
	Authentication:   {"authentication", false, true, CategoryClient},
	PermissionDenied: {"permission_denied", false, false, CategoryClient},
	NotFound:         {"not_found", false, false, CategoryClient},
	RequestTooLarge:  {"request_too_large", false, false, CategoryClient},
	RateLimited:      {"rate_limited", true, true, CategoryRate},
	QuotaExhausted:   {"quota_exhausted", false, true, CategoryRate},
	ServerError:      {"server_error", true, true, CategoryServer},
	Overloaded:       {"overloaded", true, true, CategoryServer},
	Timeout:          {"timeout", true, true, CategoryServer},
	Conflict:         {"conflict", true, false, CategoryOperational},
	Cancelled:        {"cancelled", false, false, CategoryOperational},
	Unknown:          {"unknown", false, false, CategoryUnknown},
}

// Name returns the standard lowercase name, e.g. "rate_limited".
func (c Code) Name() string { return descriptors[c].name }

// Retryable reports whether the retrier should attempt this call again.
func (c Code) Retryable() bool { return descriptors[c].retryable }

// Fallbackable reports whether the orchestrator should advance to the next
// fallback candidate on this error.
func (c Code) Fallbackable() bool { return descriptors[c].fallbackable }

// Category returns the coarse grouping used by the circuit breaker.
func (c Code) Category() Category { return descriptors[c].category }

func (c Code) String() string { return string(c) }

// nameAliases maps standard names and known provider-specific spellings onto
// a canonical Code. Grounded on from_provider_code in error_code.rs.
var nameAliases = map[string]Code{
	"invalid_request":          InvalidRequest,
	"invalid_request_error":    InvalidRequest,
	"authentication":           Authentication,
	"authorized_error":         Authentication,
	"invalid_api_key":          Authentication,
	"authentication_error":     Authentication,
	"permission_denied":        PermissionDenied,
	"permission_error":         PermissionDenied,
	"not_found":                NotFound,
	"model_not_found":          NotFound,
	"request_too_large":        RequestTooLarge,
	"context_length_exceeded":  RequestTooLarge,
	"rate_limited":             RateLimited,
	"rate_limit_exceeded":      RateLimited,
	"quota_exhausted":          QuotaExhausted,
	"insufficient_quota":       QuotaExhausted,
	"server_error":             ServerError,
	"overloaded":               Overloaded,
	"overloaded_error":         Overloaded,
	"timeout":                  Timeout,
	"conflict":                 Conflict,
	"cancelled":                Cancelled,
}

// FromName maps a provider error code/type string (standard or aliased) to a
// Code, or ("", false) if the name is not recognized.
func FromName(name string) (Code, bool) {
	code, ok := nameAliases[name]
	return code, ok
}

// statusCodes maps an HTTP status to the most likely Code. 429 defaults to
// RateLimited per the stated convention: a body-level hint (quota vs rate)
// always takes precedence over this table when one is present.
var statusCodes = map[int]Code{
	400: InvalidRequest,
	401: Authentication,
	403: PermissionDenied,
	404: NotFound,
	408: Timeout,
	409: Conflict,
	413: RequestTooLarge,
	429: RateLimited,
	500: ServerError,
	503: Overloaded,
	504: Timeout,
	529: Overloaded, // Anthropic overloaded, non-standard but widely emitted
}

// FromHTTPStatus maps an HTTP status code to a Code, defaulting to Unknown.
func FromHTTPStatus(status int) Code {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	return Unknown
}

// ClassifiedError is a classified failure flowing out of the compiler,
// streaming pipeline, or resilience envelope into the orchestrator.
type ClassifiedError struct {
	Code       Code
	HTTPStatus int
	Message    string
	Provider   string
	RetryAfter string // raw Retry-After header value, if present
	Cause      error
}

func (e *ClassifiedError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ClassifiedError) Unwrap() error { return e.Cause }

func (e *ClassifiedError) Retryable() bool    { return e.Code.Retryable() }
func (e *ClassifiedError) Fallbackable() bool { return e.Code.Fallbackable() }

// Classify determines the Code for a provider response using the documented
// precedence: the manifest's own error_map (body-level provider code →
// standard name) first, then the built-in alias table against the same
// body-level code, and only then the HTTP status fallback.
//
// errorMap is the manifest's error_map (provider error type/code string ->
// standard error class name); bodyCode is whatever provider-specific
// code/type string was extracted from the response body, empty if none was
// present.
func Classify(errorMap map[string]string, bodyCode string, httpStatus int) Code {
	if bodyCode != "" {
		if mapped, ok := errorMap[bodyCode]; ok {
			if code, ok := nameAliases[mapped]; ok {
				return code
			}
			if code, ok := FromName(mapped); ok {
				return code
			}
		}
		if code, ok := nameAliases[bodyCode]; ok {
			return code
		}
	}
	return FromHTTPStatus(httpStatus)
}

// New builds a ClassifiedError from a raw failure, running it through Classify.
func New(errorMap map[string]string, bodyCode string, httpStatus int, provider, message string, cause error) *ClassifiedError {
	return &ClassifiedError{
		Code:       Classify(errorMap, bodyCode, httpStatus),
		HTTPStatus: httpStatus,
		Message:    message,
		Provider:   provider,
		Cause:      cause,
	}
}
