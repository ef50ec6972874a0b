package failure

import (
	"strings"
	"time"

	"github.com/stayswap/swapsync/pkg/types"
)

// RetryPolicy is the static recovery policy attached to an error class
type RetryPolicy struct {
	Retryable   bool
	MaxRetries  int
	BaseDelay   time.Duration
	UserMessage string
}

// policies maps every error class to its recovery policy. Authentication
// failures are handled separately and never consume a retry slot.
var policies = map[types.ErrorClass]RetryPolicy{
	types.ErrorNetwork: {
		Retryable:   true,
		MaxRetries:  3,
		BaseDelay:   1 * time.Second,
		UserMessage: "Network problem while responding to the proposal. Retrying...",
	},
	types.ErrorTimeout: {
		Retryable:   true,
		MaxRetries:  3,
		BaseDelay:   2 * time.Second,
		UserMessage: "The request timed out. Retrying...",
	},
	types.ErrorServer: {
		Retryable:   true,
		MaxRetries:  2,
		BaseDelay:   2 * time.Second,
		UserMessage: "The server had a problem processing the response. Retrying...",
	},
	types.ErrorValidation: {
		Retryable:   false,
		MaxRetries:  0,
		BaseDelay:   0,
		UserMessage: "The proposal response was rejected as invalid.",
	},
	types.ErrorPermission: {
		Retryable:   false,
		MaxRetries:  0,
		BaseDelay:   0,
		UserMessage: "You are not allowed to respond to this proposal.",
	},
	types.ErrorUnknown: {
		Retryable:   false,
		MaxRetries:  0,
		BaseDelay:   1 * time.Second,
		UserMessage: "Something went wrong while responding to the proposal.",
	},
}

// Policy returns the recovery policy for an error class
func Policy(class types.ErrorClass) RetryPolicy {
	if p, ok := policies[class]; ok {
		return p
	}
	return policies[types.ErrorUnknown]
}

// Classify maps a raw failure into an error class. Explicit status codes win;
// message substrings are the fallback; everything else is unknown.
func Classify(statusCode int, message string) types.ErrorClass {
	switch {
	case statusCode == 401 || statusCode == 403:
		return types.ErrorPermission
	case statusCode == 400:
		return types.ErrorValidation
	case statusCode == 408:
		return types.ErrorTimeout
	case statusCode >= 500:
		return types.ErrorServer
	}

	msg := strings.ToLower(message)
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return types.ErrorTimeout
	case strings.Contains(msg, "network") || strings.Contains(msg, "connection"):
		return types.ErrorNetwork
	}
	return types.ErrorUnknown
}

// IsAuthFailure reports whether a failure should short-circuit all retry
// logic and redirect to login instead
func IsAuthFailure(statusCode int, message string) bool {
	if statusCode == 401 {
		return true
	}
	msg := strings.ToLower(message)
	return strings.Contains(msg, "token expired") || strings.Contains(msg, "not authenticated")
}

// Delay computes the exponential backoff for a 0-indexed retry attempt:
// base * 2^attempt
func Delay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// Info builds a classified ErrorInfo record from a raw failure
func Info(proposalID string, statusCode int, code, message string, now time.Time) types.ErrorInfo {
	class := Classify(statusCode, message)
	return types.ErrorInfo{
		Type:       class,
		Message:    message,
		Code:       code,
		Timestamp:  now,
		Retryable:  Policy(class).Retryable,
		ProposalID: proposalID,
	}
}
