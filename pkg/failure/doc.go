/*
Package failure classifies raw API failures into a closed set of error
classes, each carrying a fixed recovery policy.

Classification uses explicit HTTP status codes where available (401/403 ->
permission, 400 -> validation, 408 -> timeout, >=500 -> server) and falls
back to message substrings ("timeout" -> timeout, "network"/"connection" ->
network). Anything unmatched is unknown.

Authentication failures (401, expired token) are recognized separately by
IsAuthFailure: they bypass every retry path and trigger a re-authentication
signal instead of consuming a retry slot.

Backoff is exponential: Delay(base, attempt) = base * 2^attempt for a
0-indexed attempt, monotonically non-decreasing.
*/
package failure
