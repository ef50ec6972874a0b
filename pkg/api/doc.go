/*
Package api is the REST client for the remote proposals service.

Calls are single-shot: the client performs no internal retry, because the
responder owns the retry policy and must count every network call against its
budget. Failures surface as *HTTPError carrying the status code and the
server's error code/message, which the failure package classifies.

Every request carries a bearer token and a correlation id header for tracing
a client operation across the remote system's logs.
*/
package api
