/*
Package metrics provides Prometheus metrics for swapsync.

Counters and histograms are updated inline by the responder, the real-time
client, and the sweeper; gauges over store state are sampled by the Collector
every 15 seconds. Handler exposes the standard promhttp endpoint, mounted by
the CLI when metrics are enabled.

Metric families:

	swapsync_operations_total{action,outcome}   respond outcomes
	swapsync_retries_total                      internal retry attempts
	swapsync_operations_active                  operations currently loading
	swapsync_optimistic_entries{status}         optimistic projection size
	swapsync_operation_duration_seconds         respond latency incl. retries
	swapsync_ws_events_total{type}              inbound WebSocket events
	swapsync_reconnects_total                   reconnect attempts
	swapsync_sweep_cycles_total                 sweep cycles executed
	swapsync_sweep_duration_seconds             sweep latency
	swapsync_errors_total{class}                classified errors
*/
package metrics
