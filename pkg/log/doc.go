/*
Package log provides structured logging for swapsync using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific child loggers, configurable levels, and helpers for the
fields that recur across the state layer (proposal_id, user_id, channel).

# Usage

Initialize once at startup:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

Create component loggers:

	logger := log.WithComponent("responder")
	logger.Info().
		Str("proposal_id", proposalID).
		Int("attempt", attempt).
		Msg("retrying proposal response")

The global Logger is safe for concurrent use. Console output (JSONOutput
false) is intended for the CLI; JSON output for anything collected.
*/
package log
