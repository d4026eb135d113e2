/*
Package log provides structured logging for MXRC built on zerolog.

Call Init once at process start, then derive component loggers:

	log.Init(log.Config{Level: log.InfoLevel})
	logger := log.WithComponent("executive")
	logger.Info().Uint64("tick", tick).Msg("Cycle started")

Components on the real-time path hold a pre-built child logger and only
emit on error paths; zerolog does not allocate when the level is disabled.
*/
package log
