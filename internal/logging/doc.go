// Package logging provides a simple leveled logging interface for the
// photoframe ingestion server.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable.
// Components that run several instances per process (queue workers) use
// Tagged to prefix their messages with an instance id.
package logging
