// Package logging configures the process-wide slog logger.
//
// Logs go to stderr, and to a size-rotated JSON file when a path is set.
// Stderr gets text lines on a terminal and JSON otherwise, so pipelines and
// log shippers see the same records the file does. Viewer reads the file
// back for the logs command.
package logging
