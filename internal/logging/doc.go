// Package logging provides structured slog logging with size-based file rotation.
//
// Every command writes JSON records to ~/.searchkit/logs/searchkit.log at info
// level. --debug lowers the level to debug and copies records to stderr. The
// serve command logs to the file only, since stdout carries the MCP protocol
// stream. Viewer backs `searchkit logs`.
package logging
