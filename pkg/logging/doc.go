// Package logging builds the slog loggers shared by the server and the CLI.
//
// Components receive a *slog.Logger at construction time; nothing in the
// module logs through a package-level logger. NewNop is there for tests and
// for wiring that must not fail.
package logging
