// Package logging installs chainkv's logger factory into dragonboat's
// logger registry. chainkv does not use dragonboat's RAFT core (the spec's
// own chain protocol is the consensus mechanism - see DESIGN.md), but its
// logger.ILogger facade is a clean, dependency-light, named-logger
// abstraction. chainkv packages create their loggers with Factory(name);
// Init, run once at startup, sets the level those loggers start at.
package logging
