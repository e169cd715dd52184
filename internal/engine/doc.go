// Package engine runs a compiled circuit as a simulation session.
//
// A Session owns one backend and one world. Player interactions may be
// submitted from any goroutine; they are queued and applied at the start of
// the next tick, in submission order. Everything else (compiling, ticking,
// flushing) happens on the goroutine that drives the session, so a run is a
// pure function of the circuit and the interaction sequence.
//
// Tick numbers come from a logical Clock, never from wall time. Serve paces
// ticks against a real timer but the tick order is unaffected by it.
package engine
