// Package trace encodes simulation output deterministically.
//
// A Trace is the ordered list of block changes a session flushed, one
// Event per flushing tick. Encoding goes through MarshalCanonical so the
// same run always yields the same bytes, which makes traces usable as
// golden files and as input to Fingerprint.
package trace
