// Package graphio loads compiled circuits from YAML, JSON or CUE files.
//
// Every file, whatever its syntax, is unified with the embedded #Circuit
// schema (schema.cue) before it is decoded, so range and shape errors are
// reported with file positions. Nodes are named by id and edges refer to
// those ids; the loader turns them into the index-based graph.Graph the
// backends compile.
//
//	nodes:
//	  - {id: lever, type: lever, pos: {x: 0, y: 0, z: 0}}
//	  - {id: lamp, type: lamp, pos: {x: 1, y: 0, z: 0}}
//	edges:
//	  - {from: lever, to: lamp}
package graphio
