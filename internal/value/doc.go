// Package value provides the tagged field value used by entities.
//
// Every scalar field of an entity holds exactly one Value. The set of
// variants is closed: Null, Text, Int, Float, Bool and Bytes. Typed
// readers on the entity apply caller defaults when the stored variant is
// absent or incompatible, so callers never type-assert on Value directly.
//
// This package imports nothing internal. All other internal packages may
// import it.
package value
