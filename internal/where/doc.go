// Package where implements the predicate language used to select
// entities.
//
// A clause tree is built from leaf constructors (Equals, Greater, Like,
// IsEmpty and friends) composed with And and Or. Before use it is bound
// once against a table's fields, which resolves every field reference and
// validates operands. A bound clause can then either match entities in
// memory or render a parameterized SQL fragment; both forms select the
// same entities from the same data.
//
// SQL rendering never interpolates operand values. Every operand becomes a
// ? placeholder and is returned in the parameter list, in order.
//
// Null semantics: a null field never satisfies an equals, not-equals or
// ordering comparison against a non-null operand. Equals(f, nil) selects
// null fields and NotEquals(f, nil) selects non-null ones.
package where
