// Package cohort provides the typed model of a cohort definition.
//
// This package contains type definitions only. The compiler, loader and check
// packages import cohort; cohort imports nothing internal.
//
// Key design constraints:
//   - Criterion is a closed set: the marker method is unexported, so every
//     variant lives in this package and AllKinds lists them all
//   - Structure lives in a Tree arena. Nodes reference each other through
//     typed IDs, and a reference may only name a node that already exists,
//     so a Tree is acyclic by construction
//   - Every *int field of a criterion struct is a concept-set (codeset) ID
//   - JSON tags follow the published cohort-definition document shape
package cohort
