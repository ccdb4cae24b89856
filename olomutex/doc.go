// Package olomutex implements the mutex family: Plain, Recursive, Shared
// (reader-writer), SharedRecursive, and External, all built on a shared
// "intrusive mutex" slow-path engine operating directly on a caller-owned
// atomic word, plus parkinglot for the actual blocking. WordMutex — the one
// family member that must NOT depend on parkinglot, since parkinglot's own
// bucket locks are built on it — lives in its own package and is re-exported
// here only as a type alias, to keep the import graph acyclic.
package olomutex

import "github.com/olocore/concore/wordmutex"

// WordMutex re-exports wordmutex.Mutex for API discoverability alongside
// the rest of the family. Prefer wordmutex.Mutex directly in code that
// wants to make the "no parkinglot dependency" property explicit.
type WordMutex = wordmutex.Mutex
