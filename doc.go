// Package bundles provides a plugin execution and event fan-out engine
// for Go. Independently built extension units ("bundles") are discovered
// at startup, indexed by a registry, and invoked whenever a named event,
// a recurring schedule, or a version upgrade must be applied to the
// persisted instances bound to them.
//
// The engine is designed as a library, not a service. Import it,
// configure a store, load or register bundles, and let the host drive
// event fan-out.
//
// # Quick Start
//
//	h, err := host.New(memory.New(),
//	    host.WithBundleFactory(billing.New),
//	    host.WithInvocationTimeout(5*time.Second),
//	)
//
// # Architecture
//
// The module follows a composable store pattern where each subsystem
// (instance, schedule) defines its own store interface and a single
// backend implements all of them. Backends: file, MongoDB, Postgres
// (Bun), Redis, and Memory.
//
// Bundle logic is third-party and untrusted: every invocation runs
// through a guard that bounds it in time and converts panics to errors,
// so one misbehaving bundle can never stall or crash a fan-out loop.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package bundles
