// Package core contains the fundamental types of the finmesh orchestration
// runtime: the Agent interface, the Session state store, the Event transcript
// model, the tool request/result protocol and the error taxonomy shared by
// combinators, the tool gateway and the engine.
//
// Everything in this package is transport and vendor agnostic. Higher level
// packages (agent, gateway, engine, advisor) build on these contracts without
// introducing dependencies back into core.
package core
