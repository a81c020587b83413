// Package api defines the wire types of the TaskFlow HTTP API.
//
// The server (cmd/taskflow serve) and the control client (cmd/taskflow
// run / approve / reject / inspect) share these types, so request and
// response shapes cannot drift between the two sides.
//
// # API Overview
//
// TaskFlow exposes a RESTful API for:
//   - Starting order fulfillment pipelines
//   - Delivering human approval decisions to suspended instances
//   - Inspecting archived pipeline instances
//   - Reading task liveness proofs and traces
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
package api
