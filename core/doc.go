// Package core defines the domain model shared by every pipeline stage.
//
// # Architecture Overview
//
// The core package provides:
//   - Domain types (Event, Rule, Alert, Incident, Metrics, Policy)
//   - Enumerations for severity, threat type and component with validation
//   - Sentinel errors for the error taxonomy (malformed input, configuration,
//     contract violation, horizon)
//   - A small worker pool used to evaluate policies in parallel
//
// # Data Flow
//
// Events flow strictly left to right:
//
//	Event -> Alert -> Incident -> Metrics
//
// Values of these types are never mutated after the stage that produced them
// returns. Consumers copy before changing anything.
package core
