// Package protocol defines the provider-agnostic data model shared by every
// other package in this module: the manifest shape that describes a single
// provider, the capability vocabulary used to gate requests, and the unified
// request/response/event types that flow through the pipeline.
//
// Nothing in this package performs I/O. It is pure data plus the small, pure
// functions (capability promotion, content validation) that operate on it.
package protocol
