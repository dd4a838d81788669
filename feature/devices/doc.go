// Package devices reconciles the device relationship data kept in the
// document store with the per-user device index kept in the realtime store.
//
// A pass runs in four steps:
//
//   - Readers load a Snapshot of users, devices, the realtime index and the
//     device links implied by them.
//   - Detect turns the snapshot into a Plan. It is a pure function and never
//     touches a store.
//   - Repairer applies the plan through the generic executor in core/reconcile:
//     device writes in wave 0, link writes in wave 1.
//   - The resulting reconcile.Report lists one outcome per entity.
//
// Repair is additive. A DeviceLink is never deleted or revoked, and a User is
// never created.
//
// # HTTP Endpoints
//
//   - POST /reconcile : runs a pass (supports ?dry_run=true).
package devices
