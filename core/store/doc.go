// Package store defines the adapters the reconciliation engine consumes.
//
// Two independently-consistent backends are modelled:
//
//   - DocumentStore: collection/document access (users, devices, deviceLinks,
//     medications, medicationEvents). Backed by GORM in production
//     (GormDocumentStore) with documents persisted as JSON rows.
//   - RealtimeStore: path-addressed key-value access for device config/state
//     and the per-user device index. Backed by object storage
//     (ObjectRealtimeStore), one JSON object per path.
//
// The engine only depends on the interfaces. The memory sub-package provides
// in-process implementations used by tests and by offline fixture runs.
//
// # Realtime layout
//
//	users/{userId}/devices      -> {deviceId: true, ...}
//	devices/{deviceId}/config   -> arbitrary object
//	devices/{deviceId}/state    -> arbitrary object
package store
