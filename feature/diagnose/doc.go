// Package diagnose produces a read-only audit of one caregiver's devices for
// human triage. Nothing in this package writes to a store.
//
// For every device the caregiver is tied to, the audit lists the patients
// found through the legacy user field, through device links and through the
// device's primary patient, and for each patient whether medications and
// recent medication events exist. It also reports the realtime config and
// state of the device and the drift a reconciliation pass would act on.
//
// # HTTP Endpoints
//
//   - GET /diagnose/:caregiverId : audit (supports ?device= and ?format=text).
package diagnose
