// Package middleware groups the fiber middleware mounted by the serve command.
//
//   - rayid: assigns every request an X-Ray-ID (reusing the caller's header when
//     present) and stores it in the request locals for logger.WithRayID.
//   - auth: requires the configured API key in X-API-Key or an
//     "Authorization: Bearer" header. Paths listed in Config.Public, such as
//     /health and /metrics, bypass the check, and an empty key disables it.
//
// rayid must be registered before auth so rejected requests are traceable too.
package middleware
