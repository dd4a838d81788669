// Package server holds the HTTP server configuration.
//
// The serve command embeds this section to pick the listen port and the API
// key protecting the reconcile and diagnose endpoints.
package server
