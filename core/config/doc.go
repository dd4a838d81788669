// Package config provides configuration management for dispenser-sync.
//
// Settings come from environment variables, optionally preloaded from a .env
// file. Defaults live in `default:"..."` struct tags on each section and are
// registered with Viper through reflection, so every key is also reachable as
// SECTION_KEY in the environment (e.g. RECONCILE_WORKERS).
//
// # Configuration Structure
//
//   - Server: HTTP server settings (port, API key)
//   - Log: Logging level and format
//   - Database: document store connection (mysql or sqlite)
//   - Storage: S3/MinIO settings for the realtime store
//   - Reconcile: worker pool size, per-call timeout, metrics textfile
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Reconcile.Workers)
package config
