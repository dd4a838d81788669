// Package database handles connections to the document database.
//
// It wraps GORM and selects the dialect from configuration: MySQL for deployed
// environments, SQLite for local runs and tests. The document store adapter in
// core/store keeps every collection in a single JSON document table on top of
// this connection.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    return fmt.Errorf("database connection required: %w", err)
//	}
package database
