// Package database connects to the record store backends.
//
// # Supported Backends
//
//   - PostgreSQL: pgx connection pool, row locks with SELECT ... FOR UPDATE
//   - SQLite: single connection, suitable for development and single-node deployments
//
// # Usage
//
//	db, err := database.Connect(ctx, database.Config{
//	    Type:   "sqlite",
//	    DSN:    "filedock.db",
//	    Tables: filedock.Tables{Files: "filedock_files"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	records := db.GetRepo()
package database
