// Package all links every storage backend into the binary.
//
// Commands select a backend by configuration at runtime, so they import
// this package for side effects instead of picking backends at build time.
package all

import (
	// register all backends with the storage factory.
	_ "github.com/jaimejim/home-search/internal/storage/csv"
	_ "github.com/jaimejim/home-search/internal/storage/mssql"
	_ "github.com/jaimejim/home-search/internal/storage/postgres"
	_ "github.com/jaimejim/home-search/internal/storage/sqlite"

	// The mssql backend leaves driver registration to the application;
	// this import registers "sqlserver" with database/sql.
	_ "github.com/microsoft/go-mssqldb"
)
