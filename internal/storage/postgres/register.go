package postgres

import "github.com/jaimejim/home-search/internal/storage"

func init() {
	// registers the backend factory
	storage.Register("postgres", New)
}
