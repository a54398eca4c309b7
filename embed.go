package suljari

import (
	_ "embed"
)

// Embed the seed content consumed by internal/catalog at startup.
//
//go:embed static/catalog-seed.json
var CatalogSeedJSON []byte
