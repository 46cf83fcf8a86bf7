// Package migrations встраивает SQL-миграции postgres-хранилища (goose).
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
