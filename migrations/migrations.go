// Package migrations embeds the SQL schema of the run ledger.
package migrations

import (
	"embed"
	"io/fs"
	"slices"
)

//go:embed *.sql
var files embed.FS

// Up returns the forward migrations in apply order.
func Up() ([]string, error) {
	return list(".up.sql", false)
}

// Down returns the rollback migrations in apply order.
func Down() ([]string, error) {
	return list(".down.sql", true)
}

// Read returns the contents of a migration returned by Up or Down.
func Read(name string) (string, error) {
	b, err := files.ReadFile(name)
	return string(b), err
}

func list(suffix string, reverse bool) ([]string, error) {
	names, err := fs.Glob(files, "*"+suffix)
	if err != nil {
		return nil, err
	}
	slices.Sort(names)
	if reverse {
		slices.Reverse(names)
	}
	return names, nil
}
