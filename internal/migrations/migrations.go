package migrations

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
)

const initialSchemaFile = "001_initial_schema.sql"

//go:embed sql/*.sql
var embedded embed.FS

var (
	// MigrationsDir, when set, is searched for schema files before the copy
	// compiled into the binary. Operators use it to ship hotfixed schemas.
	MigrationsDir = ""
)

// GetInitialSchema returns the initial database schema
func GetInitialSchema() (string, error) {
	if MigrationsDir != "" {
		content, err := os.ReadFile(filepath.Join(MigrationsDir, initialSchemaFile))
		if err == nil {
			return string(content), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to read schema from %s: %w", MigrationsDir, err)
		}
	}

	content, err := embedded.ReadFile("sql/" + initialSchemaFile)
	if err != nil {
		return "", fmt.Errorf("could not find schema file: %w", err)
	}
	return string(content), nil
}
