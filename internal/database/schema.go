package database

import (
	"context"
	"fmt"
	"strings"
)

// RequiredTables are the relations the lookup queries read from.
var RequiredTables = []string{
	"building",
	"building_ratings",
	"school",
	"kindergarten",
	"hospital",
	"park",
}

// CheckSchema verifies that every required table exists. The database is
// owned elsewhere, so nothing is created here.
func (d *Database) CheckSchema(ctx context.Context) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	var missing []string
	for _, table := range RequiredTables {
		var exists bool
		err := d.db.WithContext(ctx).Raw(schemaCheckQuery, map[string]interface{}{
			"name": table,
		}).Scan(&exists).Error
		if err != nil {
			return fmt.Errorf("failed to check table %s: %w", table, err)
		}
		if !exists {
			missing = append(missing, table)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing tables: %s", strings.Join(missing, ", "))
	}
	return nil
}
