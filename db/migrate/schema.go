// Package migrate holds the table definitions applied at startup.
package migrate

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

var (
	// TranscriptsColumns holds the columns for the "transcripts" table.
	TranscriptsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 255},
		{Name: "owner", Type: field.TypeString, Size: 255},
		{Name: "status", Type: field.TypeString, Size: 50},
		{Name: "text", Type: field.TypeString, Nullable: true, Size: 2147483647},
		{Name: "audio_url", Type: field.TypeString, Size: 2048},
		{Name: "language_code", Type: field.TypeString, Nullable: true, Size: 10},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
		{Name: "completed_at", Type: field.TypeTime, Nullable: true},
		{Name: "error", Type: field.TypeString, Nullable: true, Size: 2147483647},
	}
	// TranscriptsTable holds the schema information for the "transcripts" table.
	TranscriptsTable = &schema.Table{
		Name:       "transcripts",
		Columns:    TranscriptsColumns,
		PrimaryKey: []*schema.Column{TranscriptsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "transcript_owner_created_at",
				Unique:  false,
				Columns: []*schema.Column{TranscriptsColumns[1], TranscriptsColumns[6]},
			},
			{
				Name:    "transcript_owner_status",
				Unique:  false,
				Columns: []*schema.Column{TranscriptsColumns[1], TranscriptsColumns[2]},
			},
		},
	}
	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		TranscriptsTable,
	}
)

// Create runs the auto migration for all tables.
func Create(ctx context.Context, drv dialect.Driver, opts ...schema.MigrateOption) error {
	m, err := schema.NewMigrate(drv, opts...)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return m.Create(ctx, Tables...)
}
