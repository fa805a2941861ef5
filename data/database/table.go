package database

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
)

// Table is implemented by every Mongo-backed store.
type Table interface {
	GetTableName() string
	Collection() *mongo.Collection
}

// Indexed tables declare the indexes they rely on.
type Indexed interface {
	Table
	Indexes() []mongo.IndexModel
}

// EnsureIndexes creates the declared indexes of every table. Existing indexes are left alone.
func EnsureIndexes(ctx context.Context, tables ...Indexed) error {
	for _, t := range tables {
		models := t.Indexes()
		if len(models) == 0 {
			continue
		}
		if _, err := t.Collection().Indexes().CreateMany(ctx, models); err != nil {
			return err
		}
	}
	return nil
}
