package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Schema versions:
// 1 - daily records (d:)
const CurrentSchemaVersion = 1

const schemaKey = prefixMeta + "__schema__"

// ErrNewerSchema is returned when the archive was written by a newer build.
var ErrNewerSchema = errors.New("archive schema is newer than this build")

// Schema holds database schema information.
type Schema struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetSchema returns the stored schema, or nil if not set.
func (a *Archive) GetSchema() *Schema {
	var schema *Schema

	_ = a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(schemaKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			schema = &Schema{}
			return json.Unmarshal(val, schema)
		})
	})

	return schema
}

// SetSchema stores the schema version.
func (a *Archive) SetSchema(schema *Schema) error {
	data, err := json.Marshal(schema)
	if err != nil {
		return err
	}
	return a.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(schemaKey), data)
	})
}

func (a *Archive) ensureSchema() error {
	schema := a.GetSchema()
	switch {
	case schema == nil:
		return a.SetSchema(&Schema{Version: CurrentSchemaVersion, UpdatedAt: time.Now()})
	case schema.Version > CurrentSchemaVersion:
		return fmt.Errorf("%w: %d > %d", ErrNewerSchema, schema.Version, CurrentSchemaVersion)
	}
	return nil
}
