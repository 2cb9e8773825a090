package relsource

import "github.com/nasnet-community/batchloader"

// pkBatchKey, columnBatchKey and assocBatchKey are the three batch-key
// shapes a relational Source recognises. They are ordinary
// structs, JSON-marshalled by batchloader.NewKey for coalescing — two
// loads produce the same batch iff every exported field compares equal.
type pkBatchKey struct {
	Mode   string         `json:"mode"`
	Entity string         `json:"entity"`
	Params map[string]any `json:"params,omitempty"`
}

type columnBatchKey struct {
	Mode        string         `json:"mode"`
	Cardinality string         `json:"cardinality"`
	Entity      string         `json:"entity"`
	Column      string         `json:"column"`
	Params      map[string]any `json:"params,omitempty"`
}

type assocBatchKey struct {
	Mode         string         `json:"mode"`
	ParentEntity string         `json:"parent_entity"`
	Association  string         `json:"association"`
	Params       map[string]any `json:"params,omitempty"`
}

// PKKey builds the batch key for a primary-key load on entity. params is the
// per-call override merged with the source's default_params;
// pass nil if there is none.
func PKKey(entity string, params map[string]any) batchloader.Key {
	return batchloader.NewKey(pkBatchKey{Mode: "pk", Entity: entity, Params: params})
}

// PKItemKey wraps a raw primary-key value (string, int, uuid.UUID, etc.) as
// an item key for a PKKey batch. It is coerced to the entity's declared
// primary-key type during Run, not here — Load never fails.
func PKItemKey(id any) batchloader.Key {
	return batchloader.NewKey(id)
}

// ColumnKey builds the batch key for a column load: cardinality one expects
// at most one matching row per value, many returns every matching row.
func ColumnKey(cardinality Cardinality, entity, column string, params map[string]any) batchloader.Key {
	return batchloader.NewKey(columnBatchKey{
		Mode:        "column",
		Cardinality: string(cardinality),
		Entity:      entity,
		Column:      column,
		Params:      params,
	})
}

// ColumnItemKey wraps the value being matched against column as an item key
// for a ColumnKey batch.
func ColumnItemKey(column string, value any) batchloader.Key {
	return batchloader.NewKey(map[string]any{column: value})
}

// AssocKey builds the batch key for an association load: every parent id
// loaded under (parentEntity, association, params) coalesces into one
// dispatch.
func AssocKey(parentEntity, association string, params map[string]any) batchloader.Key {
	return batchloader.NewKey(assocBatchKey{
		Mode:         "assoc",
		ParentEntity: parentEntity,
		Association:  association,
		Params:       params,
	})
}

// ParentItemKey wraps a parent entity's primary-key value as an item key for
// an AssocKey batch.
func ParentItemKey(parentID any) batchloader.Key {
	return batchloader.NewKey(parentID)
}
