package relsource

import (
	"context"

	"github.com/nasnet-community/batchloader"
)

// orderedItems returns b's pending item keys and their hashes in a fixed,
// mutually consistent order, for handing to a run_batch override that must
// return outcomes positionally.
func orderedItems(b *pendingBatch) (hashes []string, keys []batchloader.Key) {
	hashes = make([]string, 0, len(b.items))
	keys = make([]batchloader.Key, 0, len(b.items))
	for hash, key := range b.items {
		hashes = append(hashes, hash)
		keys = append(keys, key)
	}
	return hashes, keys
}

func (s *Source) dispatchPK(ctx context.Context, k pkBatchKey, b *pendingBatch) map[string]batchloader.Outcome {
	baseQuery := s.opts.Query(k.Entity, k.Params)

	if s.opts.RunBatch != nil {
		return s.runBatchOverride(ctx, k.Entity, baseQuery, "", b)
	}

	pkType := s.opts.Schemas.PrimaryKeyType(k.Entity)
	outcomes := make(map[string]batchloader.Outcome, len(b.items))
	setAll := func(hashes []string, o batchloader.Outcome) {
		for _, hash := range hashes {
			outcomes[hash] = o
		}
	}

	validIDs := make([]any, 0, len(b.items))
	idToHash := make(map[any][]string, len(b.items))
	for hash, itemKey := range b.items {
		id, err := CoercePrimaryKey(k.Entity, pkType, itemKey.Raw())
		if err != nil {
			outcomes[hash] = batchloader.Err(err)
			continue
		}
		validIDs = append(validIDs, id)
		idToHash[id] = append(idToHash[id], hash)
	}
	if len(validIDs) == 0 {
		return outcomes
	}

	rows, err := s.findByIDs(ctx, k.Entity, baseQuery, validIDs, s.opts.RepoOpts)
	if err != nil {
		for _, hashes := range idToHash {
			setAll(hashes, batchloader.Err(&batchloader.BackendError{Cause: err}))
		}
		return outcomes
	}

	found := make(map[any]Record, len(rows))
	for _, row := range rows {
		found[row.ID()] = row
	}
	for id, hashes := range idToHash {
		if row, ok := found[id]; ok {
			setAll(hashes, batchloader.Ok(row))
		} else {
			setAll(hashes, batchloader.NotFound())
		}
	}
	return outcomes
}

func (s *Source) dispatchColumn(ctx context.Context, k columnBatchKey, b *pendingBatch) map[string]batchloader.Outcome {
	baseQuery := s.opts.Query(k.Entity, k.Params)

	if s.opts.RunBatch != nil {
		return s.runBatchOverride(ctx, k.Entity, baseQuery, k.Column, b)
	}

	outcomes := make(map[string]batchloader.Outcome, len(b.items))
	values := make([]any, 0, len(b.items))
	hashByValue := make(map[any][]string, len(b.items))
	for hash, itemKey := range b.items {
		entry, _ := itemKey.Raw().(map[string]any)
		v := entry[k.Column]
		values = append(values, v)
		hashByValue[v] = append(hashByValue[v], hash)
	}

	rows, err := s.findByColumn(ctx, k.Entity, baseQuery, k.Column, values, s.opts.RepoOpts)
	if err != nil {
		for hash := range b.items {
			outcomes[hash] = batchloader.Err(&batchloader.BackendError{Cause: err})
		}
		return outcomes
	}

	byValue := make(map[any][]Record)
	for _, row := range rows {
		v := row.Column(k.Column)
		byValue[v] = append(byValue[v], row)
	}

	for value, hashes := range hashByValue {
		matches := byValue[value]
		for _, hash := range hashes {
			outcomes[hash] = columnOutcome(k.Entity, Cardinality(k.Cardinality), matches)
		}
	}
	return outcomes
}

func columnOutcome(entity string, cardinality Cardinality, matches []Record) batchloader.Outcome {
	if cardinality == Many {
		out := make([]Record, len(matches))
		copy(out, matches)
		return batchloader.Ok(out)
	}
	switch len(matches) {
	case 0:
		return batchloader.NotFound()
	case 1:
		return batchloader.Ok(matches[0])
	default:
		return batchloader.Err(&batchloader.MultipleResultsError{Entity: entity, Count: len(matches)})
	}
}

func (s *Source) dispatchAssoc(ctx context.Context, k assocBatchKey, b *pendingBatch) map[string]batchloader.Outcome {
	outcomes := make(map[string]batchloader.Outcome, len(b.items))

	assoc, ok := s.opts.Schemas.Association(k.ParentEntity, k.Association)
	if !ok {
		return allError(b, &batchloader.ConfigurationError{
			Option: "association",
			Reason: "no association " + k.Association + " registered on entity " + k.ParentEntity,
		})
	}

	baseQuery := s.opts.Query(assoc.Target, k.Params)

	if s.opts.RunBatch != nil {
		return s.runBatchOverride(ctx, assoc.Target, baseQuery, "", b)
	}

	setAll := func(hashes []string, o batchloader.Outcome) {
		for _, hash := range hashes {
			outcomes[hash] = o
		}
	}
	parentPKType := s.opts.Schemas.PrimaryKeyType(k.ParentEntity)
	parentIDs := make([]any, 0, len(b.items))
	idToHash := make(map[any][]string, len(b.items))
	for hash, itemKey := range b.items {
		id, err := CoercePrimaryKey(k.ParentEntity, parentPKType, itemKey.Raw())
		if err != nil {
			outcomes[hash] = batchloader.Err(err)
			continue
		}
		parentIDs = append(parentIDs, id)
		idToHash[id] = append(idToHash[id], hash)
	}
	if len(parentIDs) == 0 {
		return outcomes
	}

	rows, err := s.findByParentIDs(ctx, k.ParentEntity, k.Association, baseQuery, parentIDs, s.opts.RepoOpts)
	if err != nil {
		for _, hashes := range idToHash {
			setAll(hashes, batchloader.Err(&batchloader.BackendError{Cause: err}))
		}
		return outcomes
	}

	byParent := make(map[any][]Record)
	for _, row := range rows {
		parentID := row.Column(ParentIDColumn)
		byParent[parentID] = append(byParent[parentID], row)
	}

	for id, hashes := range idToHash {
		matches := byParent[id]
		if assoc.Multivalued() {
			out := make([]Record, len(matches))
			copy(out, matches)
			setAll(hashes, batchloader.Ok(out))
			continue
		}
		switch len(matches) {
		case 0:
			setAll(hashes, batchloader.NotFound())
		case 1:
			setAll(hashes, batchloader.Ok(matches[0]))
		default:
			setAll(hashes, batchloader.Err(&batchloader.MultipleResultsError{Entity: assoc.Target, Count: len(matches)}))
		}
	}
	return outcomes
}

// runBatchOverride dispatches to the user-supplied run_batch hook and
// validates its result is positionally complete.
func (s *Source) runBatchOverride(ctx context.Context, entity string, baseQuery any, column string, b *pendingBatch) map[string]batchloader.Outcome {
	hashes, keys := orderedItems(b)

	results, err := s.opts.RunBatch(ctx, entity, baseQuery, column, keys, s.opts.RepoOpts)
	if err != nil {
		return allError(b, &batchloader.BackendError{Cause: err})
	}
	if len(results) != len(hashes) {
		return allError(b, &batchloader.ProtocolViolationError{Entity: entity, Expected: len(hashes), Got: len(results)})
	}

	outcomes := make(map[string]batchloader.Outcome, len(hashes))
	for i, hash := range hashes {
		outcomes[hash] = results[i]
	}
	return outcomes
}
