package phantomstate

import "database/sql"

// GetAncestry returns takeID followed by every ancestor take id, walking
// parent_take_id up to a root. The walk is an explicit Go loop rather than a
// recursive SQL CTE: the chain is expected to be short (a handful of
// branches per story) and a loop keeps the gating logic readable and
// trivially testable without needing a second SQL dialect feature.
func (e *Engine) GetAncestry(takeID int64) ([]int64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ancestryLocked(takeID)
}

func (e *Engine) ancestryLocked(takeID int64) ([]int64, error) {
	chain := []int64{takeID}
	current := takeID
	seen := map[int64]bool{takeID: true}

	for {
		var parent sql.NullInt64
		err := e.db.QueryRow(`SELECT parent_take_id FROM takes WHERE id = ?`, current).Scan(&parent)
		if err == sql.ErrNoRows {
			return nil, newErr(KindUnknownTake, "take does not exist")
		}
		if err != nil {
			return nil, wrapErr(KindStorageError, "failed to read take ancestry", err)
		}
		if !parent.Valid {
			return chain, nil
		}
		if seen[parent.Int64] {
			// A cycle would mean corrupted parent links; stop rather than loop forever.
			return nil, newErr(KindCorruptRecord, "take ancestry contains a cycle")
		}
		seen[parent.Int64] = true
		chain = append(chain, parent.Int64)
		current = parent.Int64
	}
}

// ancestryPlaceholders renders chain as a SQL IN (...) placeholder list and
// matching arg slice, for embedding an ancestry filter into a larger query.
func ancestryPlaceholders(chain []int64) (string, []any) {
	placeholders := make([]byte, 0, len(chain)*2)
	args := make([]any, len(chain))
	for i, id := range chain {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}
	return string(placeholders), args
}
