package reconcile

// Update rewrites one existing sheet row.
type Update struct {
	// Row is the one-based sheet row number.
	Row    int
	Values Row
}

// Plan is the disjoint set of updates and inserts for one run.
type Plan struct {
	Updates []Update
	Inserts []Row
}

// Reconcile classifies fetched rows against the index. Rows keep their fetch order within each
// list; a key fetched twice keeps its first position and its last values.
func Reconcile(rows []Row, layout Layout, index *Index) Plan {
	plan := Plan{}
	updateAt := make(map[string]int)
	insertAt := make(map[string]int)

	for _, row := range rows {
		key := layout.RowKey(row)
		if key == "" {
			plan.Inserts = append(plan.Inserts, row)
			continue
		}

		if offset, ok := index.Offset(key); ok {
			values := row
			if existing, ok := index.Values(key); ok && len(layout.Preserved) > 0 {
				values = MergeKeep(row, existing, layout.Preserved)
			}
			if pos, seen := updateAt[key]; seen {
				plan.Updates[pos].Values = values
				continue
			}
			updateAt[key] = len(plan.Updates)
			plan.Updates = append(plan.Updates, Update{Row: layout.FirstDataRow + offset, Values: values})
			continue
		}

		if pos, seen := insertAt[key]; seen {
			plan.Inserts[pos] = row
			continue
		}
		insertAt[key] = len(plan.Inserts)
		plan.Inserts = append(plan.Inserts, row)
	}
	return plan
}

// MergeKeep copies row, keeping the existing sheet value at each preserved position.
func MergeKeep(row Row, existing []string, preserved []int) Row {
	merged := make(Row, len(row))
	copy(merged, row)
	for _, column := range preserved {
		if column < 0 || column >= len(merged) {
			continue
		}
		if column < len(existing) {
			merged[column] = existing[column]
		} else {
			merged[column] = ""
		}
	}
	return merged
}
