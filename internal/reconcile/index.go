package reconcile

// Index maps composite keys to the rows currently in the sheet.
type Index struct {
	offsets    map[string]int
	values     map[string][]string
	duplicates []string
}

// BuildIndex indexes rows read from the data range. Rows without a key are skipped; a key seen
// twice points at its last row and is reported by Duplicates.
func BuildIndex(rows [][]string, key func(cells []string) string) *Index {
	index := &Index{
		offsets: make(map[string]int, len(rows)),
		values:  make(map[string][]string, len(rows)),
	}
	for offset, cells := range rows {
		k := key(cells)
		if k == "" {
			continue
		}
		if _, seen := index.offsets[k]; seen {
			index.duplicates = append(index.duplicates, k)
		}
		index.offsets[k] = offset
		index.values[k] = cells
	}
	return index
}

// Offset returns the zero-based data row offset of key.
func (i *Index) Offset(key string) (int, bool) {
	if i == nil {
		return 0, false
	}
	offset, ok := i.offsets[key]
	return offset, ok
}

// Values returns the current cells of the row holding key.
func (i *Index) Values(key string) ([]string, bool) {
	if i == nil {
		return nil, false
	}
	cells, ok := i.values[key]
	return cells, ok
}

// Len is the number of distinct keys.
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.offsets)
}

// Duplicates lists keys that appeared more than once, in sheet order.
func (i *Index) Duplicates() []string {
	if i == nil {
		return nil
	}
	return append([]string(nil), i.duplicates...)
}
