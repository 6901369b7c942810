package visitors

// Index maps a normalized key to its records in table order
type Index map[Key][]Record

// BuildStats summarizes an index build
type BuildStats struct {
	Rows       int
	Indexed    int
	Skipped    int
	Duplicates int
}

// BuildIndex normalizes every row id and groups the parsed records by key.
// Rows whose id does not normalize are skipped, and a record identical to one
// already stored under the same key is dropped.
func BuildIndex(rows []RawRow, normalizer *Normalizer) (Index, BuildStats) {
	idx := make(Index)
	stats := BuildStats{Rows: len(rows)}

	for _, row := range rows {
		key, ok := normalizer.Normalize(row.ID())
		if !ok {
			stats.Skipped++
			continue
		}

		record := ParseRow(row)
		if containsRecord(idx[key], record) {
			stats.Duplicates++
			continue
		}

		idx[key] = append(idx[key], record)
		stats.Indexed++
	}

	return idx, stats
}

// Lookup returns the records stored under key
func (idx Index) Lookup(key Key) []Record {
	return idx[key]
}

func containsRecord(records []Record, r Record) bool {
	for _, existing := range records {
		if existing == r {
			return true
		}
	}
	return false
}
