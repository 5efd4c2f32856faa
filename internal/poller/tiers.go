package poller

// rotate selects count ids starting at offset = cycle mod len, wrapping
// around the end. Over successive cycles every id is eventually selected.
func rotate(ids []string, cycle, count int) []string {
	if len(ids) == 0 || count <= 0 {
		return nil
	}
	if count >= len(ids) {
		return ids
	}

	offset := cycle % len(ids)
	selected := make([]string, 0, count)
	for i := 0; i < count; i++ {
		selected = append(selected, ids[(offset+i)%len(ids)])
	}
	return selected
}

// dedupe keeps first occurrences, preserving order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
