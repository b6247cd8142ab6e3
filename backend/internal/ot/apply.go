package ot

// Apply returns content with op applied. Positions past the end are clamped
// to the end and delete spans are clamped to what remains, so Apply never
// fails for an operation that passed Validate.
func Apply(content string, op Operation) string {
	switch op.Type {
	case Insert:
		if op.Content == "" {
			return content
		}
		r := []rune(content)
		pos := clamp(op.Position, 0, len(r))
		return string(r[:pos]) + op.Content + string(r[pos:])

	case Delete:
		r := []rune(content)
		pos := clamp(op.Position, 0, len(r))
		n := clamp(op.Length, 0, len(r)-pos)
		if n == 0 {
			return content
		}
		return string(r[:pos]) + string(r[pos+n:])
	}
	// RETAIN only moves cursors
	return content
}

// ApplyAll folds ops over content in order.
func ApplyAll(content string, ops []Operation) string {
	for _, op := range ops {
		content = Apply(content, op)
	}
	return content
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
