package ot

import "unicode/utf8"

// Compose merges two sequential operations from the same author into one
// when they match a known safe pattern:
//
//   - an insert followed by an insert that lands inside or at either edge of
//     the first insert's text
//   - a delete followed by a delete at the same position (forward delete)
//   - a delete followed by a delete ending where the first began (backspace)
//
// Both operations are assumed to be in range for the content they apply to;
// use Normalize first when that is not known. Any other pair is reported as
// not composable.
func Compose(a, b Operation) (Operation, bool) {
	if a.AuthorID != b.AuthorID || a.DocumentID != b.DocumentID {
		return Operation{}, false
	}

	switch {
	case a.Type == Insert && b.Type == Insert:
		n := utf8.RuneCountInString(a.Content)
		if b.Position < a.Position || b.Position > a.Position+n {
			return Operation{}, false
		}
		k := b.Position - a.Position
		r := []rune(a.Content)
		out := a
		out.Content = string(r[:k]) + b.Content + string(r[k:])
		return out, true

	case a.Type == Delete && b.Type == Delete:
		if b.Position == a.Position {
			out := a
			out.Length = a.Length + b.Length
			return out, true
		}
		if b.Position+b.Length == a.Position {
			out := a
			out.Position = b.Position
			out.Length = a.Length + b.Length
			return out, true
		}
	}
	return Operation{}, false
}

// Compact folds consecutive composable operations together. The result
// applies to the same content with the same effect as ops.
func Compact(ops []Operation) []Operation {
	if len(ops) < 2 {
		return ops
	}
	out := make([]Operation, 0, len(ops))
	cur := ops[0]
	for _, next := range ops[1:] {
		if merged, ok := Compose(cur, next); ok {
			cur = merged
			continue
		}
		out = append(out, cur)
		cur = next
	}
	return append(out, cur)
}

// Normalize clamps op's position and length to content, the same way Apply
// does, so that the returned operation has an identical effect on content
// and is in range.
func Normalize(content string, op Operation) Operation {
	n := utf8.RuneCountInString(content)
	out := op
	out.Position = clamp(op.Position, 0, n)
	if op.Type != Insert {
		out.Length = clamp(op.Length, 0, n-out.Position)
	}
	return out
}
