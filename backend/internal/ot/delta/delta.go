// Package delta decodes cursor-style edit scripts, the format editors send
// over the socket, into positional operations.
package delta

import (
	"fmt"
	"unicode/utf8"

	"sharednote/backend/internal/ot"
)

type Kind string

const (
	KindRetain Kind = "retain"
	KindInsert Kind = "insert"
	KindDelete Kind = "delete"
)

type Op struct {
	Kind  Kind   `json:"kind"`            // "retain" / "insert" / "delete"
	Count int    `json:"count,omitempty"` // retain/delete length
	Text  string `json:"text,omitempty"`  // insert text
}

type Delta []Op

// "ops":[{"kind":"retain","count":5},{"kind":"insert","text":"Hello"}]

// ToOperations walks the delta with a cursor and emits one positional
// operation per insert or delete. Each operation applies to the content left
// by the previous one. Retains only move the cursor.
func (d Delta) ToOperations() ([]ot.Operation, error) {
	ops := make([]ot.Operation, 0, len(d))
	pos := 0
	for i, op := range d {
		switch op.Kind {
		case KindRetain:
			if op.Count < 0 {
				return nil, fmt.Errorf("%w: op %d: negative retain", ot.ErrInvalidOperation, i)
			}
			pos += op.Count
		case KindInsert:
			if op.Text == "" {
				continue
			}
			ops = append(ops, ot.NewInsert(pos, op.Text))
			pos += utf8.RuneCountInString(op.Text)
		case KindDelete:
			if op.Count < 0 {
				return nil, fmt.Errorf("%w: op %d: negative delete", ot.ErrInvalidOperation, i)
			}
			if op.Count == 0 {
				continue
			}
			ops = append(ops, ot.NewDelete(pos, op.Count))
		default:
			return nil, fmt.Errorf("%w: op %d: unknown kind %q", ot.ErrInvalidOperation, i, op.Kind)
		}
	}
	return ops, nil
}
