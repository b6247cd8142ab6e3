package ot

// Transform returns a', the version of a that applies after b and keeps the
// intent a had when both were generated against the same content. Only the
// position and length of a change; its type never does.
//
// aHasPriority breaks the tie between two inserts at the same position: the
// operation with priority keeps its place and the other lands after its text.
func Transform(a, b Operation, aHasPriority bool) Operation {
	out := a
	switch b.Type {
	case Insert:
		n := b.Span()
		switch a.Type {
		case Insert:
			if a.Position > b.Position || (a.Position == b.Position && !aHasPriority) {
				out.Position += n
			}
		case Delete, Retain:
			if a.Position >= b.Position {
				out.Position += n
			}
		}

	case Delete:
		switch a.Type {
		case Insert:
			bl := nonNegative(b.Length)
			switch {
			case a.Position <= b.Position:
			case a.Position > b.Position+bl:
				out.Position -= bl
			default:
				// inside the deleted range
				out.Position = b.Position
			}
		case Delete:
			out = transformRange(a, b, true)
		case Retain:
			out = transformRange(a, b, false)
		}
	}
	// RETAIN never moves anything
	return out
}

// transformRange moves the span of a past the deleted span of b. When shrink
// is set the part of a already removed by b is cut from a's length.
func transformRange(a, b Operation, shrink bool) Operation {
	out := a
	al, bl := nonNegative(a.Length), nonNegative(b.Length)
	if bl == 0 {
		return out
	}
	aStart, aEnd := a.Position, a.Position+al
	bStart, bEnd := b.Position, b.Position+bl

	switch {
	case bEnd <= aStart:
		out.Position -= bl
	case aEnd <= bStart:
	default:
		overlap := min(aEnd, bEnd) - max(aStart, bStart)
		if shrink {
			out.Length = nonNegative(al - overlap)
		}
		if bStart < aStart {
			out.Position = bStart
		}
	}
	return out
}

// HasPriority decides the insert tie-break between a and b. Logged operations
// order by sequence number, lower first. An operation that has not been
// logged yet loses against any logged one, so the server's history wins over
// an incoming client edit.
func HasPriority(a, b Operation) bool {
	switch {
	case a.SequenceNumber == 0:
		return false
	case b.SequenceNumber == 0:
		return true
	}
	return a.SequenceNumber < b.SequenceNumber
}

// TransformOperations transforms every operation of a against every
// operation of b, in order, accumulating. It returns a', which applies after
// all of b, and b', which applies after all of a.
func TransformOperations(a, b []Operation, aHasPriority bool) ([]Operation, []Operation) {
	aOut := make([]Operation, 0, len(a))
	bOut := make([]Operation, len(b))
	copy(bOut, b)

	for _, op := range a {
		for j := range bOut {
			next := Transform(op, bOut[j], aHasPriority)
			bOut[j] = Transform(bOut[j], op, !aHasPriority)
			op = next
		}
		aOut = append(aOut, op)
	}
	return aOut, bOut
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
