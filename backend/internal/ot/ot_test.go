package ot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_Insert(t *testing.T) {
	assert.Equal(t, "Hello", Apply("", NewInsert(0, "Hello")))
	assert.Equal(t, "Hello World", Apply("Hello", NewInsert(5, " World")))
	assert.Equal(t, "He--llo", Apply("Hello", NewInsert(2, "--")))
}

func TestApply_InsertPastEndAppends(t *testing.T) {
	assert.Equal(t, "abcXYZ", Apply("abc", NewInsert(42, "XYZ")))
}

func TestApply_DeleteClamped(t *testing.T) {
	assert.Equal(t, "He", Apply("Hello", NewDelete(2, 100)))
	assert.Equal(t, "Hello", Apply("Hello", NewDelete(9, 3)))
	assert.Equal(t, "", Apply("", NewDelete(0, 5)))
	assert.Equal(t, "Hello", Apply("Hello", NewDelete(1, 0)))
}

func TestApply_RetainIsNoop(t *testing.T) {
	assert.Equal(t, "Hello", Apply("Hello", NewRetain(0, 3)))
}

func TestApply_CountsRunes(t *testing.T) {
	assert.Equal(t, "héllo wörld", Apply("héllo", NewInsert(5, " wörld")))
	assert.Equal(t, "hé", Apply("héllo", NewDelete(2, 3)))
}

func TestValidate(t *testing.T) {
	require.NoError(t, NewInsert(0, "x").Validate())
	require.NoError(t, NewDelete(3, 400).Validate())
	require.NoError(t, NewRetain(0, 0).Validate())

	assert.ErrorIs(t, Operation{Type: "REPLACE"}.Validate(), ErrInvalidOperation)
	assert.ErrorIs(t, NewInsert(-1, "x").Validate(), ErrInvalidOperation)
	assert.ErrorIs(t, NewDelete(0, -2).Validate(), ErrInvalidOperation)
}

func TestTransform_InsertInsert(t *testing.T) {
	b := NewInsert(3, "abc")

	assert.Equal(t, 1, Transform(NewInsert(1, "x"), b, false).Position)
	assert.Equal(t, 8, Transform(NewInsert(5, "x"), b, false).Position)
	assert.Equal(t, 3, Transform(NewInsert(3, "x"), b, true).Position)
	assert.Equal(t, 6, Transform(NewInsert(3, "x"), b, false).Position)
}

func TestTransform_InsertDelete(t *testing.T) {
	b := NewDelete(4, 3) // removes [4,7)

	assert.Equal(t, 4, Transform(NewInsert(4, "x"), b, false).Position)
	assert.Equal(t, 2, Transform(NewInsert(2, "x"), b, false).Position)
	assert.Equal(t, 7, Transform(NewInsert(10, "x"), b, false).Position)
	assert.Equal(t, 4, Transform(NewInsert(5, "x"), b, false).Position)
	assert.Equal(t, 4, Transform(NewInsert(7, "x"), b, false).Position)
}

func TestTransform_DeleteInsert(t *testing.T) {
	b := NewInsert(5, " World")

	got := Transform(NewDelete(0, 5), b, false)
	assert.Equal(t, NewDelete(0, 5), got)

	got = Transform(NewDelete(5, 2), b, false)
	assert.Equal(t, NewDelete(11, 2), got)
}

func TestTransform_DeleteDelete(t *testing.T) {
	tests := []struct {
		name string
		a, b Operation
		want Operation
	}{
		{"b after a", NewDelete(0, 2), NewDelete(5, 2), NewDelete(0, 2)},
		{"b before a", NewDelete(5, 2), NewDelete(0, 2), NewDelete(3, 2)},
		{"b overlaps tail", NewDelete(0, 4), NewDelete(2, 4), NewDelete(0, 2)},
		{"b overlaps head", NewDelete(2, 4), NewDelete(0, 4), NewDelete(0, 2)},
		{"a swallowed", NewDelete(3, 2), NewDelete(1, 10), NewDelete(1, 0)},
		{"identical", NewDelete(3, 2), NewDelete(3, 2), NewDelete(3, 0)},
		{"a covers b", NewDelete(0, 10), NewDelete(3, 2), NewDelete(0, 8)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Transform(tt.a, tt.b, false)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got.Length, 0)
		})
	}
}

func TestTransform_RetainKeepsLength(t *testing.T) {
	got := Transform(NewRetain(2, 4), NewDelete(0, 4), false)
	assert.Equal(t, NewRetain(0, 4), got)

	got = Transform(NewRetain(6, 4), NewDelete(0, 4), false)
	assert.Equal(t, NewRetain(2, 4), got)

	got = Transform(NewRetain(2, 4), NewInsert(1, "xy"), false)
	assert.Equal(t, NewRetain(4, 4), got)
}

func TestTransform_AgainstRetainUnchanged(t *testing.T) {
	r := NewRetain(0, 10)
	for _, op := range []Operation{NewInsert(3, "x"), NewDelete(2, 5), NewRetain(1, 1)} {
		assert.Equal(t, op, Transform(op, r, false))
	}
}

func TestTransform_Convergence(t *testing.T) {
	const base = "Hello World"
	tests := []struct {
		name string
		x, y Operation
	}{
		{"inserts apart", NewInsert(5, ","), NewInsert(11, "!")},
		{"inserts same position", NewInsert(3, "X"), NewInsert(3, "Y")},
		{"insert before delete", NewInsert(2, "ab"), NewDelete(4, 3)},
		{"delete then insert at its end", NewDelete(0, 5), NewInsert(5, " big")},
		{"overlapping deletes", NewDelete(2, 5), NewDelete(4, 5)},
		{"delete swallowed", NewDelete(1, 3), NewDelete(0, 11)},
		{"retain and delete", NewRetain(0, 5), NewDelete(2, 2)},
		{"delete after insert", NewDelete(6, 5), NewInsert(0, ">> ")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			xFirst := Apply(Apply(base, tt.x), Transform(tt.y, tt.x, false))
			yFirst := Apply(Apply(base, tt.y), Transform(tt.x, tt.y, true))
			assert.Equal(t, xFirst, yFirst)
		})
	}
}

func TestTransform_ScenarioB(t *testing.T) {
	x := Operation{Type: Insert, Position: 5, Content: " World", SequenceNumber: 2}
	y := Operation{Type: Delete, Position: 0, Length: 5, SequenceNumber: 3}

	yPrime := Transform(y, x, HasPriority(y, x))
	assert.Equal(t, 0, yPrime.Position)
	assert.Equal(t, 5, yPrime.Length)
	assert.Equal(t, " World", Apply(Apply("Hello", x), yPrime))
}

func TestTransform_ScenarioD(t *testing.T) {
	x := Operation{Type: Insert, Position: 3, Content: "X", AuthorID: 1, SequenceNumber: 2}
	y := Operation{Type: Insert, Position: 3, Content: "Y", AuthorID: 2, SequenceNumber: 3}

	for i := 0; i < 20; i++ {
		viaX := Apply(Apply("abcdef", x), Transform(y, x, HasPriority(y, x)))
		viaY := Apply(Apply("abcdef", y), Transform(x, y, HasPriority(x, y)))
		require.Equal(t, "abcXYdef", viaX)
		require.Equal(t, "abcXYdef", viaY)
	}
}

func TestHasPriority(t *testing.T) {
	logged1 := Operation{SequenceNumber: 1}
	logged2 := Operation{SequenceNumber: 2}
	incoming := Operation{}

	assert.True(t, HasPriority(logged1, logged2))
	assert.False(t, HasPriority(logged2, logged1))
	assert.False(t, HasPriority(incoming, logged1))
	assert.True(t, HasPriority(logged1, incoming))
}

func TestTransformOperations_Converges(t *testing.T) {
	const base = "Hello World"
	a := []Operation{NewInsert(0, "A"), NewInsert(1, "B")}
	b := []Operation{NewDelete(6, 5), NewInsert(6, "Go")}

	aPrime, bPrime := TransformOperations(a, b, false)
	require.Len(t, aPrime, 2)
	require.Len(t, bPrime, 2)

	assert.Equal(t, "ABHello Go", ApplyAll(ApplyAll(base, b), aPrime))
	assert.Equal(t, "ABHello Go", ApplyAll(ApplyAll(base, a), bPrime))
}

func TestTransformOperations_EmptyInputs(t *testing.T) {
	a := []Operation{NewInsert(0, "x")}

	aPrime, bPrime := TransformOperations(a, nil, false)
	assert.Equal(t, a, aPrime)
	assert.Empty(t, bPrime)

	aPrime, _ = TransformOperations(nil, a, false)
	assert.Empty(t, aPrime)
}

func TestCompose_AdjacentInserts(t *testing.T) {
	got, ok := Compose(NewInsert(2, "ab"), NewInsert(4, "cd"))
	require.True(t, ok)
	assert.Equal(t, NewInsert(2, "abcd"), got)

	got, ok = Compose(NewInsert(2, "ab"), NewInsert(3, "X"))
	require.True(t, ok)
	assert.Equal(t, NewInsert(2, "aXb"), got)

	_, ok = Compose(NewInsert(2, "ab"), NewInsert(7, "X"))
	assert.False(t, ok)
}

func TestCompose_Deletes(t *testing.T) {
	got, ok := Compose(NewDelete(3, 1), NewDelete(3, 2))
	require.True(t, ok)
	assert.Equal(t, NewDelete(3, 3), got)

	got, ok = Compose(NewDelete(5, 1), NewDelete(4, 1))
	require.True(t, ok)
	assert.Equal(t, NewDelete(4, 2), got)

	_, ok = Compose(NewDelete(5, 1), NewDelete(1, 1))
	assert.False(t, ok)
}

func TestCompose_RejectsUnknownPairs(t *testing.T) {
	_, ok := Compose(NewInsert(0, "a"), NewDelete(0, 1))
	assert.False(t, ok)

	_, ok = Compose(NewRetain(0, 1), NewRetain(1, 1))
	assert.False(t, ok)

	a := NewInsert(0, "a")
	a.AuthorID = 1
	b := NewInsert(1, "b")
	b.AuthorID = 2
	_, ok = Compose(a, b)
	assert.False(t, ok)
}

func TestCompact_PreservesEffect(t *testing.T) {
	const base = "Hello"
	ops := []Operation{
		NewInsert(5, " "),
		NewInsert(6, "W"),
		NewInsert(7, "orld"),
		NewDelete(0, 1),
		NewDelete(0, 1),
		NewRetain(0, 2),
	}
	compacted := Compact(ops)
	assert.Len(t, compacted, 3)
	assert.Equal(t, ApplyAll(base, ops), ApplyAll(base, compacted))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, NewInsert(3, "x"), Normalize("abc", NewInsert(10, "x")))
	assert.Equal(t, NewDelete(1, 2), Normalize("abc", NewDelete(1, 10)))
	assert.Equal(t, NewDelete(3, 0), Normalize("abc", NewDelete(5, 1)))
}
