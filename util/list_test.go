package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect[T any](l *List[T]) (xs []T) {
	l.Iterate(func(_ Index, v T) bool {
		xs = append(xs, v)
		return true
	})
	return
}

func TestListPushPop(t *testing.T) {
	l := NewList[int]()
	for i := 0; i < 5; i++ {
		l.PushBack(i)
	}
	l.PushFront(-1)

	require.Equal(t, 6, l.Size())
	assert.Equal(t, []int{-1, 0, 1, 2, 3, 4}, collect(l))

	for _, want := range []int{-1, 0, 1, 2, 3, 4} {
		v, ok := l.PopFront()
		require.True(t, ok)
		assert.Equal(t, want, v)
	}

	_, ok := l.PopFront()
	assert.False(t, ok)
	assert.True(t, l.Empty())
	assert.Equal(t, Nil, l.Front())
	assert.Equal(t, Nil, l.Back())
}

func TestListRemoveMiddle(t *testing.T) {
	l := NewList[string]()
	a := l.PushBack("a")
	b := l.PushBack("b")
	c := l.PushBack("c")

	assert.Equal(t, "b", l.Remove(b))
	assert.Equal(t, []string{"a", "c"}, collect(l))
	assert.Equal(t, c, l.Next(a))
	assert.Equal(t, a, l.Prev(c))
	assert.False(t, l.Contains(b))
}

func TestListReusesSlots(t *testing.T) {
	l := NewList[int]()
	a := l.PushBack(1)
	l.Remove(a)
	b := l.PushBack(2)

	assert.Equal(t, a, b)
	assert.Equal(t, 2, l.At(b))
}

func TestListZeroValue(t *testing.T) {
	var l List[int]
	assert.Equal(t, Nil, l.Front())
	l.PushBack(7)
	assert.Equal(t, 7, l.At(l.Front()))
}

func TestListRemoveInvalidPanics(t *testing.T) {
	l := NewList[int]()
	assert.PanicsWithValue(t, ErrOutOfBounds, func() { l.Remove(Nil) })
	assert.PanicsWithValue(t, ErrOutOfBounds, func() { l.Remove(42) })

	ix := l.PushBack(1)
	l.Remove(ix)
	assert.PanicsWithValue(t, ErrOutOfBounds, func() { l.Remove(ix) })
}

func TestListGrowWhileDraining(t *testing.T) {
	l := NewList[int]()
	l.PushBack(0)

	var seen []int
	for {
		v, ok := l.PopFront()
		if !ok {
			break
		}
		seen = append(seen, v)
		if v < 3 {
			l.PushBack(v + 1)
		}
	}
	assert.Equal(t, []int{0, 1, 2, 3}, seen)
}
