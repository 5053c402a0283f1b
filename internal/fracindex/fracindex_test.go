package fracindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBetweenUnbounded(t *testing.T) {
	key, err := Between("", "")
	require.NoError(t, err)
	assert.Equal(t, "V", key)
}

func TestBetweenAppend(t *testing.T) {
	key, err := Between("V", "")
	require.NoError(t, err)
	assert.Equal(t, "l", key)
	assert.Less(t, "V", key)
}

func TestBetweenPrepend(t *testing.T) {
	key, err := Between("", "V")
	require.NoError(t, err)
	assert.Equal(t, "G", key)
	assert.Greater(t, "V", key)
}

func TestBetweenAdjacentDigits(t *testing.T) {
	// Между соседними разрядами свободного значения нет, ключ удлиняется
	key, err := Between("1", "2")
	require.NoError(t, err)
	assert.Equal(t, "1V", key)
}

func TestBetweenCommonPrefix(t *testing.T) {
	key, err := Between("1", "1V")
	require.NoError(t, err)
	assert.Equal(t, "1G", key)

	key, err = Between("", "01")
	require.NoError(t, err)
	assert.Equal(t, "00V", key)
	assert.Less(t, key, "01")
}

func TestBetweenStrictOrder(t *testing.T) {
	cases := []struct {
		before, after string
	}{
		{"", ""},
		{"", "V"},
		{"V", ""},
		{"1", "2"},
		{"1", "1V"},
		{"Zz", "a"},
		{"A", "A1"},
		{"z", ""},
		{"zz", ""},
		{"", "1"},
		{"", "01"},
	}
	for _, tc := range cases {
		key, err := Between(tc.before, tc.after)
		require.NoError(t, err, "Between(%q, %q)", tc.before, tc.after)
		assert.True(t, Valid(key), "Between(%q, %q) = %q", tc.before, tc.after, key)
		if tc.before != "" {
			assert.Less(t, tc.before, key, "Between(%q, %q) = %q", tc.before, tc.after, key)
		}
		if tc.after != "" {
			assert.Greater(t, tc.after, key, "Between(%q, %q) = %q", tc.before, tc.after, key)
		}
	}
}

func TestBetweenRepeatedInsertGrowsLogarithmically(t *testing.T) {
	// Постоянные вставки в одну позицию: длина ключа растет на разряд
	// не чаще, чем раз в несколько вставок
	before := ""
	after := "V"
	for i := 0; i < 50; i++ {
		key, err := Between(before, after)
		require.NoError(t, err)
		require.Less(t, key, after)
		if before != "" {
			require.Greater(t, key, before)
		}
		before = key
	}
	assert.LessOrEqual(t, len(before), 12)
}

func TestBetweenRejectsBadInput(t *testing.T) {
	_, err := Between("a", "a")
	assert.Error(t, err)

	_, err = Between("b", "a")
	assert.Error(t, err)

	_, err = Between("a0", "")
	assert.Error(t, err)

	_, err = Between("", "a!")
	assert.Error(t, err)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("V"))
	assert.True(t, Valid("01"))
	assert.True(t, Valid("zZ9"))
	assert.False(t, Valid(""))
	assert.False(t, Valid("a0"))
	assert.False(t, Valid("aب"))
}

func TestSpread(t *testing.T) {
	keys := Spread(3)
	require.Equal(t, []string{"F", "U", "j"}, keys)
}

func TestSpreadProperties(t *testing.T) {
	for _, n := range []int{1, 2, 10, 61, 62, 200, 5000} {
		keys := Spread(n)
		require.Len(t, keys, n, "Spread(%d)", n)
		for i, key := range keys {
			require.True(t, Valid(key), "Spread(%d)[%d] = %q", n, i, key)
			if i > 0 {
				require.Less(t, keys[i-1], key, "Spread(%d) not strictly increasing at %d", n, i)
			}
		}
	}
}

func TestSpreadDeterministic(t *testing.T) {
	assert.Equal(t, Spread(100), Spread(100))
}

func TestSpreadEmpty(t *testing.T) {
	assert.Nil(t, Spread(0))
	assert.Nil(t, Spread(-1))
}
