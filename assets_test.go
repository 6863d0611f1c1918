package smarthandles

import (
	"math/big"
	"testing"

	apolloUTxO "github.com/Salvionied/apollo/serialization/UTxO"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPolicy = "aabbccddeeff00112233445566778899aabbccddeeff001122334455"

func valueOf(lovelace int64, tokens map[string]int64) Value {
	v := Lovelace(lovelace)
	for name, qty := range tokens {
		v.add(testPolicy, name, big.NewInt(qty))
	}
	return v.Normalize()
}

func TestUnion(t *testing.T) {
	testDefs := []struct {
		name     string
		a        Value
		b        Value
		expected Value
	}{
		{
			name:     "lovelace only",
			a:        Lovelace(3),
			b:        Lovelace(4),
			expected: Lovelace(7),
		},
		{
			name:     "disjoint tokens",
			a:        valueOf(1, map[string]int64{"01": 5}),
			b:        valueOf(0, map[string]int64{"02": 6}),
			expected: valueOf(1, map[string]int64{"01": 5, "02": 6}),
		},
		{
			name:     "shared token",
			a:        valueOf(1, map[string]int64{"01": 5}),
			b:        valueOf(2, map[string]int64{"01": 6}),
			expected: valueOf(3, map[string]int64{"01": 11}),
		},
		{
			name:     "empty side",
			a:        NewValue(),
			b:        valueOf(2, map[string]int64{"01": 6}),
			expected: valueOf(2, map[string]int64{"01": 6}),
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			got := Union(testDef.a, testDef.b)
			assert.True(t, got.Equal(testDef.expected), "got %s, expected %s", got, testDef.expected)
		})
	}
}

func TestUnionDoesNotMutateInputs(t *testing.T) {
	a := Lovelace(10)
	b := Lovelace(5)
	_ = Union(a, b)
	assert.Equal(t, int64(10), a.Coin().Int64())
	assert.Equal(t, int64(5), b.Coin().Int64())
}

func TestRemoveDropsExhaustedAssets(t *testing.T) {
	a := valueOf(10, map[string]int64{"01": 5, "02": 1})
	b := valueOf(4, map[string]int64{"01": 5, "02": 3})
	got := Remove(a, b)
	assert.True(t, got.Equal(Lovelace(6)), "got %s", got)
	_, hasPolicy := got[testPolicy]
	assert.False(t, hasPolicy)
}

func TestSumAssets(t *testing.T) {
	assert.Empty(t, SumAssets(nil))
	owner := testKeyAddress(t, 1)
	utxos := []apolloUTxO.UTxO{
		makeUTxO(t, OutRef{TxHash: testTxHash(1), Index: 0}, owner, Lovelace(2_000_000), nil),
		makeUTxO(t, OutRef{TxHash: testTxHash(2), Index: 1}, owner, valueOf(3_000_000, map[string]int64{"01": 7}), nil),
	}
	got := SumAssets(utxos)
	assert.True(t, got.Equal(valueOf(5_000_000, map[string]int64{"01": 7})), "got %s", got)
}

func TestReduceCoinBy(t *testing.T) {
	v := valueOf(5, map[string]int64{"01": 1})

	got, err := ReduceCoinBy(v, big.NewInt(5))
	require.NoError(t, err)
	assert.True(t, got.Equal(valueOf(0, map[string]int64{"01": 1})))

	got, err = ReduceCoinBy(v, big.NewInt(2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Coin().Int64())
	assert.Equal(t, int64(5), v.Coin().Int64(), "input must be left untouched")

	_, err = ReduceCoinBy(v, big.NewInt(6))
	require.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = ReduceCoinBy(v, big.NewInt(-1))
	require.Error(t, err)
	assert.Equal(t, int64(5), v.Coin().Int64())
}

func TestApolloValueRoundTrip(t *testing.T) {
	v := valueOf(2_500_000, map[string]int64{"01": 9, "beef": 1})
	amount, err := v.ToApolloValue()
	require.NoError(t, err)
	assert.Equal(t, int64(2_500_000), amount.GetCoin())
	back := FromApolloValue(amount)
	assert.True(t, back.Equal(v), "got %s, expected %s", back, v)
}

func TestToApolloValueRejectsOverflow(t *testing.T) {
	v := NewValue()
	v.add("", "", new(big.Int).Lsh(big.NewInt(1), 70))
	_, err := v.ToApolloValue()
	require.Error(t, err)
}
