package smarthandles

import (
	"strings"
	"testing"

	apolloUTxO "github.com/Salvionied/apollo/serialization/UTxO"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortOutRefs(t *testing.T) {
	refs := []OutRef{
		{TxHash: testTxHash(0xbb), Index: 0},
		{TxHash: testTxHash(0xaa), Index: 2},
		{TxHash: strings.ToUpper(testTxHash(0xaa)), Index: 1},
		{TxHash: testTxHash(0x0c), Index: 7},
	}
	sorted := SortOutRefs(refs)
	assert.Equal(t, []OutRef{refs[3], refs[2], refs[1], refs[0]}, sorted)
	assert.Equal(t, sorted, SortOutRefs(sorted))
	assert.Equal(t, testTxHash(0xbb), refs[0].TxHash, "input must be left untouched")
}

func TestCompareOutRefsIgnoresCase(t *testing.T) {
	a := OutRef{TxHash: strings.ToUpper(testTxHash(0xab)), Index: 3}
	b := OutRef{TxHash: testTxHash(0xab), Index: 3}
	assert.Equal(t, 0, CompareOutRefs(a, b))
}

func TestBuildInputIndices(t *testing.T) {
	r1 := OutRef{TxHash: testTxHash(0x30), Index: 0}
	r2 := OutRef{TxHash: testTxHash(0x10), Index: 1}
	r3 := OutRef{TxHash: testTxHash(0x10), Index: 0}
	fee := OutRef{TxHash: testTxHash(0x20), Index: 4}

	testDefs := []struct {
		name     string
		selected []OutRef
		all      []OutRef
		expected []int
	}{
		{name: "single", selected: []OutRef{r1}, all: []OutRef{r1}, expected: []int{0}},
		{name: "with fee input", selected: []OutRef{r1}, all: []OutRef{fee}, expected: []int{1}},
		{name: "selected order kept", selected: []OutRef{r1, r2, r3}, all: []OutRef{fee}, expected: []int{3, 1, 0}},
		{name: "duplicates in all", selected: []OutRef{r2}, all: []OutRef{r3, r3, r2, fee}, expected: []int{1}},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			got, err := BuildInputIndices(testDef.selected, testDef.all)
			require.NoError(t, err)
			assert.Equal(t, testDef.expected, got)
		})
	}
}

func TestBuildInputIndicesMatchesSortedPositions(t *testing.T) {
	all := []OutRef{
		{TxHash: testTxHash(0x05), Index: 1},
		{TxHash: testTxHash(0x01), Index: 9},
		{TxHash: testTxHash(0x05), Index: 0},
		{TxHash: testTxHash(0xff), Index: 2},
	}
	indices, err := BuildInputIndices(all, nil)
	require.NoError(t, err)
	sorted := SortOutRefs(all)
	for i, ref := range all {
		assert.Equal(t, ref, sorted[indices[i]])
	}
}

func TestSelectUTxOs(t *testing.T) {
	owner := testKeyAddress(t, 1)
	plain := makeUTxO(t, OutRef{TxHash: testTxHash(1), Index: 0}, owner, Lovelace(3_000_000), nil)
	large := makeUTxO(t, OutRef{TxHash: testTxHash(2), Index: 0}, owner, Lovelace(4_000_000), nil)
	tokens := makeUTxO(t, OutRef{TxHash: testTxHash(3), Index: 0}, owner, valueOf(0, map[string]int64{"01": 10}), nil)

	amount, err := Lovelace(50_000_000).ToApolloValue()
	require.NoError(t, err)
	scriptRef := OutRef{TxHash: testTxHash(4), Index: 0}
	input, err := scriptRef.TransactionInput()
	require.NoError(t, err)
	withScript := apolloUTxO.UTxO{
		Input:  input,
		Output: createAlonzoOutput(owner, amount, nil, []byte{0x4d, 0x01, 0x00}),
	}

	t.Run("greedy in order", func(t *testing.T) {
		got, err := SelectUTxOs([]apolloUTxO.UTxO{plain, large}, Lovelace(5_000_000))
		require.NoError(t, err)
		assert.Equal(t, []OutRef{OutRefOf(plain), OutRefOf(large)}, outRefsOf(got))
	})
	t.Run("stops once covered", func(t *testing.T) {
		got, err := SelectUTxOs([]apolloUTxO.UTxO{large, plain}, Lovelace(4_000_000))
		require.NoError(t, err)
		assert.Equal(t, []OutRef{OutRefOf(large)}, outRefsOf(got))
	})
	t.Run("skips reference scripts", func(t *testing.T) {
		got, err := SelectUTxOs([]apolloUTxO.UTxO{withScript, large}, Lovelace(1_000_000))
		require.NoError(t, err)
		assert.Equal(t, []OutRef{OutRefOf(large)}, outRefsOf(got))
	})
	t.Run("accepts shelley outputs", func(t *testing.T) {
		shelley := makeShelleyUTxO(t, OutRef{TxHash: testTxHash(5), Index: 1}, owner, Lovelace(6_000_000), "")
		got, err := SelectUTxOs([]apolloUTxO.UTxO{withScript, shelley}, Lovelace(5_000_000))
		require.NoError(t, err)
		assert.Equal(t, []OutRef{OutRefOf(shelley)}, outRefsOf(got))
	})
	t.Run("skips utxos that add nothing", func(t *testing.T) {
		got, err := SelectUTxOs([]apolloUTxO.UTxO{plain, tokens}, valueOf(0, map[string]int64{"01": 4}))
		require.NoError(t, err)
		assert.Equal(t, []OutRef{OutRefOf(tokens)}, outRefsOf(got))
	})
	t.Run("insufficient", func(t *testing.T) {
		_, err := SelectUTxOs([]apolloUTxO.UTxO{plain, withScript}, Lovelace(10_000_000))
		require.ErrorIs(t, err, ErrInsufficientFunds)
	})
	t.Run("nothing required", func(t *testing.T) {
		got, err := SelectUTxOs([]apolloUTxO.UTxO{plain}, NewValue())
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
