package smarthandles

import (
	"cmp"
	"encoding/hex"
	"fmt"
	"math/big"
	"slices"
	"strings"

	"github.com/Salvionied/apollo/serialization/PlutusData"
	"github.com/Salvionied/apollo/serialization/TransactionInput"
	"github.com/Salvionied/apollo/serialization/TransactionOutput"
	apolloUTxO "github.com/Salvionied/apollo/serialization/UTxO"
)

// OutRef identifies a UTxO by transaction hash (hex) and output index.
type OutRef struct {
	TxHash string
	Index  int
}

func (r OutRef) String() string {
	return fmt.Sprintf("%s#%d", r.TxHash, r.Index)
}

func (r OutRef) normalized() OutRef {
	return OutRef{TxHash: strings.ToLower(r.TxHash), Index: r.Index}
}

func (r OutRef) TransactionInput() (TransactionInput.TransactionInput, error) {
	id, err := hex.DecodeString(r.TxHash)
	if err != nil {
		return TransactionInput.TransactionInput{}, fmt.Errorf("invalid tx hash %q: %w", r.TxHash, err)
	}
	return TransactionInput.TransactionInput{TransactionId: id, Index: r.Index}, nil
}

func OutRefOf(utxo apolloUTxO.UTxO) OutRef {
	return OutRef{
		TxHash: hex.EncodeToString(utxo.Input.TransactionId),
		Index:  utxo.Input.Index,
	}
}

// CompareOutRefs orders by tx hash and then by output index. This is the
// order the ledger gives transaction inputs.
func CompareOutRefs(a, b OutRef) int {
	a, b = a.normalized(), b.normalized()
	if c := strings.Compare(a.TxHash, b.TxHash); c != 0 {
		return c
	}
	return cmp.Compare(a.Index, b.Index)
}

func SortOutRefs(refs []OutRef) []OutRef {
	out := slices.Clone(refs)
	slices.SortStableFunc(out, CompareOutRefs)
	return out
}

func SortUTxOs(utxos []apolloUTxO.UTxO) []apolloUTxO.UTxO {
	out := slices.Clone(utxos)
	slices.SortStableFunc(out, func(a, b apolloUTxO.UTxO) int {
		return CompareOutRefs(OutRefOf(a), OutRefOf(b))
	})
	return out
}

// inlineDatumOf returns the inline datum of out, or nil. GetDatum cannot
// be called on a post-Alonzo output without a datum option.
func inlineDatumOf(out *TransactionOutput.TransactionOutput) *PlutusData.PlutusData {
	if out.IsPostAlonzo && out.PostAlonzo.Datum == nil {
		return nil
	}
	return out.GetDatum()
}

// scriptRefOf returns the reference script bytes of out. Pre-Alonzo
// outputs report an empty script rather than nil.
func scriptRefOf(out *TransactionOutput.TransactionOutput) []byte {
	ref := out.GetScriptRef()
	if ref == nil {
		return nil
	}
	return *ref
}

func outRefsOf(utxos []apolloUTxO.UTxO) []OutRef {
	refs := make([]OutRef, 0, len(utxos))
	for _, u := range utxos {
		refs = append(refs, OutRefOf(u))
	}
	return refs
}

// BuildInputIndices returns the position each of selected takes among the
// canonically sorted union of selected and all. The result follows the
// order of selected.
func BuildInputIndices(selected, all []OutRef) ([]int, error) {
	merged := make([]OutRef, 0, len(selected)+len(all))
	seen := make(map[OutRef]struct{}, len(selected)+len(all))
	for _, ref := range slices.Concat(all, selected) {
		ref = ref.normalized()
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		merged = append(merged, ref)
	}
	sorted := SortOutRefs(merged)
	positions := make(map[OutRef]int, len(sorted))
	for i, ref := range sorted {
		positions[ref] = i
	}
	indices := make([]int, 0, len(selected))
	for _, ref := range selected {
		pos, ok := positions[ref.normalized()]
		if !ok {
			return nil, fmt.Errorf("%w: %s is not an input", ErrNotFound, ref)
		}
		indices = append(indices, pos)
	}
	return indices, nil
}

// SelectUTxOs walks available in order and keeps UTxOs until required is
// covered. UTxOs carrying a reference script are never picked, and neither
// are UTxOs holding none of the assets still required.
func SelectUTxOs(available []apolloUTxO.UTxO, required Value) ([]apolloUTxO.UTxO, error) {
	remaining := required.Clone().Normalize()
	var selected []apolloUTxO.UTxO
	for _, utxo := range available {
		if len(remaining) == 0 {
			break
		}
		if len(scriptRefOf(&utxo.Output)) > 0 {
			continue
		}
		value := FromApolloValue(utxo.Output.GetAmount())
		if !overlaps(remaining, value) {
			continue
		}
		selected = append(selected, utxo)
		remaining = Remove(remaining, value)
	}
	if len(remaining) > 0 {
		return nil, fmt.Errorf("%w: still missing %s", ErrInsufficientFunds, remaining)
	}
	return selected, nil
}

func overlaps(required, value Value) bool {
	for policy, assets := range required {
		for name := range assets {
			if q, ok := value[policy][name]; ok && q.Cmp(big.NewInt(0)) > 0 {
				return true
			}
		}
	}
	return false
}
