package smarthandles

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/Salvionied/apollo/serialization/Amount"
	"github.com/Salvionied/apollo/serialization/Asset"
	"github.com/Salvionied/apollo/serialization/AssetName"
	"github.com/Salvionied/apollo/serialization/MultiAsset"
	"github.com/Salvionied/apollo/serialization/Policy"
	apolloUTxO "github.com/Salvionied/apollo/serialization/UTxO"
	apolloValue "github.com/Salvionied/apollo/serialization/Value"
)

// Value maps policy id hex to asset name hex to quantity. Lovelace lives
// under the empty policy and the empty asset name.
type Value map[string]map[string]*big.Int

func NewValue() Value {
	return Value{}
}

// Lovelace returns a value holding only the given amount of lovelace.
func Lovelace(amount int64) Value {
	v := NewValue()
	v.add("", "", big.NewInt(amount))
	return v.Normalize()
}

func (v Value) add(policy, name string, qty *big.Int) {
	policy = strings.ToLower(policy)
	name = strings.ToLower(name)
	assets, ok := v[policy]
	if !ok {
		assets = map[string]*big.Int{}
		v[policy] = assets
	}
	cur, ok := assets[name]
	if !ok {
		cur = new(big.Int)
	}
	assets[name] = new(big.Int).Add(cur, qty)
}

// Quantity returns the quantity of an asset, zero when absent.
func (v Value) Quantity(policy, name string) *big.Int {
	if q, ok := v[strings.ToLower(policy)][strings.ToLower(name)]; ok {
		return new(big.Int).Set(q)
	}
	return new(big.Int)
}

func (v Value) Coin() *big.Int {
	return v.Quantity("", "")
}

func (v Value) Clone() Value {
	out := make(Value, len(v))
	for policy, assets := range v {
		inner := make(map[string]*big.Int, len(assets))
		for name, qty := range assets {
			inner[name] = new(big.Int).Set(qty)
		}
		out[policy] = inner
	}
	return out
}

// Normalize drops non-positive quantities and empty policies in place.
func (v Value) Normalize() Value {
	for policy, assets := range v {
		for name, qty := range assets {
			if qty == nil || qty.Sign() <= 0 {
				delete(assets, name)
			}
		}
		if len(assets) == 0 {
			delete(v, policy)
		}
	}
	return v
}

func (v Value) Equal(o Value) bool {
	a := v.Clone().Normalize()
	b := o.Clone().Normalize()
	if len(a) != len(b) {
		return false
	}
	for policy, assets := range a {
		other, ok := b[policy]
		if !ok || len(other) != len(assets) {
			return false
		}
		for name, qty := range assets {
			oq, ok := other[name]
			if !ok || oq.Cmp(qty) != 0 {
				return false
			}
		}
	}
	return true
}

func (v Value) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	first := true
	for policy, assets := range v {
		for name, qty := range assets {
			if !first {
				sb.WriteString(", ")
			}
			first = false
			unit := policy + name
			if unit == "" {
				unit = "lovelace"
			}
			fmt.Fprintf(&sb, "%s: %s", unit, qty.String())
		}
	}
	sb.WriteString("}")
	return sb.String()
}

// Union sums both values asset by asset.
func Union(a, b Value) Value {
	out := a.Clone()
	for policy, assets := range b {
		for name, qty := range assets {
			out.add(policy, name, qty)
		}
	}
	return out.Normalize()
}

// Remove subtracts b from a and drops every asset that ends at or below
// zero. Callers must have checked the balance beforehand.
func Remove(a, b Value) Value {
	out := a.Clone()
	for policy, assets := range b {
		for name, qty := range assets {
			out.add(policy, name, new(big.Int).Neg(qty))
		}
	}
	return out.Normalize()
}

func SumAssets(utxos []apolloUTxO.UTxO) Value {
	total := NewValue()
	for _, utxo := range utxos {
		total = Union(total, FromApolloValue(utxo.Output.GetAmount()))
	}
	return total
}

// ReduceCoinBy subtracts fee from the lovelace of value. Negative fees are
// rejected.
func ReduceCoinBy(value Value, fee *big.Int) (Value, error) {
	if fee.Sign() < 0 {
		return nil, fmt.Errorf("negative fee %s", fee)
	}
	coin := value.Coin()
	if coin.Cmp(fee) < 0 {
		return nil, fmt.Errorf(
			"%w: %s lovelace cannot cover a fee of %s",
			ErrInsufficientFunds,
			coin.String(),
			fee.String(),
		)
	}
	out := value.Clone()
	out.add("", "", new(big.Int).Neg(fee))
	return out.Normalize(), nil
}

// FromApolloValue converts an apollo output amount.
func FromApolloValue(value apolloValue.Value) Value {
	out := NewValue()
	out.add("", "", big.NewInt(value.GetCoin()))
	for policyId, assetGroup := range value.GetAssets() {
		for assetName, amount := range assetGroup {
			out.add(policyId.Value, assetName.HexString(), big.NewInt(amount))
		}
	}
	return out.Normalize()
}

// ToApolloValue converts v into an apollo amount. Quantities must fit in an
// int64, which is the range apollo carries.
func (v Value) ToApolloValue() (apolloValue.Value, error) {
	coin := v.Coin()
	if !coin.IsInt64() {
		return apolloValue.Value{}, fmt.Errorf("lovelace quantity %s out of range", coin.String())
	}
	multiAssets := MultiAsset.MultiAsset[int64]{}
	for policy, assets := range v {
		if policy == "" {
			continue
		}
		for name, qty := range assets {
			if qty.Sign() <= 0 {
				continue
			}
			if !qty.IsInt64() {
				return apolloValue.Value{}, fmt.Errorf(
					"quantity %s of %s%s out of range", qty.String(), policy, name,
				)
			}
			policyId := Policy.PolicyId{Value: policy}
			assetName := *AssetName.NewAssetNameFromHexString(name)
			if _, ok := multiAssets[policyId]; !ok {
				multiAssets[policyId] = Asset.Asset[int64]{}
			}
			multiAssets[policyId][assetName] = qty.Int64()
		}
	}
	return createValue(coin.Int64(), multiAssets), nil
}

// prepareAssetMap flattens a UTxO amount into unit -> quantity, using
// "lovelace" for the ada unit.
func prepareAssetMap(utxo *apolloUTxO.UTxO) map[string]uint64 {
	assets := utxo.Output.GetAmount().GetAssets()
	assetMap := make(map[string]uint64)
	assetMap["lovelace"] = uint64(utxo.Output.GetAmount().GetCoin())

	for policyId, assetGroup := range assets {
		for assetName, amount := range assetGroup {
			assetId := policyId.Value + assetName.HexString()
			assetMap[assetId] = uint64(amount)
		}
	}

	return assetMap
}

// createValue creates a Value object from lovelace amount and multi-assets
func createValue(lovelaceAmount int64, multiAssets MultiAsset.MultiAsset[int64]) apolloValue.Value {
	if len(multiAssets) > 0 {
		return apolloValue.Value{
			Am: Amount.Amount{
				Coin:  lovelaceAmount,
				Value: multiAssets,
			},
			HasAssets: true,
		}
	}
	return apolloValue.Value{
		Coin:      lovelaceAmount,
		HasAssets: false,
	}
}
