package smarthandles

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/Salvionied/apollo/serialization/PlutusData"
	apolloCbor "github.com/Salvionied/cbor/v2"
)

const (
	constrTagBase     = 121
	constrTagBaseHigh = 1280
)

func constrTag(index uint64) uint64 {
	if index < 7 {
		return constrTagBase + index
	}
	return constrTagBaseHigh + index - 7
}

func constrIndex(tag uint64) (uint64, bool) {
	switch {
	case tag >= constrTagBase && tag < constrTagBase+7:
		return tag - constrTagBase, true
	case tag >= constrTagBaseHigh && tag <= constrTagBaseHigh+120:
		return tag - constrTagBaseHigh + 7, true
	default:
		return 0, false
	}
}

// fieldList uses the indefinite-length encoding for non-empty lists, as
// the ledger does.
func fieldList(fields []PlutusData.PlutusData) any {
	if len(fields) == 0 {
		return PlutusData.PlutusDefArray{}
	}
	return PlutusData.PlutusIndefArray(fields)
}

func constrData(index uint64, fields ...PlutusData.PlutusData) PlutusData.PlutusData {
	return PlutusData.PlutusData{
		TagNr:          constrTag(index),
		PlutusDataType: PlutusData.PlutusArray,
		Value:          fieldList(fields),
	}
}

func listData(items []PlutusData.PlutusData) PlutusData.PlutusData {
	return PlutusData.PlutusData{
		TagNr:          0,
		PlutusDataType: PlutusData.PlutusArray,
		Value:          fieldList(items),
	}
}

func bytesData(b []byte) PlutusData.PlutusData {
	return PlutusData.PlutusData{
		TagNr:          0,
		PlutusDataType: PlutusData.PlutusBytes,
		Value:          b,
	}
}

func intData(n *big.Int) PlutusData.PlutusData {
	switch {
	case n.Sign() >= 0 && n.IsUint64():
		return PlutusData.PlutusData{
			PlutusDataType: PlutusData.PlutusInt,
			Value:          n.Uint64(),
		}
	case n.IsInt64():
		return PlutusData.PlutusData{
			PlutusDataType: PlutusData.PlutusInt,
			Value:          n.Int64(),
		}
	default:
		return PlutusData.PlutusData{
			PlutusDataType: PlutusData.PlutusBigInt,
			Value:          *new(big.Int).Set(n),
		}
	}
}

func arrayItems(v any) ([]PlutusData.PlutusData, bool) {
	switch items := v.(type) {
	case PlutusData.PlutusIndefArray:
		return items, true
	case PlutusData.PlutusDefArray:
		return items, true
	case []PlutusData.PlutusData:
		return items, true
	default:
		return nil, false
	}
}

// asConstr returns the constructor index and fields of pd.
func asConstr(pd PlutusData.PlutusData) (uint64, []PlutusData.PlutusData, error) {
	index, ok := constrIndex(pd.TagNr)
	if !ok {
		return 0, nil, fmt.Errorf("expected constructor, got tag %d", pd.TagNr)
	}
	fields, ok := arrayItems(pd.Value)
	if !ok {
		return 0, nil, fmt.Errorf("constructor %d has no field list", index)
	}
	return index, fields, nil
}

func asConstrN(pd PlutusData.PlutusData, index uint64, arity int) ([]PlutusData.PlutusData, error) {
	got, fields, err := asConstr(pd)
	if err != nil {
		return nil, err
	}
	if got != index {
		return nil, fmt.Errorf("expected constructor %d, got %d", index, got)
	}
	if len(fields) != arity {
		return nil, fmt.Errorf(
			"constructor %d: expected %d fields, got %d", index, arity, len(fields),
		)
	}
	return fields, nil
}

func asList(pd PlutusData.PlutusData) ([]PlutusData.PlutusData, error) {
	if _, ok := constrIndex(pd.TagNr); ok {
		return nil, errors.New("expected list, got constructor")
	}
	items, ok := arrayItems(pd.Value)
	if !ok {
		return nil, fmt.Errorf("expected list, got %T", pd.Value)
	}
	return items, nil
}

func asBytes(pd PlutusData.PlutusData) ([]byte, error) {
	b, ok := pd.Value.([]byte)
	if !ok {
		return nil, fmt.Errorf("expected bytes, got %T", pd.Value)
	}
	return b, nil
}

func asInt(pd PlutusData.PlutusData) (*big.Int, error) {
	switch n := pd.Value.(type) {
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case int64:
		return big.NewInt(n), nil
	case int:
		return big.NewInt(int64(n)), nil
	case big.Int:
		return new(big.Int).Set(&n), nil
	case *big.Int:
		if n == nil {
			return nil, errors.New("nil integer")
		}
		return new(big.Int).Set(n), nil
	default:
		return nil, fmt.Errorf("expected integer, got %T", pd.Value)
	}
}

func maybeData(pd *PlutusData.PlutusData) PlutusData.PlutusData {
	if pd == nil {
		return constrData(1)
	}
	return constrData(0, *pd)
}

// asMaybe returns nil for Nothing.
func asMaybe(pd PlutusData.PlutusData) (*PlutusData.PlutusData, error) {
	index, fields, err := asConstr(pd)
	if err != nil {
		return nil, err
	}
	switch {
	case index == 0 && len(fields) == 1:
		return &fields[0], nil
	case index == 1 && len(fields) == 0:
		return nil, nil
	default:
		return nil, fmt.Errorf("malformed optional: constructor %d with %d fields", index, len(fields))
	}
}

func encodePlutusData(pd PlutusData.PlutusData) ([]byte, error) {
	return apolloCbor.Marshal(&pd)
}

// CBOR major types.
const (
	cborUint   = 0
	cborNegInt = 1
	cborBytes  = 2
	cborArray  = 4
	cborTag    = 6
)

// decodePlutusData walks the CBOR itself for integers, byte strings, lists
// and constructors. apollo's decoder drops negative integers that fit an
// int64, so it only sees maps and the remaining tags.
func decodePlutusData(b []byte) (PlutusData.PlutusData, error) {
	if len(b) == 0 {
		return PlutusData.PlutusData{}, errors.New("empty plutus data")
	}
	switch b[0] >> 5 {
	case cborUint, cborNegInt:
		var n big.Int
		if err := apolloCbor.Unmarshal(b, &n); err != nil {
			return PlutusData.PlutusData{}, err
		}
		return intData(&n), nil
	case cborBytes:
		var bs []byte
		if err := apolloCbor.Unmarshal(b, &bs); err != nil {
			return PlutusData.PlutusData{}, err
		}
		return bytesData(bs), nil
	case cborArray:
		items, err := decodePlutusList(b)
		if err != nil {
			return PlutusData.PlutusData{}, err
		}
		return PlutusData.PlutusData{PlutusDataType: PlutusData.PlutusArray, Value: items}, nil
	case cborTag:
		var tag apolloCbor.RawTag
		if err := apolloCbor.Unmarshal(b, &tag); err != nil {
			return PlutusData.PlutusData{}, err
		}
		if _, ok := constrIndex(tag.Number); ok {
			items, err := decodePlutusList(tag.Content)
			if err != nil {
				return PlutusData.PlutusData{}, fmt.Errorf("constructor fields: %w", err)
			}
			return PlutusData.PlutusData{
				TagNr:          tag.Number,
				PlutusDataType: PlutusData.PlutusArray,
				Value:          items,
			}, nil
		}
		if tag.Number == 2 || tag.Number == 3 {
			var n big.Int
			if err := apolloCbor.Unmarshal(b, &n); err != nil {
				return PlutusData.PlutusData{}, err
			}
			return intData(&n), nil
		}
	}
	var pd PlutusData.PlutusData
	if err := apolloCbor.Unmarshal(b, &pd); err != nil {
		return PlutusData.PlutusData{}, err
	}
	if pd.Value == nil {
		return PlutusData.PlutusData{}, fmt.Errorf("unsupported plutus data item 0x%02x", b[0])
	}
	return pd, nil
}

// decodePlutusList keeps the definite or indefinite encoding of the list.
func decodePlutusList(b []byte) (any, error) {
	var raw []apolloCbor.RawMessage
	if err := apolloCbor.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	items := make([]PlutusData.PlutusData, 0, len(raw))
	for _, r := range raw {
		item, err := decodePlutusData(r)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if len(b) > 0 && b[0] == 0x9f {
		return PlutusData.PlutusIndefArray(items), nil
	}
	return PlutusData.PlutusDefArray(items), nil
}
