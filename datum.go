package smarthandles

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/Salvionied/apollo/serialization/PlutusData"
	apolloUTxO "github.com/Salvionied/apollo/serialization/UTxO"
)

// DatumToPlutusData encodes d in its on-chain schema.
func DatumToPlutusData(d Datum) (PlutusData.PlutusData, error) {
	switch d.Kind {
	case DatumSimple:
		if d.Simple == nil {
			return PlutusData.PlutusData{}, errors.New("simple datum has no body")
		}
		owner, err := AddressToPlutusData(d.Simple.Owner)
		if err != nil {
			return PlutusData.PlutusData{}, fmt.Errorf("owner: %w", err)
		}
		return constrData(0, owner), nil
	case DatumAdvanced:
		a := d.Advanced
		if a == nil {
			return PlutusData.PlutusData{}, errors.New("advanced datum has no body")
		}
		var owner *PlutusData.PlutusData
		if a.MOwner != nil {
			pd, err := AddressToPlutusData(*a.MOwner)
			if err != nil {
				return PlutusData.PlutusData{}, fmt.Errorf("owner: %w", err)
			}
			owner = &pd
		}
		return constrData(0,
			maybeData(owner),
			intData(bigOrZero(a.RouterFee)),
			intData(bigOrZero(a.ReclaimRouterFee)),
			a.ExtraInfo,
		), nil
	default:
		return PlutusData.PlutusData{}, fmt.Errorf("unknown datum kind %d", d.Kind)
	}
}

// DatumFromPlutusData decodes pd as the given kind.
func DatumFromPlutusData(pd PlutusData.PlutusData, kind DatumKind, network Network) (Datum, error) {
	switch kind {
	case DatumSimple:
		fields, err := asConstrN(pd, 0, 1)
		if err != nil {
			return Datum{}, err
		}
		owner, err := PlutusDataToAddress(fields[0], network)
		if err != nil {
			return Datum{}, fmt.Errorf("owner: %w", err)
		}
		return NewSimpleDatum(owner), nil
	case DatumAdvanced:
		fields, err := asConstrN(pd, 0, 4)
		if err != nil {
			return Datum{}, err
		}
		ownerData, err := asMaybe(fields[0])
		if err != nil {
			return Datum{}, fmt.Errorf("owner: %w", err)
		}
		adv := AdvancedDatum{ExtraInfo: fields[3]}
		if ownerData != nil {
			owner, err := PlutusDataToAddress(*ownerData, network)
			if err != nil {
				return Datum{}, fmt.Errorf("owner: %w", err)
			}
			adv.MOwner = &owner
		}
		if adv.RouterFee, err = asInt(fields[1]); err != nil {
			return Datum{}, fmt.Errorf("router fee: %w", err)
		}
		if adv.ReclaimRouterFee, err = asInt(fields[2]); err != nil {
			return Datum{}, fmt.Errorf("reclaim router fee: %w", err)
		}
		return NewAdvancedDatum(adv), nil
	default:
		return Datum{}, fmt.Errorf("unknown datum kind %d", kind)
	}
}

func EncodeDatum(d Datum) ([]byte, error) {
	pd, err := DatumToPlutusData(d)
	if err != nil {
		return nil, err
	}
	return encodePlutusData(pd)
}

// DecodeDatum parses CBOR bytes as the given kind. Every failure, including
// a panic inside the CBOR layer, is reported as ErrInvalidDatum.
func DecodeDatum(b []byte, kind DatumKind, network Network) (d Datum, err error) {
	defer func() {
		if r := recover(); r != nil {
			d = Datum{}
			err = fmt.Errorf("%w: %v", ErrInvalidDatum, r)
		}
	}()
	pd, err := decodePlutusData(b)
	if err != nil {
		return Datum{}, fmt.Errorf("%w: %w", ErrInvalidDatum, err)
	}
	d, err = DatumFromPlutusData(pd, kind, network)
	if err != nil {
		return Datum{}, fmt.Errorf("%w: %w", ErrInvalidDatum, err)
	}
	return d, nil
}

// SafeDatumFromUTxO reads the inline datum of utxo as the given kind.
// A missing datum gives ErrMissingDatum. A datum that decodes only as the
// other kind gives ErrKindMismatch.
func SafeDatumFromUTxO(utxo apolloUTxO.UTxO, kind DatumKind, network Network) (d Datum, err error) {
	defer func() {
		if r := recover(); r != nil {
			d = Datum{}
			err = fmt.Errorf("%w: %v", ErrInvalidDatum, r)
		}
	}()
	pd := inlineDatumOf(&utxo.Output)
	if pd == nil {
		return Datum{}, ErrMissingDatum
	}
	d, err = DatumFromPlutusData(*pd, kind, network)
	if err == nil {
		return d, nil
	}
	other := DatumAdvanced
	if kind == DatumAdvanced {
		other = DatumSimple
	}
	if _, otherErr := DatumFromPlutusData(*pd, other, network); otherErr == nil {
		return Datum{}, fmt.Errorf("%w: expected %s datum, found %s", ErrKindMismatch, kind, other)
	}
	return Datum{}, fmt.Errorf("%w: %w", ErrInvalidDatum, err)
}

func bigOrZero(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return n
}
