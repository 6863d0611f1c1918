package smarthandles

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/Salvionied/apollo/serialization"
	"github.com/Salvionied/apollo/serialization/Address"
	"github.com/Salvionied/apollo/serialization/PlutusData"
	"github.com/Salvionied/apollo/serialization/Transaction"
	"github.com/Salvionied/apollo/serialization/TransactionInput"
	"github.com/Salvionied/apollo/serialization/TransactionOutput"
	apolloUTxO "github.com/Salvionied/apollo/serialization/UTxO"
	apolloValue "github.com/Salvionied/apollo/serialization/Value"
	base "github.com/Salvionied/apollo/txBuilding/Backend/Base"
	apolloCbor "github.com/Salvionied/cbor/v2"
)

// prepareUTxO converts a resolved input into the evaluator's UTxO shape.
func prepareUTxO(utxo *apolloUTxO.UTxO) evalUTxO {
	ret := evalUTxO{
		Address:     utxo.Output.GetAddress().String(),
		TxHash:      hex.EncodeToString(utxo.Input.TransactionId),
		OutputIndex: uint64(utxo.Input.Index),
		Assets:      prepareAssetMap(utxo),
	}
	if datumHash := utxo.Output.GetDatumHash(); datumHash != nil {
		if str := hex.EncodeToString(datumHash.Payload); str != "" {
			ret.DatumHash = &str
		}
	}
	if datum := inlineDatumOf(&utxo.Output); datum != nil {
		datumCbor, err := datum.MarshalCBOR()
		if err == nil && len(datumCbor) > 0 {
			str := hex.EncodeToString(datumCbor)
			ret.Datum = &str
		}
	}
	if ref := scriptRefOf(&utxo.Output); len(ref) > 0 {
		ret.ScriptRef = &evalScriptRef{
			ScriptType: "plutus_v2",
			Script:     hex.EncodeToString(ref),
		}
	}
	return ret
}

// serializeUTxOs length-prefixes each input/output pair for the evaluator.
func serializeUTxOs(inputs, outputs [][]byte) []byte {
	var buf bytes.Buffer

	_ = binary.Write(&buf, binary.LittleEndian, uint64(len(inputs)))

	for i := range inputs {
		_ = binary.Write(&buf, binary.LittleEndian, uint64(len(inputs[i])))
		buf.Write(inputs[i])

		_ = binary.Write(&buf, binary.LittleEndian, uint64(len(outputs[i])))
		buf.Write(outputs[i])
	}

	return buf.Bytes()
}

func GetTxFromBytes(txBytes []byte) (*Transaction.Transaction, error) {
	tx := &Transaction.Transaction{}
	if err := apolloCbor.Unmarshal(txBytes, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// GetUtxosFromTx resolves every input of a serialized transaction.
func GetUtxosFromTx(ctx context.Context, txBytes []byte, chainContext base.ChainContext) ([]apolloUTxO.UTxO, error) {
	tx, err := GetTxFromBytes(txBytes)
	if err != nil {
		return nil, err
	}

	utxos := make([]apolloUTxO.UTxO, 0, len(tx.TransactionBody.Inputs))
	for _, input := range tx.TransactionBody.Inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		txHash := hex.EncodeToString(input.TransactionId)
		utxo := chainContext.GetUtxoFromRef(txHash, int(input.Index))
		if utxo == nil {
			return nil, fmt.Errorf("%w: input %s#%d", ErrNotFound, txHash, input.Index)
		}
		utxos = append(utxos, *utxo)
	}

	return utxos, nil
}

// ParseUTxOsFromJSON reads UTxOs from a Blockfrost style transaction dump,
// keeping those listed in refs.
func ParseUTxOsFromJSON(jsonData []byte, refs []OutRef) ([]apolloUTxO.UTxO, error) {
	var txs []UTxOJSON
	if err := json.Unmarshal(jsonData, &txs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	utxos := make([]apolloUTxO.UTxO, 0, len(refs))
	for _, ref := range refs {
		input, err := ref.TransactionInput()
		if err != nil {
			return nil, err
		}
		for _, tx := range txs {
			for _, output := range tx.Outputs {
				if CompareOutRefs(OutRef{TxHash: output.TxHash, Index: output.OutputIndex}, ref) != 0 {
					continue
				}
				utxo, err := convertJSONOutputToUTxO(output, input)
				if err != nil {
					return nil, fmt.Errorf("failed to convert output %s: %w", ref, err)
				}
				utxos = append(utxos, utxo)
			}
		}
	}

	return utxos, nil
}

func convertJSONOutputToUTxO(output OutputJSON, input TransactionInput.TransactionInput) (apolloUTxO.UTxO, error) {
	addr, err := Address.DecodeAddress(output.Address)
	if err != nil {
		return apolloUTxO.UTxO{}, fmt.Errorf("failed to decode address: %w", err)
	}

	value := NewValue()
	for _, amt := range output.Amount {
		qty, ok := new(big.Int).SetString(amt.Quantity, 10)
		if !ok {
			return apolloUTxO.UTxO{}, fmt.Errorf("invalid quantity %q for %s", amt.Quantity, amt.Unit)
		}
		if amt.Unit == "lovelace" {
			value.add("", "", qty)
			continue
		}
		if len(amt.Unit) < 56 {
			return apolloUTxO.UTxO{}, fmt.Errorf("invalid unit %q", amt.Unit)
		}
		value.add(amt.Unit[:56], amt.Unit[56:], qty)
	}
	amount, err := value.Normalize().ToApolloValue()
	if err != nil {
		return apolloUTxO.UTxO{}, err
	}

	var datum *PlutusData.PlutusData
	if output.InlineDatum != "" {
		decoded, err := hex.DecodeString(output.InlineDatum)
		if err != nil {
			return apolloUTxO.UTxO{}, fmt.Errorf("failed to decode inline datum: %w", err)
		}
		pd, err := decodePlutusData(decoded)
		if err != nil {
			return apolloUTxO.UTxO{}, fmt.Errorf("failed to unmarshal plutus data: %w", err)
		}
		datum = &pd
	}

	var scriptRef []byte
	if output.ScriptRef != "" {
		if scriptRef, err = hex.DecodeString(output.ScriptRef); err != nil {
			return apolloUTxO.UTxO{}, fmt.Errorf("failed to decode reference script: %w", err)
		}
	}

	if datum == nil && scriptRef == nil {
		return apolloUTxO.UTxO{
			Input:  input,
			Output: createShelleyOutput(addr, amount, output.DataHash),
		}, nil
	}
	return apolloUTxO.UTxO{
		Input:  input,
		Output: createAlonzoOutput(addr, amount, datum, scriptRef),
	}, nil
}

// createAlonzoOutput builds a post-Alonzo output with an optional inline
// datum and reference script.
func createAlonzoOutput(
	addr Address.Address,
	amount apolloValue.Value,
	datum *PlutusData.PlutusData,
	scriptRef []byte,
) TransactionOutput.TransactionOutput {
	out := TransactionOutput.TransactionOutput{
		IsPostAlonzo: true,
		PostAlonzo: TransactionOutput.TransactionOutputAlonzo{
			Address: addr,
			Amount:  amount.ToAlonzoValue(),
		},
	}
	if datum != nil {
		datumOption := PlutusData.DatumOptionInline(datum)
		out.PostAlonzo.Datum = &datumOption
	}
	if len(scriptRef) > 0 {
		ref := PlutusData.ScriptRef(scriptRef)
		out.PostAlonzo.ScriptRef = &ref
	}
	return out
}

// createShelleyOutput creates a TransactionOutput with Shelley-era features
func createShelleyOutput(addr Address.Address, amount apolloValue.Value, datumHashHex string) TransactionOutput.TransactionOutput {
	datumHash := serialization.DatumHash{}
	if datumHashHex != "" {
		datumHash.Payload, _ = hex.DecodeString(datumHashHex)
	}

	return TransactionOutput.TransactionOutput{
		IsPostAlonzo: false,
		PreAlonzo: TransactionOutput.TransactionOutputShelley{
			Address:   addr,
			Amount:    amount,
			DatumHash: datumHash,
			HasDatum:  datumHashHex != "",
		},
	}
}
