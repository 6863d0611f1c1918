package smarthandles

import (
	"math/big"

	"github.com/Salvionied/apollo/serialization/Address"
	"github.com/Salvionied/apollo/serialization/PlutusData"
	apolloUTxO "github.com/Salvionied/apollo/serialization/UTxO"
)

const (
	// RouterFee is the flat fee a router collects from a Simple datum UTxO.
	RouterFee int64 = 1_000_000
	// LovelaceMargin covers the minimum UTxO value and transaction fees.
	LovelaceMargin int64 = 5_000_000
)

type DatumKind int

const (
	DatumSimple DatumKind = iota
	DatumAdvanced
)

func (k DatumKind) String() string {
	switch k {
	case DatumSimple:
		return "simple"
	case DatumAdvanced:
		return "advanced"
	default:
		return "unknown"
	}
}

type SimpleDatum struct {
	Owner Address.Address
}

type AdvancedDatum struct {
	// MOwner is nil when the UTxO carries no reclaim authority.
	MOwner           *Address.Address
	RouterFee        *big.Int
	ReclaimRouterFee *big.Int
	ExtraInfo        PlutusData.PlutusData
}

// Datum is the datum locked at the smart handle script. Exactly one of
// Simple and Advanced is set, as selected by Kind.
type Datum struct {
	Kind     DatumKind
	Simple   *SimpleDatum
	Advanced *AdvancedDatum
}

func NewSimpleDatum(owner Address.Address) Datum {
	return Datum{Kind: DatumSimple, Simple: &SimpleDatum{Owner: owner}}
}

func NewAdvancedDatum(d AdvancedDatum) Datum {
	return Datum{Kind: DatumAdvanced, Advanced: &d}
}

// Owner returns the address with reclaim authority, if any.
func (d Datum) Owner() (Address.Address, bool) {
	switch d.Kind {
	case DatumSimple:
		if d.Simple != nil {
			return d.Simple.Owner, true
		}
	case DatumAdvanced:
		if d.Advanced != nil && d.Advanced.MOwner != nil {
			return *d.Advanced.MOwner, true
		}
	}
	return Address.Address{}, false
}

type OutputDatumKind int

const (
	OutputDatumInline OutputDatumKind = iota
	OutputDatumHash
	OutputDatumNone
)

// OutputDatum is the datum attached to an output produced by a route or
// reclaim.
type OutputDatum struct {
	Kind OutputDatumKind
	Data *PlutusData.PlutusData
}

func InlineDatum(pd *PlutusData.PlutusData) OutputDatum {
	return OutputDatum{Kind: OutputDatumInline, Data: pd}
}

// OutputDatumMaker builds the datum of the output that replaces a spent
// smart handle UTxO.
type OutputDatumMaker func(inputAssets Value, inputDatum Datum) (OutputDatum, error)

// AdditionalAction appends extra steps to an in-progress transaction.
type AdditionalAction func(tx TxBuilder, utxo apolloUTxO.UTxO) TxBuilder

type RouteRequest struct {
	RequestOutRef    OutRef
	Kind             DatumKind
	RouteAddress     Address.Address
	OutputDatumMaker OutputDatumMaker
	AdditionalAction AdditionalAction
}

type SingleRouteConfig struct {
	Validator     SingleValidator
	Route         RouteRequest
	ChangeAddress *Address.Address
}

type BatchRouteConfig struct {
	Validators    BatchValidators
	Routes        []RouteRequest
	ChangeAddress *Address.Address
}

type ReclaimRequest struct {
	RequestOutRef OutRef
	Kind          DatumKind
	// OutputDatumMaker is only consulted for Advanced datums.
	OutputDatumMaker OutputDatumMaker
	AdditionalAction AdditionalAction
}

type SingleReclaimConfig struct {
	Validator SingleValidator
	Reclaim   ReclaimRequest
}

type BatchReclaimConfig struct {
	Validators BatchValidators
	Reclaims   []ReclaimRequest
}

type SingleRequestConfig struct {
	Validator SingleValidator
	Lovelace  int64
	// Assets are locked next to Lovelace. Keys follow Value.
	Assets Value
}

type RequestInfo struct {
	Owner    Address.Address
	Lovelace int64
	Assets   Value
}

type BatchRequestConfig struct {
	Validators BatchValidators
	Requests   []RequestInfo
}

// OutputInfo is the output a routed UTxO is reproduced as.
type OutputInfo struct {
	Value   Value
	Datum   OutputDatum
	Address Address.Address
}

type EvalError struct {
	ErrorType  string   `cbor:"error_type"`
	Budget     Budget   `cbor:"budget"`
	DebugTrace []string `cbor:"debug_trace"`
}

type Budget struct {
	Mem uint64 `cbor:"mem"`
	CPU uint64 `cbor:"cpu"`
}

// evalUTxO is the shape the evaluator module expects for resolved inputs.
type evalUTxO struct {
	Address     string            `json:"address"`
	TxHash      string            `json:"tx_hash"`
	OutputIndex uint64            `json:"output_index"`
	DatumHash   *string           `json:"datum_hash,omitempty"`
	Datum       *string           `json:"datum,omitempty"`
	ScriptRef   *evalScriptRef    `json:"script_ref,omitempty"`
	Assets      map[string]uint64 `json:"assets"`
}

type evalScriptRef struct {
	ScriptType string `json:"script_type"`
	Script     string `json:"script"`
}

type UTxOJSON struct {
	Hash    string       `json:"hash"`
	Outputs []OutputJSON `json:"outputs"`
}

type OutputJSON struct {
	TxHash      string      `json:"tx_hash"`
	OutputIndex int         `json:"output_index"`
	Address     string      `json:"address"`
	Amount      []AssetJSON `json:"amount"`
	InlineDatum string      `json:"inline_datum"`
	DataHash    string      `json:"data_hash"`
	ScriptRef   string      `json:"reference_script,omitempty"`
}

type AssetJSON struct {
	Unit     string `json:"unit"`
	Quantity string `json:"quantity"`
}
