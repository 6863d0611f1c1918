package smarthandles

import (
	"context"

	"github.com/Salvionied/apollo/serialization/Address"
	"github.com/Salvionied/apollo/serialization/PlutusData"
	"github.com/Salvionied/apollo/serialization/Transaction"
	apolloUTxO "github.com/Salvionied/apollo/serialization/UTxO"
)

// LedgerClient is the chain access the endpoints need.
type LedgerClient interface {
	// UTxOsByOutRef returns the unspent outputs among refs. Spent or unknown
	// refs are left out rather than reported as errors.
	UTxOsByOutRef(ctx context.Context, refs []OutRef) ([]apolloUTxO.UTxO, error)
	UTxOsAt(ctx context.Context, addr Address.Address) ([]apolloUTxO.UTxO, error)
	WalletAddress(ctx context.Context) (Address.Address, error)
	NewTx() TxBuilder
}

// TxBuilder accumulates a transaction. Methods chain. Errors surface from
// Complete.
type TxBuilder interface {
	CollectFrom(utxos []apolloUTxO.UTxO, redeemer *PlutusData.PlutusData) TxBuilder
	PayToContract(addr Address.Address, datum OutputDatum, value Value) TxBuilder
	PayToAddress(addr Address.Address, value Value) TxBuilder
	AttachSpendingValidator(script Script) TxBuilder
	AttachWithdrawalValidator(script Script) TxBuilder
	AddSigner(keyHash []byte) TxBuilder
	Withdraw(rewardAddr Address.Address, lovelace int64, redeemer PlutusData.PlutusData) TxBuilder
	SetChangeAddress(addr Address.Address) TxBuilder
	Complete(ctx context.Context) (*SignableTx, error)
}

// SignableTx is a balanced transaction awaiting witnesses.
type SignableTx struct {
	Tx   *Transaction.Transaction
	CBOR []byte
}
