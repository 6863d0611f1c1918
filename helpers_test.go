package smarthandles

import (
	"bytes"
	"context"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/Salvionied/apollo/serialization/Address"
	"github.com/Salvionied/apollo/serialization/PlutusData"
	"github.com/Salvionied/apollo/serialization/TransactionInput"
	apolloUTxO "github.com/Salvionied/apollo/serialization/UTxO"
	"github.com/stretchr/testify/require"
)

const (
	testSpendScript    = "4e4d01000033222220051200120011"
	testWithdrawScript = "46010000222601"
)

func testHash(b byte) []byte {
	return bytes.Repeat([]byte{b}, credentialHashSize)
}

func testTxHash(b byte) string {
	return strings.Repeat(hex.EncodeToString([]byte{b}), 32)
}

func testKeyAddress(t *testing.T, b byte) Address.Address {
	t.Helper()
	addr, err := AddressFromCredentials(KeyHashCredential(testHash(b)), nil, Testnet)
	require.NoError(t, err)
	return addr
}

func testSingleValidator(t *testing.T) SingleValidator {
	t.Helper()
	v, err := ResolveSingleValidator(testSpendScript, Testnet, nil)
	require.NoError(t, err)
	return v
}

func testBatchValidators(t *testing.T) BatchValidators {
	t.Helper()
	v, err := ResolveBatchValidators(testSpendScript, testWithdrawScript, Testnet)
	require.NoError(t, err)
	return v
}

func makeUTxO(t *testing.T, ref OutRef, addr Address.Address, value Value, datum *PlutusData.PlutusData) apolloUTxO.UTxO {
	t.Helper()
	id, err := hex.DecodeString(ref.TxHash)
	require.NoError(t, err)
	amount, err := value.ToApolloValue()
	require.NoError(t, err)
	return apolloUTxO.UTxO{
		Input:  TransactionInput.TransactionInput{TransactionId: id, Index: ref.Index},
		Output: createAlonzoOutput(addr, amount, datum, nil),
	}
}

// makeShelleyUTxO builds a pre-Alonzo output, which has no inline datum
// or reference script.
func makeShelleyUTxO(t *testing.T, ref OutRef, addr Address.Address, value Value, datumHashHex string) apolloUTxO.UTxO {
	t.Helper()
	id, err := hex.DecodeString(ref.TxHash)
	require.NoError(t, err)
	amount, err := value.ToApolloValue()
	require.NoError(t, err)
	return apolloUTxO.UTxO{
		Input:  TransactionInput.TransactionInput{TransactionId: id, Index: ref.Index},
		Output: createShelleyOutput(addr, amount, datumHashHex),
	}
}

func datumData(t *testing.T, d Datum) *PlutusData.PlutusData {
	t.Helper()
	pd, err := DatumToPlutusData(d)
	require.NoError(t, err)
	return &pd
}

type collected struct {
	utxo     apolloUTxO.UTxO
	redeemer *PlutusData.PlutusData
}

type payment struct {
	addr  Address.Address
	datum OutputDatum
	value Value
}

type withdrawal struct {
	addr     Address.Address
	lovelace int64
	redeemer PlutusData.PlutusData
}

type fakeTx struct {
	ledger            *fakeLedger
	collected         []collected
	payments          []payment
	spendScripts      []Script
	withdrawalScripts []Script
	signers           [][]byte
	withdrawals       []withdrawal
	change            *Address.Address
}

func (f *fakeTx) CollectFrom(utxos []apolloUTxO.UTxO, redeemer *PlutusData.PlutusData) TxBuilder {
	for _, u := range utxos {
		f.collected = append(f.collected, collected{utxo: u, redeemer: redeemer})
	}
	return f
}

func (f *fakeTx) PayToContract(addr Address.Address, datum OutputDatum, value Value) TxBuilder {
	f.payments = append(f.payments, payment{addr: addr, datum: datum, value: value})
	return f
}

func (f *fakeTx) PayToAddress(addr Address.Address, value Value) TxBuilder {
	f.payments = append(f.payments, payment{addr: addr, datum: OutputDatum{Kind: OutputDatumNone}, value: value})
	return f
}

func (f *fakeTx) AttachSpendingValidator(script Script) TxBuilder {
	f.spendScripts = append(f.spendScripts, script)
	return f
}

func (f *fakeTx) AttachWithdrawalValidator(script Script) TxBuilder {
	f.withdrawalScripts = append(f.withdrawalScripts, script)
	return f
}

func (f *fakeTx) AddSigner(keyHash []byte) TxBuilder {
	f.signers = append(f.signers, keyHash)
	return f
}

func (f *fakeTx) Withdraw(rewardAddr Address.Address, lovelace int64, redeemer PlutusData.PlutusData) TxBuilder {
	f.withdrawals = append(f.withdrawals, withdrawal{addr: rewardAddr, lovelace: lovelace, redeemer: redeemer})
	return f
}

func (f *fakeTx) SetChangeAddress(addr Address.Address) TxBuilder {
	f.change = &addr
	return f
}

func (f *fakeTx) Complete(ctx context.Context) (*SignableTx, error) {
	f.ledger.completed = f
	if f.ledger.completeErr != nil {
		return nil, f.ledger.completeErr
	}
	return &SignableTx{CBOR: []byte{0x84}}, nil
}

// fakeLedger is an in-memory LedgerClient that records the last built
// transaction.
type fakeLedger struct {
	utxos       map[OutRef]apolloUTxO.UTxO
	wallet      Address.Address
	walletUTxOs []apolloUTxO.UTxO
	lookupErr   error
	completeErr error
	// substitute, when set, replaces every by-ref lookup result.
	substitute []apolloUTxO.UTxO
	built      *fakeTx
	completed  *fakeTx
}

func newFakeLedger(wallet Address.Address, utxos ...apolloUTxO.UTxO) *fakeLedger {
	l := &fakeLedger{
		utxos:  map[OutRef]apolloUTxO.UTxO{},
		wallet: wallet,
	}
	for _, u := range utxos {
		l.utxos[OutRefOf(u).normalized()] = u
	}
	return l
}

func (l *fakeLedger) UTxOsByOutRef(ctx context.Context, refs []OutRef) ([]apolloUTxO.UTxO, error) {
	if l.lookupErr != nil {
		return nil, l.lookupErr
	}
	if l.substitute != nil {
		return l.substitute, nil
	}
	var ret []apolloUTxO.UTxO
	for _, ref := range refs {
		if u, ok := l.utxos[ref.normalized()]; ok {
			ret = append(ret, u)
		}
	}
	return ret, nil
}

func (l *fakeLedger) UTxOsAt(ctx context.Context, addr Address.Address) ([]apolloUTxO.UTxO, error) {
	if l.lookupErr != nil {
		return nil, l.lookupErr
	}
	return l.walletUTxOs, nil
}

func (l *fakeLedger) WalletAddress(ctx context.Context) (Address.Address, error) {
	return l.wallet, nil
}

func (l *fakeLedger) NewTx() TxBuilder {
	l.built = &fakeTx{ledger: l}
	return l.built
}

func (l *fakeLedger) fundWallet(t *testing.T, b byte, lovelace int64) apolloUTxO.UTxO {
	t.Helper()
	u := makeUTxO(t, OutRef{TxHash: testTxHash(b), Index: 0}, l.wallet, Lovelace(lovelace), nil)
	l.walletUTxOs = append(l.walletUTxOs, u)
	return u
}

func (l *fakeLedger) fundWalletShelley(t *testing.T, b byte, lovelace int64) apolloUTxO.UTxO {
	t.Helper()
	u := makeShelleyUTxO(t, OutRef{TxHash: testTxHash(b), Index: 0}, l.wallet, Lovelace(lovelace), "")
	l.walletUTxOs = append(l.walletUTxOs, u)
	return u
}
