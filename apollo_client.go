package smarthandles

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Salvionied/apollo"
	"github.com/Salvionied/apollo/serialization"
	"github.com/Salvionied/apollo/serialization/Address"
	"github.com/Salvionied/apollo/serialization/PlutusData"
	"github.com/Salvionied/apollo/serialization/Redeemer"
	apolloUTxO "github.com/Salvionied/apollo/serialization/UTxO"
	base "github.com/Salvionied/apollo/txBuilding/Backend/Base"
	apolloCbor "github.com/Salvionied/cbor/v2"
)

// ApolloClient is a LedgerClient over an apollo chain context. Transactions
// are balanced by apollo against the configured wallet.
type ApolloClient struct {
	cc        base.ChainContext
	wallet    Address.Address
	evaluator *Evaluator
	logger    *slog.Logger
}

type ApolloClientOption func(*ApolloClient)

// WithEvaluator makes Complete run every built transaction through e.
func WithEvaluator(e *Evaluator) ApolloClientOption {
	return func(c *ApolloClient) {
		c.evaluator = e
	}
}

func WithClientLogger(logger *slog.Logger) ApolloClientOption {
	return func(c *ApolloClient) {
		c.logger = logger
	}
}

func NewApolloClient(cc base.ChainContext, walletBech32 string, opts ...ApolloClientOption) (*ApolloClient, error) {
	if cc == nil {
		return nil, errors.New("nil chain context")
	}
	wallet, err := Address.DecodeAddress(walletBech32)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet address: %w", err)
	}
	c := &ApolloClient{
		cc:     cc,
		wallet: wallet,
		logger: applyOptions(nil).logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *ApolloClient) UTxOsByOutRef(ctx context.Context, refs []OutRef) ([]apolloUTxO.UTxO, error) {
	utxos := make([]apolloUTxO.UTxO, 0, len(refs))
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		utxo := c.cc.GetUtxoFromRef(strings.ToLower(ref.TxHash), ref.Index)
		if utxo == nil {
			c.logger.Debug("utxo not found", "outRef", ref.String())
			continue
		}
		utxos = append(utxos, *utxo)
	}
	return utxos, nil
}

func (c *ApolloClient) UTxOsAt(ctx context.Context, addr Address.Address) ([]apolloUTxO.UTxO, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.cc.Utxos(addr), nil
}

func (c *ApolloClient) WalletAddress(ctx context.Context) (Address.Address, error) {
	return c.wallet, ctx.Err()
}

func (c *ApolloClient) NewTx() TxBuilder {
	b := apollo.New(c.cc).
		SetWalletFromBech32(c.wallet.String()).
		SetChangeAddress(c.wallet)
	return &apolloTx{client: c, b: b}
}

type apolloTx struct {
	client *ApolloClient
	b      *apollo.Apollo
	spent  []apolloUTxO.UTxO
	err    error
}

func (t *apolloTx) fail(err error) TxBuilder {
	if t.err == nil {
		t.err = err
	}
	return t
}

func (t *apolloTx) CollectFrom(utxos []apolloUTxO.UTxO, redeemer *PlutusData.PlutusData) TxBuilder {
	for _, utxo := range utxos {
		t.spent = append(t.spent, utxo)
		if redeemer == nil {
			t.b = t.b.ConsumeUTxO(utxo)
			continue
		}
		t.b = t.b.CollectFrom(utxo, Redeemer.Redeemer{
			Tag:  Redeemer.SPEND,
			Data: *redeemer,
		})
	}
	return t
}

// units splits v into lovelace and apollo units. Asset names are hex in v
// and raw bytes in apollo units.
func units(v Value) (int, []apollo.Unit, error) {
	coin := v.Coin()
	if !coin.IsInt64() {
		return 0, nil, fmt.Errorf("lovelace quantity %s out of range", coin.String())
	}
	var ret []apollo.Unit
	for policy, assets := range v {
		if policy == "" {
			continue
		}
		for name, qty := range assets {
			if !qty.IsInt64() {
				return 0, nil, fmt.Errorf("quantity %s of %s%s out of range", qty.String(), policy, name)
			}
			rawName, err := hex.DecodeString(name)
			if err != nil {
				return 0, nil, fmt.Errorf("invalid asset name %q: %w", name, err)
			}
			ret = append(ret, apollo.NewUnit(policy, string(rawName), int(qty.Int64())))
		}
	}
	return int(coin.Int64()), ret, nil
}

func (t *apolloTx) PayToContract(addr Address.Address, datum OutputDatum, value Value) TxBuilder {
	lovelace, us, err := units(value)
	if err != nil {
		return t.fail(err)
	}
	if datum.Data == nil || datum.Kind == OutputDatumNone {
		t.b = t.b.PayToAddress(addr, lovelace, us...)
		return t
	}
	inline := datum.Kind == OutputDatumInline
	t.b = t.b.PayToContract(addr, datum.Data, lovelace, inline, us...)
	if !inline {
		t.b = t.b.AttachDatum(datum.Data)
	}
	return t
}

func (t *apolloTx) PayToAddress(addr Address.Address, value Value) TxBuilder {
	lovelace, us, err := units(value)
	if err != nil {
		return t.fail(err)
	}
	t.b = t.b.PayToAddress(addr, lovelace, us...)
	return t
}

func (t *apolloTx) AttachSpendingValidator(script Script) TxBuilder {
	t.b = t.b.AttachV2Script(PlutusData.PlutusV2Script(script.CBOR))
	return t
}

func (t *apolloTx) AttachWithdrawalValidator(script Script) TxBuilder {
	t.b = t.b.AttachV2Script(PlutusData.PlutusV2Script(script.CBOR))
	return t
}

func (t *apolloTx) AddSigner(keyHash []byte) TxBuilder {
	if len(keyHash) != credentialHashSize {
		return t.fail(fmt.Errorf("signer key hash must be %d bytes, got %d", credentialHashSize, len(keyHash)))
	}
	var pkh serialization.PubKeyHash
	copy(pkh[:], keyHash)
	t.b = t.b.AddRequiredSigner(pkh)
	return t
}

func (t *apolloTx) Withdraw(rewardAddr Address.Address, lovelace int64, redeemer PlutusData.PlutusData) TxBuilder {
	t.b = t.b.AddWithdrawal(rewardAddr, int(lovelace), redeemer)
	return t
}

func (t *apolloTx) SetChangeAddress(addr Address.Address) TxBuilder {
	t.b = t.b.SetChangeAddress(addr)
	return t
}

func (t *apolloTx) Complete(ctx context.Context) (*SignableTx, error) {
	if t.err != nil {
		return nil, t.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	built, err := t.b.Complete()
	if err != nil {
		return nil, err
	}
	tx := built.GetTx()
	txBytes, err := apolloCbor.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}
	signable := &SignableTx{Tx: tx, CBOR: txBytes}
	if t.client.evaluator != nil {
		utxos, err := GetUtxosFromTx(ctx, txBytes, t.client.cc)
		if err != nil {
			return nil, err
		}
		if err := t.client.evaluator.Check(ctx, signable, utxos); err != nil {
			return nil, err
		}
	}
	return signable, nil
}
