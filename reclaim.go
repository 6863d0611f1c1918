package smarthandles

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"

	"github.com/Salvionied/apollo/serialization/Address"
	apolloUTxO "github.com/Salvionied/apollo/serialization/UTxO"
)

type reclaimItem struct {
	// idx is the position of req in the reclaim config.
	idx  int
	utxo apolloUTxO.UTxO
	req  ReclaimRequest
}

// ownerKeyHash checks that the datum grants reclaim authority to signer.
func ownerKeyHash(datum Datum, signer []byte) (Address.Address, error) {
	owner, ok := datum.Owner()
	if !ok {
		return Address.Address{}, fmt.Errorf("%w: datum carries no owner", ErrUnauthorized)
	}
	ownerHash, err := PaymentKeyHash(owner)
	if err != nil {
		return Address.Address{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if !bytes.Equal(ownerHash, signer) {
		return Address.Address{}, fmt.Errorf(
			"%w: owner %s, signer %s",
			ErrUnauthorized,
			hex.EncodeToString(ownerHash),
			hex.EncodeToString(signer),
		)
	}
	return owner, nil
}

// reclaimOutput gives the output an Advanced datum UTxO is returned to its
// owner as. Simple datum UTxOs have none; their funds come back as change.
func reclaimOutput(item reclaimItem, datum Datum, owner Address.Address) (*OutputInfo, error) {
	if datum.Kind != DatumAdvanced {
		return nil, nil
	}
	fee := bigOrZero(datum.Advanced.ReclaimRouterFee)
	if fee.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative reclaim router fee %s", ErrInvalidDatum, fee)
	}
	value, err := ReduceCoinBy(FromApolloValue(item.utxo.Output.GetAmount()), fee)
	if err != nil {
		return nil, err
	}
	out := OutputInfo{
		Value:   value,
		Datum:   OutputDatum{Kind: OutputDatumNone},
		Address: owner,
	}
	if item.req.OutputDatumMaker != nil {
		out.Datum, err = item.req.OutputDatumMaker(value, datum)
		if err != nil {
			return nil, fmt.Errorf("reclaim output datum: %w", err)
		}
	}
	return &out, nil
}

func checkReclaim(item reclaimItem, network Network, signer []byte) (*OutputInfo, error) {
	datum, err := SafeDatumFromUTxO(item.utxo, item.req.Kind, network)
	if err != nil {
		return nil, err
	}
	owner, err := ownerKeyHash(datum, signer)
	if err != nil {
		return nil, err
	}
	return reclaimOutput(item, datum, owner)
}

func walletKeyHash(ctx context.Context, client LedgerClient) ([]byte, error) {
	wallet, err := client.WalletAddress(ctx)
	if err != nil {
		return nil, fmt.Errorf("wallet address lookup failed: %w", err)
	}
	hash, err := PaymentKeyHash(wallet)
	if err != nil {
		return nil, fmt.Errorf("%w: wallet: %w", ErrUnauthorized, err)
	}
	return hash, nil
}

// SingleReclaim returns a locked UTxO to its owner, who must be the
// calling wallet.
func SingleReclaim(ctx context.Context, client LedgerClient, cfg SingleReclaimConfig, opts ...Option) (*SignableTx, error) {
	o := applyOptions(opts)
	return guard(func() (*SignableTx, error) {
		ref := cfg.Reclaim.RequestOutRef
		utxos, err := fetchUTxOs(ctx, client, []OutRef{ref})
		if err != nil {
			return nil, err
		}
		found := indexUTxOs(utxos)
		utxo, ok := found[ref.normalized()]
		if !ok {
			return nil, notFound([]string{ref.String()})
		}
		signer, err := walletKeyHash(ctx, client)
		if err != nil {
			return nil, err
		}
		item := reclaimItem{utxo: utxo, req: cfg.Reclaim}
		out, err := checkReclaim(item, cfg.Validator.Network, signer)
		if err != nil {
			return nil, err
		}
		redeemer := ReclaimRedeemer()
		tx := client.NewTx().
			CollectFrom([]apolloUTxO.UTxO{utxo}, &redeemer).
			AddSigner(signer).
			AttachSpendingValidator(cfg.Validator.Script)
		if out != nil {
			tx = payOutput(tx, *out)
		}
		if cfg.Reclaim.AdditionalAction != nil {
			tx = cfg.Reclaim.AdditionalAction(tx, utxo)
		}
		o.logger.Debug("building reclaim", "outRef", ref.String())
		signable, err := complete(ctx, tx)
		if err != nil {
			return nil, err
		}
		o.logger.Info("built reclaim", "outRef", ref.String())
		return signable, nil
	})
}

// BatchReclaim returns every found UTxO to its owner in one transaction.
// All entries are checked and every failure is reported together, prefixed
// with the entry's position in cfg.Reclaims.
func BatchReclaim(ctx context.Context, client LedgerClient, cfg BatchReclaimConfig, opts ...Option) (*SignableTx, error) {
	o := applyOptions(opts)
	return guard(func() (*SignableTx, error) {
		refs := make([]OutRef, 0, len(cfg.Reclaims))
		for _, req := range cfg.Reclaims {
			refs = append(refs, req.RequestOutRef)
		}
		utxos, err := fetchUTxOs(ctx, client, refs)
		if err != nil {
			return nil, err
		}
		found := indexUTxOs(utxos)
		if len(found) == 0 {
			return nil, notFound(missingRefs(refs, found))
		}
		if missing := missingRefs(refs, found); len(missing) > 0 {
			o.logger.Warn("skipping reclaims of unknown utxos", "outRefs", missing)
		}
		var items []reclaimItem
		for i, req := range cfg.Reclaims {
			if utxo, ok := found[req.RequestOutRef.normalized()]; ok {
				items = append(items, reclaimItem{idx: i, utxo: utxo, req: req})
			}
		}
		signer, err := walletKeyHash(ctx, client)
		if err != nil {
			return nil, err
		}
		outputs := make(map[OutRef]*OutputInfo, len(items))
		messages := ValidateItems(items, func(item reclaimItem) error {
			out, err := checkReclaim(item, cfg.Validators.Network, signer)
			if err != nil {
				return fmt.Errorf("%s%w", indexPrefix(item.idx), err)
			}
			outputs[OutRefOf(item.utxo).normalized()] = out
			return nil
		}, false)
		if err := newAggregateError(messages); err != nil {
			o.logger.Warn("rejected batch reclaim", "failures", len(messages))
			return nil, err
		}
		spent := make([]apolloUTxO.UTxO, 0, len(items))
		for _, item := range items {
			spent = append(spent, item.utxo)
		}
		redeemer := ReclaimRedeemer()
		tx := client.NewTx().
			CollectFrom(spent, &redeemer).
			AddSigner(signer).
			AttachSpendingValidator(cfg.Validators.Spending)
		for _, item := range items {
			if out := outputs[OutRefOf(item.utxo).normalized()]; out != nil {
				tx = payOutput(tx, *out)
			}
		}
		for _, item := range items {
			if item.req.AdditionalAction != nil {
				tx = item.req.AdditionalAction(tx, item.utxo)
			}
		}
		o.logger.Debug("building batch reclaim", "utxos", len(items))
		signable, err := complete(ctx, tx)
		if err != nil {
			return nil, err
		}
		o.logger.Info("built batch reclaim", "utxos", len(items))
		return signable, nil
	})
}
