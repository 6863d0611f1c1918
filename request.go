package smarthandles

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/Salvionied/apollo/serialization/Address"
)

func minimumLock() int64 {
	return RouterFee + LovelaceMargin
}

func checkLockedLovelace(lovelace int64) error {
	if lovelace < minimumLock() {
		return fmt.Errorf(
			"%w: %d lovelace is below the minimum of %d",
			ErrInsufficientFunds,
			lovelace,
			minimumLock(),
		)
	}
	return nil
}

func requestValue(lovelace int64, assets Value) Value {
	extra := assets.Clone()
	delete(extra, "")
	return Union(Lovelace(lovelace), extra)
}

func requestOutput(owner Address.Address, lovelace int64, assets Value, script Address.Address) (OutputInfo, error) {
	pd, err := DatumToPlutusData(NewSimpleDatum(owner))
	if err != nil {
		return OutputInfo{}, err
	}
	return OutputInfo{
		Value:   requestValue(lovelace, assets),
		Datum:   InlineDatum(&pd),
		Address: script,
	}, nil
}

// SingleRequest locks funds at the single mode script with the calling
// wallet as owner.
func SingleRequest(ctx context.Context, client LedgerClient, cfg SingleRequestConfig, opts ...Option) (*SignableTx, error) {
	o := applyOptions(opts)
	return guard(func() (*SignableTx, error) {
		if err := checkLockedLovelace(cfg.Lovelace); err != nil {
			return nil, err
		}
		wallet, err := client.WalletAddress(ctx)
		if err != nil {
			return nil, fmt.Errorf("wallet address lookup failed: %w", err)
		}
		out, err := requestOutput(wallet, cfg.Lovelace, cfg.Assets, cfg.Validator.Address)
		if err != nil {
			return nil, err
		}
		o.logger.Debug(
			"building request",
			"script", cfg.Validator.Address.String(),
			"lovelace", cfg.Lovelace,
		)
		tx, err := complete(ctx, payOutput(client.NewTx(), out))
		if err != nil {
			return nil, err
		}
		o.logger.Info("built request", "lovelace", cfg.Lovelace)
		return tx, nil
	})
}

// BatchRequest locks one output per entry at the batch spend address.
// Every entry is checked before any output is added.
func BatchRequest(ctx context.Context, client LedgerClient, cfg BatchRequestConfig, opts ...Option) (*SignableTx, error) {
	o := applyOptions(opts)
	return guard(func() (*SignableTx, error) {
		outputs := make([]OutputInfo, len(cfg.Requests))
		type entry struct {
			idx int
			req RequestInfo
		}
		entries := make([]entry, len(cfg.Requests))
		for i, req := range cfg.Requests {
			entries[i] = entry{idx: i, req: req}
		}
		messages := ValidateItems(entries, func(e entry) error {
			if err := checkLockedLovelace(e.req.Lovelace); err != nil {
				return err
			}
			out, err := requestOutput(e.req.Owner, e.req.Lovelace, e.req.Assets, cfg.Validators.SpendAddress)
			if err != nil {
				return err
			}
			outputs[e.idx] = out
			return nil
		}, true)
		if err := newAggregateError(messages); err != nil {
			o.logger.Warn("rejected batch request", "failures", len(messages))
			return nil, err
		}
		if len(outputs) == 0 {
			return nil, errors.New("batch request has no entries")
		}
		tx := client.NewTx()
		total := new(big.Int)
		for _, out := range outputs {
			tx = payOutput(tx, out)
			total.Add(total, out.Value.Coin())
		}
		o.logger.Debug("building batch request", "requests", len(outputs))
		signable, err := complete(ctx, tx)
		if err != nil {
			return nil, err
		}
		o.logger.Info("built batch request", "requests", len(outputs), "lovelace", total.String())
		return signable, nil
	})
}
