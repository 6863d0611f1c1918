package smarthandles

import (
	"context"
	"fmt"
	"math/big"
	"slices"

	"github.com/Salvionied/apollo/serialization/Address"
	apolloUTxO "github.com/Salvionied/apollo/serialization/UTxO"
)

// UTxOToOutputInfo computes the output a routed UTxO is reproduced as: its
// value minus the router fee, carrying the datum from the request's maker.
func UTxOToOutputInfo(utxo apolloUTxO.UTxO, req RouteRequest, network Network) (OutputInfo, error) {
	if got := OutRefOf(utxo); CompareOutRefs(got, req.RequestOutRef) != 0 {
		return OutputInfo{}, fmt.Errorf(
			"%w: config targets %s, utxo is %s",
			ErrConfigMismatch,
			req.RequestOutRef,
			got,
		)
	}
	datum, err := SafeDatumFromUTxO(utxo, req.Kind, network)
	if err != nil {
		return OutputInfo{}, err
	}
	var fee *big.Int
	switch datum.Kind {
	case DatumSimple:
		fee = big.NewInt(RouterFee)
	case DatumAdvanced:
		fee = bigOrZero(datum.Advanced.RouterFee)
	default:
		return OutputInfo{}, fmt.Errorf("%w: unknown kind %d", ErrKindMismatch, datum.Kind)
	}
	if fee.Sign() < 0 {
		return OutputInfo{}, fmt.Errorf("%w: negative router fee %s", ErrInvalidDatum, fee)
	}
	locked := FromApolloValue(utxo.Output.GetAmount())
	value, err := ReduceCoinBy(locked, fee)
	if err != nil {
		return OutputInfo{}, err
	}
	out := OutputInfo{
		Value:   value,
		Datum:   OutputDatum{Kind: OutputDatumNone},
		Address: req.RouteAddress,
	}
	if req.OutputDatumMaker != nil {
		out.Datum, err = req.OutputDatumMaker(locked, datum)
		if err != nil {
			return OutputInfo{}, fmt.Errorf("output datum: %w", err)
		}
	}
	return out, nil
}

// feeInputs picks wallet UTxOs covering the routing margin.
func feeInputs(ctx context.Context, client LedgerClient) (Address.Address, []apolloUTxO.UTxO, error) {
	wallet, err := client.WalletAddress(ctx)
	if err != nil {
		return Address.Address{}, nil, fmt.Errorf("wallet address lookup failed: %w", err)
	}
	available, err := client.UTxOsAt(ctx, wallet)
	if err != nil {
		return Address.Address{}, nil, fmt.Errorf("utxo lookup failed: %w", err)
	}
	selected, err := SelectUTxOs(available, Lovelace(LovelaceMargin))
	if err != nil {
		return Address.Address{}, nil, fmt.Errorf("router wallet: %w", err)
	}
	return wallet, selected, nil
}

func changeAddress(cfg *Address.Address, wallet Address.Address) Address.Address {
	if cfg != nil {
		return *cfg
	}
	return wallet
}

// SingleRoute spends one locked UTxO and pays it onward at its route
// address.
func SingleRoute(ctx context.Context, client LedgerClient, cfg SingleRouteConfig, opts ...Option) (*SignableTx, error) {
	o := applyOptions(opts)
	return guard(func() (*SignableTx, error) {
		ref := cfg.Route.RequestOutRef
		utxos, err := fetchUTxOs(ctx, client, []OutRef{ref})
		if err != nil {
			return nil, err
		}
		if len(utxos) == 0 {
			return nil, notFound([]string{ref.String()})
		}
		utxo := utxos[0]
		info, err := UTxOToOutputInfo(utxo, cfg.Route, cfg.Validator.Network)
		if err != nil {
			return nil, err
		}
		wallet, fees, err := feeInputs(ctx, client)
		if err != nil {
			return nil, err
		}
		indices, err := BuildInputIndices(
			[]OutRef{OutRefOf(utxo)},
			outRefsOf(append(slices.Clone(fees), utxo)),
		)
		if err != nil {
			return nil, err
		}
		redeemer := RouteRedeemer(indices[0], 0)
		tx := client.NewTx().
			CollectFrom([]apolloUTxO.UTxO{utxo}, &redeemer).
			CollectFrom(fees, nil).
			AttachSpendingValidator(cfg.Validator.Script)
		tx = payOutput(tx, info)
		tx = tx.SetChangeAddress(changeAddress(cfg.ChangeAddress, wallet))
		if cfg.Route.AdditionalAction != nil {
			tx = cfg.Route.AdditionalAction(tx, utxo)
		}
		o.logger.Debug(
			"building route",
			"outRef", ref.String(),
			"inputIndex", indices[0],
			"feeInputs", len(fees),
		)
		signable, err := complete(ctx, tx)
		if err != nil {
			return nil, err
		}
		o.logger.Info("built route", "outRef", ref.String())
		return signable, nil
	})
}

type routeItem struct {
	idx  int
	utxo apolloUTxO.UTxO
	req  RouteRequest
}

// BatchRoute spends every requested UTxO in one transaction, delegating
// validation to the withdrawal validator. Every referenced UTxO must exist
// and be named only once.
func BatchRoute(ctx context.Context, client LedgerClient, cfg BatchRouteConfig, opts ...Option) (*SignableTx, error) {
	o := applyOptions(opts)
	return guard(func() (*SignableTx, error) {
		refs := make([]OutRef, 0, len(cfg.Routes))
		seen := make(map[OutRef]struct{}, len(cfg.Routes))
		for _, req := range cfg.Routes {
			key := req.RequestOutRef.normalized()
			if _, dup := seen[key]; dup {
				return nil, fmt.Errorf("%w: duplicate route for %s", ErrConfigMismatch, req.RequestOutRef)
			}
			seen[key] = struct{}{}
			refs = append(refs, req.RequestOutRef)
		}
		utxos, err := fetchUTxOs(ctx, client, refs)
		if err != nil {
			return nil, err
		}
		found := indexUTxOs(utxos)
		if missing := missingRefs(refs, found); len(missing) > 0 || len(utxos) != len(refs) {
			if len(missing) == 0 {
				missing = []string{fmt.Sprintf("expected %d utxos, found %d", len(refs), len(utxos))}
			}
			return nil, notFound(missing)
		}
		items := make([]routeItem, len(cfg.Routes))
		for i, req := range cfg.Routes {
			items[i] = routeItem{idx: i, utxo: found[req.RequestOutRef.normalized()], req: req}
		}
		infos := make([]OutputInfo, len(items))
		messages := ValidateItems(items, func(item routeItem) error {
			info, err := UTxOToOutputInfo(item.utxo, item.req, cfg.Validators.Network)
			if err != nil {
				return err
			}
			infos[item.idx] = info
			return nil
		}, true)
		if err := newAggregateError(messages); err != nil {
			o.logger.Warn("rejected batch route", "failures", len(messages))
			return nil, err
		}
		wallet, fees, err := feeInputs(ctx, client)
		if err != nil {
			return nil, err
		}
		spent := make([]apolloUTxO.UTxO, len(items))
		for i, item := range items {
			spent[i] = item.utxo
		}
		routed := outRefsOf(spent)
		inputIndices, err := BuildInputIndices(routed, slices.Concat(routed, outRefsOf(fees)))
		if err != nil {
			return nil, err
		}
		outputIndices := make([]int, len(items))
		for i := range outputIndices {
			outputIndices[i] = i
		}
		spendRedeemer := BatchSpendRedeemer()
		tx := client.NewTx().
			CollectFrom(spent, &spendRedeemer).
			CollectFrom(fees, nil).
			AttachSpendingValidator(cfg.Validators.Spending).
			AttachWithdrawalValidator(cfg.Validators.Withdrawal).
			Withdraw(
				cfg.Validators.RewardAddress,
				0,
				WithdrawalRedeemer(inputIndices, outputIndices),
			)
		for _, info := range infos {
			tx = payOutput(tx, info)
		}
		tx = tx.SetChangeAddress(changeAddress(cfg.ChangeAddress, wallet))
		for _, item := range items {
			if item.req.AdditionalAction != nil {
				tx = item.req.AdditionalAction(tx, item.utxo)
			}
		}
		o.logger.Debug(
			"building batch route",
			"utxos", len(items),
			"feeInputs", len(fees),
		)
		signable, err := complete(ctx, tx)
		if err != nil {
			return nil, err
		}
		o.logger.Info("built batch route", "utxos", len(items))
		return signable, nil
	})
}
