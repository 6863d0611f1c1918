package smarthandles

import (
	"context"
	"fmt"
	"strings"

	apolloUTxO "github.com/Salvionied/apollo/serialization/UTxO"
)

// guard turns a panic raised by a hook or collaborator into ErrBuildFailure
// so that nothing crosses the endpoint boundary unchecked.
func guard(fn func() (*SignableTx, error)) (tx *SignableTx, err error) {
	defer func() {
		if r := recover(); r != nil {
			tx = nil
			err = fmt.Errorf("%w: %v", ErrBuildFailure, r)
		}
	}()
	return fn()
}

func complete(ctx context.Context, tx TxBuilder) (*SignableTx, error) {
	signable, err := tx.Complete(ctx)
	if err != nil {
		return nil, buildFailure(err)
	}
	return signable, nil
}

func fetchUTxOs(ctx context.Context, client LedgerClient, refs []OutRef) ([]apolloUTxO.UTxO, error) {
	utxos, err := client.UTxOsByOutRef(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("utxo lookup failed: %w", err)
	}
	return utxos, nil
}

// indexUTxOs keys utxos by their normalized out ref.
func indexUTxOs(utxos []apolloUTxO.UTxO) map[OutRef]apolloUTxO.UTxO {
	ret := make(map[OutRef]apolloUTxO.UTxO, len(utxos))
	for _, u := range utxos {
		ret[OutRefOf(u).normalized()] = u
	}
	return ret
}

func missingRefs(refs []OutRef, found map[OutRef]apolloUTxO.UTxO) []string {
	var missing []string
	for _, ref := range refs {
		if _, ok := found[ref.normalized()]; !ok {
			missing = append(missing, ref.String())
		}
	}
	return missing
}

func notFound(missing []string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, strings.Join(missing, ", "))
}

// payOutput pays to a plain address when there is no datum to attach.
func payOutput(tx TxBuilder, info OutputInfo) TxBuilder {
	if info.Datum.Kind == OutputDatumNone || info.Datum.Data == nil {
		return tx.PayToAddress(info.Address, info.Value)
	}
	return tx.PayToContract(info.Address, info.Datum, info.Value)
}
