package smarthandles

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ItemCheck returns an error describing why item is rejected, or nil.
type ItemCheck[T any] func(item T) error

// ItemCheckAsync is the blocking counterpart of ItemCheck. A non-nil
// returned error aborts the whole validation, while a non-empty message
// only rejects the item.
type ItemCheckAsync[T any] func(ctx context.Context, item T) (string, error)

func indexPrefix(i int) string {
	return fmt.Sprintf("(bad entry at index %d) ", i)
}

// ValidateItems runs check on every item and collects the failure
// messages. It does not stop at the first failure.
func ValidateItems[T any](items []T, check ItemCheck[T], prependIndex bool) []string {
	var messages []string
	for i, item := range items {
		err := check(item)
		if err == nil {
			continue
		}
		msg := err.Error()
		if prependIndex {
			msg = indexPrefix(i) + msg
		}
		messages = append(messages, msg)
	}
	return messages
}

// ValidateItemsAsync runs check on every item concurrently. Messages come
// back in item order whatever order the checks finish in.
func ValidateItemsAsync[T any](
	ctx context.Context,
	items []T,
	check ItemCheckAsync[T],
	prependIndex bool,
) ([]string, error) {
	results := make([]string, len(items))
	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		g.Go(func() error {
			msg, err := check(gctx, item)
			if err != nil {
				return err
			}
			results[i] = msg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var messages []string
	for i, msg := range results {
		if msg == "" {
			continue
		}
		if prependIndex {
			msg = indexPrefix(i) + msg
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
