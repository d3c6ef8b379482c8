package github

import (
	"context"
	"fmt"
	"iter"

	"github.com/shurcooL/githubv4"
)

// pageInfo is the GraphQL PageInfo selection shared by every connection.
type pageInfo struct {
	HasNextPage githubv4.Boolean
	EndCursor   githubv4.String
}

// PageFunc fetches the page that starts after cursor. A nil cursor requests
// the first page.
type PageFunc[T any] func(ctx context.Context, cursor *githubv4.String) ([]T, pageInfo, error)

// Pages lazily walks a cursor-paginated connection, yielding one page of
// nodes at a time. Iteration ends after the last page, when the consumer
// stops, or after yielding the first error.
func Pages[T any](ctx context.Context, fetch PageFunc[T]) iter.Seq2[[]T, error] {
	return func(yield func([]T, error) bool) {
		var cursor *githubv4.String
		for page := 1; ; page++ {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			nodes, info, err := fetch(ctx, cursor)
			if err != nil {
				yield(nil, fmt.Errorf("failed to fetch page %d: %w", page, err))
				return
			}
			if !yield(nodes, nil) {
				return
			}
			if !bool(info.HasNextPage) {
				return
			}
			if info.EndCursor == "" || (cursor != nil && *cursor == info.EndCursor) {
				yield(nil, fmt.Errorf("page %d reported more results without advancing the cursor", page))
				return
			}

			next := info.EndCursor
			cursor = &next
		}
	}
}

// drain concatenates every page. On error the nodes gathered so far are
// returned alongside it.
func drain[T any](seq iter.Seq2[[]T, error]) ([]T, error) {
	var all []T
	for nodes, err := range seq {
		if err != nil {
			return all, err
		}
		all = append(all, nodes...)
	}
	return all, nil
}
