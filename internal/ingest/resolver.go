package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

var ErrMalformedURL = errors.New("malformed resource url")

// ResourceID extracts the numeric identifier from an upstream resource URL,
// taken as the second-to-last "/"-separated segment:
// https://swapi.dev/api/people/5/ -> "5".
func ResourceID(url string) (string, error) {
	parts := strings.Split(strings.TrimSpace(url), "/")
	if len(parts) < 2 {
		return "", fmt.Errorf("%w: %q", ErrMalformedURL, url)
	}
	id := parts[len(parts)-2]
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return "", fmt.Errorf("%w: %q", ErrMalformedURL, url)
	}
	return id, nil
}

// FindFunc looks up a persisted entity whose url ends with suffix. It
// returns (nil, nil) when there is none.
type FindFunc[T any] func(ctx context.Context, suffix string) (*T, error)

// Resolve maps upstream URLs onto the local IDs of entities already in the
// store, keeping input order and dropping duplicates. References that are
// malformed, unknown or fail to look up are left out; they never fail the
// batch.
func Resolve[T any](ctx context.Context, log zerolog.Logger, urls []string, find FindFunc[T], idOf func(*T) int64) []int64 {
	ids := make([]int64, 0, len(urls))
	seen := make(map[int64]struct{}, len(urls))

	for _, u := range urls {
		key, err := ResourceID(u)
		if err != nil {
			log.Debug().Err(err).Msg("skipping reference")
			continue
		}
		ent, err := find(ctx, "/"+key+"/")
		if err != nil {
			log.Warn().Err(err).Str("url", u).Msg("reference lookup failed")
			continue
		}
		if ent == nil {
			log.Debug().Str("url", u).Msg("reference not in store")
			continue
		}
		id := idOf(ent)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
