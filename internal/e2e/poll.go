// AngelaMos | 2026
// poll.go

package e2e

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
)

// eventually retries check at a fixed interval until it succeeds or the
// client timeout passes. API errors in the 4xx range other than 404 and 409
// are permanent; everything else is assumed to be state still converging.
func (c *Client) eventually(ctx context.Context, what string, check func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var last error
	op := func() error {
		err := check(ctx)
		if err != nil {
			// keep the last real failure, not the deadline that cut a probe short
			if last == nil || ctx.Err() == nil {
				last = err
			}
			if permanent(err) {
				return backoff.Permanent(err)
			}
		}
		return err
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(c.interval), ctx)
	if err := backoff.Retry(op, b); err != nil {
		if last == nil {
			last = err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: gave up after %s: %w", what, c.timeout, last)
		}
		return fmt.Errorf("%s: %w", what, last)
	}
	return nil
}

func permanent(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Status {
	case 404, 409, 429:
		return false
	}
	return apiErr.Status >= 400 && apiErr.Status < 500
}
