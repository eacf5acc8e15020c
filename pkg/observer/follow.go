package observer

import (
	"context"
	"errors"
	"time"
)

// State identifies where the follower is in its lifecycle.
type State int

const (
	StateConnected State = iota
	StateReconnecting
	StatePolling
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StatePolling:
		return "polling"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// FollowOptions tunes reconnect and poll behavior. The zero value gets
// production defaults.
type FollowOptions struct {
	// ReconnectBase is the first reconnect delay. It doubles per consecutive
	// failure up to ReconnectMax.
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	// MaxReconnects is how many consecutive stream failures are retried
	// before the follower gives up on the feed and polls the record instead.
	MaxReconnects int
	PollInterval  time.Duration

	// OnEvent receives every decoded stream event, terminal ones included.
	OnEvent func(Event)
	// OnState is invoked on each state change with the consecutive failure
	// count at that moment. May be nil.
	OnState func(State, int)
}

func (o FollowOptions) withDefaults() FollowOptions {
	if o.ReconnectBase <= 0 {
		o.ReconnectBase = time.Second
	}
	if o.ReconnectMax <= 0 {
		o.ReconnectMax = 30 * time.Second
	}
	if o.MaxReconnects <= 0 {
		o.MaxReconnects = 5
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 3 * time.Second
	}
	return o
}

// Follow tracks a job until it reaches a terminal outcome. It consumes the
// live event stream, reconnects with growing delays when the stream drops
// mid-run, and falls back to polling the job record once the stream has
// failed too many times in a row. Receiving any event resets the failure
// count. After a terminal outcome arrives on either path, Follow returns
// and never resubscribes.
func (c *Client) Follow(ctx context.Context, jobID string, opts FollowOptions) (Result, error) {
	opts = opts.withDefaults()

	failures := 0
	enter := func(s State) {
		if opts.OnState != nil {
			opts.OnState(s, failures)
		}
	}
	onEvent := func(ev Event) {
		failures = 0
		if opts.OnEvent != nil {
			opts.OnEvent(ev)
		}
	}

	for {
		enter(StateConnected)
		res, _, err := c.stream(ctx, jobID, onEvent)
		if res != nil {
			enter(StateTerminal)
			return *res, nil
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if isNotFound(err) {
			// The record does not exist; no amount of retrying helps.
			return Result{}, err
		}

		failures++
		if failures <= opts.MaxReconnects {
			enter(StateReconnecting)
			if err := sleep(ctx, reconnectDelay(opts, failures)); err != nil {
				return Result{}, err
			}
			continue
		}

		// The feed is not coming back; watch the record itself.
		for {
			enter(StatePolling)
			job, err := c.Job(ctx, jobID)
			switch {
			case err == nil:
				switch job.Status {
				case StatusInspected:
					enter(StateTerminal)
					return Result{Status: StatusInspected}, nil
				case StatusError:
					enter(StateTerminal)
					return Result{Status: StatusError, ErrorMessage: job.ErrorMessage}, nil
				}
			case isNotFound(err):
				return Result{}, err
			}
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}

			// Still running. Give the stream one try before the next poll.
			enter(StateConnected)
			res, delivered, _ := c.stream(ctx, jobID, onEvent)
			if res != nil {
				enter(StateTerminal)
				return *res, nil
			}
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			if delivered {
				// The feed recovered for a while; resume the reconnect
				// ladder with a fresh failure count.
				failures = 1
				enter(StateReconnecting)
				if err := sleep(ctx, reconnectDelay(opts, failures)); err != nil {
					return Result{}, err
				}
				break
			}
			if err := sleep(ctx, opts.PollInterval); err != nil {
				return Result{}, err
			}
		}
	}
}

// reconnectDelay doubles the base delay per consecutive failure, capped at
// the configured maximum.
func reconnectDelay(opts FollowOptions, failures int) time.Duration {
	d := opts.ReconnectBase
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= opts.ReconnectMax {
			return opts.ReconnectMax
		}
	}
	if d > opts.ReconnectMax {
		return opts.ReconnectMax
	}
	return d
}

func isNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
