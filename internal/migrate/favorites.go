// Package migrate repairs denormalized data in the document store.
package migrate

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Iron-Ham/shortkeys/internal/config"
	"github.com/Iron-Ham/shortkeys/internal/errors"
	"github.com/Iron-Ham/shortkeys/internal/event"
	"github.com/Iron-Ham/shortkeys/internal/logging"
	"github.com/Iron-Ham/shortkeys/internal/store"
)

// Migration modes
const (
	// ModeIncrement adds one to a shortcut's counter per favoriting user.
	// Running it twice double-counts.
	ModeIncrement = config.MigrationIncrement
	// ModeRecompute zeroes every counter and writes the exact counts.
	ModeRecompute = config.MigrationRecompute
)

const defaultWorkers = 8

// Options configures FavoritesCount.
type Options struct {
	Mode    string
	Workers int
	Bus     *event.Bus
	Logger  *logging.Logger
}

// Result summarizes a migration run.
type Result struct {
	// Users is the number of users with a non-empty favorites list.
	Users int
	// Pairs is the number of distinct (user, shortcut) pairs found.
	Pairs int
	// Written is the number of counter writes that succeeded.
	Written int
	// Failed is the number of counter writes that failed.
	Failed int
	// Dangling is the number of favorites pointing at missing shortcuts.
	Dangling int
}

type pair struct {
	user     primitive.ObjectID
	shortcut primitive.ObjectID
}

// FavoritesCount brings Shortcut.FavoritesCount in line with the users'
// favorites lists. Failing to read users or shortcuts aborts the run; a
// failed counter write is logged and counted and the run continues.
func FavoritesCount(ctx context.Context, s store.Store, opts Options) (*Result, error) {
	if s == nil {
		return nil, errors.ErrNoStore
	}
	if opts.Mode == "" {
		opts.Mode = ModeIncrement
	}
	if opts.Mode != ModeIncrement && opts.Mode != ModeRecompute {
		return nil, errors.NewValidationError("unknown migration mode").WithField("mode").WithValue(opts.Mode)
	}
	if opts.Workers < 1 {
		opts.Workers = defaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}
	log := opts.Logger.With("migration", "favorites-count", "mode", opts.Mode)

	users, err := s.FindUsersWithFavorites(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find users with favorites")
	}
	populated, err := store.PopulateFavorites(ctx, s, users)
	if err != nil {
		return nil, errors.Wrap(err, "failed to populate favorites")
	}

	res := &Result{Users: len(populated)}
	pairs := distinctPairs(populated, res)
	res.Pairs = len(pairs)
	log.Info("found favorites", "users", res.Users, "pairs", res.Pairs, "dangling", res.Dangling)

	switch opts.Mode {
	case ModeRecompute:
		err = recompute(ctx, s, pairs, opts, log, res)
	default:
		err = increment(ctx, s, pairs, opts, log, res)
	}
	if err != nil {
		return res, err
	}

	log.Info("favorites count migration finished", "written", res.Written, "failed", res.Failed)
	return res, nil
}

// distinctPairs flattens users into (user, shortcut) pairs in user order. A
// shortcut listed twice by one user yields one pair.
func distinctPairs(users []store.PopulatedUser, res *Result) []pair {
	var pairs []pair
	for _, u := range users {
		res.Dangling += u.Dangling
		seen := make(map[primitive.ObjectID]bool, len(u.Shortcuts))
		for _, sc := range u.Shortcuts {
			if seen[sc.ID] {
				continue
			}
			seen[sc.ID] = true
			pairs = append(pairs, pair{user: u.ID, shortcut: sc.ID})
		}
	}
	return pairs
}

func increment(ctx context.Context, s store.Store, pairs []pair, opts Options, log *logging.Logger, res *Result) error {
	var written, failed atomic.Int64
	p := pool.New().WithMaxGoroutines(opts.Workers)

	var canceled error
	for _, pr := range pairs {
		if err := ctx.Err(); err != nil {
			canceled = err
			break
		}
		p.Go(func() {
			log.Info(fmt.Sprintf("Incrementing favorite count for shortcut: %s", pr.shortcut.Hex()))
			err := s.IncrementFavoritesCount(ctx, pr.shortcut, 1)
			if err != nil {
				failed.Add(1)
				log.Error("failed to increment favorite count",
					"shortcut", pr.shortcut.Hex(), "user", pr.user.Hex(), "error", err)
			} else {
				written.Add(1)
			}
			opts.Bus.Publish(event.NewFavoriteIncrementedEvent(pr.shortcut.Hex(), pr.user.Hex(), err))
		})
	}
	p.Wait()

	res.Written = int(written.Load())
	res.Failed = int(failed.Load())
	if canceled != nil {
		return fmt.Errorf("%w: %w", errors.ErrCanceled, canceled)
	}
	return nil
}

func recompute(ctx context.Context, s store.Store, pairs []pair, opts Options, log *logging.Logger, res *Result) error {
	counts := make(map[primitive.ObjectID]int)
	var order []primitive.ObjectID
	for _, pr := range pairs {
		if counts[pr.shortcut] == 0 {
			order = append(order, pr.shortcut)
		}
		counts[pr.shortcut]++
	}

	reset, err := s.ResetFavoritesCounts(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to reset favorite counts")
	}
	log.Info("reset favorite counts", "shortcuts", reset)

	var written, failed atomic.Int64
	p := pool.New().WithMaxGoroutines(opts.Workers)

	var canceled error
	for _, id := range order {
		if err := ctx.Err(); err != nil {
			canceled = err
			break
		}
		n := counts[id]
		p.Go(func() {
			if err := s.SetFavoritesCount(ctx, id, n); err != nil {
				failed.Add(1)
				log.Error("failed to set favorite count", "shortcut", id.Hex(), "count", n, "error", err)
				return
			}
			written.Add(1)
			log.Debug("set favorite count", "shortcut", id.Hex(), "count", n)
		})
	}
	p.Wait()

	res.Written = int(written.Load())
	res.Failed = int(failed.Load())
	if canceled != nil {
		return fmt.Errorf("%w: %w", errors.ErrCanceled, canceled)
	}
	return nil
}
