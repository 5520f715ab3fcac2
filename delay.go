package webpic

// SPDX-License-Identifier: GPL-3.0-only

import (
	"context"
	"math/rand/v2"
	"time"
)

// DelayBounds is the range a randomized pause before each request is drawn
// from.
type DelayBounds struct {
	Min time.Duration
	Max time.Duration
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

var (
	defaultDelay = DelayBounds{Min: 1000 * time.Millisecond, Max: 2500 * time.Millisecond}

	// Sites known to ban aggressive clients get longer pauses.
	siteDelays = map[SiteType]DelayBounds{
		Weibo:   {Min: 2500 * time.Millisecond, Max: 5000 * time.Millisecond},
		EHentai: {Min: 5000 * time.Millisecond, Max: 7500 * time.Millisecond},
	}
)

// DefaultDelay returns the delay bounds used for site when the caller has not
// overridden them.
func DefaultDelay(site SiteType) DelayBounds {
	if b, ok := siteDelays[site]; ok {
		return b
	}
	return defaultDelay
}

// pick draws a duration uniformly from [Min, Max].  Inverted bounds collapse
// to Min.
func (b DelayBounds) pick() time.Duration {
	if b.Max <= b.Min {
		return max(b.Min, 0)
	}
	return max(b.Min+rand.N(b.Max-b.Min+1), 0)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
