package channel

import (
	"context"
	"math/rand"
	"time"
)

// pacer spaces remote calls inside one fetch scope. The base delay starts
// low and doubles on every rate-limit escalation, capped so a noisy hour
// cannot push the adapter into minutes-long stalls.
type pacer struct {
	base time.Duration
	last time.Time
}

func (a *Adapter) newPacer() *pacer {
	return &pacer{base: initialBaseDelay}
}

// pace sleeps out the remainder of the base delay since the previous call,
// scaled by jitter in [0.5, 1.5) so request spacing never looks mechanical.
func (a *Adapter) pace(ctx context.Context, p *pacer) {
	if !p.last.IsZero() {
		if elapsed := a.now().Sub(p.last); elapsed < p.base {
			jitter := 0.5 + a.randFloat()
			a.sleep(ctx, time.Duration(float64(p.base-elapsed)*jitter))
		}
	}
	p.last = a.now()
}

func (p *pacer) escalate() {
	p.base *= 2
	if p.base > maxBaseDelay {
		p.base = maxBaseDelay
	}
}

// uniform draws a duration in [lo, hi) seconds.
func (a *Adapter) uniform(lo, hi float64) time.Duration {
	secs := lo + a.randFloat()*(hi-lo)
	return time.Duration(secs * float64(time.Second))
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func randFloat64() float64 { return rand.Float64() }
