// Package observer maintains sets of watched regions against a margined
// root region and reports intersection changes only when a configured
// threshold ratio is crossed. It is the layer between raw host signals and
// the step sequencing built on top.
package observer

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/yantonsoup/d3-playground/geom"
	"github.com/yantonsoup/d3-playground/host"
)

// DefaultThrottle is the minimum interval between recompute passes.
// Recomputing requires reading layout; recomputing on every scroll or
// mutation signal would thrash it.
const DefaultThrottle = 100 * time.Millisecond

// Ancestor walks give up past this depth so a malformed parent chain can
// never hang a recompute.
const maxAncestorDepth = 256

// Report is one computed intersection for a watched target.
type Report struct {
	Time             time.Time
	Target           host.Element
	TargetRect       geom.Region
	RootRect         geom.Region
	IntersectionRect geom.Region
	HasIntersection  bool
	Ratio            float64
	IsIntersecting   bool
}

// effectiveRatio maps a non-intersecting report onto a sentinel strictly
// below every real threshold, so appearance and disappearance are
// crossings like any other.
func effectiveRatio(r *Report) float64 {
	if r == nil || !r.IsIntersecting {
		return -1
	}
	return r.Ratio
}

// Options configures a Registry.
type Options struct {
	// Root is the reference element; nil means the viewport.
	Root host.Element
	// RootMargin expands (or shrinks) the root region before comparison.
	// Percentages resolve against the root's own dimensions.
	RootMargin geom.Margin
	// Thresholds are the ratios at which changes are reported.
	// Empty means {0}.
	Thresholds geom.ThresholdSet
	// Throttle caps recompute frequency; zero means DefaultThrottle.
	Throttle time.Duration
}

// Registry watches targets against one (root, margin, thresholds)
// configuration. It monitors host signals only while it has targets.
type Registry struct {
	h          host.Host
	opts       Options
	deliver    func([]Report)
	targets    []*target
	index      map[string]*target
	limiter    *rate.Limiter
	pending    bool
	cancelWait func()
	detach     func()
}

type target struct {
	el   host.Element
	last *Report
}

// New creates a Registry delivering changed-report batches to fn. Invalid
// thresholds are a configuration error.
func New(h host.Host, opts Options, fn func([]Report)) (*Registry, error) {
	ts, err := geom.NewThresholds(opts.Thresholds...)
	if err != nil {
		return nil, fmt.Errorf("observer: %w", err)
	}
	opts.Thresholds = ts
	if opts.Throttle <= 0 {
		opts.Throttle = DefaultThrottle
	}
	return &Registry{
		h:       h,
		opts:    opts,
		deliver: fn,
		index:   make(map[string]*target),
		limiter: rate.NewLimiter(rate.Every(opts.Throttle), 1),
	}, nil
}

// Observe starts watching el. Already-watched elements are a no-op. The
// first report for a new target is computed immediately and always
// delivered, since there is no prior state to compare against.
func (r *Registry) Observe(el host.Element) {
	if _, ok := r.index[el.Key()]; ok {
		return
	}
	t := &target{el: el}
	r.targets = append(r.targets, t)
	r.index[el.Key()] = t
	if r.detach == nil {
		r.detach = r.h.Subscribe(r.onSignal)
	}

	now := r.h.Now()
	root := r.rootRegion()
	rep := r.compute(t, root, now)
	t.last = &rep
	r.deliver([]Report{rep})
}

// Unobserve stops watching el. When the last target is removed the
// registry releases its signal subscription and any pending recompute.
func (r *Registry) Unobserve(el host.Element) {
	t, ok := r.index[el.Key()]
	if !ok {
		return
	}
	delete(r.index, el.Key())
	for i, cand := range r.targets {
		if cand == t {
			r.targets = append(r.targets[:i], r.targets[i+1:]...)
			break
		}
	}
	if len(r.targets) == 0 {
		r.stop()
	}
}

// Disconnect removes every target and stops monitoring.
func (r *Registry) Disconnect() {
	r.targets = nil
	r.index = make(map[string]*target)
	r.stop()
}

func (r *Registry) stop() {
	if r.detach != nil {
		r.detach()
		r.detach = nil
	}
	if r.cancelWait != nil {
		r.cancelWait()
		r.cancelWait = nil
	}
	r.pending = false
}

// Refresh recomputes all targets immediately, bypassing the throttle.
func (r *Registry) Refresh() {
	r.recompute(r.h.Now())
}

func (r *Registry) onSignal(host.Signal) {
	if r.pending {
		return
	}
	now := r.h.Now()
	res := r.limiter.ReserveN(now, 1)
	if d := res.DelayFrom(now); d > 0 {
		// Coalesce into one trailing recompute at the end of the
		// throttle interval.
		r.pending = true
		r.cancelWait = r.h.Defer(d, func() {
			r.pending = false
			r.cancelWait = nil
			r.recompute(r.h.Now())
		})
		return
	}
	r.recompute(now)
}

// recompute reads layout for every target in one pass and delivers a
// single batch of reports whose effective ratio crossed a threshold.
func (r *Registry) recompute(now time.Time) {
	if len(r.targets) == 0 {
		return
	}
	root := r.rootRegion()
	var batch []Report
	for _, t := range r.targets {
		rep := r.compute(t, root, now)
		if r.changed(t.last, &rep) {
			batch = append(batch, rep)
		}
		last := rep
		t.last = &last
	}
	if len(batch) > 0 {
		r.deliver(batch)
	}
}

func (r *Registry) changed(prev, next *Report) bool {
	if prev == nil {
		return true
	}
	old, new := effectiveRatio(prev), effectiveRatio(next)
	if old == new {
		return false
	}
	return r.opts.Thresholds.Crossed(old, new)
}

// rootRegion returns the margin-expanded reference region.
func (r *Registry) rootRegion() geom.Region {
	var base geom.Region
	if r.opts.Root != nil {
		if br, ok := r.h.BoundingRect(r.opts.Root); ok {
			base = br
		}
	} else {
		vw, vh := r.h.ViewportSize()
		base = geom.FromRect(0, 0, vw, vh)
	}
	return geom.Expand(base, r.opts.RootMargin, base.Width, base.Height)
}

// compute builds the report for one target: the target's rect, reduced by
// every clipping ancestor between it and the root, intersected with the
// expanded root region. A target whose geometry cannot be read degenerates
// to a zero-size non-intersecting report rather than an error.
func (r *Registry) compute(t *target, root geom.Region, now time.Time) Report {
	rep := Report{Time: now, Target: t.el, RootRect: root}

	tr, ok := r.h.BoundingRect(t.el)
	if !ok {
		return rep
	}
	rep.TargetRect = tr

	rect := tr
	visible := true
	el := t.el
	for depth := 0; ; depth++ {
		parent, ok := r.h.Parent(el)
		if !ok || depth > maxAncestorDepth {
			break
		}
		if r.opts.Root != nil && parent.Key() == r.opts.Root.Key() {
			break
		}
		if r.h.DocumentLevel(parent) {
			// The outermost document containers never clip; the
			// expanded root region is the final clip below.
			break
		}
		if !r.h.Rendered(parent) {
			visible = false
			break
		}
		if r.h.ClipsOverflow(parent) {
			pr, ok := r.h.BoundingRect(parent)
			if !ok {
				visible = false
				break
			}
			clipped, overlaps := geom.Intersect(rect, pr)
			if !overlaps {
				visible = false
				break
			}
			rect = clipped
		}
		el = parent
	}

	if !visible {
		return rep
	}
	inter, overlaps := geom.Intersect(rect, root)
	if !overlaps {
		return rep
	}
	rep.IntersectionRect = inter
	rep.HasIntersection = true
	rep.IsIntersecting = true
	if area := tr.Area(); area > 0 {
		rep.Ratio = inter.Area() / area
	} else {
		// Degenerate zero-area target: fully visible counts as 1.
		rep.Ratio = 1
	}
	return rep
}

// Size returns the number of watched targets.
func (r *Registry) Size() int { return len(r.targets) }
