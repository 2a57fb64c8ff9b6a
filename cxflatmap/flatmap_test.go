package cxflatmap_test

import (
	"errors"
	"slices"
	"sync"
	"testing"

	combinex "github.com/cx-org/CombineX-sub003"
	"github.com/cx-org/CombineX-sub003/combinextest"
	"github.com/cx-org/CombineX-sub003/cxdemand"
	"github.com/cx-org/CombineX-sub003/cxflatmap"
	"github.com/cx-org/CombineX-sub003/cxsubject"
	"github.com/cx-org/CombineX-sub003/internal/cxtest"
	"github.com/stretchr/testify/require"
)

// fixture wires a manual upstream to a flat-map whose children
// are manual publishers, one per upstream value.
type fixture struct {
	Upstream *combinextest.ManualPublisher[int]

	mu       sync.Mutex
	children []*combinextest.ManualPublisher[int]

	FlatMap *cxflatmap.Publisher[int, int]
}

func newFixture(t *testing.T, max cxdemand.Demand) *fixture {
	t.Helper()

	f := &fixture{
		Upstream: combinextest.NewManualPublisher[int](),
	}
	f.FlatMap = cxflatmap.New(
		cxtest.NewLogger(t),
		f.Upstream,
		cxflatmap.Config{MaxConcurrent: max},
		func(int) combinex.Publisher[int] {
			p := combinextest.NewManualPublisher[int]()
			f.mu.Lock()
			f.children = append(f.children, p)
			f.mu.Unlock()
			return p
		},
	)
	return f
}

// Child returns the subscription for the i'th child publisher.
func (f *fixture) Child(i int) *combinextest.ManualSubscription[int] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.children[i].Last()
}

func (f *fixture) ChildCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.children)
}

func TestNew_panicsOnZeroMax(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() {
		cxflatmap.New(
			cxtest.NewLogger(t),
			combinex.Empty[int](),
			cxflatmap.Config{},
			func(int) combinex.Publisher[int] { return combinex.Empty[int]() },
		)
	})
}

func TestFlatMap_mergesSynchronousChildren(t *testing.T) {
	t.Parallel()

	fm := cxflatmap.New(
		cxtest.NewLogger(t),
		combinex.Sequence(1, 2, 3),
		cxflatmap.Config{MaxConcurrent: cxdemand.Unlimited},
		func(v int) combinex.Publisher[int] {
			return combinex.Sequence(v*10, v*10+1)
		},
	)

	r := combinextest.NewRecorder(combinextest.RecorderConfig[int]{
		InitialDemand: cxdemand.Unlimited,
	})
	fm.Subscribe(r)

	require.Equal(t, []int{10, 11, 20, 21, 30, 31}, r.Values())
	c, ok := r.Completion()
	require.True(t, ok)
	require.True(t, c.IsFinished())
	require.False(t, r.Overlapped())
}

func TestFlatMap_synchronousChildrenLimitedDemand(t *testing.T) {
	t.Parallel()

	fm := cxflatmap.New(
		cxtest.NewLogger(t),
		combinex.Sequence(1, 2, 3),
		cxflatmap.Config{MaxConcurrent: cxdemand.Max(1)},
		func(v int) combinex.Publisher[int] {
			return combinex.Sequence(v, v, v)
		},
	)

	r := combinextest.NewRecorder(combinextest.RecorderConfig[int]{
		InitialDemand: cxdemand.Max(4),
	})
	fm.Subscribe(r)
	require.Equal(t, []int{1, 1, 1, 2}, r.Values())

	r.Request(cxdemand.Max(10))
	require.Equal(t, []int{1, 1, 1, 2, 2, 2, 3, 3, 3}, r.Values())
	_, ok := r.Completion()
	require.True(t, ok)
}

func TestFlatMap_boundedFanOut(t *testing.T) {
	t.Parallel()

	f := newFixture(t, cxdemand.Max(2))
	r := combinextest.NewRecorder(combinextest.RecorderConfig[int]{
		InitialDemand: cxdemand.Unlimited,
	})
	f.FlatMap.Subscribe(r)

	up := f.Upstream.Last()
	require.Equal(t, cxdemand.Max(2), up.Requested())

	require.True(t, up.Send(1))
	require.True(t, up.Send(2))
	require.Equal(t, 2, f.ChildCount())
	require.Equal(t, cxdemand.None, up.Outstanding())

	// Each child asks for exactly one value.
	require.Equal(t, cxdemand.Max(1), f.Child(0).Requested())
	require.Equal(t, cxdemand.Max(1), f.Child(1).Requested())

	// A finished child frees one slot.
	f.Child(0).Complete(combinex.Finished)
	require.Equal(t, cxdemand.Max(3), up.Requested())
	require.True(t, up.Send(3))
	require.Equal(t, 3, f.ChildCount())
	require.Equal(t, cxdemand.None, up.Outstanding())
}

func TestFlatMap_upstreamExceedingDemandPanics(t *testing.T) {
	t.Parallel()

	bad := combinex.PublisherFunc[int](func(s combinex.Subscriber[int]) {
		s.OnSubscribe(combinex.EmptySubscription)
		s.OnValue(1)
		s.OnValue(2)
	})
	fm := cxflatmap.New(
		cxtest.NewLogger(t),
		bad,
		cxflatmap.Config{MaxConcurrent: cxdemand.Max(1)},
		func(int) combinex.Publisher[int] { return combinextest.NewManualPublisher[int]() },
	)

	require.Panics(t, func() {
		fm.Subscribe(combinextest.NewRecorder(combinextest.RecorderConfig[int]{}))
	})
}

func TestFlatMap_upstreamSignalBeforeSubscribePanics(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name   string
		signal func(combinex.Subscriber[int])
		op     string
	}{
		{
			name:   "value",
			signal: func(s combinex.Subscriber[int]) { s.OnValue(1) },
			op:     "OnValue",
		},
		{
			name:   "completion",
			signal: func(s combinex.Subscriber[int]) { s.OnCompletion(combinex.Finished) },
			op:     "OnCompletion",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			bad := combinex.PublisherFunc[int](tc.signal)
			fm := cxflatmap.New(
				cxtest.NewLogger(t),
				bad,
				cxflatmap.Config{MaxConcurrent: cxdemand.Max(1)},
				func(int) combinex.Publisher[int] { return combinextest.NewManualPublisher[int]() },
			)

			r := combinextest.NewRecorder(combinextest.RecorderConfig[int]{})
			require.PanicsWithValue(t, combinex.ContractViolationError{
				Op:     "cxflatmap upstream " + tc.op,
				Reason: "called before OnSubscribe",
			}, func() {
				fm.Subscribe(r)
			})
			require.False(t, r.Subscribed())
		})
	}
}

func TestFlatMap_childSignalBeforeSubscribePanics(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name   string
		signal func(combinex.Subscriber[int])
		op     string
	}{
		{
			name:   "value",
			signal: func(s combinex.Subscriber[int]) { s.OnValue(42) },
			op:     "OnValue",
		},
		{
			name:   "completion",
			signal: func(s combinex.Subscriber[int]) { s.OnCompletion(combinex.Finished) },
			op:     "OnCompletion",
		},
		{
			name: "failure",
			signal: func(s combinex.Subscriber[int]) {
				s.OnCompletion(combinex.Failed(errors.New("boom")))
			},
			op: "OnCompletion",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fm := cxflatmap.New(
				cxtest.NewLogger(t),
				combinex.Just(1),
				cxflatmap.Config{MaxConcurrent: cxdemand.Max(1)},
				func(int) combinex.Publisher[int] { return combinex.PublisherFunc[int](tc.signal) },
			)

			r := combinextest.NewRecorder(combinextest.RecorderConfig[int]{
				InitialDemand: cxdemand.Unlimited,
			})
			require.PanicsWithValue(t, combinex.ContractViolationError{
				Op:     "cxflatmap child " + tc.op,
				Reason: "called before OnSubscribe",
			}, func() {
				fm.Subscribe(r)
			})
			require.Empty(t, r.Values())
			_, ok := r.Completion()
			require.False(t, ok)
		})
	}
}

func TestFlatMap_bufferedChildrenDrainRoundRobin(t *testing.T) {
	t.Parallel()

	f := newFixture(t, cxdemand.Unlimited)
	r := combinextest.NewRecorder(combinextest.RecorderConfig[int]{})
	f.FlatMap.Subscribe(r)

	up := f.Upstream.Last()
	for i := range 3 {
		require.True(t, up.Send(i))
	}

	// Buffer in an order different from creation order.
	require.True(t, f.Child(2).Send(200))
	require.True(t, f.Child(0).Send(0))
	require.True(t, f.Child(1).Send(100))
	require.Empty(t, r.Values())

	r.Request(cxdemand.Max(2))
	require.Equal(t, []int{200, 0}, r.Values())

	// Drained children were asked for their next value; child 1 was not.
	require.Equal(t, cxdemand.Max(2), f.Child(2).Requested())
	require.Equal(t, cxdemand.Max(2), f.Child(0).Requested())
	require.Equal(t, cxdemand.Max(1), f.Child(1).Requested())

	// Child 0 buffers again, behind child 1.
	require.True(t, f.Child(0).Send(1))
	r.Request(cxdemand.Max(2))
	require.Equal(t, []int{200, 0, 100, 1}, r.Values())
}

func TestFlatMap_unlimitedDrainsEveryChild(t *testing.T) {
	t.Parallel()

	f := newFixture(t, cxdemand.Unlimited)
	r := combinextest.NewRecorder(combinextest.RecorderConfig[int]{})
	f.FlatMap.Subscribe(r)

	up := f.Upstream.Last()
	for i := range 4 {
		require.True(t, up.Send(i))
		require.True(t, f.Child(i).Send(i))
	}

	r.Request(cxdemand.Unlimited)
	require.Equal(t, []int{0, 1, 2, 3}, r.Values())
	for i := range 4 {
		require.Equal(t, cxdemand.Max(2), f.Child(i).Requested())
	}

	// With unlimited demand values pass straight through.
	require.True(t, f.Child(2).Send(20))
	require.Equal(t, []int{0, 1, 2, 3, 20}, r.Values())
}

func TestFlatMap_singleSlotLastValueWins(t *testing.T) {
	t.Parallel()

	// A child publisher that ignores demand and sends twice.
	pushy := combinex.PublisherFunc[string](func(s combinex.Subscriber[string]) {
		s.OnSubscribe(combinex.EmptySubscription)
		s.OnValue("first")
		s.OnValue("second")
	})

	fm := cxflatmap.New(
		cxtest.NewLogger(t),
		combinex.Just(1),
		cxflatmap.Config{MaxConcurrent: cxdemand.Unlimited},
		func(int) combinex.Publisher[string] { return pushy },
	)

	r := combinextest.NewRecorder(combinextest.RecorderConfig[string]{})
	fm.Subscribe(r)
	r.Request(cxdemand.Max(5))

	require.Equal(t, []string{"second"}, r.Values())
}

func TestFlatMap_finishWaitsForBufferedValues(t *testing.T) {
	t.Parallel()

	f := newFixture(t, cxdemand.Unlimited)
	r := combinextest.NewRecorder(combinextest.RecorderConfig[int]{})
	f.FlatMap.Subscribe(r)

	up := f.Upstream.Last()
	require.True(t, up.Send(1))
	require.True(t, f.Child(0).Send(10))
	f.Child(0).Complete(combinex.Finished)
	up.Complete(combinex.Finished)

	_, ok := r.Completion()
	require.False(t, ok, "buffered value must be delivered before finishing")

	r.Request(cxdemand.Max(1))
	require.Equal(t, []combinextest.Event[int]{
		{Kind: combinextest.SubscriptionEvent},
		{Kind: combinextest.ValueEvent, Value: 10},
		{Kind: combinextest.CompletionEvent, Completion: combinex.Finished},
	}, r.Events())
}

func TestFlatMap_upstreamFinishedWithNoChildren(t *testing.T) {
	t.Parallel()

	f := newFixture(t, cxdemand.Max(3))
	r := combinextest.NewRecorder(combinextest.RecorderConfig[int]{})
	f.FlatMap.Subscribe(r)

	f.Upstream.Last().Complete(combinex.Finished)

	c, ok := r.Completion()
	require.True(t, ok)
	require.True(t, c.IsFinished())
}

func TestFlatMap_childFailureIsFailFast(t *testing.T) {
	t.Parallel()

	f := newFixture(t, cxdemand.Max(2))
	r := combinextest.NewRecorder(combinextest.RecorderConfig[int]{})
	f.FlatMap.Subscribe(r)

	up := f.Upstream.Last()
	require.True(t, up.Send(1))
	require.True(t, up.Send(2))

	// Child for 2 is mid-flight with a buffered value.
	require.True(t, f.Child(1).Send(20))

	want := errors.New("child 1 failed")
	f.Child(0).Complete(combinex.Failed(want))

	c, ok := r.Completion()
	require.True(t, ok)
	require.ErrorIs(t, c.Err, want)

	require.True(t, up.Cancelled())
	require.True(t, f.Child(1).Cancelled())

	// Nothing gets through after the failure.
	require.False(t, up.Send(3))
	require.False(t, f.Child(1).Send(21))
	r.Request(cxdemand.Unlimited)
	require.Empty(t, r.Values())
	require.Equal(t, 2, f.ChildCount())
}

func TestFlatMap_firstFailureWins(t *testing.T) {
	t.Parallel()

	// Children that keep their subscriber around even after cancellation,
	// so that a second failure can still be attempted.
	var subs []combinex.Subscriber[int]
	fm := cxflatmap.New(
		cxtest.NewLogger(t),
		combinex.Sequence(1, 2),
		cxflatmap.Config{MaxConcurrent: cxdemand.Unlimited},
		func(int) combinex.Publisher[int] {
			return combinex.PublisherFunc[int](func(s combinex.Subscriber[int]) {
				subs = append(subs, s)
				s.OnSubscribe(combinex.EmptySubscription)
			})
		},
	)

	r := combinextest.NewRecorder(combinextest.RecorderConfig[int]{})
	fm.Subscribe(r)
	require.Len(t, subs, 2)

	first := errors.New("first")
	subs[1].OnCompletion(combinex.Failed(first))

	// The recorder panics on a second completion.
	subs[0].OnCompletion(combinex.Failed(errors.New("second")))
	require.Equal(t, cxdemand.None, subs[0].OnValue(5))

	c, ok := r.Completion()
	require.True(t, ok)
	require.ErrorIs(t, c.Err, first)
	require.Empty(t, r.Values())
}

func TestFlatMap_cancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, cxdemand.Unlimited)
	r := combinextest.NewRecorder(combinextest.RecorderConfig[int]{
		InitialDemand: cxdemand.Unlimited,
	})
	f.FlatMap.Subscribe(r)

	up := f.Upstream.Last()
	require.True(t, up.Send(1))
	require.True(t, up.Send(2))
	require.True(t, f.Child(0).Send(10))

	r.Cancel()
	r.Cancel()

	require.True(t, up.Cancelled())
	require.True(t, f.Child(0).Cancelled())
	require.True(t, f.Child(1).Cancelled())

	require.False(t, f.Child(1).Send(20))
	require.Equal(t, []int{10}, r.Values())
	_, ok := r.Completion()
	require.False(t, ok)
}

func TestFlatMap_cancelFromOnValue(t *testing.T) {
	t.Parallel()

	fm := cxflatmap.New(
		cxtest.NewLogger(t),
		combinex.Sequence(1, 2),
		cxflatmap.Config{MaxConcurrent: cxdemand.Unlimited},
		func(v int) combinex.Publisher[int] { return combinex.Sequence(v, v) },
	)

	r := combinextest.NewRecorder(combinextest.RecorderConfig[int]{
		InitialDemand: cxdemand.Unlimited,
		OnValue: func(r *combinextest.Recorder[int], _ int) cxdemand.Demand {
			r.Cancel()
			return cxdemand.None
		},
	})
	fm.Subscribe(r)

	require.Equal(t, []int{1}, r.Values())
	_, ok := r.Completion()
	require.False(t, ok)
}

func TestFlatMap_childrenAsSubjects(t *testing.T) {
	t.Parallel()

	log := cxtest.NewLogger(t)
	var subjects []*cxsubject.Passthrough[int]
	fm := cxflatmap.New(
		log,
		combinex.Just("only"),
		cxflatmap.Config{MaxConcurrent: cxdemand.Max(1)},
		func(string) combinex.Publisher[int] {
			s := cxsubject.NewPassthrough[int](log)
			subjects = append(subjects, s)
			return s
		},
	)

	r := combinextest.NewRecorder(combinextest.RecorderConfig[int]{
		InitialDemand: cxdemand.Max(1),
	})
	fm.Subscribe(r)
	require.Len(t, subjects, 1)
	s := subjects[0]

	// Delivered immediately, and the child's demand is replenished.
	s.Send(1)
	// No downstream demand: buffered in the child, so the child's demand is spent.
	s.Send(2)
	// The subject drops this one, as the child has no demand.
	s.Send(3)
	require.Equal(t, []int{1}, r.Values())

	r.Request(cxdemand.Max(2))
	s.Send(4)
	require.Equal(t, []int{1, 2, 4}, r.Values())

	s.SendCompletion(combinex.Finished)
	c, ok := r.Completion()
	require.True(t, ok)
	require.True(t, c.IsFinished())
}

// The total delivered downstream never exceeds cumulative requested demand,
// and the number of live children never exceeds the bound,
// under a pseudorandom interleaving of events.
func TestFlatMap_demandConservation(t *testing.T) {
	t.Parallel()

	const max = 3
	rng := cxtest.RandForTest(t)

	f := newFixture(t, cxdemand.Max(max))
	r := combinextest.NewRecorder(combinextest.RecorderConfig[int]{})
	f.FlatMap.Subscribe(r)
	up := f.Upstream.Last()

	requested := 0
	completed := make(map[int]bool)
	next := 0

	for range 2000 {
		switch rng.IntN(4) {
		case 0:
			if up.Outstanding().Positive() {
				require.True(t, up.Send(next))
				next++
			}
		case 1:
			if n := f.ChildCount(); n > 0 {
				i := rng.IntN(n)
				c := f.Child(i)
				if !completed[i] && c.Outstanding().Positive() {
					c.Send(i)
				}
			}
		case 2:
			d := rng.IntN(3)
			requested += d
			r.Request(cxdemand.Max(d))
		case 3:
			if n := f.ChildCount(); n > 0 {
				i := rng.IntN(n)
				if !completed[i] {
					f.Child(i).Complete(combinex.Finished)
					completed[i] = true
				}
			}
		}

		require.LessOrEqual(t, len(r.Values()), requested)
		require.LessOrEqual(t, f.ChildCount()-len(completed), max)
	}

	require.NotZero(t, len(r.Values()), "test made no progress")
}

func TestFlatMap_concurrentRequests(t *testing.T) {
	t.Parallel()

	const inner = 50
	const outer = 10

	fm := cxflatmap.New(
		cxtest.NewLogger(t),
		combinex.Sequence(0, 1, 2, 3, 4, 5, 6, 7, 8, 9),
		cxflatmap.Config{MaxConcurrent: cxdemand.Max(3)},
		func(v int) combinex.Publisher[int] {
			vals := make([]int, inner)
			for i := range vals {
				vals[i] = v*inner + i
			}
			return combinex.Sequence(vals...)
		},
	)

	r := combinextest.NewRecorder(combinextest.RecorderConfig[int]{})
	fm.Subscribe(r)

	var wg sync.WaitGroup
	for range outer {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range inner {
				r.Request(cxdemand.Max(1))
			}
		}()
	}
	wg.Wait()

	cxtest.ReceiveSoon(t, r.Done())

	vals := r.Values()
	require.Len(t, vals, inner*outer)
	slices.Sort(vals)
	for i, v := range vals {
		require.Equal(t, i, v)
	}
	require.False(t, r.Overlapped(), "downstream callbacks overlapped")
}
