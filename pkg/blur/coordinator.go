package blur

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// State is a step of a single blur call. Calls move strictly forward through
// Created, Partitioned, Running, Joined and Complete, or stop in Failed.
type State int

const (
	StateCreated State = iota
	StatePartitioned
	StateRunning
	StateJoined
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StatePartitioned:
		return "partitioned"
	case StateRunning:
		return "running"
	case StateJoined:
		return "joined"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Observer receives one report per Blur call. bands is zero when the call
// failed validation.
type Observer interface {
	ObserveBlur(bands, pixels int, duration time.Duration, err error)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger log.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithObserver reports every call to o.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		c.observer = o
	}
}

// WithTransitionHook calls fn each time a blur call changes state. fn runs on
// the calling goroutine, never from a worker.
func WithTransitionHook(fn func(State)) Option {
	return func(c *Coordinator) {
		c.onTransition = fn
	}
}

// Coordinator runs box blurs. It holds no per-call state and may be shared
// between goroutines; every Blur call spawns its own workers.
type Coordinator struct {
	logger       log.Logger
	observer     Observer
	onTransition func(State)

	// work is the per-band kernel, replaced in tests.
	work func(src, dst []byte, band Band, radius int)
}

func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		logger: log.NewNopLogger(),
		work:   blurBand,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var defaultCoordinator = NewCoordinator()

// Blur runs img through a box blur using a default Coordinator.
func Blur(ctx context.Context, img Image, kernel KernelSpec, threadCount int) (Image, error) {
	return defaultCoordinator.Blur(ctx, img, kernel, threadCount)
}

// Blur returns a new image in which every pixel is the average of its
// kernel.Size×kernel.Size neighborhood in img. threadCount is clamped to the
// image height. img is never modified. On error the returned Image is zero and
// no partially written buffer escapes.
//
// ctx is only consulted before workers start; a started blur runs to completion.
func (c *Coordinator) Blur(ctx context.Context, img Image, kernel KernelSpec, threadCount int) (Image, error) {
	start := time.Now()
	out, bands, err := c.blur(ctx, img, kernel, threadCount)
	if err != nil {
		c.transition(StateFailed)
	}
	if c.observer != nil {
		c.observer.ObserveBlur(bands, img.Width*img.Height, time.Since(start), err)
	}
	return out, err
}

func (c *Coordinator) blur(ctx context.Context, img Image, kernel KernelSpec, threadCount int) (Image, int, error) {
	c.transition(StateCreated)

	if threadCount < 1 {
		return Image{}, 0, fmt.Errorf("%w: thread count %d must be positive", ErrInvalidArgument, threadCount)
	}
	if err := kernel.Validate(); err != nil {
		return Image{}, 0, err
	}
	if err := img.Validate(); err != nil {
		return Image{}, 0, err
	}

	bands, err := Partition(img.Width, img.Height, threadCount)
	if err != nil {
		return Image{}, 0, err
	}
	if err := checkBands(bands, img.Width, img.Height); err != nil {
		return Image{}, 0, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	c.transition(StatePartitioned)
	level.Debug(c.logger).Log("msg", "partitioned image", "width", img.Width, "height", img.Height,
		"bands", len(bands), "kernel", kernel.Size)

	if err := ctx.Err(); err != nil {
		return Image{}, 0, err
	}

	dst := NewImage(img.Width, img.Height)
	stride := img.Stride()
	radius := kernel.Radius()
	failures := make([]error, len(bands))

	c.transition(StateRunning)
	var wg sync.WaitGroup
	for i, band := range bands {
		lo := band.StartRow * stride
		hi := (band.EndRow + 1) * stride
		wg.Add(1)
		go func(i int, band Band, out []byte) {
			defer wg.Done()
			failures[i] = c.runWorker(img.Pix, out, band, radius)
		}(i, band, dst.Pix[lo:hi:hi])
	}
	wg.Wait()
	c.transition(StateJoined)

	var failed WorkerFailure
	for i, err := range failures {
		if err != nil {
			failed.Bands = append(failed.Bands, bands[i])
			failed.Causes = append(failed.Causes, err)
		}
	}
	if len(failed.Bands) > 0 {
		level.Error(c.logger).Log("msg", "blur workers failed", "failed", len(failed.Bands), "bands", len(bands))
		return Image{}, len(bands), &failed
	}

	level.Debug(c.logger).Log("msg", "joined workers", "bands", len(bands))
	c.transition(StateComplete)
	return dst, len(bands), nil
}

func (c *Coordinator) runWorker(src, dst []byte, band Band, radius int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panicked: %v", r)
		}
	}()
	c.work(src, dst, band, radius)
	return nil
}

func (c *Coordinator) transition(s State) {
	if c.onTransition != nil {
		c.onTransition(s)
	}
}
