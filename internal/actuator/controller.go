package actuator

import (
	"errors"
	"fmt"
	log "log/slog"
	"sync"
	"sync/atomic"
	"time"

	"homi/internal/status"
)

var (
	ErrFeedingInFlight = errors.New("feeding sequence already running")
	ErrStopped         = errors.New("actuator stopped")
	ErrAngleRange      = errors.New("angle must be 0-180")
)

const (
	PulseOff uint32 = 0
	minPulse uint32 = 500
	maxPulse uint32 = 2500
)

type Servo interface {
	SetPulseWidth(pin, us uint32) error
	Close() error
}

type Options struct {
	Pin      uint32
	Neutral  int
	Extended int
	Settle   time.Duration
	Hold     time.Duration
	Status   *status.Sink
}

// Controller owns the feeding servo. It is the only writer of the servo
// handle and of the last commanded pulse width.
type Controller struct {
	servo  Servo
	opt    Options
	status *status.Sink

	mu      sync.Mutex
	pulse   uint32
	stopped bool

	done     chan struct{}
	stopOnce sync.Once
	feeding  atomic.Bool
	wg       sync.WaitGroup
}

// NewController wraps servo. A nil servo yields a controller whose moves
// fail and whose Stop is still safe.
func NewController(servo Servo, opt Options) *Controller {
	return &Controller{
		servo:  servo,
		opt:    opt,
		status: opt.Status,
		done:   make(chan struct{}),
	}
}

func PulseForAngle(angle int) uint32 {
	return minPulse + uint32(angle)*(maxPulse-minPulse)/180
}

// MoveTo commands angle and returns after the settle time.
func (c *Controller) MoveTo(angle int) error {
	if angle < 0 || angle > 180 {
		return fmt.Errorf("%w: %d", ErrAngleRange, angle)
	}

	pw := PulseForAngle(angle)

	c.mu.Lock()
	if c.stopped || c.servo == nil {
		c.mu.Unlock()
		return ErrStopped
	}
	err := c.servo.SetPulseWidth(c.opt.Pin, pw)
	if err == nil {
		c.pulse = pw
	}
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("move to %d: %w", angle, err)
	}

	log.Debug("Servo moved", "angle", angle, "pulse", pw)
	return c.sleep(c.opt.Settle)
}

// RunFeedingSequence starts extended, hold, neutral on its own goroutine and
// returns at once. A request while a sequence is in flight is rejected.
func (c *Controller) RunFeedingSequence() error {
	if c.isStopped() {
		return ErrStopped
	}
	if !c.feeding.CompareAndSwap(false, true) {
		return ErrFeedingInFlight
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.feeding.Store(false)
		c.feed()
	}()
	return nil
}

func (c *Controller) feed() {
	log.Info("Starting feeding action", "angle", c.opt.Extended)
	c.status.Publish(status.Actuator, "Moving Servo...")

	err := c.MoveTo(c.opt.Extended)
	if err == nil {
		err = c.sleep(c.opt.Hold)
	}
	if err == nil {
		err = c.MoveTo(c.opt.Neutral)
	}

	if err != nil {
		log.Error("Feeding action aborted", "err", err)
		c.status.Publish(status.Error, "Servo Error!")
		return
	}

	log.Info("Feeding action complete")
	c.status.Publish(status.Success, "Servo Ready ✓")
}

func (c *Controller) sleep(d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-c.done:
		return ErrStopped
	}
}

// Stop switches the servo off and releases the handle. Safe to call any
// number of times, from any goroutine, including on a never-connected
// controller.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Servo cleanup panicked", "panic", r)
			}
		}()

		c.mu.Lock()
		defer c.mu.Unlock()

		c.stopped = true
		close(c.done)
		c.pulse = PulseOff

		if c.servo == nil {
			return
		}
		if err := c.servo.SetPulseWidth(c.opt.Pin, PulseOff); err != nil {
			log.Error("Failed to switch servo off", "err", err)
		}
		if err := c.servo.Close(); err != nil {
			log.Error("Failed to release servo", "err", err)
		}
		log.Info("Servo cleanup completed")
	})
}

func (c *Controller) Pulse() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pulse
}

func (c *Controller) Feeding() bool { return c.feeding.Load() }

// Wait blocks until an in-flight feeding sequence returns.
func (c *Controller) Wait() { c.wg.Wait() }

func (c *Controller) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}
