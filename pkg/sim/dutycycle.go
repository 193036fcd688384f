package sim

import (
	"context"
	"errors"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/loranode/loranode-go/pkg/clock"
)

// ErrAirtimeExceedsBudget is returned when a single frame needs more airtime
// than the whole duty-cycle window allows.
var ErrAirtimeExceedsBudget = errors.New("sim: frame airtime exceeds duty-cycle budget")

// Airtime returns the LoRa time on air of a PHYPayload of size bytes at the
// given spreading factor on a 125 kHz channel with coding rate 4/5, an
// explicit header and CRC.
func Airtime(sf int, size int) time.Duration {
	const (
		bandwidth = 125000.0
		preamble  = 8
		codeRate  = 1
	)
	tsym := math.Exp2(float64(sf)) / bandwidth
	de := 0.0
	if sf >= 11 {
		de = 1
	}

	num := 8*float64(size) - 4*float64(sf) + 28 + 16
	symbols := 8 + math.Max(math.Ceil(num/(4*(float64(sf)-2*de)))*(codeRate+4), 0)
	seconds := (preamble+4.25)*tsym + symbols*tsym
	return time.Duration(seconds * float64(time.Second))
}

// DutyCycle enforces a maximum transmit duty cycle with a token bucket
// whose tokens are microseconds of airtime.
type DutyCycle struct {
	limiter *rate.Limiter
	clock   clock.Clock
}

// NewDutyCycle creates a limiter allowing fraction of airtime averaged over
// window. A fraction of zero or less disables limiting.
func NewDutyCycle(fraction float64, window time.Duration, clk clock.Clock) *DutyCycle {
	if clk == nil {
		clk = clock.Real{}
	}
	d := &DutyCycle{clock: clk}
	if fraction <= 0 || fraction >= 1 {
		return d
	}
	perSecond := fraction * float64(time.Second/time.Microsecond)
	burst := int(perSecond * window.Seconds())
	d.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	return d
}

// Wait blocks until airtime may be spent and returns how long it waited.
func (d *DutyCycle) Wait(ctx context.Context, airtime time.Duration) (time.Duration, error) {
	if d.limiter == nil {
		return 0, nil
	}

	now := d.clock.Now()
	r := d.limiter.ReserveN(now, int(airtime/time.Microsecond))
	if !r.OK() {
		return 0, ErrAirtimeExceedsBudget
	}

	delay := r.DelayFrom(now)
	if delay <= 0 {
		return 0, nil
	}
	if err := d.clock.Sleep(ctx, delay); err != nil {
		r.CancelAt(d.clock.Now())
		return 0, err
	}
	return delay, nil
}
