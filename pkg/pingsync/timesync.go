package pingsync

import (
	"time"

	"github.com/tickforge/netsync/pkg/tick"
)

// SyncEvent is emitted when the PI controller's error grows large enough
// to warrant a hard resync rather than a gradual speed adjustment
// (spec.md §4.4). History buffers (pkg/prediction) relabel stored ticks by
// Delta on receipt of this event.
type SyncEvent struct {
	Delta tick.Delta
}

// jumpThresholdSeconds is the error magnitude, expressed in ticks worth of
// time, beyond which a hard resync is triggered instead of a gradual PI
// correction (spec.md §4.4: "3 s worth of ticks").
const jumpThresholdSeconds = 3.0

// maxSpeedAdjustment bounds the PI controller's simulation-speed scaling
// to within +/-10% of nominal (spec.md §4.4).
const maxSpeedAdjustment = 0.10

// TimeSync computes the derived send/receive ticks and drives the PI
// controller that nudges local simulation speed to converge measured
// server-receive-tick toward the target client_sending_tick.
type TimeSync struct {
	TickDuration time.Duration

	// PI gains; conservative defaults tuned for a soft-realtime game loop.
	kp float64
	ki float64

	integral float64
}

func NewTimeSync(tickDuration time.Duration) *TimeSync {
	return &TimeSync{TickDuration: tickDuration, kp: 0.2, ki: 0.05}
}

// ClientSendingTick computes local_tick + ceil((rtt+jitter+1 tick)/tick_duration).
func (t *TimeSync) ClientSendingTick(localTick tick.Tick, rtt, jitter time.Duration) tick.Tick {
	lead := rtt + jitter + t.TickDuration
	return localTick.Add(t.ceilTicks(lead))
}

// ClientReceivingTick computes local_tick - ceil((rtt+jitter)/tick_duration).
func (t *TimeSync) ClientReceivingTick(localTick tick.Tick, rtt, jitter time.Duration) tick.Tick {
	lag := rtt + jitter
	return localTick.Add(-t.ceilTicks(lag))
}

func (t *TimeSync) ceilTicks(d time.Duration) tick.Delta {
	if d <= 0 {
		return 0
	}
	n := int64(d / t.TickDuration)
	if d%t.TickDuration != 0 {
		n++
	}
	return tick.Delta(n)
}

// Adjust runs one PI controller step given the current error (in ticks)
// between the measured server-receive-tick and the target
// client_sending_tick. It returns a speed multiplier in
// [1-maxSpeedAdjustment, 1+maxSpeedAdjustment] to scale the tick
// accumulator by, or a SyncEvent if the error is large enough to warrant a
// hard jump instead.
func (t *TimeSync) Adjust(errorTicks tick.Delta) (speedMultiplier float64, jump *SyncEvent) {
	errSeconds := float64(errorTicks) * t.TickDuration.Seconds()
	if errSeconds > jumpThresholdSeconds || errSeconds < -jumpThresholdSeconds {
		t.integral = 0
		return 1.0, &SyncEvent{Delta: errorTicks}
	}

	t.integral += errSeconds
	// clamp integral windup to the same range as jump threshold
	if t.integral > jumpThresholdSeconds {
		t.integral = jumpThresholdSeconds
	}
	if t.integral < -jumpThresholdSeconds {
		t.integral = -jumpThresholdSeconds
	}

	output := t.kp*errSeconds + t.ki*t.integral
	mult := 1.0 + output
	if mult > 1.0+maxSpeedAdjustment {
		mult = 1.0 + maxSpeedAdjustment
	}
	if mult < 1.0-maxSpeedAdjustment {
		mult = 1.0 - maxSpeedAdjustment
	}
	return mult, nil
}
