// Package operators contains concrete Operator implementations: the
// periodic sampler family and the blocking serial handshake used for real
// instrument bring-up.
package operators

import (
	"fmt"
	"time"

	"github.com/acqlab/instrumentd/pkg/channel"
	"github.com/acqlab/instrumentd/pkg/operator"
)

// SampleFunc reads one value from the underlying source. It runs on the
// sampler's tick goroutine, never on the controller.
type SampleFunc func() (float64, error)

// Sampler polls a source at a fixed interval and publishes every reading
// to its output channel. The emissions are steady-state data, fully
// decoupled from the one-shot ready/error handshake: Prepare only starts
// the ticker, Finalize stops it and guarantees zero emissions afterwards.
type Sampler struct {
	operator.Base

	interval time.Duration
	sample   SampleFunc
	out      *channel.Channel

	stopTick chan struct{}
	tickDone chan struct{}
}

// NewSampler creates a periodic sampler emitting into out
func NewSampler(interval time.Duration, sample SampleFunc, out *channel.Channel) *Sampler {
	return &Sampler{
		interval: interval,
		sample:   sample,
		out:      out,
	}
}

// Prepare validates the configuration and starts the tick goroutine. The
// result carried in the ready event is the output channel name.
func (s *Sampler) Prepare(args interface{}) (interface{}, error) {
	if s.interval <= 0 {
		return nil, fmt.Errorf("invalid sampling interval %v", s.interval)
	}
	if s.sample == nil {
		return nil, fmt.Errorf("sampler has no source")
	}

	s.stopTick = make(chan struct{})
	s.tickDone = make(chan struct{})
	go s.run()

	return s.out.Name(), nil
}

func (s *Sampler) run() {
	defer close(s.tickDone)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			value, err := s.sample()
			if err != nil {
				// A bad reading is worth a warning but does not end
				// the acquisition.
				s.ShowError("sample read failed", err.Error())
				continue
			}
			s.out.AddData(value)
		case <-s.stopTick:
			return
		}
	}
}

// Finalize stops the ticker and waits for the tick goroutine to exit, so
// no emission can happen after it returns.
func (s *Sampler) Finalize() error {
	if s.stopTick == nil {
		return nil
	}
	close(s.stopTick)
	<-s.tickDone
	s.stopTick = nil
	return nil
}
