package operators

import (
	"errors"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/acqlab/instrumentd/pkg/channel"
)

// NewCPUSampler returns a periodic sampler publishing the host's overall
// CPU utilization percentage. Useful both as a diagnostics device and as a
// load reference channel alongside real instrument data.
func NewCPUSampler(interval time.Duration, out *channel.Channel) *Sampler {
	return NewSampler(interval, readCPUPercent, out)
}

func readCPUPercent() (float64, error) {
	percents, err := cpu.Percent(0, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, errors.New("no cpu utilization samples")
	}
	return percents[0], nil
}
