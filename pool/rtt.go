// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package pool

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
)

const (
	rttAlphaValue = 0.2
	minSamples    = 10
	maxSamples    = 50
)

// rttTracker keeps dial round-trip samples for one server.
type rttTracker struct {
	mu            sync.RWMutex // mu guards samples, offset, minRTT, rtt90, averageRTT, and averageRTTSet
	samples       []time.Duration
	offset        int
	minRTT        time.Duration
	rtt90         time.Duration
	averageRTT    time.Duration
	averageRTTSet bool
}

func newRTTTracker() *rttTracker {
	return &rttTracker{samples: make([]time.Duration, maxSamples)}
}

func (r *rttTracker) addSample(rtt time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples[r.offset] = rtt
	r.offset = (r.offset + 1) % len(r.samples)
	// Require at least minSamples before reporting min and 90th percentile so
	// a noisy first dial does not skew them.
	r.minRTT = minDuration(r.samples, minSamples)
	r.rtt90 = percentile(90.0, r.samples, minSamples)

	if !r.averageRTTSet {
		r.averageRTT = rtt
		r.averageRTTSet = true
		return
	}

	r.averageRTT = time.Duration(rttAlphaValue*float64(rtt) + (1-rttAlphaValue)*float64(r.averageRTT))
}

func (r *rttTracker) snapshot() (avg, min, p90 time.Duration) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.averageRTT, r.minRTT, r.rtt90
}

// minDuration returns the minimum non-zero sample, or 0 if fewer than
// minSamples samples were collected.
func minDuration(samples []time.Duration, minSamples int) time.Duration {
	count := 0
	min := time.Duration(math.MaxInt64)
	for _, d := range samples {
		if d > 0 {
			count++
		}
		if d > 0 && d < min {
			min = d
		}
	}
	if count == 0 || count < minSamples {
		return 0
	}
	return min
}

// percentile returns the specified percentile value of the non-zero samples,
// or 0 if fewer than minSamples samples were collected.
func percentile(perc float64, samples []time.Duration, minSamples int) time.Duration {
	floatSamples := make([]float64, 0, len(samples))
	for _, sample := range samples {
		if sample > 0 {
			floatSamples = append(floatSamples, float64(sample))
		}
	}
	if len(floatSamples) == 0 || len(floatSamples) < minSamples {
		return 0
	}

	p, err := stats.Percentile(floatSamples, perc)
	if err != nil {
		panic(fmt.Errorf("pool: error calculating %f percentile RTT: %v for samples:\n%v", perc, err, floatSamples))
	}
	return time.Duration(p)
}
