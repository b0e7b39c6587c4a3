// MIT License
//
// Copyright (c) 2020 codingfinest
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package godm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	commitCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "godm",
			Subsystem: "txn",
			Name:      "commits_total",
			Help:      "Counter of committed transactions.",
		}, []string{"result"})

	commitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "godm",
			Subsystem: "txn",
			Name:      "commit_duration_seconds",
			Help:      "Bucketed histogram of transaction commit time (s), result conversion included.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 13),
		}, []string{"result"})

	bufferedCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "godm",
			Subsystem: "txn",
			Name:      "buffered_commands_total",
			Help:      "Counter of commands buffered into transactions.",
		}, []string{"action"})

	driverCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "godm",
			Subsystem: "driver",
			Name:      "calls_total",
			Help:      "Counter of immediate driver calls.",
		}, []string{"op", "result"})
)

func init() {
	prometheus.MustRegister(commitCounter)
	prometheus.MustRegister(commitDuration)
	prometheus.MustRegister(bufferedCommands)
	prometheus.MustRegister(driverCalls)
}

func observeCommit(result string, start time.Time) {
	commitCounter.WithLabelValues(result).Inc()
	commitDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
}

func observeDriverCall(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	driverCalls.WithLabelValues(op, result).Inc()
}
