// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package permcheck

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Check sources, as reported in the checks counter.
const (
	sourceCache   = "cache"
	sourceRequest = "request"
)

type metrics struct {
	checks    *prometheus.CounterVec
	responses *prometheus.CounterVec
}

// newMetrics creates the client's collectors and registers them with
// registerer. With a nil registerer the collectors still count but
// are not exported.
func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		checks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secmgr_permission_checks_total",
				Help: "Permission checks by where the answer came from",
			},
			[]string{"source"},
		),
		responses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secmgr_permission_responses_total",
				Help: "Asynchronous permission responses by call cause",
			},
			[]string{"cause"},
		),
	}

	if registerer == nil {
		return m, nil
	}

	var err error
	if m.checks, err = register(registerer, m.checks); err != nil {
		return nil, err
	}
	if m.responses, err = register(registerer, m.responses); err != nil {
		return nil, err
	}
	return m, nil
}

// register registers counter, adopting an identical collector a
// previous client already registered.
func register(registerer prometheus.Registerer, counter *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	err := registerer.Register(counter)
	if err == nil {
		return counter, nil
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
			return existing, nil
		}
	}
	return nil, err
}
