// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package permcheck

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/secmgr/lib/policystore"
)

// ErrClosed is returned by Check after Close.
var ErrClosed = errors.New("permcheck: client closed")

// Config holds the parameters for creating a Client.
type Config struct {
	// Dial opens the store's async handle. Required.
	Dial policystore.AsyncDialer

	// Logger receives operational messages. If nil, a no-op logger is
	// used.
	Logger *slog.Logger

	// Registerer receives the client's Prometheus collectors. If nil,
	// metrics are collected but not registered.
	Registerer prometheus.Registerer
}

// Client multiplexes permission checks onto one async store handle.
// It is safe for concurrent use. Create one with New and release it
// with Close.
type Client struct {
	logger  *slog.Logger
	metrics *metrics

	// mu serializes every call into api, including those made by the
	// worker and by Close.
	mu       sync.Mutex
	api      policystore.AsyncAPI
	finished bool

	// notifyFD is an eventfd the worker polls alongside the store
	// descriptor. Writing to it wakes the worker.
	notifyFD int

	// storeFD and storeEvents are the store descriptor and the poll
	// events it asked for, as last reported by the status callback.
	// storeFD is -1 while the store has no descriptor; storeEvents is
	// 0 while the descriptor is disarmed.
	storeFD     atomic.Int32
	storeEvents atomic.Int32

	terminate     atomic.Bool
	done          chan struct{}
	notifications atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

// outcome is the value a completion channel carries.
type outcome struct {
	allowed bool
	err     error
}

// New opens the store handle through cfg.Dial and starts the worker.
func New(cfg Config) (*Client, error) {
	if cfg.Dial == nil {
		return nil, errors.New("permcheck: Dial is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	metrics, err := newMetrics(cfg.Registerer)
	if err != nil {
		return nil, fmt.Errorf("permcheck: registering metrics: %w", err)
	}

	notifyFD, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("permcheck: eventfd: %w", err)
	}

	client := &Client{
		logger:   logger,
		metrics:  metrics,
		notifyFD: notifyFD,
		done:     make(chan struct{}),
	}
	client.storeFD.Store(-1)

	api, status := cfg.Dial(client.onStatus)
	if err := policystore.Check(status, "connecting to policy store"); err != nil {
		unix.Close(notifyFD)
		return nil, fmt.Errorf("permcheck: %w", err)
	}
	if api == nil {
		unix.Close(notifyFD)
		return nil, errors.New("permcheck: dialer returned no handle")
	}
	client.api = api

	go client.run()

	return client, nil
}

// Check reports whether client (an application label) may use
// privilege as user in session. It blocks until the store answers.
// A denial is a false result, not an error.
func (c *Client) Check(client, privilege, user, session string) (bool, error) {
	c.logger.Debug("permission check",
		"client", client,
		"privilege", privilege,
		"user", user,
		"session", session,
	)

	completion := make(chan outcome, 1)

	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return false, ErrClosed
	}

	status := c.api.CheckCache(client, session, user, privilege)
	if status != policystore.StatusCacheMiss {
		c.mu.Unlock()
		c.metrics.checks.WithLabelValues(sourceCache).Inc()
		return policystore.Classify(status, "checking cache")
	}

	id, status := c.api.CreateRequest(client, session, user, privilege, c.responder(completion))
	if err := policystore.Check(status, "creating check request"); err != nil {
		c.mu.Unlock()
		return false, err
	}
	c.metrics.checks.WithLabelValues(sourceRequest).Inc()
	c.notify()
	c.mu.Unlock()

	c.logger.Debug("waiting for check response", "id", id)
	result := <-completion
	return result.allowed, result.err
}

// responder returns the response callback for one request. The store
// invokes it from inside Process, Cancel, or Finish, always with c.mu
// held.
func (c *Client) responder(completion chan<- outcome) policystore.ResponseFunc {
	return func(id policystore.CheckID, cause policystore.CallCause, response policystore.Status) {
		c.metrics.responses.WithLabelValues(cause.String()).Inc()

		var result outcome
		switch cause {
		case policystore.CauseAnswer:
			c.logger.Debug("check answered", "id", id, "response", response.String())
			result.allowed = response != policystore.StatusAccessDenied
		case policystore.CauseCancel, policystore.CauseFinish:
			c.logger.Debug("check abandoned", "id", id, "cause", cause.String())
		case policystore.CauseServiceNotAvailable:
			c.logger.Error("policy store unavailable for check", "id", id)
			result.err = &policystore.Error{
				Status:  policystore.StatusServiceNotAvailable,
				Message: "waiting for check response",
			}
		default:
			result.err = &policystore.Error{
				Status:  policystore.StatusUnknownError,
				Message: fmt.Sprintf("unexpected call cause %s", cause),
			}
		}

		select {
		case completion <- result:
		default:
			c.logger.Warn("duplicate response for check", "id", id, "cause", cause.String())
		}
	}
}

// onStatus is the store's status callback. It only touches atomics:
// the store calls it from Dial before the worker exists and from API
// calls made under c.mu.
func (c *Client) onStatus(oldFD, newFD int, status policystore.ConnStatus) {
	c.logger.Debug("policy store status",
		"old_fd", oldFD,
		"new_fd", newFD,
		"status", status.String(),
	)

	if newFD == -1 {
		c.storeEvents.Store(0)
		c.storeFD.Store(-1)
		return
	}

	c.storeFD.Store(int32(newFD))
	switch status {
	case policystore.ConnForReadWrite:
		c.storeEvents.Store(unix.POLLIN | unix.POLLOUT)
	default:
		c.storeEvents.Store(unix.POLLIN)
	}
}

// notify wakes the worker. The eventfd counter accumulates, so one
// read drains any number of notifications.
func (c *Client) notify() {
	var buffer [8]byte
	binary.NativeEndian.PutUint64(buffer[:], 1)
	if _, err := unix.Write(c.notifyFD, buffer[:]); err != nil {
		c.logger.Error("writing to notification eventfd", "error", err)
		return
	}
	c.notifications.Add(1)
}

// drainNotifications resets the eventfd counter.
func (c *Client) drainNotifications() {
	var buffer [8]byte
	if _, err := unix.Read(c.notifyFD, buffer[:]); err != nil && err != unix.EAGAIN {
		c.logger.Error("reading from notification eventfd", "error", err)
	}
}

// run is the worker loop. It rebuilds the poll set on every iteration
// so that a descriptor change reported by the status callback takes
// effect on the next wakeup.
func (c *Client) run() {
	defer close(c.done)
	c.logger.Info("permission check worker started")

	for {
		pollDescriptors := []unix.PollFd{{Fd: int32(c.notifyFD), Events: unix.POLLIN}}
		storeFD, storeEvents := c.storeFD.Load(), c.storeEvents.Load()
		if storeFD >= 0 && storeEvents != 0 {
			pollDescriptors = append(pollDescriptors, unix.PollFd{Fd: storeFD, Events: int16(storeEvents)})
		}

		_, err := unix.Poll(pollDescriptors, -1)
		if err != nil {
			if err != unix.EINTR {
				c.logger.Error("poll failed", "error", err)
			}
			continue
		}

		if pollDescriptors[0].Revents != 0 {
			c.drainNotifications()
			if c.terminate.Load() {
				c.logger.Info("permission check worker terminated")
				return
			}
		}

		if len(pollDescriptors) > 1 && pollDescriptors[1].Revents != 0 {
			c.process()
		}
	}
}

// process lets the store handle its I/O and dispatch ready responses.
func (c *Client) process() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finished {
		return
	}
	if err := policystore.Check(c.api.Process(), "processing store events"); err != nil {
		c.logger.Error("error while processing policy store events", "error", err)
	}
}

// Close stops the worker and finishes the store handle. Checks still
// waiting complete as denials. Close is idempotent; later calls return
// the first call's result.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.logger.Debug("sending terminate event to permission check worker")
		c.terminate.Store(true)
		c.notify()
		<-c.done

		c.mu.Lock()
		defer c.mu.Unlock()

		c.finished = true
		if err := policystore.Check(c.api.Finish(), "finishing async handle"); err != nil {
			c.closeErr = fmt.Errorf("permcheck: %w", err)
		}
		if err := unix.Close(c.notifyFD); err != nil {
			c.closeErr = errors.Join(c.closeErr, fmt.Errorf("permcheck: closing eventfd: %w", err))
		}
	})
	return c.closeErr
}
