// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policystore

import (
	"encoding/binary"
	"sync"

	"golang.org/x/sys/unix"
)

// AnswerFunc decides how FakeAsync answers one request.
type AnswerFunc func(client, session, user, privilege string) (CallCause, Status)

// NewFakeAsync returns a FakeAsync that allows every request. Pass
// its Dial method wherever an AsyncDialer is expected.
func NewFakeAsync() *FakeAsync {
	return &FakeAsync{
		fd:      -1,
		cache:   make(map[fakeCacheKey]Status),
		created: make(chan CheckID, 64),
		answer: func(string, string, string, string) (CallCause, Status) {
			return CauseAnswer, StatusAccessAllowed
		},
	}
}

// FakeAsync is an in-memory AsyncAPI backed by a real eventfd, so a
// client's poll loop sees genuine readiness. CreateRequest makes the
// descriptor readable; Process drains it and answers every pending
// request through AnswerFunc, unless the fake is holding answers.
//
// FakeAsync locks internally so tests can inspect it concurrently, but
// it invokes callbacks with its lock released, as a real handle
// invokes them from inside the caller's Process.
type FakeAsync struct {
	mu       sync.Mutex
	onStatus StatusFunc
	fd       int

	cache   map[fakeCacheKey]Status
	answer  AnswerFunc
	holding bool

	pending []*fakeRequest
	nextID  CheckID

	failProcess Status
	created     chan CheckID

	dials     int
	requests  int
	processed int
	finished  int
}

type fakeCacheKey struct {
	client, session, user, privilege string
}

type fakeRequest struct {
	id                               CheckID
	client, session, user, privilege string
	onResponse                       ResponseFunc
}

type pendingCallback struct {
	request  *fakeRequest
	cause    CallCause
	response Status
}

// Dial implements AsyncDialer. It creates the fake's descriptor and
// reports it through onStatus before returning.
func (f *FakeAsync) Dial(onStatus StatusFunc) (AsyncAPI, Status) {
	f.mu.Lock()
	f.dials++
	if f.fd >= 0 {
		f.mu.Unlock()
		return nil, StatusOperationNotAllowed
	}
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		f.mu.Unlock()
		return nil, StatusServiceNotAvailable
	}
	f.fd = fd
	f.onStatus = onStatus
	f.mu.Unlock()

	onStatus(-1, fd, ConnForRead)
	return f, StatusSuccess
}

// SetCache makes CheckCache return status for the given key.
func (f *FakeAsync) SetCache(client, session, user, privilege string, status Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache[fakeCacheKey{client, session, user, privilege}] = status
}

// SetAnswer replaces the function deciding answers.
func (f *FakeAsync) SetAnswer(answer AnswerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answer = answer
}

// Hold stops (true) or resumes (false) answering from Process.
// Held requests stay pending until Process runs unheld, Cancel, or
// Finish.
func (f *FakeAsync) Hold(holding bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holding = holding
}

// FailNextProcess makes the next Process call return status without
// consuming readiness, so the caller's poll loop wakes again.
func (f *FakeAsync) FailNextProcess(status Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failProcess = status
}

// Created delivers the id of every request as it is created.
func (f *FakeAsync) Created() <-chan CheckID {
	return f.created
}

// Requests returns how many requests were created.
func (f *FakeAsync) Requests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

// Pending returns how many requests await an answer.
func (f *FakeAsync) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Processed returns how many times Process was called.
func (f *FakeAsync) Processed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed
}

// Finished returns how many times Finish was called.
func (f *FakeAsync) Finished() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finished
}

func (f *FakeAsync) CheckCache(client, session, user, privilege string) Status {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fd < 0 {
		return StatusServiceNotAvailable
	}
	if status, cached := f.cache[fakeCacheKey{client, session, user, privilege}]; cached {
		return status
	}
	return StatusCacheMiss
}

func (f *FakeAsync) CreateRequest(client, session, user, privilege string, onResponse ResponseFunc) (CheckID, Status) {
	f.mu.Lock()
	if f.fd < 0 {
		f.mu.Unlock()
		return 0, StatusServiceNotAvailable
	}

	request := &fakeRequest{
		id:         f.nextID,
		client:     client,
		session:    session,
		user:       user,
		privilege:  privilege,
		onResponse: onResponse,
	}
	f.nextID++
	f.requests++
	f.pending = append(f.pending, request)
	fd := f.fd
	onStatus := f.onStatus
	f.signal()
	f.mu.Unlock()

	onStatus(fd, fd, ConnForReadWrite)

	select {
	case f.created <- request.id:
	default:
	}
	return request.id, StatusSuccess
}

func (f *FakeAsync) Process() Status {
	f.mu.Lock()
	f.processed++
	if f.fd < 0 {
		f.mu.Unlock()
		return StatusServiceNotAvailable
	}
	if f.failProcess != StatusSuccess {
		status := f.failProcess
		f.failProcess = StatusSuccess
		f.mu.Unlock()
		return status
	}

	f.drain()
	fd := f.fd
	onStatus := f.onStatus

	var callbacks []pendingCallback
	if !f.holding {
		for _, request := range f.pending {
			cause, response := f.answer(request.client, request.session, request.user, request.privilege)
			callbacks = append(callbacks, pendingCallback{request, cause, response})
		}
		f.pending = nil
	}
	f.mu.Unlock()

	onStatus(fd, fd, ConnForRead)
	dispatch(callbacks)
	return StatusSuccess
}

func (f *FakeAsync) Cancel(id CheckID) Status {
	f.mu.Lock()
	var callbacks []pendingCallback
	for i, request := range f.pending {
		if request.id == id {
			callbacks = append(callbacks, pendingCallback{request, CauseCancel, StatusAccessDenied})
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			break
		}
	}
	f.mu.Unlock()

	if len(callbacks) == 0 {
		return StatusInvalidParam
	}
	dispatch(callbacks)
	return StatusSuccess
}

func (f *FakeAsync) Finish() Status {
	f.mu.Lock()
	f.finished++
	var callbacks []pendingCallback
	for _, request := range f.pending {
		callbacks = append(callbacks, pendingCallback{request, CauseFinish, StatusAccessDenied})
	}
	f.pending = nil
	fd := f.fd
	onStatus := f.onStatus
	f.fd = -1
	f.mu.Unlock()

	dispatch(callbacks)
	if fd >= 0 {
		onStatus(fd, -1, ConnForRead)
		unix.Close(fd)
	}
	return StatusSuccess
}

// signal makes the descriptor readable. Callers hold f.mu.
func (f *FakeAsync) signal() {
	var buffer [8]byte
	binary.NativeEndian.PutUint64(buffer[:], 1)
	unix.Write(f.fd, buffer[:])
}

// drain consumes pending readiness. Callers hold f.mu.
func (f *FakeAsync) drain() {
	var buffer [8]byte
	unix.Read(f.fd, buffer[:])
}

func dispatch(callbacks []pendingCallback) {
	for _, callback := range callbacks {
		callback.request.onResponse(callback.request.id, callback.cause, callback.response)
	}
}
