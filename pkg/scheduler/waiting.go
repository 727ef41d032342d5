// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.
package scheduler

import (
	"sync"

	"github.com/pingcap/dataflow/pkg/actor"
	cerror "github.com/pingcap/dataflow/pkg/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// WaitingList hands actors over from one scheduler to another.
//
// A WaitingList has a single producer and a single consumer. Pushing an
// actor signals the consumer through its wakeup channel.
type WaitingList struct {
	mu      sync.Mutex
	buf     []actor.ID
	sendIdx int64
	recvIdx int64

	// ready is the wakeup channel of the consumer, it may be nil.
	ready chan struct{}

	cap int64
}

// NewWaitingList returns a new WaitingList. ready is signaled after each
// push, it must be buffered.
func NewWaitingList(cap int, ready chan struct{}) *WaitingList {
	return &WaitingList{
		buf:   make([]actor.ID, cap),
		ready: ready,
		cap:   int64(cap),
	}
}

// Push appends an actor. It returns ErrCapacityExceeded if the list is
// full.
func (w *WaitingList) Push(id actor.ID) error {
	w.mu.Lock()
	if w.sendIdx-w.recvIdx > w.cap {
		log.Panic("unreachable",
			zap.Int64("sendIdx", w.sendIdx),
			zap.Int64("recvIdx", w.recvIdx))
	}
	if w.sendIdx-w.recvIdx == w.cap {
		w.mu.Unlock()
		return cerror.ErrCapacityExceeded.GenWithStackByArgs("waiting list", w.cap)
	}
	w.buf[w.sendIdx%w.cap] = id
	w.sendIdx++
	w.mu.Unlock()

	notify(w.ready)
	return nil
}

// Pop removes the oldest actor. It returns false if the list is empty.
func (w *WaitingList) Pop() (actor.ID, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.sendIdx < w.recvIdx {
		log.Panic("unreachable",
			zap.Int64("sendIdx", w.sendIdx),
			zap.Int64("recvIdx", w.recvIdx))
	}
	if w.sendIdx == w.recvIdx {
		return actor.NoActor, false
	}
	id := w.buf[w.recvIdx%w.cap]
	w.recvIdx++
	return id, true
}

// Len returns the number of actors in the list.
func (w *WaitingList) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return int(w.sendIdx - w.recvIdx)
}

// Cap returns the capacity of the list.
func (w *WaitingList) Cap() int {
	return int(w.cap)
}

func notify(ch chan struct{}) {
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// schedulableList is the bounded queue of actors ready to be fired by a
// scheduler. It is only accessed by the goroutine of its scheduler.
type schedulableList struct {
	buf  []actor.ID
	head int
	tail int
	size int
}

func newSchedulableList(cap int) *schedulableList {
	return &schedulableList{buf: make([]actor.ID, cap)}
}

func (l *schedulableList) push(id actor.ID) error {
	if l.size == len(l.buf) {
		return cerror.ErrCapacityExceeded.GenWithStackByArgs("schedulable list", len(l.buf))
	}
	l.buf[l.tail] = id
	l.tail = (l.tail + 1) % len(l.buf)
	l.size++
	return nil
}

func (l *schedulableList) pop() (actor.ID, bool) {
	if l.size == 0 {
		return actor.NoActor, false
	}
	id := l.buf[l.head]
	l.head = (l.head + 1) % len(l.buf)
	l.size--
	return id, true
}

func (l *schedulableList) len() int {
	return l.size
}
