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
	"github.com/pkg/errors"
)

const (
	AfterDispense = `after_dispense`
	AfterOpen     = `after_open`
	BeforeStore   = `before_store`
	AfterStore    = `after_store`
	BeforeDelete  = `before_delete`
	AfterDelete   = `after_delete`
)

//Event is handed to every listener of its name, in registration order,
//until one of them stops propagation.
type Event struct {
	Name    string
	Subject any

	propagationStopped bool
}

func (e *Event) StopPropagation() {
	e.propagationStopped = true
}

func (e *Event) IsPropagationStopped() bool {
	return e.propagationStopped
}

//EventListener implementations must be comparable, detaching works by identity.
type EventListener interface {
	OnEvent(event *Event)
}

type funcListener struct {
	fn func(*Event)
}

func (l *funcListener) OnEvent(event *Event) {
	l.fn(event)
}

//NewEventListener adapts a function into a detachable listener.
func NewEventListener(fn func(*Event)) EventListener {
	return &funcListener{fn}
}

type EventBus struct {
	listeners map[string][]EventListener
}

func NewEventBus() *EventBus {
	return &EventBus{listeners: map[string][]EventListener{}}
}

//Attach registers listener for a single event name or a slice of names.
func (b *EventBus) Attach(events any, listener EventListener) error {
	var names []string
	switch e := events.(type) {
	case string:
		names = []string{e}
	case []string:
		names = e
	default:
		return errors.Wrapf(ErrInvalidEvent, "expected an event name or a list of names, got %T", events)
	}
	for _, name := range names {
		b.listeners[name] = append(b.listeners[name], listener)
	}
	return nil
}

func (b *EventBus) Detach(event string, listener EventListener) {
	listeners := b.listeners[event]
	for index, l := range listeners {
		if l == listener {
			b.listeners[event] = append(listeners[:index:index], listeners[index+1:]...)
			break
		}
	}
	if len(b.listeners[event]) == 0 {
		delete(b.listeners, event)
	}
}

func (b *EventBus) DetachAllForEvent(event string) {
	delete(b.listeners, event)
}

func (b *EventBus) DetachAllForListener(listener EventListener) {
	for event := range b.listeners {
		b.Detach(event, listener)
	}
}

//Notify builds an event and dispatches it synchronously.
func (b *EventBus) Notify(event string, subject any) *Event {
	e := &Event{Name: event, Subject: subject}
	for _, listener := range b.listeners[event] {
		listener.OnEvent(e)
		if e.propagationStopped {
			break
		}
	}
	return e
}

func (b *EventBus) attachLifecycle(listener EventListener) {
	b.Attach([]string{AfterDispense, AfterOpen, BeforeStore, AfterStore, BeforeDelete, AfterDelete}, listener)
}
