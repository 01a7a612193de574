package events

import (
	"context"
	"sync"
)

// Recorder is a Channel that keeps every event it is asked to send. Sends
// can be made to fail per region. Recorded events include failed sends.
type Recorder struct {
	mu        sync.Mutex
	events    []Event
	failAll   error
	failByReg map[string]error
	hook      func(Event)
}

var _ Channel = (*Recorder)(nil)

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{failByReg: make(map[string]error)}
}

func (r *Recorder) Send(ctx context.Context, event Event) error {
	r.mu.Lock()
	r.events = append(r.events, event)
	err := r.failAll
	if e, ok := r.failByReg[event.Region]; ok {
		err = e
	}
	hook := r.hook
	r.mu.Unlock()

	if hook != nil {
		hook(event)
	}
	return err
}

// Fail makes every send return err. Nil clears it.
func (r *Recorder) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failAll = err
}

// FailRegion makes sends to region return err. Nil clears it.
func (r *Recorder) FailRegion(region string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failByReg, region)
		return
	}
	r.failByReg[region] = err
}

// OnSend registers fn to run after each send is recorded, outside the lock.
func (r *Recorder) OnSend(fn func(Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = fn
}

// Events returns a copy of all recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfKind returns recorded events of kind k.
func (r *Recorder) OfKind(k Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

// Last returns the most recent event and whether there was one.
func (r *Recorder) Last() (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}, false
	}
	return r.events[len(r.events)-1], true
}

// Reset forgets recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
