package asyncevents

import (
	"fmt"
	"slices"
	"time"
)

const (
	eventTopicPrefix = "event:"
	allTopic         = "*"
)

// Record describes a finished emit. Observers receive one per emit.
type Record struct {
	Key      string
	Parallel bool
	Args     []any
	Handled  bool
	Err      error
	Duration time.Duration
}

// observer is a subscribed func with the id its unsubscribe func removes
type observer struct {
	id string
	fn func(Record)
}

// Observe subscribes fn to the records of every emit of key.
// Observers run on a background goroutine after the emit completes; they cannot delay
// or fail it, and they do not count as listeners. The returned func unsubscribes.
func (e *Emitter) Observe(key string, fn func(Record)) (func(), error) {
	return e.observe(eventTopicPrefix+key, fn)
}

// ObserveAll subscribes fn to the records of every emit on this emitter
func (e *Emitter) ObserveAll(fn func(Record)) (func(), error) {
	return e.observe(allTopic, fn)
}

func (e *Emitter) observe(topic string, fn func(Record)) (func(), error) {
	e.observersMu.Lock()
	defer e.observersMu.Unlock()

	// one fan-out callback per topic; the bus matches handlers by code pointer,
	// so individual observers are tracked here by id
	if !e.subscribed[topic] {
		if err := e.observers.SubscribeAsync(topic, e.fanOut(topic), false); err != nil {
			return nil, fmt.Errorf("subscribe observer on %q: %w", topic, err)
		}
		e.subscribed[topic] = true
	}

	id := e.ids.New()
	e.observed[topic] = append(e.observed[topic], observer{id: id, fn: fn})
	return func() {
		e.unobserve(topic, id)
	}, nil
}

func (e *Emitter) unobserve(topic, id string) {
	e.observersMu.Lock()
	defer e.observersMu.Unlock()

	observers := e.observed[topic]
	for i, o := range observers {
		if o.id != id {
			continue
		}
		remaining := make([]observer, 0, len(observers)-1)
		remaining = append(remaining, observers[:i]...)
		e.observed[topic] = append(remaining, observers[i+1:]...)
		return
	}
}

func (e *Emitter) fanOut(topic string) func(Record) {
	return func(r Record) {
		e.observersMu.Lock()
		observers := e.observed[topic]
		e.observersMu.Unlock()

		for _, o := range observers {
			o.fn(r)
		}
	}
}

func (e *Emitter) publish(d *dispatch, args []any, handled bool, err error) {
	record := Record{
		Key:      d.key,
		Parallel: d.parallel,
		Args:     slices.Clone(args),
		Handled:  handled,
		Err:      err,
		Duration: time.Since(d.started),
	}
	for _, topic := range []string{eventTopicPrefix + d.key, allTopic} {
		if e.observers.HasCallback(topic) {
			e.observers.Publish(topic, record)
		}
	}
}
