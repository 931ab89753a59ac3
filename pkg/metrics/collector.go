package metrics

import (
	"time"

	"github.com/hutchlabs/hutch/pkg/events"
	"github.com/hutchlabs/hutch/pkg/storage"
	"github.com/hutchlabs/hutch/pkg/types"
)

// Collector keeps the state gauges current and folds broker events into the
// lifecycle counters. Gauges are sampled from the store on a ticker; counters
// arrive as events so nothing is missed between samples.
type Collector struct {
	store  storage.Store
	broker *events.Broker
	sub    events.Subscriber
	stopCh chan struct{}
}

// NewCollector creates a collector over the store and broker.
func NewCollector(store storage.Store, broker *events.Broker) *Collector {
	return &Collector{
		store:  store,
		broker: broker,
		stopCh: make(chan struct{}),
	}
}

// Start begins sampling and event consumption.
func (c *Collector) Start() {
	c.sub = c.broker.Subscribe()

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case ev, ok := <-c.sub:
				if !ok {
					return
				}
				c.consume(ev)
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
	c.broker.Unsubscribe(c.sub)
}

func (c *Collector) collect() {
	sessions, err := c.store.ListSessions()
	if err != nil {
		return
	}
	SessionsTotal.Set(float64(len(sessions)))

	active := 0
	jobCounts := make(map[types.JobStatus]int)
	for _, sess := range sessions {
		if sess.ActiveJobID != "" {
			active++
		}
		jobs, err := c.store.ListJobs(sess.SessionKey)
		if err != nil {
			continue
		}
		for _, job := range jobs {
			jobCounts[job.Status]++
		}
	}
	ActiveJobs.Set(float64(active))

	// Set every known status so vanished jobs fall back to zero.
	for _, status := range []types.JobStatus{
		types.JobStatusPending,
		types.JobStatusRunning,
		types.JobStatusCompleted,
		types.JobStatusFailed,
		types.JobStatusCancelled,
	} {
		JobsTotal.WithLabelValues(string(status)).Set(float64(jobCounts[status]))
	}
}

func (c *Collector) consume(ev *events.Event) {
	switch ev.Type {
	case events.EventJobCompleted:
		JobsFinishedTotal.WithLabelValues(string(types.JobStatusCompleted)).Inc()
	case events.EventJobFailed:
		JobsFinishedTotal.WithLabelValues(string(types.JobStatusFailed)).Inc()
	case events.EventJobCancelled:
		JobsFinishedTotal.WithLabelValues(string(types.JobStatusCancelled)).Inc()
	}
}
