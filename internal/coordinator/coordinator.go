// Package coordinator is the single-threaded heart of the server. Every
// inbound event — device presence, device data, observer requests — is
// enqueued onto one channel and executed by one goroutine, so each state
// mutation and its snapshot publication complete before the next event is
// dequeued. That scheduling discipline is what enforces the session and
// presence invariants without locks around the stores.
package coordinator

import (
	"context"
	"log"

	"github.com/carnegiemellonracing/PiDAQ/internal/broker"
	"github.com/carnegiemellonracing/PiDAQ/internal/config"
	"github.com/carnegiemellonracing/PiDAQ/internal/database"
	"github.com/carnegiemellonracing/PiDAQ/internal/dispatch"
	"github.com/carnegiemellonracing/PiDAQ/internal/hub"
	"github.com/carnegiemellonracing/PiDAQ/internal/ingest"
	"github.com/carnegiemellonracing/PiDAQ/internal/model"
	"github.com/carnegiemellonracing/PiDAQ/internal/publish"
	"github.com/carnegiemellonracing/PiDAQ/internal/session"
	"github.com/carnegiemellonracing/PiDAQ/internal/storage"
	"github.com/carnegiemellonracing/PiDAQ/internal/validate"
)

type Coordinator struct {
	logger *log.Logger

	pipeline   *ingest.Pipeline
	dispatcher *dispatch.Dispatcher
	publisher  *publish.Publisher

	tee     *broker.Tee
	mirror  *database.Mirror
	archive *storage.Archive

	events chan func()
}

// New wires the core components around one event queue. tee, mirror, and
// archive may be nil; their writes are fire-and-forget side channels.
func New(cfg *config.Config, dispatcher *dispatch.Dispatcher, pipeline *ingest.Pipeline, publisher *publish.Publisher, tee *broker.Tee, mirror *database.Mirror, archive *storage.Archive) *Coordinator {
	c := &Coordinator{
		logger:     cfg.Logger,
		pipeline:   pipeline,
		dispatcher: dispatcher,
		publisher:  publisher,
		tee:        tee,
		mirror:     mirror,
		archive:    archive,
		events:     make(chan func(), cfg.EventQueueSize),
	}

	pipeline.OnPoint(func(pt model.DataPoint) { c.mirror.WritePoint(pt) })
	// StoreSession serializes on this goroutine — the event loop, which still
	// owns the session — and uploads in the background, so late points folded
	// into the ended session never race the marshal.
	dispatcher.OnSessionStop(func(sess *session.Session) {
		c.archive.StoreSession(context.Background(), sess)
	})

	return c
}

// Run executes events until the context is cancelled. It is the only
// goroutine that touches the session store and presence registry.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Println("[coordinator] event loop stopped")
			return
		case fn := <-c.events:
			fn()
		}
	}
}

func (c *Coordinator) enqueue(fn func()) { c.events <- fn }

// HandleStatus processes one presence announcement from the status topic.
func (c *Coordinator) HandleStatus(raw []byte) {
	st, err := validate.ParseStatus(raw)
	if err != nil {
		c.logger.Printf("[coordinator] dropped status message: %v | payload=%s", err, validate.Truncate(raw, 256))
		return
	}
	c.enqueue(func() {
		if st.Status == model.StatusOnline {
			c.dispatcher.DeviceOnline(st.ID)
		} else {
			c.dispatcher.DeviceOffline(st.ID)
		}
	})
}

// HandleData processes one delimited data line from the data topic. Malformed
// lines are dropped with a diagnostic (and dead-lettered when the tee is on);
// lines for unknown sessions vanish silently, devices have no error channel.
func (c *Coordinator) HandleData(raw []byte) {
	c.enqueue(func() {
		pt, err := ingest.ParsePoint(raw)
		if err != nil {
			c.logger.Printf("[coordinator] dropped malformed point: %v | payload=%s", err, validate.Truncate(raw, 256))
			c.tee.PublishMalformed(raw, err)
			return
		}
		if !c.pipeline.Ingest(pt) {
			return
		}
		c.tee.Publish(pt.DeviceID, raw)
		c.publisher.PublishAll()
	})
}

// HandleObserverJoin sends a full snapshot to a freshly connected observer so
// it can render without waiting for the next broadcast.
func (c *Coordinator) HandleObserverJoin(observerID string) {
	c.enqueue(func() { c.publisher.PublishTo(observerID) })
}

// HandleObserverRequest executes one observer intent. Failures are answered
// to the requesting observer only; nothing else changes.
func (c *Coordinator) HandleObserverRequest(observerID string, req hub.Request) {
	c.enqueue(func() {
		switch req.Action {
		case hub.ActionStartTest:
			if _, err := c.dispatcher.RequestStart(req.Name); err != nil {
				c.publisher.PublishError(observerID, err.Error())
			}
		case hub.ActionStopTest:
			if err := c.dispatcher.RequestStop(req.SessionID); err != nil {
				c.publisher.PublishError(observerID, err.Error())
			}
		case hub.ActionGetStatus:
			c.dispatcher.RequestStatus(observerID)
		default:
			c.publisher.PublishError(observerID, "unknown action: "+req.Action)
		}
	})
}
