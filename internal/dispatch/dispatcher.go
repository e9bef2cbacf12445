// Package dispatch translates client intents and device joins into session
// state transitions, outbound device commands, and snapshot publications.
package dispatch

import (
	"log"

	"github.com/carnegiemellonracing/PiDAQ/internal/model"
	"github.com/carnegiemellonracing/PiDAQ/internal/presence"
	"github.com/carnegiemellonracing/PiDAQ/internal/publish"
	"github.com/carnegiemellonracing/PiDAQ/internal/session"
)

// CommandSender delivers outbound commands to devices. Implementations are
// fire-and-forget: a failed send never rolls back the state change that
// triggered it.
type CommandSender interface {
	SendCommand(cmd model.Command)
	SendCommandTo(deviceID string, cmd model.Command)
}

type Dispatcher struct {
	store     *session.Store
	registry  *presence.Registry
	commands  CommandSender
	publisher *publish.Publisher
	logger    *log.Logger

	// onStop receives every session that just ended, for archival.
	onStop func(*session.Session)
}

func NewDispatcher(store *session.Store, registry *presence.Registry, commands CommandSender, publisher *publish.Publisher, logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		registry:  registry,
		commands:  commands,
		publisher: publisher,
		logger:    logger,
	}
}

// OnSessionStop registers a hook invoked with each session that just ended.
func (d *Dispatcher) OnSessionStop(fn func(*session.Session)) { d.onStop = fn }

// RequestStart starts a new session, tells the fleet to begin streaming under
// the new session id, and broadcasts the updated snapshot. On rejection the
// caller gets the error and nothing else happens.
func (d *Dispatcher) RequestStart(name string) (string, error) {
	sess, err := d.store.Start(name)
	if err != nil {
		return "", err
	}
	d.logger.Printf("[dispatch] session started: id=%s name=%q", sess.ID, sess.Name)
	d.commands.SendCommand(model.Command{Command: model.CommandStart, TestName: sess.ID})
	d.publisher.PublishAll()
	return sess.ID, nil
}

// RequestStop ends the active session, tells the fleet to stop streaming, and
// broadcasts the updated snapshot.
func (d *Dispatcher) RequestStop(id string) error {
	sess, err := d.store.Stop(id)
	if err != nil {
		return err
	}
	d.logger.Printf("[dispatch] session stopped: id=%s", sess.ID)
	d.commands.SendCommand(model.Command{Command: model.CommandStop, TestName: sess.ID})
	if d.onStop != nil {
		d.onStop(sess)
	}
	d.publisher.PublishAll()
	return nil
}

// RequestStatus answers a pure read: the requesting observer gets a full
// snapshot, and the fleet is asked to re-announce presence.
func (d *Dispatcher) RequestStatus(observerID string) {
	d.commands.SendCommand(model.Command{Command: model.CommandGetStatus})
	d.publisher.PublishTo(observerID)
}

// DeviceOnline folds a presence announcement into the registry and applies
// the join policy: a device joining for the first time is told to idle, and a
// device reconnecting while no session runs is told to idle too, in case it
// free-ran while disconnected. A reconnect during an active session gets no
// command.
func (d *Dispatcher) DeviceOnline(deviceID string) {
	ev := d.registry.MarkOnline(deviceID)
	d.logger.Printf("[dispatch] device %s online (%s)", deviceID, ev)

	switch ev {
	case presence.NoOp:
		return
	case presence.FirstJoin:
		d.commands.SendCommandTo(deviceID, model.Command{Command: model.CommandStop})
	case presence.Reconnect:
		if d.store.CurrentID() == "" {
			d.commands.SendCommandTo(deviceID, model.Command{Command: model.CommandStop})
		}
	}
	d.publisher.PublishPresence()
}

// DeviceOffline marks the device offline and broadcasts the presence set.
func (d *Dispatcher) DeviceOffline(deviceID string) {
	d.registry.MarkOffline(deviceID)
	d.logger.Printf("[dispatch] device %s offline", deviceID)
	d.publisher.PublishPresence()
}
