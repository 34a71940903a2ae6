package notify

import "github.com/wahl-sec/trident/logging"

// Registration pairs a Handler with whether it wants the result payload
// included in what it's notified with, or just a completion signal
// (content withheld) — the per-handler include_result flag from spec
// §4.3.
type Registration struct {
	Handler       Handler
	IncludeResult bool
}

// Dispatcher fans a result out to every configured Handler. A handler
// that fails to send is logged and skipped; one bad handler never stops
// the others from being notified, matching the original daemon's
// loop-and-continue behavior.
type Dispatcher struct {
	registrations []Registration
	log           logging.Logger
}

// NewDispatcher returns a Dispatcher over registrations.
func NewDispatcher(log logging.Logger, registrations ...Registration) *Dispatcher {
	if log == nil {
		log = logging.NoOp{}
	}
	return &Dispatcher{registrations: registrations, log: log}
}

// Send delivers content to every handler, continuing past individual
// failures. A handler registered with IncludeResult false receives nil
// instead of content, notifying it of completion without leaking the
// result payload.
func (d *Dispatcher) Send(content interface{}) {
	for _, reg := range d.registrations {
		payload := content
		if !reg.IncludeResult {
			payload = nil
		}
		if err := reg.Handler.Notify(payload); err != nil {
			d.log.Error("notification handler %q failed: %v", reg.Handler.Name(), err)
		}
	}
}
