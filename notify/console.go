package notify

import "github.com/wahl-sec/trident/logging"

// ConsoleHandler logs the notification through the configured Logger,
// grounded on the decision logger's console-log path: a notification
// handler that needs no external service at all.
type ConsoleHandler struct {
	name string
	log  logging.Logger
}

// NewConsoleHandler returns a ConsoleHandler identified by name.
func NewConsoleHandler(name string, log logging.Logger) *ConsoleHandler {
	if log == nil {
		log = logging.NoOp{}
	}
	return &ConsoleHandler{name: name, log: log}
}

func (c *ConsoleHandler) Name() string { return c.name }

func (c *ConsoleHandler) Notify(content interface{}) error {
	c.log.Info("notification %q: %v", c.name, content)
	return nil
}
