// Package notify implements the notification dispatcher: a fan-out over
// a set of Handler values, each configured independently and tolerant of
// the others' failures.
package notify

// Handler delivers a notification about one runner result. A nil
// content value means the handler's configuration opted out of
// including the result payload (notify-on-completion without leaking
// the data itself).
type Handler interface {
	Name() string
	Notify(content interface{}) error
}
