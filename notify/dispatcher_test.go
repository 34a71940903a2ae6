package notify

import "testing"

type recordingHandler struct {
	name     string
	fail     bool
	received []interface{}
}

func (r *recordingHandler) Name() string { return r.name }

func (r *recordingHandler) Notify(content interface{}) error {
	if r.fail {
		return errFailedNotify
	}
	r.received = append(r.received, content)
	return nil
}

var errFailedNotify = &notifyError{"handler failed"}

type notifyError struct{ msg string }

func (e *notifyError) Error() string { return e.msg }

func TestDispatcherSendsToAllHandlers(t *testing.T) {
	a := &recordingHandler{name: "a"}
	b := &recordingHandler{name: "b"}
	d := NewDispatcher(nil, Registration{Handler: a, IncludeResult: true}, Registration{Handler: b, IncludeResult: true})

	d.Send("result")

	if len(a.received) != 1 || a.received[0] != "result" {
		t.Fatalf("handler a did not receive the notification: %v", a.received)
	}
	if len(b.received) != 1 || b.received[0] != "result" {
		t.Fatalf("handler b did not receive the notification: %v", b.received)
	}
}

func TestDispatcherContinuesPastFailingHandler(t *testing.T) {
	failing := &recordingHandler{name: "broken", fail: true}
	ok := &recordingHandler{name: "ok"}
	d := NewDispatcher(nil, Registration{Handler: failing, IncludeResult: true}, Registration{Handler: ok, IncludeResult: true})

	d.Send("result")

	if len(ok.received) != 1 {
		t.Fatalf("expected the healthy handler to still receive the notification")
	}
}

func TestDispatcherWithholdsContentWhenIncludeResultIsFalse(t *testing.T) {
	h := &recordingHandler{name: "quiet"}
	d := NewDispatcher(nil, Registration{Handler: h, IncludeResult: false})

	d.Send("result")

	if len(h.received) != 1 || h.received[0] != nil {
		t.Fatalf("expected the handler to receive a nil payload, got %v", h.received)
	}
}

func TestConsoleHandlerNeverFails(t *testing.T) {
	h := NewConsoleHandler("console", nil)
	if err := h.Notify("anything"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
