package signaling

import "encoding/json"

// fakeConn is an in-memory stand-in for a websocket connection: outbound
// WriteJSON calls are recorded for assertions, and ReadJSON is never
// exercised directly here since tests drive the engine via HandleRaw.
type fakeConn struct {
	sent []interface{}
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	f.sent = append(f.sent, v)
	return nil
}

func (f *fakeConn) Close() error { return nil }

func (f *fakeConn) ReadJSON(v interface{}) error {
	return nil
}

func (f *fakeConn) lastAs(out interface{}) error {
	if len(f.sent) == 0 {
		return errNoMessages
	}
	raw, err := json.Marshal(f.sent[len(f.sent)-1])
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

var errNoMessages = jsonErr("no messages sent")

type jsonErr string

func (e jsonErr) Error() string { return string(e) }
