package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	logx "finalword/pkg/logx"
)

type recorder struct {
	mu   sync.Mutex
	subj []string
	data [][]byte
	fail bool
}

func (r *recorder) publish(subject string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		r.fail = false
		return errors.New("nats: connection closed")
	}
	r.subj = append(r.subj, subject)
	r.data = append(r.data, data)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subj)
}

func TestForwarderRepublishesAsJSON(t *testing.T) {
	t.Parallel()

	rec := &recorder{fail: true}
	f := &Forwarder{pub: rec.publish, prefix: "fw", log: logx.Nop()}
	b := New()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Run(ctx, b)
		close(done)
	}()

	at := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	// The first publish fails; the forwarder logs it and keeps going.
	deadline := time.Now().Add(2 * time.Second)
	for rec.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("nothing forwarded")
		}
		b.Publish(Event{Type: TypeDelivery, Time: at, Data: Delivery{RunID: "r1", JobID: 7, Status: "delivered"}})
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("forwarder did not stop on cancel")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.subj[0] != "fw.events.delivery" {
		t.Fatalf("subject = %q", rec.subj[0])
	}
	var got struct {
		Type string    `json:"type"`
		Time time.Time `json:"time"`
		Data Delivery  `json:"data"`
	}
	if err := json.Unmarshal(rec.data[0], &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != TypeDelivery || !got.Time.Equal(at) || got.Data.JobID != 7 || got.Data.RunID != "r1" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestForwarderCloseWithoutConnection(t *testing.T) {
	t.Parallel()

	var f *Forwarder
	if err := f.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
	if err := (&Forwarder{}).Close(); err != nil {
		t.Fatalf("empty close: %v", err)
	}
}
