package procedure

import (
	"context"
	"fmt"
	"sync"

	"github.com/atelab/opticalign/pkg/device"
	"github.com/atelab/opticalign/pkg/stream"
)

// recorder is shared by the fakes so tests can assert on call order across
// components.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeStreams struct {
	rec *recorder

	mu        sync.Mutex
	streaming map[stream.CameraID]bool
	fail      map[stream.CameraID]error
	// block, when set, holds every StopStream until closed.
	block chan struct{}
}

func newFakeStreams(rec *recorder, ids ...stream.CameraID) *fakeStreams {
	f := &fakeStreams{rec: rec, streaming: map[stream.CameraID]bool{}, fail: map[stream.CameraID]error{}}
	for _, id := range ids {
		f.streaming[id] = true
	}
	return f
}

func (f *fakeStreams) IsStreaming(id stream.CameraID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streaming[id]
}

func (f *fakeStreams) StopStream(ctx context.Context, id stream.CameraID) error {
	if f.block != nil {
		<-f.block
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.rec.add("stop %s", id)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[id]; err != nil {
		return err
	}
	f.streaming[id] = false
	return nil
}

type fakeDevices struct {
	rec *recorder

	mu sync.Mutex
	on map[device.Kind]bool
}

func newFakeDevices(rec *recorder, kinds ...device.Kind) *fakeDevices {
	f := &fakeDevices{rec: rec, on: map[device.Kind]bool{}}
	for _, k := range kinds {
		f.on[k] = true
	}
	return f
}

func (f *fakeDevices) IsOn(k device.Kind) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on[k]
}

func (f *fakeDevices) TurnOff(ctx context.Context, k device.Kind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.rec.add("off %s", k)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.on[k] = false
	return nil
}

type fakePoller struct {
	rec *recorder

	mu      sync.Mutex
	running bool
}

func (f *fakePoller) StartPolling() {
	f.rec.add("poll start")
	f.mu.Lock()
	f.running = true
	f.mu.Unlock()
}

func (f *fakePoller) StopPolling() {
	f.rec.add("poll stop")
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
}

func (f *fakePoller) Polling() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}
