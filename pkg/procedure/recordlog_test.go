package procedure

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelab/opticalign/pkg/events"
	"github.com/atelab/opticalign/pkg/records"
	"github.com/atelab/opticalign/pkg/stream"
)

func centered(x, y float64, w, h int) stream.Snapshot {
	return stream.Snapshot{
		Camera:    stream.Reference,
		Streaming: true,
		Centroid:  stream.Centroid{Success: true, X: x, Y: y},
		ImageSize: stream.ImageSize{Width: w, Height: h},
	}
}

func TestAddRecordIndices(t *testing.T) {
	l := NewRecordLog("s", nil, nil)
	for i := 1; i <= 3; i++ {
		r := l.Add(context.Background())
		assert.Equal(t, i, r.Index)
		assert.Equal(t, records.StatusPending, r.Status)
		assert.Nil(t, r.Result)
	}
	assert.Len(t, l.List(), 3)
}

func TestCompleteRecordDeviation(t *testing.T) {
	l := NewRecordLog("s", nil, nil)
	l.Add(context.Background())

	r, err := l.Complete(context.Background(), 1, centered(330, 230, 640, 480))
	require.NoError(t, err)
	assert.Equal(t, records.StatusCompleted, r.Status)
	require.NotNil(t, r.Result)
	assert.Equal(t, Deviation{X: 10, Y: -10}, *r.Result)
}

func TestCompleteRecordTwiceRejected(t *testing.T) {
	l := NewRecordLog("s", nil, nil)
	l.Add(context.Background())
	_, err := l.Complete(context.Background(), 1, centered(330, 230, 640, 480))
	require.NoError(t, err)

	_, err = l.Complete(context.Background(), 1, centered(0, 0, 640, 480))
	assert.ErrorIs(t, err, ErrRecordCompleted)
	assert.Equal(t, Deviation{X: 10, Y: -10}, *l.List()[0].Result, "the first result is kept")
}

func TestCompleteRecordNotFound(t *testing.T) {
	l := NewRecordLog("s", nil, nil)
	_, err := l.Complete(context.Background(), 1, stream.Snapshot{})
	assert.ErrorIs(t, err, ErrRecordNotFound)
	l.Add(context.Background())
	_, err = l.Complete(context.Background(), 0, stream.Snapshot{})
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestDeviationWithoutCentroid(t *testing.T) {
	tests := []struct {
		name string
		snap stream.Snapshot
	}{
		{"no centroid", stream.Snapshot{ImageSize: stream.ImageSize{Width: 10, Height: 10}}},
		{"no size", stream.Snapshot{Centroid: stream.Centroid{Success: true, X: 3, Y: 4}}},
		{"empty", stream.Snapshot{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, Deviation{}, DeviationOf(tt.snap))
		})
	}
}

func TestListReturnsCopies(t *testing.T) {
	l := NewRecordLog("s", nil, nil)
	l.Add(context.Background())
	_, _ = l.Complete(context.Background(), 1, centered(1, 1, 2, 2))

	list := l.List()
	list[0].Result.X = 99
	list[0].Status = "tampered"
	assert.Equal(t, 0.0, l.List()[0].Result.X)
	assert.Equal(t, records.StatusCompleted, l.List()[0].Status)
}

type fakeStore struct {
	mu        sync.Mutex
	appended  []records.Record
	completed []records.Record
	err       error
}

func (f *fakeStore) Append(_ context.Context, r records.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, r)
	return f.err
}

func (f *fakeStore) Complete(_ context.Context, r records.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, r)
	return f.err
}

func TestRecordLogMirrorsToStore(t *testing.T) {
	store := &fakeStore{}
	l := NewRecordLog("session-1", store, nil)
	l.Add(context.Background())
	_, err := l.Complete(context.Background(), 1, centered(5, 5, 4, 4))
	require.NoError(t, err)

	require.Len(t, store.appended, 1)
	assert.Equal(t, "session-1", store.appended[0].SessionID)
	require.Len(t, store.completed, 1)
	assert.Equal(t, 3.0, *store.completed[0].XDeviation)
	assert.Equal(t, 3.0, *store.completed[0].YDeviation)
}

func TestRecordStoreFailureIsNotFatal(t *testing.T) {
	hub := events.NewEventHub()
	sub := hub.Subscribe()
	defer hub.Close()

	l := NewRecordLog("s", &fakeStore{err: errors.New("disk full")}, hub)
	r := l.Add(context.Background())
	assert.Equal(t, 1, r.Index)
	assert.Len(t, l.List(), 1)

	var warned bool
	timeout := time.After(time.Second)
	for !warned {
		select {
		case ev := <-sub:
			if ev.Name == events.NoticeEvent {
				n, _ := events.DecodeAs[events.Notice](ev)
				warned = n.Level == events.LevelWarning
			}
		case <-timeout:
			t.Fatal("no warning for store failure")
		}
	}
}

func TestRecordLogWithSQLite(t *testing.T) {
	db, err := records.NewDB(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	defer db.Close()

	l := NewRecordLog("s", db, nil)
	l.Add(context.Background())
	l.Add(context.Background())
	_, err = l.Complete(context.Background(), 2, centered(12, 8, 20, 20))
	require.NoError(t, err)

	rows, err := db.List(context.Background(), "s")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, records.StatusPending, rows[0].Status)
	assert.Equal(t, records.StatusCompleted, rows[1].Status)
	assert.Equal(t, 2.0, *rows[1].XDeviation)
	assert.Equal(t, -2.0, *rows[1].YDeviation)
}
