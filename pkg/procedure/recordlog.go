package procedure

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/atelab/opticalign/pkg/events"
	"github.com/atelab/opticalign/pkg/records"
	"github.com/atelab/opticalign/pkg/stream"
)

// Deviation is the centroid offset from the image center, in pixels.
type Deviation struct {
	X float64 `json:"xDeviation"`
	Y float64 `json:"yDeviation"`
}

// TestRecord is one entry of the append-only test log.
type TestRecord struct {
	Index     int        `json:"index"`
	Timestamp time.Time  `json:"timestamp"`
	Status    string     `json:"status"`
	Result    *Deviation `json:"result"`
}

// RecordStore mirrors the log somewhere durable.
type RecordStore interface {
	Append(ctx context.Context, r records.Record) error
	Complete(ctx context.Context, r records.Record) error
}

// RecordLog is the in-memory test log of one session. It is authoritative;
// the store only mirrors it.
type RecordLog struct {
	sessionID string
	store     RecordStore
	hub       events.Publisher
	now       func() time.Time

	mu      sync.Mutex
	records []TestRecord
}

// NewRecordLog creates an empty log. store may be nil.
func NewRecordLog(sessionID string, store RecordStore, hub events.Publisher) *RecordLog {
	return &RecordLog{
		sessionID: sessionID,
		store:     store,
		hub:       hub,
		now:       time.Now,
	}
}

// Add appends a pending record.
func (l *RecordLog) Add(ctx context.Context) TestRecord {
	l.mu.Lock()
	r := TestRecord{
		Index:     len(l.records) + 1,
		Timestamp: l.now(),
		Status:    records.StatusPending,
	}
	l.records = append(l.records, r)
	l.mu.Unlock()

	logrus.WithField("index", r.Index).Info("test record added")
	l.publish(r)
	if l.store != nil {
		l.mirror("append", l.store.Append(ctx, records.Record{
			SessionID: l.sessionID,
			Index:     r.Index,
			CreatedAt: r.Timestamp,
			Status:    r.Status,
		}))
	}
	return r
}

// Complete captures the centroid deviation of snap into a pending record.
// A completed record is never overwritten.
func (l *RecordLog) Complete(ctx context.Context, index int, snap stream.Snapshot) (TestRecord, error) {
	l.mu.Lock()
	if index < 1 || index > len(l.records) {
		l.mu.Unlock()
		return TestRecord{}, fmt.Errorf("%w: %d", ErrRecordNotFound, index)
	}
	r := &l.records[index-1]
	if r.Status != records.StatusPending {
		l.mu.Unlock()
		return TestRecord{}, fmt.Errorf("%w: %d", ErrRecordCompleted, index)
	}
	d := DeviationOf(snap)
	r.Status = records.StatusCompleted
	r.Result = &d
	out := *r
	l.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"index":  index,
		"camera": snap.Camera,
		"x":      d.X,
		"y":      d.Y,
	}).Info("test record completed")
	l.publish(out)
	if l.store != nil {
		done := l.now()
		l.mirror("complete", l.store.Complete(ctx, records.Record{
			SessionID:   l.sessionID,
			Index:       index,
			Status:      out.Status,
			XDeviation:  &d.X,
			YDeviation:  &d.Y,
			CompletedAt: &done,
		}))
	}
	return out, nil
}

// List returns a copy of the log.
func (l *RecordLog) List() []TestRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]TestRecord, len(l.records))
	for i, r := range l.records {
		if r.Result != nil {
			d := *r.Result
			r.Result = &d
		}
		out[i] = r
	}
	return out
}

// DeviationOf is the centroid offset from the image center, or zero when
// the snapshot has no valid centroid or image size.
func DeviationOf(snap stream.Snapshot) Deviation {
	if !snap.Centroid.Success || !snap.ImageSize.Valid() {
		return Deviation{}
	}
	return Deviation{
		X: snap.Centroid.X - float64(snap.ImageSize.Width)/2,
		Y: snap.Centroid.Y - float64(snap.ImageSize.Height)/2,
	}
}

func (l *RecordLog) mirror(op string, err error) {
	if err == nil {
		return
	}
	logrus.WithError(err).WithField("operation", op).Warn("failed to persist test record")
	events.Notify(l.hub, events.LevelWarning, "records", "record not persisted: "+err.Error())
}

func (l *RecordLog) publish(r TestRecord) {
	if l.hub == nil {
		return
	}
	l.hub.Publish(events.RecordChanged, events.RecordChangedEvent{Index: r.Index, Status: r.Status})
}
