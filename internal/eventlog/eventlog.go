// Package eventlog is an at-least-once, crash-recoverable journal for the
// Plot Manager's PlotAdded/PlotRemoved notifications. A notification is
// appended before it is handed to in-process subscribers, so a consumer
// that was offline (or a process that crashed mid-delivery) can replay
// everything it missed from the journal on restart.
package eventlog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-pkgz/lgr"
)

// Kind distinguishes the two notifications the Plot Manager emits.
type Kind string

const (
	KindPlotAdded   Kind = "PlotAdded"
	KindPlotRemoved Kind = "PlotRemoved"
)

// Event is one journaled manager notification.
type Event struct {
	Seq       uint64    `json:"seq"`
	Kind      Kind      `json:"kind"`
	PlotID    string    `json:"plotId"`
	Timestamp time.Time `json:"timestamp"`
}

// Log is a badger-backed append-only event journal. Keys are a fixed
// "event:" prefix followed by a big-endian sequence number, so iteration
// in key order is delivery order.
type Log struct {
	db     *badger.DB
	logger lgr.L
}

const seqKey = "seq:counter"

// Open opens (or creates) a badger database at dir and wraps it as a Log.
func Open(logger lgr.L, dir string) (*Log, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = newBadgerLogger(logger)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	return &Log{db: db, logger: logger}, nil
}

// OpenWithDB wraps an already-open badger database, e.g. one shared with a
// testcontainers-backed integration test.
func OpenWithDB(logger lgr.L, db *badger.DB) *Log {
	return &Log{db: db, logger: logger}
}

func (l *Log) Close() error {
	return l.db.Close()
}

// Append journals ev, assigning it the next sequence number. Delivery to
// in-process subscribers is the caller's concern; Append only guarantees
// the event survives a crash once it returns nil.
func (l *Log) Append(kind Kind, plotID string) (Event, error) {
	var ev Event
	err := l.db.Update(func(txn *badger.Txn) error {
		seq, err := nextSeq(txn)
		if err != nil {
			return err
		}
		ev = Event{Seq: seq, Kind: kind, PlotID: plotID, Timestamp: time.Now()}
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		return txn.Set(eventKey(seq), data)
	})
	if err != nil {
		return Event{}, fmt.Errorf("failed to append event: %w", err)
	}
	l.logger.Logf("INFO eventlog appended %s plot=%s seq=%d", kind, plotID, ev.Seq)
	return ev, nil
}

// Since returns every event with Seq > afterSeq, in ascending sequence
// order, letting a consumer resume exactly where it left off.
func (l *Log) Since(afterSeq uint64) ([]Event, error) {
	var events []Event
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("event:")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var ev Event
				if err := json.Unmarshal(val, &ev); err != nil {
					l.logger.Logf("WARN eventlog skipping malformed record: %v", err)
					return nil
				}
				if ev.Seq > afterSeq {
					events = append(events, ev)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}
	return events, nil
}

func nextSeq(txn *badger.Txn) (uint64, error) {
	var next uint64
	item, err := txn.Get([]byte(seqKey))
	switch {
	case err == nil:
		if verr := item.Value(func(val []byte) error {
			next = decodeSeq(val) + 1
			return nil
		}); verr != nil {
			return 0, verr
		}
	case err == badger.ErrKeyNotFound:
		next = 1
	default:
		return 0, err
	}
	if err := txn.Set([]byte(seqKey), encodeSeq(next)); err != nil {
		return 0, err
	}
	return next, nil
}

func eventKey(seq uint64) []byte {
	return append([]byte("event:"), encodeSeq(seq)...)
}

func encodeSeq(seq uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(seq)
		seq >>= 8
	}
	return b
}

func decodeSeq(b []byte) uint64 {
	var seq uint64
	for _, c := range b {
		seq = seq<<8 | uint64(c)
	}
	return seq
}

// badgerLogger adapts lgr.L to badger's Logger interface.
type badgerLogger struct {
	lgr lgr.L
}

func newBadgerLogger(l lgr.L) *badgerLogger {
	return &badgerLogger{lgr: l}
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.lgr.Logf("ERROR "+format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.lgr.Logf("WARN "+format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.lgr.Logf("INFO "+format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.lgr.Logf("DEBUG "+format, args...)
}
