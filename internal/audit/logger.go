package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/org/accessgate/internal/storage"
	"github.com/org/accessgate/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var droppedRecords = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "accessgate_audit_records_dropped_total",
	Help: "Audit records lost to a full buffer or a failed sink write.",
})

func init() {
	prometheus.MustRegister(droppedRecords)
}

// writeTimeout bounds each sink write. The writer runs detached from
// request contexts, so a cancelled request cannot abort its own record.
const writeTimeout = 5 * time.Second

// Logger appends access audit records through the storage backend.
// Record never blocks the decision path: entries go onto a buffered
// channel and a background writer persists them. A full buffer or a
// failed write drops the record and raises the telemetry counter
// instead of failing the evaluation. Raw credentials must never be
// passed here; callers supply a fingerprint via Fingerprint.
type Logger struct {
	store storage.Backend
	ch    chan *models.AuditRecord
	done  chan struct{}
	once  sync.Once
}

// NewLogger creates a Logger and starts its background writer.
// bufferSize <= 0 selects a default of 256.
func NewLogger(store storage.Backend, bufferSize int) *Logger {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	l := &Logger{
		store: store,
		ch:    make(chan *models.AuditRecord, bufferSize),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

// Record enqueues one audit record. Non-blocking.
func (l *Logger) Record(rec *models.AuditRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	select {
	case l.ch <- rec:
	default:
		droppedRecords.Inc()
		log.Warn().
			Str("origin", rec.OriginAddress).
			Str("reason_code", string(rec.ReasonCode)).
			Msg("audit buffer full, record dropped")
	}
}

// Query retrieves audit records matching the filter.
func (l *Logger) Query(ctx context.Context, filter storage.AuditFilter) ([]*models.AuditRecord, error) {
	return l.store.QueryAuditLog(ctx, filter)
}

// Close stops accepting records and drains the buffer.
func (l *Logger) Close() {
	l.once.Do(func() {
		close(l.ch)
		<-l.done
	})
}

func (l *Logger) run() {
	defer close(l.done)
	for rec := range l.ch {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := l.store.WriteAuditRecord(ctx, rec)
		cancel()
		if err != nil {
			droppedRecords.Inc()
			log.Error().Err(err).
				Str("origin", rec.OriginAddress).
				Msg("audit sink write failed")
		}
	}
}

// Fingerprint returns the SHA-256 hex fingerprint of a credential, the
// only form in which a credential may appear in an audit record.
// Empty input yields an empty fingerprint.
func Fingerprint(credential string) string {
	if credential == "" {
		return ""
	}
	h := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(h[:])
}
