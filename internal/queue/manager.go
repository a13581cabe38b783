package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/jerilmartin/infini8seo-sub000/internal/interfaces"
	"github.com/jerilmartin/infini8seo-sub000/internal/models"
)

// ErrNoMessage is returned when the queue has no visible message
var ErrNoMessage = errors.New("no messages in queue")

// ErrDuplicateJob is returned when a message for an already-queued job
// is enqueued again
var ErrDuplicateJob = errors.New("job already queued")

// storedMessage wraps the queue message with delivery bookkeeping
type storedMessage struct {
	Body         models.QueueMessage `json:"body"`
	VisibleAt    time.Time           `json:"visible_at"`
	ReceiveCount int                 `json:"receive_count"`
}

// Manager is a persistent FIFO queue on Badger. Delivered messages become
// invisible for the visibility timeout; unacked messages reappear, and a
// message received more than maxReceive times is dropped as a poison pill.
type Manager struct {
	db                *badger.DB
	queueName         string
	visibilityTimeout time.Duration
	maxReceive        int
	logger            arbor.ILogger
}

// NewManager creates a Badger-backed queue manager
func NewManager(db *badger.DB, queueName string, visibilityTimeout time.Duration, maxReceive int, logger arbor.ILogger) (*Manager, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if queueName == "" {
		return nil, errors.New("queue name is required")
	}
	if visibilityTimeout <= 0 {
		visibilityTimeout = 5 * time.Minute
	}
	if maxReceive <= 0 {
		maxReceive = 3
	}

	return &Manager{
		db:                db,
		queueName:         queueName,
		visibilityTimeout: visibilityTimeout,
		maxReceive:        maxReceive,
		logger:            logger,
	}, nil
}

var _ interfaces.JobQueue = (*Manager)(nil)

// Enqueue adds a message to the queue. A second message carrying the JobID
// of one still in flight is rejected with ErrDuplicateJob.
func (m *Manager) Enqueue(ctx context.Context, msg models.QueueMessage) error {
	if msg.ID == "" {
		return errors.New("message ID is required")
	}
	if msg.JobID == "" {
		return errors.New("message job ID is required")
	}
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now()
	}

	stored := storedMessage{
		Body:      msg,
		VisibleAt: time.Now(),
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	return m.db.Update(func(txn *badger.Txn) error {
		// Dedup guard: one in-flight message per job
		jobKey := m.jobKey(msg.JobID)
		if _, err := txn.Get(jobKey); err == nil {
			return fmt.Errorf("%w: %s", ErrDuplicateJob, msg.JobID)
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		if err := txn.Set(m.msgKey(msg.ID), data); err != nil {
			return err
		}
		if err := txn.Set(m.indexKey(stored.VisibleAt, msg.ID), []byte{}); err != nil {
			return err
		}
		return txn.Set(jobKey, []byte(msg.ID))
	})
}

// Receive pulls the next visible message. The returned ack function removes
// the message permanently; an unacked message reappears after the visibility
// timeout.
func (m *Manager) Receive(ctx context.Context) (*models.QueueMessage, func() error, error) {
	var claimed storedMessage
	var msgID string

	err := m.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:index:", m.queueName))
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		found := false
		var oldIndexKey []byte

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)

			ts, id, err := m.parseIndexKey(key)
			if err != nil {
				continue
			}

			// Index keys sort by timestamp; the first future entry ends the scan
			if ts.After(now) {
				break
			}

			item, err := txn.Get(m.msgKey(id))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					// Orphaned index entry, clean it up
					if err := txn.Delete(key); err != nil {
						return err
					}
					continue
				}
				return err
			}

			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &claimed)
			}); err != nil {
				return err
			}

			if claimed.ReceiveCount >= m.maxReceive {
				m.logger.Warn().
					Str("message_id", id).
					Str("job_id", claimed.Body.JobID).
					Int("receive_count", claimed.ReceiveCount).
					Msg("Dropping poison message after max receives")
				if err := m.deleteInTxn(txn, key, id, claimed.Body.JobID); err != nil {
					return err
				}
				continue
			}

			found = true
			msgID = id
			oldIndexKey = key
			break
		}

		if !found {
			return ErrNoMessage
		}

		claimed.ReceiveCount++
		claimed.VisibleAt = time.Now().Add(m.visibilityTimeout)

		newData, err := json.Marshal(claimed)
		if err != nil {
			return err
		}
		if err := txn.Set(m.msgKey(msgID), newData); err != nil {
			return err
		}
		if err := txn.Delete(oldIndexKey); err != nil {
			return err
		}
		return txn.Set(m.indexKey(claimed.VisibleAt, msgID), []byte{})
	})
	if err != nil {
		return nil, nil, err
	}

	ack := func() error {
		return m.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(m.msgKey(msgID))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					return nil // Already deleted
				}
				return err
			}

			var current storedMessage
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &current)
			}); err != nil {
				return err
			}

			return m.deleteInTxn(txn, m.indexKey(current.VisibleAt, msgID), msgID, current.Body.JobID)
		})
	}

	return &claimed.Body, ack, nil
}

// Extend pushes out the visibility deadline of an in-flight message
func (m *Manager) Extend(ctx context.Context, messageID string, duration time.Duration) error {
	return m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(m.msgKey(messageID))
		if err != nil {
			return err
		}

		var stored storedMessage
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &stored)
		}); err != nil {
			return err
		}

		oldVisibleAt := stored.VisibleAt
		stored.VisibleAt = time.Now().Add(duration)

		newData, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		if err := txn.Set(m.msgKey(messageID), newData); err != nil {
			return err
		}

		if err := txn.Delete(m.indexKey(oldVisibleAt, messageID)); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(m.indexKey(stored.VisibleAt, messageID), []byte{})
	})
}

// Close is a no-op; the database connection is managed by the storage layer
func (m *Manager) Close() error {
	return nil
}

func (m *Manager) deleteInTxn(txn *badger.Txn, indexKey []byte, msgID, jobID string) error {
	if err := txn.Delete(indexKey); err != nil && err != badger.ErrKeyNotFound {
		return err
	}
	if err := txn.Delete(m.msgKey(msgID)); err != nil && err != badger.ErrKeyNotFound {
		return err
	}
	if jobID != "" {
		if err := txn.Delete(m.jobKey(jobID)); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
	}
	return nil
}

func (m *Manager) msgKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", m.queueName, id))
}

func (m *Manager) jobKey(jobID string) []byte {
	return []byte(fmt.Sprintf("queue:%s:job:%s", m.queueName, jobID))
}

func (m *Manager) indexKey(visibleAt time.Time, id string) []byte {
	// Zero pad to 20 digits so byte order matches numeric order
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", m.queueName, visibleAt.UnixNano(), id))
}

func (m *Manager) parseIndexKey(key []byte) (time.Time, string, error) {
	prefix := fmt.Sprintf("queue:%s:index:", m.queueName)
	if len(key) <= len(prefix) {
		return time.Time{}, "", fmt.Errorf("invalid key length")
	}

	suffix := string(key[len(prefix):])
	if len(suffix) < 21 { // 20 digits + 1 colon
		return time.Time{}, "", fmt.Errorf("invalid suffix length")
	}

	var ts int64
	if _, err := fmt.Sscanf(suffix[:20], "%d", &ts); err != nil {
		return time.Time{}, "", err
	}

	return time.Unix(0, ts), suffix[21:], nil
}
