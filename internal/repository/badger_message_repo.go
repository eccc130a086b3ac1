package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"clubhub/internal/domain"
)

const (
	badgerSeqKey       = "seq:msg"
	badgerSeqBandwidth = 1000
)

// BadgerMessageRepository guarda los mensajes en un Badger embebido.
// Clave: "msg:{room hex}:{createdAt unix nano, 19 dígitos}:{secuencia, 20 dígitos}".
// El relleno con ceros hace que el orden lexicográfico sea el orden de inserción.
type BadgerMessageRepository struct {
	db     *badger.DB
	seq    *badger.Sequence
	logger *zap.Logger
}

func NewBadgerMessageRepository(db *badger.DB, logger *zap.Logger) (*BadgerMessageRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	seq, err := db.GetSequence([]byte(badgerSeqKey), badgerSeqBandwidth)
	if err != nil {
		return nil, fmt.Errorf("badger sequence: %w", err)
	}
	return &BadgerMessageRepository{db: db, seq: seq, logger: logger}, nil
}

// roomPrefix codifica la sala en hex para que ningún id pueda contener el separador.
func roomPrefix(roomID string) []byte {
	return []byte(fmt.Sprintf("msg:%x:", roomID))
}

func messageKey(msg domain.Message, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%019d:%020d", roomPrefix(msg.RoomID), msg.CreatedAt.UnixNano(), seq))
}

func (r *BadgerMessageRepository) Append(ctx context.Context, message domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := r.seq.Next()
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}
	value, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(message, n), value)
	})
}

func (r *BadgerMessageRepository) ListByRoom(ctx context.Context, roomID string) ([]domain.Message, error) {
	var messages []domain.Message
	prefix := roomPrefix(roomID)
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var msg domain.Message
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			})
			if err != nil {
				return err
			}
			msg.CreatedAt = msg.CreatedAt.UTC()
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// Close libera los identificadores reservados de la secuencia. No cierra la base.
func (r *BadgerMessageRepository) Close() error {
	if err := r.seq.Release(); err != nil {
		r.logger.Warn("release badger sequence failed", zap.Error(err))
		return err
	}
	return nil
}
