package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"clubhub/internal/domain"
)

// MessageRepository guarda mensajes directos. Es sólo de agregado: no hay
// actualización ni borrado.
type MessageRepository interface {
	Append(ctx context.Context, message domain.Message) error
	ListByRoom(ctx context.Context, roomID string) ([]domain.Message, error)
}

type PgMessageRepository struct {
	pool *pgxpool.Pool
}

func NewPgMessageRepository(pool *pgxpool.Pool) *PgMessageRepository {
	return &PgMessageRepository{pool: pool}
}

func (r *PgMessageRepository) Append(ctx context.Context, message domain.Message) error {
	const query = `
		INSERT INTO messages (id, from_user_id, to_user_id, room_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		message.ID,
		message.FromUserID,
		message.ToUserID,
		message.RoomID,
		message.Body,
		message.CreatedAt,
	)
	return err
}

// ListByRoom devuelve la conversación completa en orden de inserción.
func (r *PgMessageRepository) ListByRoom(ctx context.Context, roomID string) ([]domain.Message, error) {
	const query = `
		SELECT id, from_user_id, to_user_id, room_id, body, created_at
		FROM messages
		WHERE room_id = $1
		ORDER BY created_at ASC, seq ASC
	`

	rows, err := r.pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		err = rows.Scan(
			&msg.ID,
			&msg.FromUserID,
			&msg.ToUserID,
			&msg.RoomID,
			&msg.Body,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		msg.CreatedAt = msg.CreatedAt.UTC()
		messages = append(messages, msg)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}
