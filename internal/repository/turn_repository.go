package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jsalverda/disentangle/internal/db"
	"github.com/jsalverda/disentangle/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type turnRepository struct {
	conn *db.Connection
}

// NewTurnRepository wires a repository backed by the shared connection. The
// connection rather than the bare pool is required so batch inserts run
// inside Connection.WithTx.
func NewTurnRepository(conn *db.Connection) TurnRepository {
	return &turnRepository{conn: conn}
}

// CreateBatch inserts turns and their import-derived thread annotations in a
// single transaction. A batch either fully commits or fully fails.
func (r *turnRepository) CreateBatch(ctx context.Context, items []TurnBatchItem) error {
	if len(items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, item := range items {
		turn := item.Turn
		metadata := turn.Metadata
		if metadata == nil {
			metadata = map[string]string{}
		}
		batch.Queue(
			`INSERT INTO turns (id, container_id, turn_id, user_id, content, reply_to, sequence, metadata, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			turn.ID, turn.ContainerID, turn.TurnID, turn.UserID, turn.Content, turn.ReplyTo, turn.Sequence, metadata, turn.CreatedAt,
		)
		if item.Annotation != nil {
			annotation := *item.Annotation
			batch.Queue(
				`INSERT INTO annotations (id, turn_id, kind, thread_id, source, original_column, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				annotation.ID, annotation.TurnID, annotation.Kind, annotation.ThreadID, annotation.Source, annotation.OriginalColumn, annotation.CreatedAt, annotation.UpdatedAt,
			)
		}
	}

	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("failed to insert batch row: %w", err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("failed to close batch results: %w", err)
		}
		return nil
	})
}

func (r *turnRepository) ListByContainer(ctx context.Context, containerID uuid.UUID, limit, offset int) ([]domain.Turn, error) {
	if limit <= 0 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.conn.Pool.Query(
		ctx,
		`SELECT id, container_id, turn_id, user_id, content, reply_to, sequence, metadata, created_at
		 FROM turns
		 WHERE container_id = $1
		 ORDER BY sequence
		 LIMIT $2 OFFSET $3`,
		containerID,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}

	return turns, rows.Err()
}

func (r *turnRepository) GetByTurnID(ctx context.Context, containerID uuid.UUID, turnID string) (domain.Turn, error) {
	row := r.conn.Pool.QueryRow(
		ctx,
		`SELECT id, container_id, turn_id, user_id, content, reply_to, sequence, metadata, created_at
		 FROM turns
		 WHERE container_id = $1 AND turn_id = $2
		 ORDER BY sequence LIMIT 1`,
		containerID,
		turnID,
	)

	turn, err := scanTurn(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Turn{}, fmt.Errorf("turn %s: %w", turnID, ErrNotFound)
		}
		return domain.Turn{}, err
	}
	return turn, nil
}

func (r *turnRepository) CountByContainer(ctx context.Context, containerID uuid.UUID) (int64, error) {
	var count int64
	err := r.conn.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM turns WHERE container_id = $1`, containerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count turns: %w", err)
	}
	return count, nil
}

func scanTurn(row pgx.Row) (domain.Turn, error) {
	var turn domain.Turn
	err := row.Scan(&turn.ID, &turn.ContainerID, &turn.TurnID, &turn.UserID, &turn.Content, &turn.ReplyTo, &turn.Sequence, &turn.Metadata, &turn.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Turn{}, err
		}
		return domain.Turn{}, fmt.Errorf("failed to scan turn: %w", err)
	}
	return turn, nil
}
