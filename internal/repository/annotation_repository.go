package repository

import (
	"context"
	"fmt"

	"github.com/jsalverda/disentangle/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type annotationRepository struct {
	pool *pgxpool.Pool
}

// NewAnnotationRepository wires a repository backed by pgxpool.
func NewAnnotationRepository(pool *pgxpool.Pool) AnnotationRepository {
	return &annotationRepository{pool: pool}
}

// UpsertThread creates or replaces the thread annotation for a turn. A turn
// carries at most one thread annotation; a manual upsert overwrites an
// imported one and flips the source to "created".
func (r *annotationRepository) UpsertThread(ctx context.Context, annotation domain.Annotation) (domain.Annotation, error) {
	if annotation.ID == uuid.Nil {
		annotation.ID = uuid.New()
	}

	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO annotations (id, turn_id, kind, thread_id, source, original_column, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (turn_id, kind) DO UPDATE
		 SET thread_id = EXCLUDED.thread_id,
		     source = EXCLUDED.source,
		     original_column = EXCLUDED.original_column,
		     updated_at = EXCLUDED.updated_at
		 RETURNING id, created_at`,
		annotation.ID,
		annotation.TurnID,
		annotation.Kind,
		annotation.ThreadID,
		annotation.Source,
		annotation.OriginalColumn,
		annotation.CreatedAt,
		annotation.UpdatedAt,
	)
	if err := row.Scan(&annotation.ID, &annotation.CreatedAt); err != nil {
		return domain.Annotation{}, fmt.Errorf("failed to upsert thread annotation: %w", err)
	}

	return annotation, nil
}

func (r *annotationRepository) ListThreadMembers(ctx context.Context, containerID uuid.UUID) ([]ThreadMember, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT a.thread_id, a.source,
		        t.id, t.container_id, t.turn_id, t.user_id, t.content, t.reply_to, t.sequence, t.created_at
		 FROM annotations a
		 JOIN turns t ON t.id = a.turn_id
		 WHERE t.container_id = $1 AND a.kind = $2
		 ORDER BY t.sequence`,
		containerID,
		domain.AnnotationKindThread,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list thread members: %w", err)
	}
	defer rows.Close()

	var members []ThreadMember
	for rows.Next() {
		var member ThreadMember
		turn := &member.Turn
		if err := rows.Scan(
			&member.ThreadID, &member.Source,
			&turn.ID, &turn.ContainerID, &turn.TurnID, &turn.UserID, &turn.Content, &turn.ReplyTo, &turn.Sequence, &turn.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan thread member: %w", err)
		}
		members = append(members, member)
	}

	return members, rows.Err()
}
