// Package sqlstate maps a State onto the user_states, plans, blocks and
// events tables shared by the SQLite and PostgreSQL providers.
package sqlstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/julianstephens/flux/internal/migration"
	"github.com/julianstephens/flux/internal/models"
	"github.com/julianstephens/flux/internal/storage"
)

const timeLayout = time.RFC3339Nano

type Queries struct {
	db      *sql.DB
	dialect migration.Dialect
}

func New(db *sql.DB, dialect migration.Dialect) *Queries {
	return &Queries{db: db, dialect: dialect}
}

func (q *Queries) rebind(query string) string {
	return q.dialect.Rebind(query)
}

func (q *Queries) LoadState(ctx context.Context, userID string) (models.State, error) {
	if q == nil || q.db == nil {
		return models.State{}, storage.ErrNotLoaded
	}
	st := models.NewState()

	var activeID, workflow sql.NullString
	err := q.db.QueryRowContext(ctx,
		q.rebind("SELECT active_plan_id, workflow FROM user_states WHERE user_id = ?"), userID,
	).Scan(&activeID, &workflow)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return models.State{}, fmt.Errorf("failed to load user state: %w", err)
	}
	st.ActivePlanID = activeID.String
	if workflow.Valid && workflow.String != "" {
		var wf models.WorkflowStatus
		if err := json.Unmarshal([]byte(workflow.String), &wf); err != nil {
			return models.State{}, fmt.Errorf("failed to decode workflow: %w", err)
		}
		st.Workflow = &wf
	}

	if err := q.loadPlans(ctx, userID, &st); err != nil {
		return models.State{}, err
	}
	if err := q.loadBlocks(ctx, userID, &st); err != nil {
		return models.State{}, err
	}
	if err := q.loadEvents(ctx, userID, &st); err != nil {
		return models.State{}, err
	}
	return st, nil
}

func (q *Queries) loadPlans(ctx context.Context, userID string, st *models.State) error {
	rows, err := q.db.QueryContext(ctx,
		q.rebind("SELECT id, title, created_at, updated_at FROM plans WHERE user_id = ?"), userID)
	if err != nil {
		return fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.Plan
		var created, updated string
		if err := rows.Scan(&p.ID, &p.Title, &created, &updated); err != nil {
			return fmt.Errorf("failed to scan plan: %w", err)
		}
		if p.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return fmt.Errorf("plan %s: invalid created_at: %w", p.ID, err)
		}
		if p.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
			return fmt.Errorf("plan %s: invalid updated_at: %w", p.ID, err)
		}
		p.Blocks = []models.TimeBlock{}
		st.Plans[p.ID] = &p
	}
	return rows.Err()
}

func (q *Queries) loadBlocks(ctx context.Context, userID string, st *models.State) error {
	rows, err := q.db.QueryContext(ctx, q.rebind(`
		SELECT plan_id, id, title, description, priority, tags, start_time, end_time, status
		FROM blocks WHERE user_id = ? ORDER BY plan_id, position`), userID)
	if err != nil {
		return fmt.Errorf("failed to query blocks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			planID, tags, start, end string
			priority, status         string
			b                        models.TimeBlock
		)
		if err := rows.Scan(&planID, &b.ID, &b.Title, &b.Description, &priority, &tags, &start, &end, &status); err != nil {
			return fmt.Errorf("failed to scan block: %w", err)
		}
		b.Priority = models.Priority(priority)
		b.Status = models.BlockStatus(status)
		if err := json.Unmarshal([]byte(tags), &b.Tags); err != nil {
			return fmt.Errorf("block %s: invalid tags: %w", b.ID, err)
		}
		if b.Tags == nil {
			b.Tags = []string{}
		}
		if b.StartTime, err = time.Parse(timeLayout, start); err != nil {
			return fmt.Errorf("block %s: invalid start_time: %w", b.ID, err)
		}
		if b.EndTime, err = time.Parse(timeLayout, end); err != nil {
			return fmt.Errorf("block %s: invalid end_time: %w", b.ID, err)
		}

		plan, ok := st.Plans[planID]
		if !ok {
			return fmt.Errorf("block %s references unknown plan %s", b.ID, planID)
		}
		plan.Blocks = append(plan.Blocks, b)
	}
	return rows.Err()
}

func (q *Queries) loadEvents(ctx context.Context, userID string, st *models.State) error {
	rows, err := q.db.QueryContext(ctx, q.rebind(`
		SELECT id, type, payload, timestamp, reason
		FROM events WHERE user_id = ? ORDER BY seq`), userID)
	if err != nil {
		return fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e       models.Event
			typ, ts string
			payload string
		)
		if err := rows.Scan(&e.ID, &typ, &payload, &ts, &e.Reason); err != nil {
			return fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type = models.EventType(typ)
		e.Payload = json.RawMessage(payload)
		if e.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
			return fmt.Errorf("event %s: invalid timestamp: %w", e.ID, err)
		}
		st.Events = append(st.Events, e)
	}
	return rows.Err()
}

// SaveState replaces the user's plans and blocks and appends events not yet
// stored, all in one transaction.
func (q *Queries) SaveState(ctx context.Context, userID string, st models.State) error {
	if q == nil || q.db == nil {
		return storage.ErrNotLoaded
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stored, err := q.storedEventCount(ctx, tx, userID, st.Events)
	if err != nil {
		return err
	}

	var workflow sql.NullString
	if st.Workflow != nil {
		data, err := json.Marshal(st.Workflow)
		if err != nil {
			return fmt.Errorf("failed to encode workflow: %w", err)
		}
		workflow = sql.NullString{String: string(data), Valid: true}
	}
	var activeID sql.NullString
	if st.ActivePlanID != "" {
		activeID = sql.NullString{String: st.ActivePlanID, Valid: true}
	}

	if _, err := tx.ExecContext(ctx, q.rebind(`
		INSERT INTO user_states (user_id, active_plan_id, workflow, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			active_plan_id = excluded.active_plan_id,
			workflow = excluded.workflow,
			updated_at = excluded.updated_at`),
		userID, activeID, workflow, time.Now().UTC().Format(timeLayout),
	); err != nil {
		return fmt.Errorf("failed to save user state: %w", err)
	}

	if _, err := tx.ExecContext(ctx, q.rebind("DELETE FROM blocks WHERE user_id = ?"), userID); err != nil {
		return fmt.Errorf("failed to clear blocks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q.rebind("DELETE FROM plans WHERE user_id = ?"), userID); err != nil {
		return fmt.Errorf("failed to clear plans: %w", err)
	}

	insertPlan := q.rebind("INSERT INTO plans (user_id, id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)")
	insertBlock := q.rebind(`
		INSERT INTO blocks (user_id, plan_id, position, id, title, description, priority, tags, start_time, end_time, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	for _, p := range st.Plans {
		if _, err := tx.ExecContext(ctx, insertPlan,
			userID, p.ID, p.Title, p.CreatedAt.Format(timeLayout), p.UpdatedAt.Format(timeLayout),
		); err != nil {
			return fmt.Errorf("failed to save plan %s: %w", p.ID, err)
		}
		for i, b := range p.Blocks {
			tags := b.Tags
			if tags == nil {
				tags = []string{}
			}
			tagData, err := json.Marshal(tags)
			if err != nil {
				return fmt.Errorf("failed to encode tags: %w", err)
			}
			if _, err := tx.ExecContext(ctx, insertBlock,
				userID, p.ID, i, b.ID, b.Title, b.Description, string(b.Priority), string(tagData),
				b.StartTime.Format(timeLayout), b.EndTime.Format(timeLayout), string(b.Status),
			); err != nil {
				return fmt.Errorf("failed to save block %s: %w", b.ID, err)
			}
		}
	}

	insertEvent := q.rebind(`
		INSERT INTO events (user_id, seq, id, type, payload, timestamp, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	for seq := stored; seq < len(st.Events); seq++ {
		e := st.Events[seq]
		if _, err := tx.ExecContext(ctx, insertEvent,
			userID, seq, e.ID, string(e.Type), string(e.Payload), e.Timestamp.Format(timeLayout), e.Reason,
		); err != nil {
			return fmt.Errorf("failed to append event %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit state: %w", err)
	}
	return nil
}

// storedEventCount returns how many of events are already persisted. The
// stored log must be a prefix of events.
func (q *Queries) storedEventCount(ctx context.Context, tx *sql.Tx, userID string, events []models.Event) (int, error) {
	var seq int
	var id string
	err := tx.QueryRowContext(ctx,
		q.rebind("SELECT seq, id FROM events WHERE user_id = ? ORDER BY seq DESC LIMIT 1"), userID,
	).Scan(&seq, &id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read event log: %w", err)
	}
	if seq >= len(events) || events[seq].ID != id {
		return 0, storage.ErrEventLogRewritten
	}
	return seq + 1, nil
}
