package history

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/clinsim/backend/internal/models"
)

// PostgresStore keeps records in session_history. The trainee key is the
// user id as text.
type PostgresStore struct {
	db  *sql.DB
	max int
}

func NewPostgresStore(db *sql.DB, max int) *PostgresStore {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &PostgresStore{db: db, max: max}
}

// Append inserts rec and trims the trainee's list to the newest max rows in
// one transaction.
func (s *PostgresStore) Append(ctx context.Context, key string, rec models.HistoryRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO session_history
		    (trainee_key, scenario_name, score, difficulty, finished_at,
		     elapsed_display, timer_active, consultations_used)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key, rec.ScenarioName, rec.Score, string(rec.Difficulty), rec.Timestamp,
		rec.ElapsedDisplay, rec.TimerActive, rec.ConsultationsUsed,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM session_history
		 WHERE trainee_key = $1 AND id NOT IN (
		     SELECT id FROM session_history
		     WHERE trainee_key = $1
		     ORDER BY finished_at DESC, id DESC
		     LIMIT $2
		 )`,
		key, s.max,
	)
	if err != nil {
		return fmt.Errorf("trim history: %w", err)
	}

	return tx.Commit()
}

func (s *PostgresStore) List(ctx context.Context, key string) ([]models.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT scenario_name, score, difficulty, finished_at,
		        elapsed_display, timer_active, consultations_used
		 FROM session_history
		 WHERE trainee_key = $1
		 ORDER BY finished_at DESC, id DESC
		 LIMIT $2`,
		key, s.max,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	records := []models.HistoryRecord{}
	for rows.Next() {
		var (
			r          models.HistoryRecord
			difficulty string
		)
		if err := rows.Scan(&r.ScenarioName, &r.Score, &difficulty, &r.Timestamp,
			&r.ElapsedDisplay, &r.TimerActive, &r.ConsultationsUsed); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		r.Difficulty = models.Difficulty(difficulty)
		records = append(records, r)
	}
	return records, rows.Err()
}
