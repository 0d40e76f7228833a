package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// HistoryLimit is how many entries each owner keeps.
const HistoryLimit = 50

type Entry struct {
	ID        string    `json:"id"`
	OwnerID   int64     `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	Subject   string    `json:"subject"`
	Answer    string    `json:"answer"`
	Image     []byte    `json:"image,omitempty"`
}

type HistoryRepo struct {
	DB    *sql.DB
	Limit int
	now   func() time.Time
}

func NewHistoryRepo(db *sql.DB) *HistoryRepo {
	return &HistoryRepo{DB: db, Limit: HistoryLimit, now: time.Now}
}

// Add prepends an entry to the owner's log and drops everything past Limit.
func (r *HistoryRepo) Add(ctx context.Context, ownerID int64, image []byte, subject, answer string) (Entry, error) {
	e := Entry{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		CreatedAt: r.now(),
		Subject:   subject,
		Answer:    answer,
		Image:     image,
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// seq orders entries that share a timestamp
	var seq int64
	const next = `select coalesce(max(seq), 0) + 1 from history where owner_id = $1`
	if err := tx.QueryRowContext(ctx, next, ownerID).Scan(&seq); err != nil {
		return Entry{}, fmt.Errorf("history seq: %w", err)
	}

	const ins = `insert into history (id, owner_id, created_at, seq, subject, answer, image)
values ($1,$2,$3,$4,$5,$6,$7)`
	if _, err := tx.ExecContext(ctx, ins, e.ID, ownerID, e.CreatedAt.UnixNano(), seq, subject, answer, image); err != nil {
		return Entry{}, fmt.Errorf("history insert: %w", err)
	}

	const trim = `
delete from history
where owner_id = $1
  and id not in (
    select id from history where owner_id = $1
    order by created_at desc, seq desc
    limit $2)`
	if _, err := tx.ExecContext(ctx, trim, ownerID, r.limit()); err != nil {
		return Entry{}, fmt.Errorf("history trim: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// List returns the owner's entries, most recent first.
func (r *HistoryRepo) List(ctx context.Context, ownerID int64) ([]Entry, error) {
	const q = `
select id, owner_id, created_at, subject, answer, image
from history
where owner_id = $1
order by created_at desc, seq desc
limit $2`
	rows, err := r.DB.QueryContext(ctx, q, ownerID, r.limit())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e  Entry
			ts int64
		)
		if err := rows.Scan(&e.ID, &e.OwnerID, &ts, &e.Subject, &e.Answer, &e.Image); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(0, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Get returns one entry of the owner.
func (r *HistoryRepo) Get(ctx context.Context, ownerID int64, id string) (Entry, error) {
	const q = `select id, owner_id, created_at, subject, answer, image from history where owner_id = $1 and id = $2`
	var (
		e  Entry
		ts int64
	)
	err := r.DB.QueryRowContext(ctx, q, ownerID, id).Scan(&e.ID, &e.OwnerID, &ts, &e.Subject, &e.Answer, &e.Image)
	if err != nil {
		return Entry{}, err
	}
	e.CreatedAt = time.Unix(0, ts)
	return e, nil
}

// Clear removes the owner's whole log.
func (r *HistoryRepo) Clear(ctx context.Context, ownerID int64) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `delete from history where owner_id = $1`, ownerID)
	if err != nil {
		return 0, err
	}
	aff, _ := res.RowsAffected()
	return aff, nil
}

func (r *HistoryRepo) limit() int {
	if r.Limit <= 0 {
		return HistoryLimit
	}
	return r.Limit
}
