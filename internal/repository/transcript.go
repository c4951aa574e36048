package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/transcripts-tracker/constants"
	"github.com/joseph-ayodele/transcripts-tracker/db/migrate"
	"github.com/joseph-ayodele/transcripts-tracker/internal/common"
	"github.com/joseph-ayodele/transcripts-tracker/internal/entity"
)

// MaxPageSize bounds ListGrouped pages.
const MaxPageSize = 100

// maxSaveAttempts bounds re-reads when another writer updates a row first.
const maxSaveAttempts = 5

const (
	colID           = "id"
	colOwner        = "owner"
	colStatus       = "status"
	colText         = "text"
	colAudioURL     = "audio_url"
	colLanguageCode = "language_code"
	colCreatedAt    = "created_at"
	colUpdatedAt    = "updated_at"
	colCompletedAt  = "completed_at"
	colError        = "error"
)

var transcriptColumns = []string{
	colID, colOwner, colStatus, colText, colAudioURL, colLanguageCode,
	colCreatedAt, colUpdatedAt, colCompletedAt, colError,
}

// UpsertOutcome says what Upsert did with a row.
type UpsertOutcome int

const (
	UpsertUnchanged UpsertOutcome = iota
	UpsertCreated
	UpsertUpdated
)

// GroupedPage is one page of an owner's transcripts split by status.
type GroupedPage struct {
	Buckets  map[constants.JobStatus][]*entity.Transcript `json:"buckets"`
	Counts   map[constants.JobStatus]int                  `json:"counts"`
	Total    int                                          `json:"total"`
	Page     int                                          `json:"page"`
	PageSize int                                          `json:"page_size"`
	HasNext  bool                                         `json:"has_next"`
}

type TranscriptRepository interface {
	Create(ctx context.Context, t *entity.Transcript) error
	Get(ctx context.Context, id string) (*entity.Transcript, error)
	// ApplySnapshot folds obs into the stored row and persists it when it changed.
	ApplySnapshot(ctx context.Context, id string, obs entity.Observation) (*entity.Transcript, bool, error)
	// Upsert creates seed (with obs applied) when id is unknown, otherwise behaves like ApplySnapshot.
	Upsert(ctx context.Context, seed *entity.Transcript, obs entity.Observation) (UpsertOutcome, error)
	ListGrouped(ctx context.Context, owner string, page, pageSize int) (*GroupedPage, error)
	ListAll(ctx context.Context, owner string) ([]*entity.Transcript, error)
}

type transcriptRepository struct {
	db  *sql.DB
	sql *entsql.DialectBuilder
	log *slog.Logger
}

func NewTranscriptRepository(db *DB, logger *slog.Logger) TranscriptRepository {
	return &transcriptRepository{
		db:  db.SQL,
		sql: entsql.Dialect(db.Dialect),
		log: logger,
	}
}

func (r *transcriptRepository) Create(ctx context.Context, t *entity.Transcript) error {
	if err := t.CheckInvariants(); err != nil {
		return common.NewAppError(common.CodeValidation, err.Error(), common.ErrInvalidInput)
	}

	query, args := r.sql.Insert(migrate.TranscriptsTable.Name).
		Columns(transcriptColumns...).
		Values(
			t.ID, t.Owner, string(t.Status), nullable(t.Text), t.AudioURL, nullable(t.LanguageCode),
			dbTime(t.CreatedAt), dbTime(t.UpdatedAt), nullableTime(t.CompletedAt), nullable(t.Error),
		).
		OnConflict(entsql.ConflictColumns(colID), entsql.DoNothing()).
		Query()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.log.Error("failed to insert transcript", "job_id", t.ID, "err", err)
		return common.NewDatabaseError("failed to insert transcript", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return common.NewDatabaseError("failed to insert transcript", err)
	}
	if n == 0 {
		r.log.Warn("transcript already exists", "job_id", t.ID)
		return common.NewAppError(common.CodeDuplicate, "transcript already exists", common.ErrDuplicate)
	}

	r.log.Debug("transcript created", "job_id", t.ID, "owner", t.Owner, "status", t.Status)
	return nil
}

func (r *transcriptRepository) Get(ctx context.Context, id string) (*entity.Transcript, error) {
	query, args := r.sql.Select(transcriptColumns...).
		From(r.sql.Table(migrate.TranscriptsTable.Name)).
		Where(entsql.EQ(colID, id)).
		Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.log.Error("failed to get transcript", "job_id", id, "err", err)
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, common.NewNotFoundError("transcript not found")
	}
	return scanTranscript(rows)
}

func (r *transcriptRepository) ApplySnapshot(ctx context.Context, id string, obs entity.Observation) (*entity.Transcript, bool, error) {
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		t, err := r.Get(ctx, id)
		if err != nil {
			return nil, false, err
		}
		read := t.Status
		readAt := t.UpdatedAt
		if !t.Apply(obs) {
			return t, false, nil
		}
		saved, err := r.save(ctx, t, read, readAt)
		if err != nil {
			return nil, false, err
		}
		if saved {
			return t, true, nil
		}
		r.log.Debug("transcript changed concurrently, re-applying", "job_id", id, "attempt", attempt)
	}
	r.log.Warn("transcript update kept conflicting", "job_id", id, "attempts", maxSaveAttempts)
	return nil, false, common.NewDatabaseError("transcript changed concurrently", nil)
}

func (r *transcriptRepository) Upsert(ctx context.Context, seed *entity.Transcript, obs entity.Observation) (UpsertOutcome, error) {
	_, changed, err := r.ApplySnapshot(ctx, seed.ID, obs)
	switch {
	case err == nil && changed:
		return UpsertUpdated, nil
	case err == nil:
		return UpsertUnchanged, nil
	case !errors.Is(err, common.ErrNotFound):
		return UpsertUnchanged, err
	}

	seed.Apply(obs)
	err = r.Create(ctx, seed)
	if errors.Is(err, common.ErrDuplicate) {
		// created concurrently; fold into the existing row instead
		_, changed, err = r.ApplySnapshot(ctx, seed.ID, obs)
		if err != nil || !changed {
			return UpsertUnchanged, err
		}
		return UpsertUpdated, nil
	}
	if err != nil {
		return UpsertUnchanged, err
	}
	return UpsertCreated, nil
}

// save writes t only if the row still carries the status and updated_at it was read with,
// so a stale writer can never move a row backwards. It reports whether the row was written.
func (r *transcriptRepository) save(ctx context.Context, t *entity.Transcript, readStatus constants.JobStatus, readAt time.Time) (bool, error) {
	if err := t.CheckInvariants(); err != nil {
		r.log.Error("refusing to save inconsistent transcript", "job_id", t.ID, "err", err)
		return false, common.NewAppError(common.CodeDatabase, err.Error(), common.ErrInternal)
	}

	query, args := r.sql.Update(migrate.TranscriptsTable.Name).
		Set(colStatus, string(t.Status)).
		Set(colText, nullable(t.Text)).
		Set(colError, nullable(t.Error)).
		Set(colLanguageCode, nullable(t.LanguageCode)).
		Set(colCompletedAt, nullableTime(t.CompletedAt)).
		Set(colUpdatedAt, dbTime(t.UpdatedAt)).
		Where(entsql.And(
			entsql.EQ(colID, t.ID),
			entsql.EQ(colStatus, string(readStatus)),
			entsql.EQ(colUpdatedAt, dbTime(readAt)),
		)).
		Query()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.log.Error("failed to update transcript", "job_id", t.ID, "err", err)
		return false, common.NewDatabaseError("failed to update transcript", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, common.NewDatabaseError("failed to update transcript", err)
	}
	if n == 0 {
		return false, nil
	}
	r.log.Debug("transcript updated", "job_id", t.ID, "from", readStatus, "status", t.Status)
	return true, nil
}

func (r *transcriptRepository) ListGrouped(ctx context.Context, owner string, page, pageSize int) (*GroupedPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	counts, total, err := r.countByStatus(ctx, owner)
	if err != nil {
		return nil, err
	}

	query, args := r.sql.Select(transcriptColumns...).
		From(r.sql.Table(migrate.TranscriptsTable.Name)).
		Where(entsql.EQ(colOwner, owner)).
		OrderBy(entsql.Desc(colCreatedAt), entsql.Desc(colID)).
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Query()

	items, err := r.query(ctx, query, args)
	if err != nil {
		r.log.Error("failed to list transcripts", "owner", owner, "page", page, "err", err)
		return nil, err
	}

	out := &GroupedPage{
		Buckets:  make(map[constants.JobStatus][]*entity.Transcript, len(constants.AllJobStatuses)),
		Counts:   counts,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		HasNext:  page*pageSize < total,
	}
	for _, s := range constants.AllJobStatuses {
		out.Buckets[s] = []*entity.Transcript{}
	}
	for _, t := range items {
		out.Buckets[t.Status] = append(out.Buckets[t.Status], t)
	}
	return out, nil
}

func (r *transcriptRepository) countByStatus(ctx context.Context, owner string) (map[constants.JobStatus]int, int, error) {
	query, args := r.sql.Select(colStatus, entsql.Count("*")).
		From(r.sql.Table(migrate.TranscriptsTable.Name)).
		Where(entsql.EQ(colOwner, owner)).
		GroupBy(colStatus).
		Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.log.Error("failed to count transcripts", "owner", owner, "err", err)
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[constants.JobStatus]int, len(constants.AllJobStatuses))
	for _, s := range constants.AllJobStatuses {
		counts[s] = 0
	}
	total := 0
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, 0, err
		}
		counts[constants.JobStatus(status)] = n
		total += n
	}
	return counts, total, rows.Err()
}

func (r *transcriptRepository) ListAll(ctx context.Context, owner string) ([]*entity.Transcript, error) {
	query, args := r.sql.Select(transcriptColumns...).
		From(r.sql.Table(migrate.TranscriptsTable.Name)).
		Where(entsql.EQ(colOwner, owner)).
		OrderBy(entsql.Desc(colCreatedAt), entsql.Desc(colID)).
		Query()

	items, err := r.query(ctx, query, args)
	if err != nil {
		r.log.Error("failed to list transcripts", "owner", owner, "err", err)
		return nil, err
	}
	return items, nil
}

func (r *transcriptRepository) query(ctx context.Context, query string, args []any) ([]*entity.Transcript, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*entity.Transcript
	for rows.Next() {
		t, err := scanTranscript(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTranscript(rows *sql.Rows) (*entity.Transcript, error) {
	var (
		t           entity.Transcript
		status      string
		text        sql.NullString
		language    sql.NullString
		completedAt sql.NullTime
		errMsg      sql.NullString
	)
	if err := rows.Scan(
		&t.ID, &t.Owner, &status, &text, &t.AudioURL, &language,
		&t.CreatedAt, &t.UpdatedAt, &completedAt, &errMsg,
	); err != nil {
		return nil, err
	}

	t.Status = constants.JobStatus(status)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	if text.Valid {
		t.Text = &text.String
	}
	if language.Valid {
		t.LanguageCode = &language.String
	}
	if completedAt.Valid {
		ts := completedAt.Time.UTC()
		t.CompletedAt = &ts
	}
	if errMsg.Valid {
		t.Error = &errMsg.String
	}
	return &t, nil
}

// dbTime normalises timestamps to the precision both Postgres and SQLite round-trip.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return dbTime(*t)
}
