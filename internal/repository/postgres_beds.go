package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"wisefido-erboard/internal/models"
)

const bedColumns = `bed_id, label, section, status, assigned_doctor_id, comment, patient, version, updated_at, updated_by`

const updateBedSQL = `
	UPDATE er_beds
	SET label = $3,
		section = $4,
		status = $5,
		assigned_doctor_id = $6,
		comment = $7,
		patient = $8,
		version = version + 1,
		updated_at = $9,
		updated_by = $10
	WHERE bed_id = $1 AND version = $2
	RETURNING version
`

// queryer 由 *sql.DB 与 *sql.Tx 共同实现
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// PostgresBedStore 基于 PostgreSQL 的床位存储
type PostgresBedStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresBedStore 创建床位存储
func NewPostgresBedStore(db *sql.DB, logger *zap.Logger) *PostgresBedStore {
	return &PostgresBedStore{db: db, logger: logger}
}

var (
	_ BedStore     = (*PostgresBedStore)(nil)
	_ HistoryStore = (*PostgresBedStore)(nil)
	_ RosterStore  = (*PostgresBedStore)(nil)
)

// FetchAll 读取全部床位
func (r *PostgresBedStore) FetchAll(ctx context.Context) ([]models.Bed, error) {
	query := `SELECT ` + bedColumns + ` FROM er_beds ORDER BY section, label`
	return r.queryBeds(ctx, "FetchAll", query)
}

// FetchBySections 读取指定分区的床位
func (r *PostgresBedStore) FetchBySections(ctx context.Context, sections []string) ([]models.Bed, error) {
	if len(sections) == 0 {
		return r.FetchAll(ctx)
	}
	query := `SELECT ` + bedColumns + ` FROM er_beds WHERE section = ANY($1) ORDER BY section, label`
	return r.queryBeds(ctx, "FetchBySections", query, pq.Array(sections))
}

// FetchByID 读取单个床位
func (r *PostgresBedStore) FetchByID(ctx context.Context, bedID string) (models.Bed, error) {
	query := `SELECT ` + bedColumns + ` FROM er_beds WHERE bed_id = $1`
	bed, err := scanBed(r.db.QueryRowContext(ctx, query, bedID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Bed{}, models.ErrNotFound
	}
	if err != nil {
		return models.Bed{}, transient("FetchByID", err)
	}
	return bed, nil
}

// Save 以版本比较交换写入整行
func (r *PostgresBedStore) Save(ctx context.Context, bed models.Bed, expectedVersion int64) (models.Bed, error) {
	if err := bed.Validate(); err != nil {
		return models.Bed{}, models.Invalid("Save", "%v", err)
	}
	return r.update(ctx, r.db, bed, expectedVersion)
}

// SaveMove 在单个事务中写入转床的源床位与目标床位，任一版本不匹配则整体回滚
func (r *PostgresBedStore) SaveMove(ctx context.Context, from, to models.Bed, expectedFrom, expectedTo int64) (models.Bed, models.Bed, error) {
	if err := from.Validate(); err != nil {
		return models.Bed{}, models.Bed{}, models.Invalid("SaveMove", "%v", err)
	}
	if err := to.Validate(); err != nil {
		return models.Bed{}, models.Bed{}, models.Invalid("SaveMove", "%v", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Bed{}, models.Bed{}, transient("SaveMove", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	savedFrom, err := r.update(ctx, tx, from, expectedFrom)
	if err != nil {
		return models.Bed{}, models.Bed{}, err
	}
	savedTo, err := r.update(ctx, tx, to, expectedTo)
	if err != nil {
		return models.Bed{}, models.Bed{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Bed{}, models.Bed{}, transient("SaveMove", err)
	}
	committed = true
	return savedFrom, savedTo, nil
}

func (r *PostgresBedStore) update(ctx context.Context, q queryer, bed models.Bed, expectedVersion int64) (models.Bed, error) {
	payload, err := encodePatient(bed.Patient)
	if err != nil {
		return models.Bed{}, fmt.Errorf("failed to encode patient for bed %s: %w", bed.ID, err)
	}
	updatedAt := bed.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	var newVersion int64
	err = q.QueryRowContext(ctx, updateBedSQL,
		bed.ID,
		expectedVersion,
		bed.Label,
		bed.Section,
		string(bed.Status),
		nullString(bed.AssignedDoctorID),
		nullString(bed.Comment),
		payload,
		updatedAt,
		nullString(bed.UpdatedBy),
	).Scan(&newVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Bed{}, r.conflictOrMissing(ctx, q, bed.ID, expectedVersion)
	}
	if err != nil {
		return models.Bed{}, transient("Save", err)
	}

	out := bed.Clone()
	out.Version = newVersion
	out.UpdatedAt = updatedAt
	return out, nil
}

// conflictOrMissing 区分版本冲突与行不存在
func (r *PostgresBedStore) conflictOrMissing(ctx context.Context, q queryer, bedID string, expected int64) error {
	var current int64
	err := q.QueryRowContext(ctx, `SELECT version FROM er_beds WHERE bed_id = $1`, bedID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	if err != nil {
		return transient("Save", err)
	}
	r.logger.Debug("Version check failed",
		zap.String("bed_id", bedID),
		zap.Int64("expected", expected),
		zap.Int64("current", current),
	)
	return &models.ConflictError{
		BedID:  bedID,
		Reason: fmt.Sprintf("expected version %d, found %d", expected, current),
	}
}

func (r *PostgresBedStore) queryBeds(ctx context.Context, op, query string, args ...interface{}) ([]models.Bed, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, transient(op, err)
	}
	defer rows.Close()

	var beds []models.Bed
	for rows.Next() {
		bed, err := scanBed(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to scan bed: %w", op, err)
		}
		beds = append(beds, bed)
	}
	if err := rows.Err(); err != nil {
		return nil, transient(op, err)
	}
	return beds, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBed(s rowScanner) (models.Bed, error) {
	var (
		bed       models.Bed
		status    string
		doctorID  sql.NullString
		comment   sql.NullString
		patient   []byte
		updatedBy sql.NullString
	)
	if err := s.Scan(
		&bed.ID,
		&bed.Label,
		&bed.Section,
		&status,
		&doctorID,
		&comment,
		&patient,
		&bed.Version,
		&bed.UpdatedAt,
		&updatedBy,
	); err != nil {
		return models.Bed{}, err
	}
	bed.Status = models.BedStatus(status)
	bed.AssignedDoctorID = doctorID.String
	bed.Comment = comment.String
	bed.UpdatedBy = updatedBy.String
	if len(patient) > 0 {
		var p models.Patient
		if err := json.Unmarshal(patient, &p); err != nil {
			return models.Bed{}, fmt.Errorf("bed %s: invalid patient payload: %w", bed.ID, err)
		}
		bed.Patient = &p
	}
	return bed, nil
}

func encodePatient(p *models.Patient) (interface{}, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func transient(op string, err error) error {
	return &models.TransientIOError{Op: op, Err: err}
}
