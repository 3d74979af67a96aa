// Package sqlite provides a SQLite-backed escrow storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/lockupfinance/lockup/internal/escrow/domain/contract"
	"github.com/lockupfinance/lockup/internal/escrow/storage"
	"github.com/lockupfinance/lockup/internal/escrow/storage/sqlite/migrations"
	"github.com/lockupfinance/lockup/internal/platform/storage/sqlitemigrate"
)

// Store persists escrow state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func optionalMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

func optionalTime(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

// Open opens a SQLite escrow store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateContract inserts a contract and its milestones atomically.
func (s *Store) CreateContract(ctx context.Context, c contract.Contract) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("contract id is required")
	}
	if strings.TrimSpace(c.Code) == "" {
		return fmt.Errorf("contract code is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create contract: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO contracts (id, code, title, description, total_amount, currency,
		   sender_address, receiver_address, due_date, release_method, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.Code,
		c.Title,
		c.Description,
		c.TotalAmount.String(),
		string(c.Currency),
		c.SenderAddress,
		c.ReceiverAddress,
		optionalMillis(c.DueDate),
		string(c.ReleaseMethod),
		string(c.Status),
		toMillis(c.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "contracts.code") {
			return storage.ErrDuplicateCode
		}
		return fmt.Errorf("insert contract: %w", err)
	}

	for _, m := range c.Milestones {
		_, err = tx.ExecContext(
			ctx,
			`INSERT INTO milestones (id, contract_id, sequence, title, description,
			   amount, due_date, status, release_date, transfer_ref)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID,
			c.ID,
			m.Sequence,
			m.Title,
			m.Description,
			m.Amount.String(),
			optionalMillis(m.DueDate),
			string(m.Status),
			optionalMillis(m.ReleaseDate),
			m.TransferRef,
		)
		if err != nil {
			return fmt.Errorf("insert milestone %d: %w", m.Sequence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create contract: %w", err)
	}
	return nil
}

// GetContract returns a contract with its milestones ordered by sequence.
func (s *Store) GetContract(ctx context.Context, contractID string) (contract.Contract, error) {
	if err := ctx.Err(); err != nil {
		return contract.Contract{}, err
	}
	if s == nil || s.sqlDB == nil {
		return contract.Contract{}, fmt.Errorf("storage is not configured")
	}
	contractID = strings.TrimSpace(contractID)
	if contractID == "" {
		return contract.Contract{}, fmt.Errorf("contract id is required")
	}
	return s.getContract(ctx, "id = ?", contractID)
}

// GetContractByCode resolves a share code to its contract.
func (s *Store) GetContractByCode(ctx context.Context, code string) (contract.Contract, error) {
	if err := ctx.Err(); err != nil {
		return contract.Contract{}, err
	}
	if s == nil || s.sqlDB == nil {
		return contract.Contract{}, fmt.Errorf("storage is not configured")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return contract.Contract{}, fmt.Errorf("contract code is required")
	}
	return s.getContract(ctx, "code = ?", code)
}

func (s *Store) getContract(ctx context.Context, where string, arg string) (contract.Contract, error) {
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, code, title, description, total_amount, currency,
		   sender_address, receiver_address, due_date, release_method, status, created_at
		 FROM contracts
		 WHERE `+where,
		arg,
	)
	c, err := scanContract(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return contract.Contract{}, storage.ErrNotFound
		}
		return contract.Contract{}, fmt.Errorf("get contract: %w", err)
	}

	milestones, err := s.listMilestones(ctx, c.ID)
	if err != nil {
		return contract.Contract{}, err
	}
	c.Milestones = milestones
	return c, nil
}

// ListContractsByAddress returns contracts where the address is a party, newest first.
func (s *Store) ListContractsByAddress(ctx context.Context, address string) ([]contract.Contract, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("address is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, code, title, description, total_amount, currency,
		   sender_address, receiver_address, due_date, release_method, status, created_at
		 FROM contracts
		 WHERE sender_address = ? OR receiver_address = ?
		 ORDER BY created_at DESC, id ASC`,
		address,
		address,
	)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	defer rows.Close()

	var contracts []contract.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("list contracts: %w", err)
		}
		contracts = append(contracts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}

	for i := range contracts {
		milestones, err := s.listMilestones(ctx, contracts[i].ID)
		if err != nil {
			return nil, err
		}
		contracts[i].Milestones = milestones
	}
	return contracts, nil
}

// GetMilestone returns one milestone by id.
func (s *Store) GetMilestone(ctx context.Context, milestoneID string) (contract.Milestone, error) {
	if err := ctx.Err(); err != nil {
		return contract.Milestone{}, err
	}
	if s == nil || s.sqlDB == nil {
		return contract.Milestone{}, fmt.Errorf("storage is not configured")
	}
	milestoneID = strings.TrimSpace(milestoneID)
	if milestoneID == "" {
		return contract.Milestone{}, fmt.Errorf("milestone id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, contract_id, sequence, title, description, amount,
		   due_date, status, release_date, transfer_ref
		 FROM milestones
		 WHERE id = ?`,
		milestoneID,
	)
	m, err := scanMilestone(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return contract.Milestone{}, storage.ErrNotFound
		}
		return contract.Milestone{}, fmt.Errorf("get milestone: %w", err)
	}
	return m, nil
}

// UpdateContractStatus transitions contract status from the expected prior value.
func (s *Store) UpdateContractStatus(ctx context.Context, contractID string, from, to contract.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	contractID = strings.TrimSpace(contractID)
	if contractID == "" {
		return fmt.Errorf("contract id is required")
	}

	res, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE contracts SET status = ? WHERE id = ? AND status = ?`,
		string(to),
		contractID,
		string(from),
	)
	if err != nil {
		return fmt.Errorf("update contract status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update contract status rows affected: %w", err)
	}
	if affected == 0 {
		var exists int
		row := s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM contracts WHERE id = ?`, contractID)
		if scanErr := row.Scan(&exists); scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				return storage.ErrNotFound
			}
			return fmt.Errorf("check contract exists: %w", scanErr)
		}
		return storage.ErrConflict
	}
	return nil
}

// CompleteMilestone marks a pending milestone completed with its payout record.
func (s *Store) CompleteMilestone(ctx context.Context, milestoneID string, releaseDate time.Time, transferRef string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	milestoneID = strings.TrimSpace(milestoneID)
	if milestoneID == "" {
		return fmt.Errorf("milestone id is required")
	}

	res, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE milestones
		 SET status = ?, release_date = ?, transfer_ref = ?
		 WHERE id = ? AND status = ?`,
		string(contract.MilestoneCompleted),
		toMillis(releaseDate),
		strings.TrimSpace(transferRef),
		milestoneID,
		string(contract.MilestonePending),
	)
	if err != nil {
		return fmt.Errorf("complete milestone: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete milestone rows affected: %w", err)
	}
	if affected == 0 {
		var exists int
		row := s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM milestones WHERE id = ?`, milestoneID)
		if scanErr := row.Scan(&exists); scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				return storage.ErrNotFound
			}
			return fmt.Errorf("check milestone exists: %w", scanErr)
		}
		return storage.ErrConflict
	}
	return nil
}

// ListDueAutoMilestones returns pending milestones of active auto-release
// contracts whose due date is at or before now.
func (s *Store) ListDueAutoMilestones(ctx context.Context, now time.Time) ([]storage.DueMilestone, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT m.contract_id, m.id, c.sender_address, m.due_date
		 FROM milestones m
		 JOIN contracts c ON c.id = m.contract_id
		 WHERE m.status = ?
		   AND m.due_date IS NOT NULL
		   AND m.due_date <= ?
		   AND c.status = ?
		   AND c.release_method = ?
		 ORDER BY m.due_date ASC, m.sequence ASC`,
		string(contract.MilestonePending),
		toMillis(now),
		string(contract.StatusActive),
		string(contract.ReleaseAuto),
	)
	if err != nil {
		return nil, fmt.Errorf("list due milestones: %w", err)
	}
	defer rows.Close()

	var due []storage.DueMilestone
	for rows.Next() {
		var (
			record  storage.DueMilestone
			dueDate int64
		)
		if err := rows.Scan(&record.ContractID, &record.MilestoneID, &record.SenderAddress, &dueDate); err != nil {
			return nil, fmt.Errorf("list due milestones: %w", err)
		}
		record.DueDate = fromMillis(dueDate)
		due = append(due, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list due milestones: %w", err)
	}
	return due, nil
}

func (s *Store) listMilestones(ctx context.Context, contractID string) ([]contract.Milestone, error) {
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, contract_id, sequence, title, description, amount,
		   due_date, status, release_date, transfer_ref
		 FROM milestones
		 WHERE contract_id = ?
		 ORDER BY sequence ASC`,
		contractID,
	)
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	defer rows.Close()

	var milestones []contract.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, fmt.Errorf("list milestones: %w", err)
		}
		milestones = append(milestones, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	return milestones, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContract(row rowScanner) (contract.Contract, error) {
	var (
		c             contract.Contract
		totalAmount   string
		currency      string
		releaseMethod string
		status        string
		dueDate       sql.NullInt64
		createdAt     int64
	)
	err := row.Scan(
		&c.ID,
		&c.Code,
		&c.Title,
		&c.Description,
		&totalAmount,
		&currency,
		&c.SenderAddress,
		&c.ReceiverAddress,
		&dueDate,
		&releaseMethod,
		&status,
		&createdAt,
	)
	if err != nil {
		return contract.Contract{}, err
	}
	amount, err := decimal.NewFromString(totalAmount)
	if err != nil {
		return contract.Contract{}, fmt.Errorf("parse stored amount %q: %w", totalAmount, err)
	}
	c.TotalAmount = amount
	c.Currency = contract.Currency(currency)
	c.ReleaseMethod = contract.ReleaseMethod(releaseMethod)
	parsedStatus, ok := contract.ParseStatus(status)
	if !ok {
		return contract.Contract{}, fmt.Errorf("stored contract status %q is invalid", status)
	}
	c.Status = parsedStatus
	c.DueDate = optionalTime(dueDate)
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}

func scanMilestone(row rowScanner) (contract.Milestone, error) {
	var (
		m           contract.Milestone
		amount      string
		status      string
		dueDate     sql.NullInt64
		releaseDate sql.NullInt64
	)
	err := row.Scan(
		&m.ID,
		&m.ContractID,
		&m.Sequence,
		&m.Title,
		&m.Description,
		&amount,
		&dueDate,
		&status,
		&releaseDate,
		&m.TransferRef,
	)
	if err != nil {
		return contract.Milestone{}, err
	}
	parsedAmount, err := decimal.NewFromString(amount)
	if err != nil {
		return contract.Milestone{}, fmt.Errorf("parse stored amount %q: %w", amount, err)
	}
	m.Amount = parsedAmount
	parsedStatus, ok := contract.ParseMilestoneStatus(status)
	if !ok {
		return contract.Milestone{}, fmt.Errorf("stored milestone status %q is invalid", status)
	}
	m.Status = parsedStatus
	m.DueDate = optionalTime(dueDate)
	m.ReleaseDate = optionalTime(releaseDate)
	return m, nil
}

var _ storage.ContractStore = (*Store)(nil)
