package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/escalator/internal/core/chain"
	"github.com/example/escalator/internal/core/incident"
	"github.com/example/escalator/internal/ports/secondary"
)

// ChainRepository implements secondary.ChainRepository with SQLite.
type ChainRepository struct {
	db *sql.DB
}

// NewChainRepository creates a new SQLite chain repository.
func NewChainRepository(db *sql.DB) *ChainRepository {
	return &ChainRepository{db: db}
}

const chainColumns = `id, tenant_id, org_id, name, description, trigger_type, condition_severities, condition_campus_ids,
	is_active, revision, previous_chain_id, times_triggered, average_resolution_minutes, last_triggered_at,
	created_by, created_at, updated_at`

// Create persists a new chain with its levels.
func (r *ChainRepository) Create(ctx context.Context, record *secondary.ChainRecord) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		return insertChain(ctx, tx, record)
	})
}

func insertChain(ctx context.Context, q querier, record *secondary.ChainRecord) error {
	severities, err := json.Marshal(nonNil(record.Conditions.Severities))
	if err != nil {
		return fmt.Errorf("failed to encode severities: %w", err)
	}
	campuses, err := json.Marshal(nonNil(record.Conditions.CampusIDs))
	if err != nil {
		return fmt.Errorf("failed to encode campus ids: %w", err)
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO chains (id, tenant_id, org_id, name, description, trigger_type, condition_severities, condition_campus_ids,
			is_active, revision, previous_chain_id, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.TenantID,
		nullString(record.OrgID),
		record.Name,
		nullString(record.Description),
		record.TriggerType,
		string(severities),
		string(campuses),
		record.Active,
		record.Revision,
		nullString(record.PreviousChainID),
		nullString(record.CreatedBy),
		formatTime(record.CreatedAt),
		formatTime(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create chain: %w", err)
	}

	for _, l := range record.Levels {
		_, err := q.ExecContext(ctx,
			`INSERT INTO chain_levels (chain_id, level, responsible_role, specific_user_id, notification_method,
				escalate_after_value, escalate_after_unit, requires_acknowledgment, auto_escalate)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			record.ID,
			l.Number,
			nullString(l.ResponsibleRole),
			nullString(l.SpecificUserID),
			l.NotificationMethod,
			l.EscalateAfter.Value,
			string(l.EscalateAfter.Unit),
			l.RequiresAcknowledgment,
			l.AutoEscalate,
		)
		if err != nil {
			return fmt.Errorf("failed to create chain level %d: %w", l.Number, err)
		}
	}

	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// GetByID retrieves a chain and its levels.
func (r *ChainRepository) GetByID(ctx context.Context, tenantID, id string) (*secondary.ChainRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+chainColumns+` FROM chains WHERE id = ? AND tenant_id = ?`,
		id, tenantID,
	)
	record, err := scanChain(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chain %s: %w", id, incident.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chain: %w", err)
	}

	record.Levels, err = loadLevels(ctx, r.db, record.ID)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// List retrieves chains matching the given filters, newest first.
func (r *ChainRepository) List(ctx context.Context, filters secondary.ChainFilters) ([]*secondary.ChainRecord, error) {
	query := `SELECT ` + chainColumns + ` FROM chains WHERE 1=1`
	args := []any{}

	if filters.TenantID != "" {
		query += " AND tenant_id = ?"
		args = append(args, filters.TenantID)
	}
	if filters.TriggerType != "" {
		query += " AND trigger_type = ?"
		args = append(args, filters.TriggerType)
	}
	if filters.ActiveOnly {
		query += " AND is_active = 1"
	}

	query += " ORDER BY created_at DESC, revision DESC"
	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chains: %w", err)
	}

	var chains []*secondary.ChainRecord
	for rows.Next() {
		record, err := scanChain(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan chain: %w", err)
		}
		chains = append(chains, record)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to list chains: %w", err)
	}
	rows.Close()

	for _, record := range chains {
		record.Levels, err = loadLevels(ctx, r.db, record.ID)
		if err != nil {
			return nil, err
		}
	}
	return chains, nil
}

// SetActive toggles whether new cases may be opened against the chain.
func (r *ChainRepository) SetActive(ctx context.Context, tenantID, id string, active bool) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE chains SET is_active = ?, updated_at = ? WHERE id = ? AND tenant_id = ?",
		active, formatTime(time.Now()), id, tenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to update chain: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("chain %s: %w", id, incident.ErrNotFound)
	}
	return nil
}

// Revise stores next and deactivates previous in one transaction.
func (r *ChainRepository) Revise(ctx context.Context, previous *secondary.ChainRecord, next *secondary.ChainRecord) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			"UPDATE chains SET is_active = 0, updated_at = ? WHERE id = ? AND tenant_id = ? AND is_active = 1",
			formatTime(next.CreatedAt), previous.ID, previous.TenantID,
		)
		if err != nil {
			return fmt.Errorf("failed to deactivate chain: %w", err)
		}
		rowsAffected, _ := result.RowsAffected()
		if rowsAffected == 0 {
			return fmt.Errorf("%w: chain %s is no longer active", incident.ErrInvalidChain, previous.ID)
		}
		return insertChain(ctx, tx, next)
	})
}

func scanChain(row rowScanner) (*secondary.ChainRecord, error) {
	var (
		orgID, description, previousID, createdBy sql.NullString
		severities, campuses                      string
		lastTriggered                             sql.NullString
		createdAt, updatedAt                      string
	)

	record := &secondary.ChainRecord{}
	err := row.Scan(
		&record.ID,
		&record.TenantID,
		&orgID,
		&record.Name,
		&description,
		&record.TriggerType,
		&severities,
		&campuses,
		&record.Active,
		&record.Revision,
		&previousID,
		&record.TimesTriggered,
		&record.AverageResolutionMinutes,
		&lastTriggered,
		&createdBy,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.OrgID = orgID.String
	record.Description = description.String
	record.PreviousChainID = previousID.String
	record.CreatedBy = createdBy.String

	if err := json.Unmarshal([]byte(severities), &record.Conditions.Severities); err != nil {
		return nil, fmt.Errorf("bad severities on chain %s: %w", record.ID, err)
	}
	if err := json.Unmarshal([]byte(campuses), &record.Conditions.CampusIDs); err != nil {
		return nil, fmt.Errorf("bad campus ids on chain %s: %w", record.ID, err)
	}
	if len(record.Conditions.Severities) == 0 {
		record.Conditions.Severities = nil
	}
	if len(record.Conditions.CampusIDs) == 0 {
		record.Conditions.CampusIDs = nil
	}

	if record.LastTriggeredAt, err = parseNullTime(lastTriggered); err != nil {
		return nil, err
	}
	if record.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if record.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return record, nil
}

func loadLevels(ctx context.Context, q querier, chainID string) ([]chain.Level, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT level, responsible_role, specific_user_id, notification_method, escalate_after_value, escalate_after_unit,
			requires_acknowledgment, auto_escalate
		 FROM chain_levels WHERE chain_id = ? ORDER BY level`,
		chainID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load levels for chain %s: %w", chainID, err)
	}
	defer rows.Close()

	var levels []chain.Level
	for rows.Next() {
		var (
			l          chain.Level
			role, user sql.NullString
			unit       string
		)
		if err := rows.Scan(&l.Number, &role, &user, &l.NotificationMethod, &l.EscalateAfter.Value, &unit,
			&l.RequiresAcknowledgment, &l.AutoEscalate); err != nil {
			return nil, fmt.Errorf("failed to scan level: %w", err)
		}
		l.ResponsibleRole = role.String
		l.SpecificUserID = user.String
		l.EscalateAfter.Unit = chain.Unit(unit)
		levels = append(levels, l)
	}
	return levels, rows.Err()
}

// Ensure ChainRepository implements the interface
var _ secondary.ChainRepository = (*ChainRepository)(nil)
