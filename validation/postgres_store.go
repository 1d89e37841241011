package validation

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresRuleStore implements RuleStore backed by PostgreSQL. Unlike the
// caches, the store is not tenant-scoped at construction: every call carries
// the tenant, which keeps one pool serving all tenants.
type PostgresRuleStore struct {
	db *sql.DB
}

// NewPostgresRuleStore creates a new PostgreSQL-backed RuleStore.
func NewPostgresRuleStore(db *sql.DB) *PostgresRuleStore {
	return &PostgresRuleStore{db: db}
}

const ruleColumns = `id, tenant_id, entity_type, field_name, name, description,
	rule_type, severity, rule_expression, conditions, error_message,
	execution_order, is_active, metadata, created_at, updated_at,
	created_by, updated_by`

// FetchActive returns the active rules for one tenant and entity type in
// deterministic order.
func (s *PostgresRuleStore) FetchActive(tenantID, entityType string) ([]*Rule, error) {
	rows, err := s.db.Query(`
		SELECT `+ruleColumns+`
		FROM validation_rules
		WHERE tenant_id = $1 AND entity_type = $2 AND is_active = true
		ORDER BY execution_order, field_name NULLS FIRST, id
	`, tenantID, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active rules: %w", err)
	}
	defer rows.Close()

	return scanRules(rows)
}

// List returns every rule for the tenant and entity type, newest first.
func (s *PostgresRuleStore) List(tenantID, entityType string) ([]*Rule, error) {
	rows, err := s.db.Query(`
		SELECT `+ruleColumns+`
		FROM validation_rules
		WHERE tenant_id = $1 AND entity_type = $2
		ORDER BY created_at DESC
	`, tenantID, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	return scanRules(rows)
}

// Get retrieves a rule by ID.
func (s *PostgresRuleStore) Get(tenantID, id string) (*Rule, error) {
	row := s.db.QueryRow(`
		SELECT `+ruleColumns+`
		FROM validation_rules
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)

	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// Add inserts a new rule.
func (s *PostgresRuleStore) Add(rule *Rule) error {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM validation_rules WHERE id = $1)
	`, rule.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check rule existence: %w", err)
	}
	if exists {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrRuleExists)
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	_, err = s.db.Exec(`
		INSERT INTO validation_rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, rule.ID, rule.TenantID, rule.EntityType, nullable(rule.FieldName),
		rule.Name, nullable(rule.Description), string(rule.RuleType),
		string(rule.Severity), rule.Expression, nullable(rule.Conditions),
		rule.ErrorMessage, rule.ExecutionOrder, rule.Active,
		nullable(rule.Metadata), rule.CreatedAt, rule.UpdatedAt,
		nullable(rule.CreatedBy), nullable(rule.UpdatedBy))
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

// Update modifies an existing rule.
func (s *PostgresRuleStore) Update(rule *Rule) error {
	rule.UpdatedAt = time.Now()

	result, err := s.db.Exec(`
		UPDATE validation_rules
		SET entity_type = $1, field_name = $2, name = $3, description = $4,
			rule_type = $5, severity = $6, rule_expression = $7,
			conditions = $8, error_message = $9, execution_order = $10,
			is_active = $11, metadata = $12, updated_at = $13, updated_by = $14
		WHERE id = $15 AND tenant_id = $16
	`, rule.EntityType, nullable(rule.FieldName), rule.Name,
		nullable(rule.Description), string(rule.RuleType), string(rule.Severity),
		rule.Expression, nullable(rule.Conditions), rule.ErrorMessage,
		rule.ExecutionOrder, rule.Active, nullable(rule.Metadata),
		rule.UpdatedAt, nullable(rule.UpdatedBy), rule.ID, rule.TenantID)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrRuleNotFound)
	}
	return nil
}

// Delete removes a rule.
func (s *PostgresRuleStore) Delete(tenantID, id string) error {
	result, err := s.db.Exec(`
		DELETE FROM validation_rules
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var r Rule
	var fieldName, description, conditions, metadata, createdBy, updatedBy sql.NullString
	var ruleType, severity string

	err := row.Scan(&r.ID, &r.TenantID, &r.EntityType, &fieldName, &r.Name,
		&description, &ruleType, &severity, &r.Expression, &conditions,
		&r.ErrorMessage, &r.ExecutionOrder, &r.Active, &metadata,
		&r.CreatedAt, &r.UpdatedAt, &createdBy, &updatedBy)
	if err != nil {
		return nil, err
	}

	r.FieldName = fieldName.String
	r.Description = description.String
	r.Conditions = conditions.String
	r.Metadata = metadata.String
	r.CreatedBy = createdBy.String
	r.UpdatedBy = updatedBy.String
	r.RuleType = RuleType(ruleType)
	r.Severity = Severity(severity)
	return &r, nil
}

func scanRules(rows *sql.Rows) ([]*Rule, error) {
	var rulesList []*Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rulesList = append(rulesList, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rulesList, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
