package machine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for machine persistence operations.
// This abstraction allows for different implementations (SQLite, mock)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a machine by its unique identifier.
	// Returns ErrMachineNotFound if the machine does not exist.
	GetByID(ctx context.Context, id int64) (*Machine, error)

	// List retrieves all machines.
	List(ctx context.Context) ([]Machine, error)

	// ListEnabled retrieves all machines with the enabled flag set.
	ListEnabled(ctx context.Context) ([]Machine, error)

	// Create inserts a new machine and assigns its ID.
	Create(ctx context.Context, m *Machine) error

	// Update modifies an existing machine.
	// Returns ErrMachineNotFound if the machine does not exist.
	Update(ctx context.Context, m *Machine) error

	// Delete removes a machine by ID.
	// Returns ErrMachineNotFound if the machine does not exist.
	Delete(ctx context.Context, id int64) error

	// SetEnabled flips only the enabled flag.
	// Returns ErrMachineNotFound if the machine does not exist.
	SetEnabled(ctx context.Context, id int64, enabled bool) error
}

// SQLiteRepository is the SQLite-backed Repository implementation.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository backed by the given database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const machineColumns = "id, name, type, enabled, poll_interval_ms, config, created_at, updated_at"

// GetByID retrieves a machine by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*Machine, error) {
	query := "SELECT " + machineColumns + " FROM machines WHERE id = ?"

	row := r.db.QueryRowContext(ctx, query, id)
	m, err := scanMachine(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMachineNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying machine %d: %w", id, err)
	}
	return m, nil
}

// List retrieves all machines ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Machine, error) {
	query := "SELECT " + machineColumns + " FROM machines ORDER BY name"
	return r.queryMachines(ctx, query)
}

// ListEnabled retrieves all enabled machines ordered by name.
func (r *SQLiteRepository) ListEnabled(ctx context.Context) ([]Machine, error) {
	query := "SELECT " + machineColumns + " FROM machines WHERE enabled = 1 ORDER BY name"
	return r.queryMachines(ctx, query)
}

// Create inserts a new machine. The assigned rowid is written back to m.ID.
func (r *SQLiteRepository) Create(ctx context.Context, m *Machine) error {
	configJSON, err := marshalConfig(m.Config)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	query := `
		INSERT INTO machines (name, type, enabled, poll_interval_ms, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		m.Name,
		m.Type,
		boolToInt(m.Enabled),
		m.PollIntervalMS,
		configJSON,
		m.CreatedAt.Format(time.RFC3339),
		m.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting machine: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading inserted machine id: %w", err)
	}
	m.ID = id

	return nil
}

// Update modifies an existing machine.
func (r *SQLiteRepository) Update(ctx context.Context, m *Machine) error {
	configJSON, err := marshalConfig(m.Config)
	if err != nil {
		return err
	}

	m.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE machines
		SET name = ?, type = ?, enabled = ?, poll_interval_ms = ?, config = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		m.Name,
		m.Type,
		boolToInt(m.Enabled),
		m.PollIntervalMS,
		configJSON,
		m.UpdatedAt.Format(time.RFC3339),
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("updating machine %d: %w", m.ID, err)
	}

	return checkAffected(result, m.ID)
}

// Delete removes a machine by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM machines WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting machine %d: %w", id, err)
	}
	return checkAffected(result, id)
}

// SetEnabled flips only the enabled flag.
func (r *SQLiteRepository) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	query := "UPDATE machines SET enabled = ?, updated_at = ? WHERE id = ?"

	result, err := r.db.ExecContext(ctx, query,
		boolToInt(enabled),
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating machine %d enabled flag: %w", id, err)
	}
	return checkAffected(result, id)
}

// queryMachines runs a query returning machine rows and scans them.
func (r *SQLiteRepository) queryMachines(ctx context.Context, query string, args ...any) ([]Machine, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying machines: %w", err)
	}
	defer rows.Close()

	var machines []Machine
	for rows.Next() {
		m, err := scanMachine(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning machine row: %w", err)
		}
		machines = append(machines, *m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating machines: %w", err)
	}
	return machines, nil
}

// scanMachine scans one machine row via the provided scan function.
// JSON and timestamp columns are decoded from their TEXT representations.
func scanMachine(scan func(...any) error) (*Machine, error) {
	var (
		m          Machine
		enabled    int
		configJSON string
		createdAt  string
		updatedAt  string
	)

	if err := scan(&m.ID, &m.Name, &m.Type, &enabled, &m.PollIntervalMS,
		&configJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	m.Enabled = enabled != 0

	if configJSON != "" {
		if err := json.Unmarshal([]byte(configJSON), &m.Config); err != nil {
			return nil, fmt.Errorf("unmarshalling config: %w", err)
		}
	}

	var err error
	if m.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if m.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &m, nil
}

// marshalConfig encodes the opaque provider config as JSON for storage.
func marshalConfig(cfg Config) (string, error) {
	if cfg == nil {
		return "{}", nil
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshalling config: %w", err)
	}
	return string(data), nil
}

// checkAffected converts a zero-row UPDATE/DELETE into ErrMachineNotFound.
func checkAffected(result sql.Result, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows for machine %d: %w", id, err)
	}
	if affected == 0 {
		return ErrMachineNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
