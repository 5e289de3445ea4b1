package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device definition persistence.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a definition by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Definition, error)

	// List retrieves all definitions.
	List(ctx context.Context) ([]Definition, error)

	// ListByTransport retrieves all definitions using one transport.
	ListByTransport(ctx context.Context, transport TransportKind) ([]Definition, error)

	// Create inserts a new definition.
	// Returns ErrDeviceExists if a device with the same ID already exists.
	Create(ctx context.Context, d *Definition) error

	// Update modifies an existing definition.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, d *Definition) error

	// Delete removes a definition by ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection with migrations applied.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectDefinitions = `
	SELECT id, name, transport, topic, broker, host, port, https,
		username, password, preset, capabilities, created_at, updated_at
	FROM devices`

// GetByID retrieves a definition by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Definition, error) {
	row := r.db.QueryRowContext(ctx, selectDefinitions+" WHERE id = ?", id)
	d, err := scanDefinition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// List retrieves all definitions ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Definition, error) {
	return r.queryDefinitions(ctx, selectDefinitions+" ORDER BY name")
}

// ListByTransport retrieves all definitions using one transport.
func (r *SQLiteRepository) ListByTransport(ctx context.Context, transport TransportKind) ([]Definition, error) {
	return r.queryDefinitions(ctx, selectDefinitions+" WHERE transport = ? ORDER BY name", string(transport))
}

// Create inserts a new definition.
func (r *SQLiteRepository) Create(ctx context.Context, d *Definition) error {
	brokerJSON, capsJSON, err := marshalDefinitionJSON(d)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	query := `
		INSERT INTO devices (
			id, name, transport, topic, broker, host, port, https,
			username, password, preset, capabilities, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		d.ID,
		d.Name,
		string(d.Transport),
		nullableString(d.Topic),
		brokerJSON,
		nullableString(d.Host),
		d.Port,
		boolToInt(d.HTTPS),
		nullableString(d.Username),
		nullableString(storedPassword(d)),
		nullableString(d.Preset),
		capsJSON,
		d.CreatedAt.Format(time.RFC3339),
		d.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// Update modifies an existing definition.
func (r *SQLiteRepository) Update(ctx context.Context, d *Definition) error {
	brokerJSON, capsJSON, err := marshalDefinitionJSON(d)
	if err != nil {
		return err
	}
	d.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE devices SET
			name = ?, transport = ?, topic = ?, broker = ?, host = ?, port = ?,
			https = ?, username = ?, password = ?, preset = ?, capabilities = ?,
			updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		d.Name,
		string(d.Transport),
		nullableString(d.Topic),
		brokerJSON,
		nullableString(d.Host),
		d.Port,
		boolToInt(d.HTTPS),
		nullableString(d.Username),
		nullableString(storedPassword(d)),
		nullableString(d.Preset),
		capsJSON,
		d.UpdatedAt.Format(time.RFC3339),
		d.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}
	return requireOneRow(result)
}

// Delete removes a definition by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return requireOneRow(result)
}

func (r *SQLiteRepository) queryDefinitions(ctx context.Context, query string, args ...any) ([]Definition, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var defs []Definition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		defs = append(defs, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return defs, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (*Definition, error) {
	var d Definition
	var transport, createdAt, updatedAt string
	var topic, host, username, password, preset sql.NullString
	var brokerJSON, capsJSON sql.NullString
	var https int

	err := row.Scan(
		&d.ID, &d.Name, &transport, &topic, &brokerJSON, &host, &d.Port, &https,
		&username, &password, &preset, &capsJSON, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Transport = TransportKind(transport)
	d.Topic = topic.String
	d.Host = host.String
	d.HTTPS = https != 0
	d.Username = username.String
	d.Password = password.String
	d.Preset = preset.String

	if brokerJSON.Valid {
		var b BrokerRef
		if err := json.Unmarshal([]byte(brokerJSON.String), &b); err != nil {
			return nil, fmt.Errorf("unmarshalling broker: %w", err)
		}
		// The broker password lives in the password column.
		b.Password, d.Password = d.Password, ""
		d.Broker = &b
	}
	if capsJSON.Valid {
		var c Capabilities
		if err := json.Unmarshal([]byte(capsJSON.String), &c); err != nil {
			return nil, fmt.Errorf("unmarshalling capabilities: %w", err)
		}
		d.Capabilities = &c
	}

	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &d, nil
}

func marshalDefinitionJSON(d *Definition) (broker, caps sql.NullString, err error) {
	if d.Broker != nil {
		b, err := json.Marshal(d.Broker)
		if err != nil {
			return broker, caps, fmt.Errorf("marshalling broker: %w", err)
		}
		broker = sql.NullString{String: string(b), Valid: true}
	}
	if d.Capabilities != nil {
		c, err := json.Marshal(d.Capabilities)
		if err != nil {
			return broker, caps, fmt.Errorf("marshalling capabilities: %w", err)
		}
		caps = sql.NullString{String: string(c), Valid: true}
	}
	return broker, caps, nil
}

// storedPassword returns the secret kept in the password column: the
// broker password for MQTT devices with their own broker, the web password
// otherwise.
func storedPassword(d *Definition) string {
	if d.Transport == TransportMQTT && d.Broker != nil {
		return d.Broker.Password
	}
	return d.Password
}

func requireOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// nullableString maps "" to NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
