package iocache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/huangsam/weightflow/internal/contract"
	"github.com/huangsam/weightflow/schema"
)

// Table names for run tracking.
const (
	runsTable   = "weightflow_runs"
	yieldsTable = "weightflow_yields"
)

// RunStoreImpl implements the RunStore interface.
type RunStoreImpl struct {
	db      *sql.DB
	backend schema.DatabaseBackend
	connStr string
}

var _ contract.RunStore = &RunStoreImpl{} // Compile-time check

// NewRunStore opens the backend and migrates its schema to the latest version.
func NewRunStore(backend schema.DatabaseBackend, connStr string) (*RunStoreImpl, error) {
	if backend == schema.NoneBackend {
		return &RunStoreImpl{backend: backend, connStr: connStr}, nil
	}

	db, err := openDB(backend, connStr, contract.GetRunDBFilePath())
	if err != nil {
		return nil, err
	}
	if _, err := applyMigrations(db, backend, -1); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to prepare run tables: %w", err)
	}
	return &RunStoreImpl{db: db, backend: backend, connStr: connStr}, nil
}

// placeholders returns n positional parameters for the backend.
func (rs *RunStoreImpl) placeholders(n int) []string {
	out := make([]string, n)
	for i := range out {
		if rs.backend == schema.PostgreSQLBackend {
			out[i] = fmt.Sprintf("$%d", i+1)
		} else {
			out[i] = "?"
		}
	}
	return out
}

// BeginRun creates a new run and returns its unique ID.
func (rs *RunStoreImpl) BeginRun(startTime time.Time, configParams map[string]any) (int64, error) {
	if rs.db == nil {
		return 0, nil
	}

	configJSON, err := json.Marshal(configParams)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal config params: %w", err)
	}

	quoted := quoteTableName(runsTable, rs.backend)
	var runID int64
	switch rs.backend {
	case schema.PostgreSQLBackend:
		query := fmt.Sprintf(`INSERT INTO %s (start_time, config_params) VALUES ($1, $2) RETURNING run_id`, quoted)
		err = rs.db.QueryRow(query, startTime, string(configJSON)).Scan(&runID)
	default: // SQLite and MySQL
		query := fmt.Sprintf(`INSERT INTO %s (start_time, config_params) VALUES (?, ?)`, quoted)
		var result sql.Result
		result, err = rs.db.Exec(query, formatTime(startTime, rs.backend), string(configJSON))
		if err == nil {
			runID, err = result.LastInsertId()
		}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	return runID, nil
}

// EndRun records the completion time and totals of a run.
func (rs *RunStoreImpl) EndRun(runID int64, endTime time.Time, samples, chunks int, events int64) error {
	if rs.db == nil {
		return nil
	}

	quoted := quoteTableName(runsTable, rs.backend)
	p := rs.placeholders(6)

	row := rs.db.QueryRow(fmt.Sprintf(`SELECT start_time FROM %s WHERE run_id = %s`, quoted, p[0]), runID)
	startTime, err := scanTime(row, rs.backend)
	if err != nil {
		return fmt.Errorf("failed to get start_time for run %d: %w", runID, err)
	}
	durationMs := endTime.Sub(startTime).Milliseconds()

	query := fmt.Sprintf(`UPDATE %s SET end_time = %s, run_duration_ms = %s, total_samples = %s, total_chunks = %s, total_events = %s WHERE run_id = %s`,
		quoted, p[0], p[1], p[2], p[3], p[4], p[5])
	if _, err := rs.db.Exec(query, formatTime(endTime, rs.backend), durationMs, samples, chunks, events, runID); err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// RecordYields stores the yields of a run in a single transaction.
func (rs *RunStoreImpl) RecordYields(runID int64, yields []schema.Yield) error {
	if rs.db == nil || len(yields) == 0 {
		return nil
	}

	p := rs.placeholders(8)
	query := fmt.Sprintf(`INSERT INTO %s (run_id, sample, category, subsample, variation, sumw, sumw2, entries)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s)`,
		quoteTableName(yieldsTable, rs.backend), p[0], p[1], p[2], p[3], p[4], p[5], p[6], p[7])

	tx, err := rs.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare yield insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, y := range yields {
		if _, err := stmt.Exec(runID, y.Sample, y.Category, y.Subsample, y.Variation, y.SumW, y.SumW2, y.Entries); err != nil {
			return fmt.Errorf("failed to insert yield %s/%s/%s/%s: %w", y.Sample, y.Category, y.Subsample, y.Variation, err)
		}
	}
	return tx.Commit()
}

// Close closes the underlying connection.
func (rs *RunStoreImpl) Close() error {
	if rs.db != nil {
		return rs.db.Close()
	}
	return nil
}

// GetStatus returns status information about the run store.
func (rs *RunStoreImpl) GetStatus() (schema.RunStatus, error) {
	status := schema.RunStatus{
		Backend:    string(rs.backend),
		Connected:  rs.db != nil,
		TableSizes: make(map[string]int64),
	}
	if rs.db == nil {
		return status, nil
	}

	quoted := quoteTableName(runsTable, rs.backend)
	if err := rs.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", quoted)).Scan(&status.TotalRuns); err != nil {
		return status, fmt.Errorf("failed to get total runs: %w", err)
	}

	if status.TotalRuns > 0 {
		var lastTime, oldestTime time.Time
		var err error

		row := rs.db.QueryRow(fmt.Sprintf("SELECT run_id FROM %s ORDER BY run_id DESC LIMIT 1", quoted))
		if err := row.Scan(&status.LastRunID); err != nil {
			return status, fmt.Errorf("failed to get last run id: %w", err)
		}
		row = rs.db.QueryRow(fmt.Sprintf("SELECT start_time FROM %s ORDER BY run_id DESC LIMIT 1", quoted))
		if lastTime, err = scanTime(row, rs.backend); err != nil {
			return status, fmt.Errorf("failed to get last run time: %w", err)
		}
		row = rs.db.QueryRow(fmt.Sprintf("SELECT start_time FROM %s ORDER BY run_id ASC LIMIT 1", quoted))
		if oldestTime, err = scanTime(row, rs.backend); err != nil {
			return status, fmt.Errorf("failed to get oldest run time: %w", err)
		}
		status.LastRunTime = lastTime
		status.OldestRunTime = oldestTime

		row = rs.db.QueryRow(fmt.Sprintf("SELECT COALESCE(SUM(total_events), 0) FROM %s", quoted))
		if err := row.Scan(&status.TotalEvents); err != nil {
			return status, fmt.Errorf("failed to get total events: %w", err)
		}
	}

	for _, table := range []string{runsTable, yieldsTable} {
		var count int64
		if err := rs.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteTableName(table, rs.backend))).Scan(&count); err != nil {
			return status, fmt.Errorf("failed to get count for table %s: %w", table, err)
		}
		status.TableSizes[table] = count
	}
	return status, nil
}

// GetAllRuns retrieves every run ordered by ID.
func (rs *RunStoreImpl) GetAllRuns() ([]schema.RunRecord, error) {
	if rs.db == nil {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT run_id, start_time, end_time, run_duration_ms, total_samples, total_chunks, total_events, config_params
		FROM %s ORDER BY run_id`, quoteTableName(runsTable, rs.backend))
	rows, err := rs.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.RunRecord
	for rows.Next() {
		var record schema.RunRecord
		var samples, chunks sql.NullInt32
		var events sql.NullInt64

		switch rs.backend {
		case schema.SQLiteBackend:
			var startStr string
			var endStr *string
			if err := rows.Scan(&record.RunID, &startStr, &endStr, &record.RunDurationMs, &samples, &chunks, &events, &record.ConfigParams); err != nil {
				return nil, fmt.Errorf("failed to scan run: %w", err)
			}
			if record.StartTime, err = time.Parse(time.RFC3339Nano, startStr); err != nil {
				return nil, fmt.Errorf("failed to parse start_time: %w", err)
			}
			if endStr != nil {
				endTime, err := time.Parse(time.RFC3339Nano, *endStr)
				if err != nil {
					return nil, fmt.Errorf("failed to parse end_time: %w", err)
				}
				record.EndTime = &endTime
			}
		default: // MySQL and PostgreSQL store native timestamps
			if err := rows.Scan(&record.RunID, &record.StartTime, &record.EndTime, &record.RunDurationMs, &samples, &chunks, &events, &record.ConfigParams); err != nil {
				return nil, fmt.Errorf("failed to scan run: %w", err)
			}
		}
		record.TotalSamples = samples.Int32
		record.TotalChunks = chunks.Int32
		record.TotalEvents = events.Int64
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return results, nil
}

// GetAllYields retrieves every recorded yield ordered by run and cell.
func (rs *RunStoreImpl) GetAllYields() ([]schema.YieldRecord, error) {
	if rs.db == nil {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT run_id, sample, category, subsample, variation, sumw, sumw2, entries
		FROM %s ORDER BY run_id, sample, category, subsample, variation`, quoteTableName(yieldsTable, rs.backend))
	rows, err := rs.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query yields: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.YieldRecord
	for rows.Next() {
		var r schema.YieldRecord
		if err := rows.Scan(&r.RunID, &r.Sample, &r.Category, &r.Subsample, &r.Variation, &r.SumW, &r.SumW2, &r.Entries); err != nil {
			return nil, fmt.Errorf("failed to scan yield: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating yields: %w", err)
	}
	return results, nil
}

// formatTime converts a time.Time to the appropriate format for the backend.
func formatTime(t time.Time, backend schema.DatabaseBackend) any {
	if backend == schema.SQLiteBackend {
		return t.Format(time.RFC3339Nano)
	}
	return t
}

// scanTime reads a single timestamp column stored by formatTime.
func scanTime(row *sql.Row, backend schema.DatabaseBackend) (time.Time, error) {
	if backend == schema.SQLiteBackend {
		var s string
		if err := row.Scan(&s); err != nil {
			return time.Time{}, err
		}
		return time.Parse(time.RFC3339Nano, s)
	}
	var t time.Time
	err := row.Scan(&t)
	return t, err
}
