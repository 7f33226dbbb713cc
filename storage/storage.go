package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// ErrNoResults is returned by GetLatest when nothing has been recorded for an
// address.
var ErrNoResults = errors.New("no probe results recorded")

// ProbeResult is one CT policy probe of an endpoint.
type ProbeResult struct {
	ID        int64     `json:"id,omitempty"`
	Addr      string    `json:"addr"`
	Timestamp time.Time `json:"timestamp"`
	// Verdict is "accept" or "reject", or empty when the probe failed before
	// the policy was evaluated.
	Verdict  string `json:"verdict,omitempty"`
	Total    int    `json:"total"`
	Attested int    `json:"attested"`
	// Error holds the connection or policy error, if any.
	Error string `json:"error,omitempty"`
}

// Storage provides methods for recording probe results
type Storage interface {
	AddResult(result *ProbeResult) error
	GetLatest(addr string) (*ProbeResult, error)
	Close() error
}

type impl struct {
	db *sql.DB
}

// New initializes a Storage backed by the MySQL database at dsn. No
// connection is made until the first query.
func New(dsn string) (Storage, error) {
	conf, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	// Timestamp is a DATETIME column and is scanned into a time.Time
	conf.ParseTime = true
	db, err := sql.Open("mysql", conf.FormatDSN())
	if err != nil {
		return nil, err
	}
	return &impl{db: db}, nil
}

// AddResult inserts a new probe result
func (s *impl) AddResult(result *ProbeResult) error {
	res, err := s.db.Exec(
		"INSERT INTO ProbeResults (Addr, Timestamp, Verdict, Total, Attested, Error) VALUES (?, ?, ?, ?, ?, ?)",
		result.Addr,
		result.Timestamp.UTC(),
		result.Verdict,
		result.Total,
		result.Attested,
		result.Error,
	)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows != 1 {
		return fmt.Errorf("Unexpected number of rows affected: expected 1, got %d", rows)
	}
	return nil
}

// GetLatest returns the most recent probe result for addr
func (s *impl) GetLatest(addr string) (*ProbeResult, error) {
	var r ProbeResult
	err := s.db.QueryRow(
		"SELECT ID, Addr, Timestamp, Verdict, Total, Attested, Error FROM ProbeResults WHERE Addr = ? ORDER BY Timestamp DESC, ID DESC LIMIT 1",
		addr,
	).Scan(&r.ID, &r.Addr, &r.Timestamp, &r.Verdict, &r.Total, &r.Attested, &r.Error)
	if err == sql.ErrNoRows {
		return nil, ErrNoResults
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Close closes the underlying database
func (s *impl) Close() error {
	return s.db.Close()
}
