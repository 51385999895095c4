package audit

import "time"

// Config contains database configuration
type Config struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// Record is one audited info type detection. Matched values are never stored.
type Record struct {
	ID           int64     `db:"id" json:"id"`
	RequestID    string    `db:"request_id" json:"request_id"`
	Source       string    `db:"source" json:"source"`
	InfoType     string    `db:"info_type" json:"info_type"`
	Occurrences  int       `db:"occurrences" json:"occurrences"`
	UniqueValues int       `db:"unique_values" json:"unique_values"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// InfoTypeSummary aggregates records for one info type
type InfoTypeSummary struct {
	InfoType     string `db:"info_type" json:"info_type"`
	Requests     int64  `db:"requests" json:"requests"`
	Occurrences  int64  `db:"occurrences" json:"occurrences"`
	UniqueValues int64  `db:"unique_values" json:"unique_values"`
}

const schema = `
CREATE TABLE IF NOT EXISTS redaction_findings (
	id            BIGSERIAL PRIMARY KEY,
	request_id    TEXT        NOT NULL,
	source        TEXT        NOT NULL,
	info_type     TEXT        NOT NULL,
	occurrences   INTEGER     NOT NULL,
	unique_values INTEGER     NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_redaction_findings_created_at ON redaction_findings (created_at);
CREATE INDEX IF NOT EXISTS idx_redaction_findings_info_type ON redaction_findings (info_type);`
