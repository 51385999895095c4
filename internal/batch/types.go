package batch

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/raaihank/redacted/internal/privacy"
)

// Record is one input row
type Record struct {
	ID   string `parquet:"id" json:"id"`
	Text string `parquet:"text" json:"text"`
}

// OutputRecord is one JSON line written for a processed record
type OutputRecord struct {
	ID         string            `json:"id"`
	MaskedText string            `json:"masked_text"`
	Findings   []privacy.Finding `json:"findings"`
}

// ProcessingResult summarises a pipeline run
type ProcessingResult struct {
	RunID        string           `json:"run_id"`
	TotalRecords int64            `json:"total_records"`
	ProcessedOK  int64            `json:"processed_ok"`
	Skipped      int64            `json:"skipped"`
	Failed       int64            `json:"failed"`
	Redacted     int64            `json:"redacted"` // records with at least one finding
	ByInfoType   map[string]int64 `json:"by_info_type"`
	Duration     time.Duration    `json:"duration"`
	Errors       []string         `json:"errors,omitempty"`
}

// Config contains batch pipeline configuration
type Config struct {
	BatchSize      int  `yaml:"batch_size" mapstructure:"batch_size"`
	WorkerCount    int  `yaml:"worker_count" mapstructure:"worker_count"`
	MaxTextLength  int  `yaml:"max_text_length" mapstructure:"max_text_length"`
	SkipEmpty      bool `yaml:"skip_empty" mapstructure:"skip_empty"`
	ProgressReport int  `yaml:"progress_report" mapstructure:"progress_report"`
}

// Redactor masks a single text
type Redactor interface {
	ProcessText(text string) privacy.ProcessResult
}

// FindingRecorder receives per-record findings, typically an audit store
type FindingRecorder interface {
	RecordFindings(ctx context.Context, requestID, source string, findings []privacy.Finding) error
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON
	default:
		return FormatCSV // Default to CSV
	}
}
