package batch

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/raaihank/redacted/internal/privacy"
)

// auditSource labels findings recorded by the pipeline
const auditSource = "batch"

// Pipeline redacts datasets record by record
type Pipeline struct {
	redactor Redactor
	recorder FindingRecorder
	config   Config
	logger   *zap.Logger
}

// NewPipeline creates a new batch pipeline. recorder may be nil.
func NewPipeline(redactor Redactor, recorder FindingRecorder, config Config, logger *zap.Logger) *Pipeline {
	if config.BatchSize <= 0 {
		config.BatchSize = 500
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}

	return &Pipeline{
		redactor: redactor,
		recorder: recorder,
		config:   config,
		logger:   logger,
	}
}

// readBatchFunc returns the next records; an empty batch means end of input
type readBatchFunc func() ([]Record, error)

// ProcessFile redacts a CSV, Parquet or JSON-lines file and writes one
// JSON line per record to out, in input order
func (p *Pipeline) ProcessFile(ctx context.Context, filePath string, out io.Writer) (*ProcessingResult, error) {
	result := &ProcessingResult{
		RunID:      uuid.NewString(),
		ByInfoType: make(map[string]int64),
	}

	format := DetectFileFormat(filePath)
	p.logger.Info("Starting batch pipeline",
		zap.String("run_id", result.RunID),
		zap.String("file", filePath),
		zap.String("format", string(format)),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.WorkerCount))

	file, err := os.Open(filePath)
	if err != nil {
		return result, fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	var readBatch readBatchFunc
	switch format {
	case FormatCSV:
		readBatch, err = p.csvReader(file, result)
	case FormatParquet:
		var reader *parquet.Reader
		reader, err = openParquet(file)
		if err == nil {
			defer reader.Close()
			readBatch = p.parquetReader(reader)
		}
	case FormatJSON:
		readBatch = p.jsonReader(file, result)
	default:
		err = fmt.Errorf("unsupported file format: %s", format)
	}
	if err != nil {
		return result, err
	}

	start := time.Now()
	w := bufio.NewWriter(out)

	runErr := p.processBatches(ctx, readBatch, w, result, start)
	if err := w.Flush(); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to write output: %w", err)
	}
	result.Duration = time.Since(start)

	if runErr != nil {
		return result, runErr
	}

	p.logger.Info("Batch pipeline completed",
		zap.String("run_id", result.RunID),
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("redacted", result.Redacted),
		zap.Int64("skipped", result.Skipped),
		zap.Int64("failed", result.Failed),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// csvReader reads records from a CSV file with a header row. The text
// column is required; id is optional.
func (p *Pipeline) csvReader(file io.Reader, result *ProcessingResult) (readBatchFunc, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	idCol, textCol := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "id":
			idCol = i
		case "text":
			textCol = i
		}
	}
	if textCol < 0 {
		return nil, fmt.Errorf("CSV header has no text column: %v", header)
	}

	p.logger.Debug("CSV header detected", zap.Strings("columns", header))

	row := int64(0)
	return func() ([]Record, error) {
		var batch []Record

		for len(batch) < p.config.BatchSize {
			fields, err := reader.Read()
			if err == io.EOF {
				break
			}
			row++
			if err != nil {
				p.recordFailure(result, fmt.Sprintf("row %d: %v", row, err))
				continue
			}
			if textCol >= len(fields) {
				p.recordFailure(result, fmt.Sprintf("row %d: missing text column", row))
				continue
			}

			rec := Record{Text: fields[textCol]}
			if idCol >= 0 && idCol < len(fields) {
				rec.ID = strings.TrimSpace(fields[idCol])
			}
			if rec.ID == "" {
				rec.ID = strconv.FormatInt(row, 10)
			}
			batch = append(batch, rec)
		}

		return batch, nil
	}, nil
}

// openParquet opens the file up front so a corrupt file is an error
// rather than a panic inside the reader
func openParquet(file *os.File) (*parquet.Reader, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat Parquet file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open Parquet file: %w", err)
	}

	return parquet.NewReader(pf), nil
}

// parquetReader reads records from a Parquet file
func (p *Pipeline) parquetReader(reader *parquet.Reader) readBatchFunc {
	row := int64(0)
	return func() ([]Record, error) {
		var batch []Record

		for len(batch) < p.config.BatchSize {
			var rec Record
			err := reader.Read(&rec)
			if errors.Is(err, io.EOF) {
				break
			}
			row++
			if err != nil {
				return nil, fmt.Errorf("failed to read Parquet row %d: %w", row, err)
			}

			if rec.ID == "" {
				rec.ID = strconv.FormatInt(row, 10)
			}
			batch = append(batch, rec)
		}

		return batch, nil
	}
}

// jsonReader reads one JSON object per line. Malformed lines are counted
// as failures and skipped.
func (p *Pipeline) jsonReader(file io.Reader, result *ProcessingResult) readBatchFunc {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	row := int64(0)
	return func() ([]Record, error) {
		var batch []Record

		for len(batch) < p.config.BatchSize && scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			row++

			var rec Record
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				p.recordFailure(result, fmt.Sprintf("line %d: %v", row, err))
				continue
			}
			if rec.ID == "" {
				rec.ID = strconv.FormatInt(row, 10)
			}
			batch = append(batch, rec)
		}

		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read JSON lines: %w", err)
		}
		return batch, nil
	}
}

// processBatches drives reading, redaction and output until input ends
func (p *Pipeline) processBatches(ctx context.Context, readBatch readBatchFunc, w io.Writer, result *ProcessingResult, start time.Time) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)

	lastReport := int64(0)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := readBatch()
		if err != nil {
			return fmt.Errorf("failed to read batch: %w", err)
		}
		if len(batch) == 0 {
			return nil // End of input
		}

		batch = p.validate(batch, result)

		results, err := p.redactBatch(ctx, batch)
		if err != nil {
			return err
		}

		for i, rec := range batch {
			res := results[i]
			if err := encoder.Encode(OutputRecord{
				ID:         rec.ID,
				MaskedText: res.MaskedText,
				Findings:   res.Findings,
			}); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}

			result.ProcessedOK++
			if res.HasFindings() {
				result.Redacted++
				p.record(ctx, result, rec.ID, res.Findings)
			}
			for name, n := range res.Counts() {
				result.ByInfoType[name] += int64(n)
			}
		}

		if p.config.ProgressReport > 0 && result.TotalRecords-lastReport >= int64(p.config.ProgressReport) {
			lastReport = result.TotalRecords
			p.reportProgress(result, start)
		}
	}
}

// validate drops empty and oversized records, counting them
func (p *Pipeline) validate(batch []Record, result *ProcessingResult) []Record {
	valid := batch[:0]
	for _, rec := range batch {
		if p.config.MaxTextLength > 0 && len(rec.Text) > p.config.MaxTextLength {
			p.recordFailure(result, fmt.Sprintf("record %s: text exceeds %d bytes", rec.ID, p.config.MaxTextLength))
			continue
		}

		result.TotalRecords++
		if p.config.SkipEmpty && strings.TrimSpace(rec.Text) == "" {
			result.Skipped++
			continue
		}
		valid = append(valid, rec)
	}
	return valid
}

// redactBatch redacts records concurrently, bounded by WorkerCount
func (p *Pipeline) redactBatch(ctx context.Context, batch []Record) ([]privacy.ProcessResult, error) {
	results := make([]privacy.ProcessResult, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.WorkerCount)

	for i := range batch {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = p.redactor.ProcessText(batch[i].Text)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// record forwards findings to the recorder. Failures are reported in the
// result but do not stop the run.
func (p *Pipeline) record(ctx context.Context, result *ProcessingResult, id string, findings []privacy.Finding) {
	if p.recorder == nil {
		return
	}

	requestID := result.RunID + "/" + id
	if err := p.recorder.RecordFindings(ctx, requestID, auditSource, findings); err != nil {
		p.logger.Warn("Failed to record findings", zap.String("record_id", id), zap.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("record %s: audit: %v", id, err))
	}
}

func (p *Pipeline) recordFailure(result *ProcessingResult, msg string) {
	result.TotalRecords++
	result.Failed++
	result.Errors = append(result.Errors, msg)
	p.logger.Warn("Skipping invalid record", zap.String("reason", msg))
}

// reportProgress reports current processing progress
func (p *Pipeline) reportProgress(result *ProcessingResult, start time.Time) {
	elapsed := time.Since(start)
	rate := float64(result.TotalRecords) / elapsed.Seconds()

	p.logger.Info("Processing progress",
		zap.Int64("records_processed", result.TotalRecords),
		zap.Int64("records_ok", result.ProcessedOK),
		zap.Int64("records_failed", result.Failed),
		zap.Float64("rate_per_sec", rate),
		zap.Duration("elapsed", elapsed))
}
