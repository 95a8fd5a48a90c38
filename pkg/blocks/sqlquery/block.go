// Package sqlquery implements the sql.query block. Queries run against an
// in-memory SQLite database by default, a SQLite file when the connection
// input names one, or PostgreSQL when it is a postgres:// URL. Parameter
// binding is not implemented in this version; queries execute as-is.
package sqlquery

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	// Drivers for the two supported backends.
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/rustkas/beamline-worker/pkg/core"
)

const BlockType = "sql.query"

const defaultConnection = ":memory:"

// destructiveVerbs matches statements refused in sandbox mode, whole-word and
// case-insensitive.
var destructiveVerbs = regexp.MustCompile(`(?i)\b(drop|delete|truncate|alter|create|grant|revoke)\b`)

// selectLike matches statements that produce a row set.
var selectLike = regexp.MustCompile(`(?i)^\s*(select|with|pragma)\b`)

// Block executes one SQL statement per step. In sandbox mode it holds a
// process-lifetime in-memory database so consecutive steps of a sandbox run
// can see each other's scratch state.
type Block struct {
	sandboxDB *sql.DB
}

func NewBlock() *Block {
	return &Block{}
}

func (b *Block) BlockType() string {
	return BlockType
}

func (b *Block) ResourceClass() core.ResourceClass {
	return core.ResourceCPU
}

// Init opens the sandbox in-memory database when the context runs sandboxed.
// It is idempotent.
func (b *Block) Init(_ context.Context, bctx core.BlockContext) error {
	if !bctx.Sandbox || b.sandboxDB != nil {
		return nil
	}

	db, err := sql.Open("sqlite", defaultConnection)
	if err != nil {
		return fmt.Errorf("failed to open sandbox database: %w", err)
	}

	// A single connection keeps every statement on the same in-memory
	// database.
	db.SetMaxOpenConns(1)
	b.sandboxDB = db

	return nil
}

// Execute runs the query input. Row sets are serialized into a flat JSON
// array of objects in the rows output with a row_count; other statements emit
// affected_rows. Sandbox mode refuses destructive verbs before execution.
func (b *Block) Execute(ctx context.Context, req core.StepRequest, bctx core.BlockContext) core.StepResult {
	start := time.Now()
	meta := core.MetadataFromContext(bctx)

	if !req.HasInputs("query") {
		return core.ErrorResult(
			core.ErrMissingRequiredField,
			"missing required input: query",
			meta,
			elapsedMS(start),
		)
	}

	query := req.Inputs["query"]
	connection := req.Input("connection", defaultConnection)

	if bctx.Sandbox && destructiveVerbs.MatchString(query) {
		return core.ErrorResult(
			core.ErrPermissionDenied,
			"destructive statement rejected in sandbox mode",
			meta,
			elapsedMS(start),
		)
	}

	db, closeDB, err := b.openDatabase(bctx, connection)
	if err != nil {
		return core.ErrorResult(
			core.ErrResourceUnavailable,
			"failed to open database: "+err.Error(),
			meta,
			elapsedMS(start),
		)
	}
	defer closeDB()

	if selectLike.MatchString(query) {
		return b.runQuery(ctx, db, query, meta, start)
	}

	return b.runExec(ctx, db, query, meta, start)
}

// openDatabase resolves the connection input onto a driver. The returned
// closer is a no-op for the shared sandbox database.
func (b *Block) openDatabase(bctx core.BlockContext, connection string) (*sql.DB, func(), error) {
	if bctx.Sandbox && connection == defaultConnection && b.sandboxDB != nil {
		return b.sandboxDB, func() {}, nil
	}

	driver := "sqlite"
	if strings.HasPrefix(connection, "postgres://") || strings.HasPrefix(connection, "postgresql://") {
		driver = "postgres"
	}

	db, err := sql.Open(driver, connection)
	if err != nil {
		return nil, nil, err
	}

	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}

	return db, func() { _ = db.Close() }, nil
}

func (b *Block) runQuery(ctx context.Context, db *sql.DB, query string, meta core.ResultMetadata, start time.Time) core.StepResult {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return queryError(err, meta, elapsedMS(start))
	}

	defer func() {
		_ = rows.Close()
	}()

	columns, err := rows.Columns()
	if err != nil {
		return queryError(err, meta, elapsedMS(start))
	}

	var records []map[string]string

	for rows.Next() {
		values := make([]any, len(columns))
		for i := range values {
			values[i] = new(sql.NullString)
		}

		if err := rows.Scan(values...); err != nil {
			return queryError(err, meta, elapsedMS(start))
		}

		record := make(map[string]string, len(columns))

		for i, column := range columns {
			ns := values[i].(*sql.NullString)
			if ns.Valid {
				record[column] = ns.String
			}
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return queryError(err, meta, elapsedMS(start))
	}

	serialized, err := json.Marshal(records)
	if err != nil {
		return queryError(err, meta, elapsedMS(start))
	}

	if records == nil {
		serialized = []byte("[]")
	}

	outputs := map[string]string{
		"rows":      string(serialized),
		"row_count": strconv.Itoa(len(records)),
	}

	return core.Success(meta, outputs, elapsedMS(start))
}

func (b *Block) runExec(ctx context.Context, db *sql.DB, query string, meta core.ResultMetadata, start time.Time) core.StepResult {
	result, err := db.ExecContext(ctx, query)
	if err != nil {
		return queryError(err, meta, elapsedMS(start))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		affected = 0
	}

	outputs := map[string]string{
		"affected_rows": strconv.FormatInt(affected, 10),
	}

	return core.Success(meta, outputs, elapsedMS(start))
}

func queryError(err error, meta core.ResultMetadata, latencyMS int64) core.StepResult {
	return core.ErrorResult(core.ErrExecutionFailed, "query execution failed: "+err.Error(), meta, latencyMS)
}

func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
