package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/flexprice/invoicerecon/internal/logger"
	"github.com/jmoiron/sqlx"
)

// slowQuery is the duration above which a successful query is logged at info
const slowQuery = 250 * time.Millisecond

// TracedQuerier logs every statement run through the wrapped Querier with its
// duration and, inside a transaction, the transaction id
type TracedQuerier struct {
	Querier
	logger *logger.Logger
	txID   string
}

func NewTracedQuerier(q Querier, logger *logger.Logger, txID string) *TracedQuerier {
	return &TracedQuerier{
		Querier: q,
		logger:  logger,
		txID:    txID,
	}
}

// trace starts timing a statement and returns the function reporting its outcome
func (tq *TracedQuerier) trace(query string, params interface{}) func(error) {
	start := time.Now()
	return func(err error) {
		elapsed := time.Since(start)
		fields := []interface{}{
			"duration_ms", elapsed.Milliseconds(),
			"query", query,
			"params", fmt.Sprintf("%+v", params),
		}
		if tq.txID != "" {
			fields = append(fields, "tx_id", tq.txID)
		}

		switch {
		case err == nil && elapsed >= slowQuery:
			tq.logger.Infow("slow database query", fields...)
		case err == nil:
			tq.logger.Debugw("database query completed", fields...)
		case errors.Is(err, sql.ErrNoRows), IsUniqueViolation(err):
			// absent rows and duplicate keys are answers, not failures
			tq.logger.Debugw("database query returned no result", append(fields, "error", err.Error())...)
		default:
			tq.logger.Errorw("database query failed", append(fields, "error", err.Error())...)
		}
	}
}

func (tq *TracedQuerier) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	done := tq.trace(query, args)
	result, err := tq.Querier.ExecContext(ctx, query, args...)
	done(err)
	return result, err
}

func (tq *TracedQuerier) NamedExec(query string, arg interface{}) (sql.Result, error) {
	done := tq.trace(query, arg)
	result, err := tq.Querier.NamedExec(query, arg)
	done(err)
	return result, err
}

func (tq *TracedQuerier) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	done := tq.trace(query, args)
	rows, err := tq.Querier.QueryContext(ctx, query, args...)
	done(err)
	return rows, err
}

func (tq *TracedQuerier) NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error) {
	done := tq.trace(query, arg)
	result, err := tq.Querier.NamedExecContext(ctx, query, arg)
	done(err)
	return result, err
}

func (tq *TracedQuerier) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	done := tq.trace(query, args)
	err := tq.Querier.GetContext(ctx, dest, query, args...)
	done(err)
	return err
}

func (tq *TracedQuerier) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	done := tq.trace(query, args)
	err := tq.Querier.SelectContext(ctx, dest, query, args...)
	done(err)
	return err
}

func (tq *TracedQuerier) NamedQuery(query string, arg interface{}) (*sqlx.Rows, error) {
	done := tq.trace(query, arg)
	rows, err := tq.Querier.NamedQuery(query, arg)
	done(err)
	return rows, err
}
