package store

import (
	"context"
	"database/sql/driver"
	"fmt"
	"log/slog"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// sqlLogger is a driver.Connector over go-sqlite3 that logs every statement
// the gateway runs at debug level. Open turns it on with SQLITE_LOG_SQL.
type sqlLogger struct {
	dsn    string
	logger *slog.Logger
	driver *sqlite3.SQLiteDriver
}

// NewLoggingConnector returns a connector for sql.OpenDB. A nil logger means
// slog.Default().
func NewLoggingConnector(dsn string, logger *slog.Logger) (driver.Connector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &sqlLogger{dsn: dsn, logger: logger, driver: &sqlite3.SQLiteDriver{}}, nil
}

func (c *sqlLogger) Driver() driver.Driver { return c.driver }

func (c *sqlLogger) Connect(_ context.Context) (driver.Conn, error) {
	conn, err := c.driver.Open(c.dsn)
	if err != nil {
		return nil, err
	}
	sc, ok := conn.(*sqlite3.SQLiteConn)
	if !ok {
		_ = conn.Close()
		return nil, fmt.Errorf("store: unexpected sqlite3 conn %T", conn)
	}
	return &loggedConn{SQLiteConn: sc, logger: c.logger}, nil
}

// loggedConn logs at the connection level. database/sql prefers
// ExecContext/QueryContext over Prepare, so ad-hoc statements and
// multi-statement migration scripts are logged once, as written.
type loggedConn struct {
	*sqlite3.SQLiteConn
	logger *slog.Logger
}

func (c *loggedConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	logQuery(c.logger, "exec", query, args)
	return c.SQLiteConn.ExecContext(ctx, query, args)
}

func (c *loggedConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	logQuery(c.logger, "query", query, args)
	return c.SQLiteConn.QueryContext(ctx, query, args)
}

// PrepareContext covers explicit db.Prepare callers.
func (c *loggedConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	stmt, err := c.SQLiteConn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &loggedStmt{Stmt: stmt, query: query, logger: c.logger}, nil
}

func (c *loggedConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

type loggedStmt struct {
	driver.Stmt
	query  string
	logger *slog.Logger
}

func (s *loggedStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	logQuery(s.logger, "exec", s.query, args)
	return s.Stmt.(driver.StmtExecContext).ExecContext(ctx, args)
}

func (s *loggedStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	logQuery(s.logger, "query", s.query, args)
	return s.Stmt.(driver.StmtQueryContext).QueryContext(ctx, args)
}

func logQuery(logger *slog.Logger, op, query string, args []driver.NamedValue) {
	logger.Debug("sql", "op", op, "sql", query, "args", formatArgs(args))
}

// formatArgs renders bound values for the log: positional as-is, named as
// name=value, nil as NULL.
func formatArgs(args []driver.NamedValue) []string {
	out := make([]string, len(args))
	for i, a := range args {
		v := "NULL"
		switch t := a.Value.(type) {
		case nil:
		case []byte:
			v = string(t)
		default:
			v = fmt.Sprint(t)
		}
		if a.Name != "" {
			v = a.Name + "=" + v
		}
		out[i] = v
	}
	return out
}
