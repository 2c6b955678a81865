package persistence

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/salesplan/backend/internal/domain/shared"
)

// SQL Server error numbers that map onto domain errors.
var (
	loginFailedErrors = map[int32]bool{18456: true, 4060: true}
	permissionErrors  = map[int32]bool{229: true, 230: true, 262: true, 297: true, 300: true}
	queryErrors       = map[int32]bool{
		102:  true, // incorrect syntax
		156:  true, // incorrect syntax near keyword
		207:  true, // invalid column name
		208:  true, // invalid object name
		245:  true, // conversion failed
		4104: true, // multi-part identifier could not be bound
		8120: true, // column not in GROUP BY or aggregate
	}
)

// classifyError translates driver failures into domain errors. Errors it does
// not recognise are returned unchanged.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", shared.ErrQueryTimeout, err)
	}

	var msErr mssql.Error
	if errors.As(err, &msErr) {
		n := msErr.SQLErrorNumber()
		detail := fmt.Sprintf("SQL Server error %d: %s", n, msErr.Message)
		switch {
		case loginFailedErrors[n]:
			return fmt.Errorf("%w: %s", shared.ErrDatabaseUnavailable, detail)
		case permissionErrors[n]:
			return shared.ErrForbidden.WithDetail(detail)
		case queryErrors[n]:
			return shared.ErrInvalidQuery.WithDetail(detail)
		}
		return fmt.Errorf("database error: %w", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %v", shared.ErrDatabaseUnavailable, err)
	}
	return err
}
