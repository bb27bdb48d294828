package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/session/domain"
)

// Gateway error kinds. Implementations wrap these (or return driver errors that KindOf
// understands) so callers can branch without knowing the backing store.
var (
	ErrNotFound    = errors.New("session store: not found")
	ErrConflict    = errors.New("session store: conflict")
	ErrUnavailable = errors.New("session store: unavailable")
)

// Limit errors returned by Insert. Both are conflicts.
var (
	ErrDeviceLimit = fmt.Errorf("%w: device session limit reached", ErrConflict)
	ErrTotalLimit  = fmt.Errorf("%w: total session limit reached", ErrConflict)
)

// ErrCommitUncertain is returned by Insert when the commit itself failed. The row may or may
// not have been persisted.
var ErrCommitUncertain = fmt.Errorf("%w: commit outcome unknown", ErrUnavailable)

// Kind is the closed classification of a gateway error.
type Kind int

const (
	KindNone Kind = iota
	KindNotFound
	KindConflict
	KindUnavailable
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	default:
		return "other"
	}
}

// InsertLimits are the concurrency caps checked atomically with an insert.
// A session counts as active when it is active, not revoked, ExpiresAt is after Now and,
// unless RememberDevice is set, its last activity is after IdleCutoff. A zero IdleCutoff
// disables the idle condition.
type InsertLimits struct {
	// PerDevice caps active sessions for (user, tenant, device fingerprint). 0 = no cap.
	PerDevice int
	// Total caps active sessions for (user, tenant). 0 = no cap.
	Total      int
	Now        time.Time
	IdleCutoff time.Time
}

// Repository is the session store gateway.
type Repository interface {
	// Insert persists s unless a limit is reached, in which case it returns ErrDeviceLimit or
	// ErrTotalLimit (both ErrConflict).
	// The count and the insert are atomic with respect to other inserts for the same user and tenant.
	Insert(ctx context.Context, s *domain.Session, limits InsertLimits) error
	// GetByTokenHash returns the session holding tokenHash or ErrNotFound.
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	// GetByID returns the session or ErrNotFound.
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// ListByUserAndTenant returns all sessions of the user in the tenant, most recent activity first.
	ListByUserAndTenant(ctx context.Context, userID, tenantID string) ([]*domain.Session, error)
	// Touch records activity on an active, unrevoked, unexpired session. ErrNotFound otherwise.
	Touch(ctx context.Context, id string, at time.Time, ip string) error
	// Revoke marks the session revoked exactly once and returns the revoked row.
	// ErrNotFound when the session is absent or already revoked.
	Revoke(ctx context.Context, id string, r domain.Revocation) (*domain.Session, error)
	// RevokeAllByUserAndTenant revokes every unrevoked session of the user in the tenant and
	// returns the rows it changed.
	RevokeAllByUserAndTenant(ctx context.Context, userID, tenantID string, r domain.Revocation) ([]*domain.Session, error)
}

// KindOf classifies err. Timeouts, cancellations, broken connections and Postgres
// connection-class errors are KindUnavailable; unique violations are KindConflict.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, sql.ErrNoRows):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone):
		return KindUnavailable
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return KindConflict
		case strings.HasPrefix(pgErr.Code, "08"),
			pgErr.Code == "57P01", pgErr.Code == "57P02", pgErr.Code == "57P03":
			return KindUnavailable
		}
		return KindOther
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return KindUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindUnavailable
	}
	return KindOther
}
