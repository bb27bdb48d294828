package interceptors

import (
	"context"
	"sync"

	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/audit"
	"github.com/IFs1991/seikotsuin-no-saas-sub003/internal/session/domain"
	teldomain "github.com/IFs1991/seikotsuin-no-saas-sub003/internal/telemetry/domain"
)

// fakeSessions accepts exactly one token.
type fakeSessions struct {
	mu         sync.Mutex
	token      string
	session    *domain.Session
	refreshOK  bool
	refreshIPs []string
}

func (f *fakeSessions) ValidateSession(_ context.Context, token string) (domain.ValidationOutcome, error) {
	if token == "garbage" {
		return domain.ValidationOutcome{}, domain.ErrInvalidToken
	}
	if token != f.token {
		return domain.InvalidOutcome(domain.ReasonNotFound), nil
	}
	return domain.ValidOutcome(f.session), nil
}

func (f *fakeSessions) RefreshSession(_ context.Context, _ string, ip string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshIPs = append(f.refreshIPs, ip)
	return f.refreshOK
}

type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAudit) LogEvent(_ context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

type chanEmitter struct {
	ch chan *teldomain.Event
}

func (c chanEmitter) Emit(_ context.Context, e *teldomain.Event) error {
	c.ch <- e
	return nil
}
