// Package audit records security-relevant actions. Writes are best-effort and never fail the caller.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"clavionx/backend/internal/audit/domain"
	auditrepo "clavionx/backend/internal/audit/repository"
)

// writeTimeout bounds one asynchronous audit write.
const writeTimeout = 5 * time.Second

// IPExtractor returns the client IP from the request context (HTTP middleware value, gRPC metadata or peer).
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource. Used by the auth core and the
// admin API. LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	async       bool
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor}
}

// NewAsyncLogger is like NewLogger but writes from a goroutine so request latency never includes the
// audit insert. The client IP is captured before the request returns.
func NewAsyncLogger(repo auditrepo.Repository, ipExtractor IPExtractor) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor, async: true}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, userID, action, resource, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if !l.async {
		l.write(ctx, entry)
		return
	}
	go func() {
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		defer cancel()
		l.write(writeCtx, entry)
	}()
}

func (l *Logger) write(ctx context.Context, entry *domain.AuditLog) {
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log event %s/%s: %v", entry.Action, entry.Resource, err)
	}
}
