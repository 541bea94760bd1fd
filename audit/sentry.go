package audit

import (
	"context"

	"github.com/getsentry/sentry-go"
)

// SentryStore mirrors access decisions to Sentry. Denied decisions and
// lockouts are captured at warning level, everything else at info.
// It reports no system context of its own; pair it with a real store
// via MultiStore when classification context is required.
type SentryStore struct {
	hub *sentry.Hub
}

// NewSentryStore captures through hub, or the current global hub when
// hub is nil. Initialize the SDK with sentry.Init before use; with an
// empty DSN events are silently discarded.
func NewSentryStore(hub *sentry.Hub) *SentryStore {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &SentryStore{hub: hub}
}

func (s *SentryStore) Record(_ context.Context, info AccessInfo) error {
	level := sentry.LevelInfo
	if !info.Granted || info.AccessType == AccessLocked {
		level = sentry.LevelWarning
	}

	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(level)
		scope.SetTag("access_type", string(info.AccessType))
		scope.SetTag("login_type", string(info.LoginType))
		scope.SetTag("granted", boolTag(info.Granted))
		scope.SetExtra("resource_name", info.ResourceName)
		scope.SetExtra("resource_uuid", info.ResourceUUID)
		scope.SetExtra("origin", info.Origin)
		s.hub.CaptureMessage("access decision: " + string(info.AccessType))
	})

	return nil
}

func (s *SentryStore) CurrentSystemInfo(context.Context) (*SystemInfo, error) {
	return nil, nil
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// MultiStore fans Record out to every member and answers
// CurrentSystemInfo from the first member that has one.
type MultiStore []Store

func (m MultiStore) Record(ctx context.Context, info AccessInfo) error {
	var firstErr error
	for _, s := range m {
		if err := s.Record(ctx, info); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m MultiStore) CurrentSystemInfo(ctx context.Context) (*SystemInfo, error) {
	for _, s := range m {
		info, err := s.CurrentSystemInfo(ctx)
		if err != nil {
			return nil, err
		}
		if info != nil {
			return info, nil
		}
	}
	return nil, nil
}
