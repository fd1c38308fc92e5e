package taskaccess

import (
	"context"
	"errors"
	"fmt"

	"casetrack/internal/api"
	"casetrack/internal/tasks"
)

// Session represents a task access handle and its cleanup function.
type Session struct {
	Access Access
	close  func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenWithFallback checks the daemon first and falls back to direct store
// access only when the daemon cannot be reached. Any other daemon error, such
// as a rejected token, is returned as is.
func OpenWithFallback(
	ctx context.Context,
	client *api.Client,
	openStore func() (*tasks.Store, error),
) (Session, error) {
	if client != nil {
		_, err := client.Status(ctx)
		if err == nil {
			return Session{Access: NewDaemonAccess(client)}, nil
		}
		if !errors.Is(err, api.ErrDaemonUnavailable) {
			return Session{}, err
		}
	}

	if openStore == nil {
		return Session{}, fmt.Errorf("open task store: no store opener configured")
	}
	store, err := openStore()
	if err != nil {
		return Session{}, fmt.Errorf("open task store: %w", err)
	}
	return Session{
		Access: NewStoreAccess(store),
		close:  store.Close,
	}, nil
}
