package taskaccess

import (
	"context"
	"fmt"
	"net/http"

	"casetrack/internal/api"
	"casetrack/internal/tasks"
)

// Access provides task operations regardless of daemon or direct store backing.
type Access interface {
	Mode() string
	Stats(ctx context.Context) (map[string]int, error)
	List(ctx context.Context, states []string) (api.TaskListResponse, error)
	Describe(ctx context.Context, id string) (api.Task, error)
	Remove(ctx context.Context, id string) (bool, error)
	Retry(ctx context.Context, id string) (api.Task, error)
	Clear(ctx context.Context, completedOnly bool) (int, error)
}

const (
	ModeDaemon = "daemon"
	ModeStore  = "store"
)

// NewDaemonAccess returns an Access backed by the daemon API.
func NewDaemonAccess(client *api.Client) Access {
	return &daemonAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct DB access.
func NewStoreAccess(store *tasks.Store) Access {
	return &storeAccess{service: api.NewTaskService(store)}
}

type daemonAccess struct {
	client *api.Client
}

func (a *daemonAccess) Mode() string { return ModeDaemon }

func (a *daemonAccess) Stats(ctx context.Context) (map[string]int, error) {
	resp, err := a.client.Status(ctx)
	if err != nil {
		return nil, err
	}
	return resp.Counts, nil
}

func (a *daemonAccess) List(ctx context.Context, states []string) (api.TaskListResponse, error) {
	resp, err := a.client.ListTasks(ctx, states)
	if err != nil {
		return api.TaskListResponse{}, err
	}
	return *resp, nil
}

func (a *daemonAccess) Describe(ctx context.Context, id string) (api.Task, error) {
	task, err := a.client.GetTask(ctx, id)
	if err != nil {
		return api.Task{}, translate(err, id)
	}
	return *task, nil
}

func (a *daemonAccess) Remove(ctx context.Context, id string) (bool, error) {
	removed, err := a.client.RemoveTask(ctx, id)
	if err != nil {
		return false, translate(err, id)
	}
	return removed, nil
}

func (a *daemonAccess) Retry(ctx context.Context, id string) (api.Task, error) {
	task, err := a.client.RetryTask(ctx, id)
	if err != nil {
		return api.Task{}, translate(err, id)
	}
	return *task, nil
}

func (a *daemonAccess) Clear(ctx context.Context, completedOnly bool) (int, error) {
	return a.client.ClearTasks(ctx, completedOnly)
}

// translate maps daemon status codes back onto the store sentinels so callers
// handle both backings the same way.
func translate(err error, id string) error {
	switch api.StatusCode(err) {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", tasks.ErrNotFound, id)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", tasks.ErrNotRetryable, id)
	default:
		return err
	}
}

type storeAccess struct {
	service *api.TaskService
}

func (a *storeAccess) Mode() string { return ModeStore }

func (a *storeAccess) Stats(ctx context.Context) (map[string]int, error) {
	return a.service.Stats(ctx)
}

func (a *storeAccess) List(ctx context.Context, states []string) (api.TaskListResponse, error) {
	var filters []tasks.State
	for _, s := range states {
		if parsed, ok := tasks.ParseState(s); ok {
			filters = append(filters, parsed)
		}
	}
	return a.service.List(ctx, filters...)
}

func (a *storeAccess) Describe(ctx context.Context, id string) (api.Task, error) {
	return a.service.Describe(ctx, id)
}

func (a *storeAccess) Remove(ctx context.Context, id string) (bool, error) {
	return a.service.Remove(ctx, id)
}

func (a *storeAccess) Retry(ctx context.Context, id string) (api.Task, error) {
	return a.service.Retry(ctx, id)
}

func (a *storeAccess) Clear(ctx context.Context, completedOnly bool) (int, error) {
	return a.service.Clear(ctx, completedOnly)
}
