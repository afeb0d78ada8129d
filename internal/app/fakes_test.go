package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openlearn/admin-api/pkg/domain/audit"
	"github.com/openlearn/admin-api/pkg/domain/bulkop"
	"github.com/openlearn/admin-api/pkg/domain/role"
	"github.com/openlearn/admin-api/pkg/domain/user"
	"github.com/openlearn/admin-api/pkg/logger"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func consoleRoles() []role.Definition {
	return []role.Definition{
		{Name: "owner", Level: 99999, Permissions: []string{
			"activate_users", "deactivate_users", "change_user_roles", "delete_users", "manage_system",
		}},
		{Name: "admin", Level: 9000, Permissions: []string{
			"activate_users", "deactivate_users", "change_user_roles", "delete_users",
		}},
		{Name: "moderator", Level: 5000, Permissions: []string{"activate_users", "deactivate_users"}},
		{Name: "user", Level: 100, Permissions: []string{"view_courses"}},
	}
}

func loadedRoles(t *testing.T) *RoleHierarchyService {
	t.Helper()
	svc := NewRoleHierarchyService(role.ProviderFunc(func(context.Context) ([]role.Definition, error) {
		return consoleRoles(), nil
	}), logger.NewNop())
	_, err := svc.Load(context.Background())
	require.NoError(t, err)
	return svc
}

// gate blocks a store mutation until released.
type gate struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGate() *gate {
	return &gate{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) enter(ctx context.Context) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
	case <-ctx.Done():
	}
}

type fakeUserStore struct {
	mu        sync.Mutex
	users     map[string]*user.User
	getErr    map[string]error
	mutateErr map[string]error
	gates     map[string]*gate
	delay     time.Duration
	getDelay  time.Duration
	stall     map[string]time.Duration
	active    map[string]int
	overlap   bool
	mutations []string
}

func newFakeUserStore(users ...*user.User) *fakeUserStore {
	f := &fakeUserStore{
		users:     make(map[string]*user.User),
		getErr:    make(map[string]error),
		mutateErr: make(map[string]error),
		gates:     make(map[string]*gate),
		stall:     make(map[string]time.Duration),
		active:    make(map[string]int),
	}
	for _, u := range users {
		f.users[u.ID()] = u
	}
	return f
}

func testUser(id, roleName string, status user.Status) *user.User {
	return user.Reconstruct(id, id+"@example.com", id, roleName, status)
}

// wait sleeps for d unless ctx ends first.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeUserStore) GetByID(ctx context.Context, id string) (*user.User, error) {
	f.mu.Lock()
	d := f.getDelay
	f.mu.Unlock()
	if err := wait(ctx, d); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getErr[id]; err != nil {
		return nil, err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, user.NotFoundError(id)
	}
	return u, nil
}

func (f *fakeUserStore) Activate(ctx context.Context, id string) error {
	return f.mutate(ctx, "activate", id, func(u *user.User) *user.User {
		return user.Reconstruct(u.ID(), u.Email(), u.Name(), u.Role(), user.StatusActive)
	})
}

func (f *fakeUserStore) Deactivate(ctx context.Context, id string) error {
	return f.mutate(ctx, "deactivate", id, func(u *user.User) *user.User {
		return user.Reconstruct(u.ID(), u.Email(), u.Name(), u.Role(), user.StatusInactive)
	})
}

func (f *fakeUserStore) SetRole(ctx context.Context, id, roleName string) error {
	return f.mutate(ctx, "set_role", id, func(u *user.User) *user.User {
		return user.Reconstruct(u.ID(), u.Email(), u.Name(), roleName, u.Status())
	})
}

func (f *fakeUserStore) Delete(ctx context.Context, id string) error {
	return f.mutate(ctx, "delete", id, func(u *user.User) *user.User {
		return user.Reconstruct(u.ID(), u.Email(), u.Name(), u.Role(), user.StatusDeleted)
	})
}

func (f *fakeUserStore) mutate(ctx context.Context, name, id string, apply func(*user.User) *user.User) error {
	f.mu.Lock()
	if err := f.mutateErr[id]; err != nil {
		f.mu.Unlock()
		return err
	}
	g := f.gates[id]
	delay := f.delay
	stall := f.stall[id]
	f.active[id]++
	if f.active[id] > 1 {
		f.overlap = true
	}
	f.mu.Unlock()

	if g != nil {
		g.enter(ctx)
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if err := wait(ctx, stall); err != nil {
		f.mu.Lock()
		f.active[id]--
		f.mu.Unlock()
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[id]--
	u, ok := f.users[id]
	if !ok {
		return user.NotFoundError(id)
	}
	f.users[id] = apply(u)
	f.mutations = append(f.mutations, name+":"+id)
	return nil
}

func (f *fakeUserStore) get(id string) *user.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id]
}

func (f *fakeUserStore) mutationLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.mutations...)
}

func (f *fakeUserStore) overlapped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlap
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []*audit.Entry
	err     error
}

func (r *fakeRecorder) Append(_ context.Context, entry *audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeRecorder) all() []*audit.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*audit.Entry(nil), r.entries...)
}

func (r *fakeRecorder) byUser() map[string]*audit.Entry {
	out := make(map[string]*audit.Entry)
	for _, e := range r.all() {
		out[e.TargetUserID()] = e
	}
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	events []bulkop.Progress
}

func (p *fakePublisher) PublishProgress(_ context.Context, progress bulkop.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, progress)
}

func (p *fakePublisher) last() (bulkop.Progress, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return bulkop.Progress{}, false
	}
	return p.events[len(p.events)-1], true
}

type fakeArchiver struct {
	mu      sync.Mutex
	results []bulkop.Result
}

func (a *fakeArchiver) Archive(_ context.Context, result bulkop.Result) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results = append(a.results, result)
	return nil
}

func (a *fakeArchiver) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.results)
}
