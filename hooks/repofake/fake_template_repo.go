package repofake

import (
	"context"
	"sort"
	"sync"

	"github.com/jrsteele09/go-identity-core/hooks"
)

var _ hooks.TemplateRepo = (*FakeTemplateRepo)(nil)

type FakeTemplateRepo struct {
	hooks map[string][]hooks.TemplateHook // tenantID -> hooks
	lock  sync.RWMutex
}

func NewFakeTemplateRepo() *FakeTemplateRepo {
	return &FakeTemplateRepo{hooks: make(map[string][]hooks.TemplateHook)}
}

func (r *FakeTemplateRepo) Upsert(_ context.Context, hook *hooks.TemplateHook) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	list := r.hooks[hook.TenantID]
	for i := range list {
		if list[i].ID == hook.ID {
			list[i] = *hook
			return nil
		}
	}
	r.hooks[hook.TenantID] = append(list, *hook)
	return nil
}

func (r *FakeTemplateRepo) List(_ context.Context, tenantID string) ([]*hooks.TemplateHook, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	out := make([]*hooks.TemplateHook, 0, len(r.hooks[tenantID]))
	for _, h := range r.hooks[tenantID] {
		h := h
		out = append(out, &h)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}
