// Package registry exposes the DLP registry the reward core reads eligibility and
// token/position bindings from.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/elys-network/dlprewards/internal/types"
)

var (
	ErrDlpNotFound = errors.New("dlp not found")
	ErrInvalidDlp  = errors.New("invalid dlp")
)

// Registry resolves a DLP id to its registry record.
type Registry interface {
	Dlp(ctx context.Context, id types.DlpID) (types.DlpInfo, error)
}

// MemRegistry is an in-memory registry seeded at startup.
type MemRegistry struct {
	mu   sync.RWMutex
	dlps map[types.DlpID]types.DlpInfo
}

func NewMemRegistry() *MemRegistry {
	return &MemRegistry{dlps: make(map[types.DlpID]types.DlpInfo)}
}

// Register adds or replaces a DLP record.
func (r *MemRegistry) Register(info types.DlpInfo) error {
	if info.ID == 0 {
		return fmt.Errorf("%w: id must be non-zero", ErrInvalidDlp)
	}
	if info.Status == "" {
		info.Status = types.DlpStatusRegistered
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dlps[info.ID] = info
	return nil
}

// SetStatus changes the status of a registered DLP.
func (r *MemRegistry) SetStatus(id types.DlpID, status types.DlpStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.dlps[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrDlpNotFound, id)
	}
	info.Status = status
	r.dlps[id] = info
	return nil
}

func (r *MemRegistry) Dlp(_ context.Context, id types.DlpID) (types.DlpInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.dlps[id]
	if !ok {
		return types.DlpInfo{}, fmt.Errorf("%w: %d", ErrDlpNotFound, id)
	}
	return info, nil
}

// All returns every registered DLP ordered by id.
func (r *MemRegistry) All() []types.DlpInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.DlpInfo, 0, len(r.dlps))
	for _, info := range r.dlps {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
