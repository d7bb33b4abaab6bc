// Package registry holds the JobRegistry (job aggregate store with the
// single-active-job guard and bounded history) and the DeviceInventory
// (atomically-replaced device profile store).
package registry

import (
	"sync"

	"github.com/icecake0141/nwrunner/pkg/models"
)

// DeviceInventory is the atomic-replace store of imported DeviceProfiles,
// keyed by DeviceKey. Re-import replaces the whole map at once so readers
// never observe a partial import (spec.md §2 lifecycle note).
type DeviceInventory struct {
	mu       sync.RWMutex
	profiles map[string]models.DeviceProfile
}

// NewDeviceInventory returns an empty inventory.
func NewDeviceInventory() *DeviceInventory {
	return &DeviceInventory{profiles: make(map[string]models.DeviceProfile)}
}

// Replace swaps in a whole new profile set atomically.
func (inv *DeviceInventory) Replace(profiles []models.DeviceProfile) {
	next := make(map[string]models.DeviceProfile, len(profiles))
	for _, p := range profiles {
		next[p.DeviceKey()] = p
	}

	inv.mu.Lock()
	inv.profiles = next
	inv.mu.Unlock()
}

// Get returns the profile for key and whether it exists.
func (inv *DeviceInventory) Get(key string) (models.DeviceProfile, bool) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	p, ok := inv.profiles[key]
	return p, ok
}

// List returns a snapshot copy of all profiles, in no particular order.
func (inv *DeviceInventory) List() []models.DeviceProfile {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	out := make([]models.DeviceProfile, 0, len(inv.profiles))
	for _, p := range inv.profiles {
		out = append(out, p)
	}

	return out
}

// Len reports the current profile count.
func (inv *DeviceInventory) Len() int {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	return len(inv.profiles)
}
