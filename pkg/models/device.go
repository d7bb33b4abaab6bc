// Package models defines the domain types shared across nwrunner: device
// targets and profiles, job records, device results, and execution events.
package models

import "fmt"

// DeviceTarget is the stable (host, port) identity of a device. It is an
// immutable value; never mutate a DeviceKey's backing fields after it has
// been used as a map key.
type DeviceTarget struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// DeviceKey returns the stable "host:port" identifier used for map keys and
// ExecutionEvent.Device fields.
func (t DeviceTarget) DeviceKey() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// DeviceProfile is a DeviceTarget plus the connection parameters and verify
// commands produced by the CSV importer and consumed by the worker. It is
// shared read-only with workers by key lookup; it is replaced atomically on
// re-import.
type DeviceProfile struct {
	DeviceTarget
	DeviceType      string   `json:"device_type"`
	Username        string   `json:"username"`
	Password        string   `json:"password"`
	Name            string   `json:"name,omitempty"`
	VerifyCmds      []string `json:"verify_cmds,omitempty"`
	ConnectionOK    bool     `json:"connection_ok"`
	ErrorMessage    string   `json:"error_message,omitempty"`
}

// DeviceParams is the frozen snapshot of a device's connection parameters
// and effective verify commands, captured into a JobRecord at creation
// time. It never changes after the job is created, even if the live
// DeviceInventory is replaced (spec.md §3 invariant).
type DeviceParams struct {
	DeviceTarget
	DeviceType string   `json:"device_type"`
	Username   string   `json:"username"`
	Password   string   `json:"password"`
	Name       string   `json:"name,omitempty"`
	VerifyCmds []string `json:"verify_cmds,omitempty"`
}

// SnapshotDeviceParams builds a DeviceParams snapshot from a DeviceProfile,
// applying a job-level verify_cmds override when one is supplied (an empty
// override leaves the profile's own verify commands in place).
func SnapshotDeviceParams(p DeviceProfile, verifyOverride []string) DeviceParams {
	cmds := p.VerifyCmds
	if len(verifyOverride) > 0 {
		cmds = append([]string(nil), verifyOverride...)
	} else if cmds != nil {
		cmds = append([]string(nil), cmds...)
	}

	return DeviceParams{
		DeviceTarget: p.DeviceTarget,
		DeviceType:   p.DeviceType,
		Username:     p.Username,
		Password:     p.Password,
		Name:         p.Name,
		VerifyCmds:   cmds,
	}
}
