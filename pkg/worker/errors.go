package worker

import "strings"

// errorPatterns are the known device error markers scanned for in
// apply_output (spec.md §4.5 point 4).
var errorPatterns = []string{
	"% Invalid input",
	"Invalid input detected",
	"Error:",
	"Ambiguous command",
	"Incomplete command",
}

// detectCommandError returns the first known error pattern present in
// output, or "" if none match.
func detectCommandError(output string) string {
	for _, p := range errorPatterns {
		if strings.Contains(output, p) {
			return p
		}
	}

	return ""
}

// disablePagingCommands maps a device_type to the command that disables
// terminal paging before verify/apply, so multi-page show output doesn't
// truncate. Supplemented from the original implementation's predecessor
// behavior (original_source/backend_v2 .../netmiko_device_worker.py relies
// on Netmiko's driver-specific paging handling internally); unknown types
// get no paging command, matching the original's silent fallback.
var disablePagingCommands = map[string]string{
	"cisco_ios":   "terminal length 0",
	"cisco_xe":    "terminal length 0",
	"cisco_nxos":  "terminal length 0",
	"cisco_asa":   "terminal pager 0",
	"juniper_junos": "set cli screen-length 0",
	"arista_eos":  "terminal length 0",
	"hp_comware":  "screen-length disable",
}

func pagingCommandFor(deviceType string) string {
	return disablePagingCommands[deviceType]
}
