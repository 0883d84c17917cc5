// Package device resolves the -device flag. Requests for an absent
// accelerator degrade to the default compute path instead of failing.
package device

import (
	"strings"

	"github.com/openfluke/loom/gpu"
)

// Selection is the outcome of resolving a device request. The decision
// network's own kernels run on CPU; UseGPU only applies to loom-run
// networks (the feature baseline), which honor the adapter preference.
type Selection struct {
	Requested string
	Active    string
	UseGPU    bool
	Note      string
}

// Select parses a device spec: "cpu", "gpu", or "gpu:<adapter substring>"
// (e.g. "gpu:nvidia").
func Select(spec string) Selection {
	requested := strings.ToLower(strings.TrimSpace(spec))
	if requested == "" {
		requested = "cpu"
	}
	sel := Selection{Requested: requested, Active: "cpu"}

	switch {
	case requested == "cpu":
	case requested == "gpu" || strings.HasPrefix(requested, "gpu:"):
		if adapter := strings.TrimPrefix(requested, "gpu:"); adapter != "" && adapter != "gpu" {
			gpu.SetAdapterPreference(adapter)
		}
		sel.UseGPU = true
		sel.Note = "decision network kernels run on CPU; GPU preference applies to loom-run networks"
	default:
		sel.Note = "unknown device " + requested + ", falling back to cpu"
	}
	return sel
}
