package orchestration

import (
	"strings"

	"github.com/edgecv/fleet-console/internal/domain"
)

// TargetResolver keeps the values of both target modes so a user can switch
// back and forth; only the active mode is read by Resolve.
type TargetResolver struct {
	mode       domain.TargetMode
	devices    []string
	thingGroup string
}

func NewTargetResolver() TargetResolver {
	return TargetResolver{mode: domain.TargetModeDevices}
}

func (t *TargetResolver) Mode() domain.TargetMode {
	if t.mode == "" {
		return domain.TargetModeDevices
	}
	return t.mode
}

func (t *TargetResolver) SetMode(mode domain.TargetMode) {
	t.mode = mode
}

// SetDevices replaces the device set. Blank and repeated ids are dropped.
func (t *TargetResolver) SetDevices(ids []string) {
	t.devices = nil
	for _, id := range ids {
		t.AddDevice(id)
	}
}

func (t *TargetResolver) AddDevice(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	for _, existing := range t.devices {
		if existing == id {
			return false
		}
	}
	t.devices = append(t.devices, id)
	return true
}

func (t *TargetResolver) RemoveDevice(id string) bool {
	for i, existing := range t.devices {
		if existing == id {
			t.devices = append(t.devices[:i:i], t.devices[i+1:]...)
			return true
		}
	}
	return false
}

func (t *TargetResolver) Devices() []string {
	out := make([]string, len(t.devices))
	copy(out, t.devices)
	return out
}

// SetThingGroup stores the raw text; trimming happens in Resolve.
func (t *TargetResolver) SetThingGroup(name string) {
	t.thingGroup = name
}

func (t *TargetResolver) ThingGroup() string {
	return t.thingGroup
}

// Resolve builds the target of the active mode or reports why it cannot.
func (t *TargetResolver) Resolve() (domain.Target, error) {
	switch t.Mode() {
	case domain.TargetModeDevices:
		target, err := domain.NewDevicesTarget(t.devices)
		if err != nil {
			return nil, invalid("target_devices", "select at least one device")
		}
		return target, nil
	case domain.TargetModeThingGroup:
		target, err := domain.NewThingGroupTarget(t.thingGroup)
		if err != nil {
			return nil, invalid("target_thing_group", "enter a thing group name")
		}
		return target, nil
	default:
		return nil, invalid("target_mode", "unsupported target mode "+string(t.mode))
	}
}
