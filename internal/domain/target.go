package domain

import (
	"fmt"
	"strings"
)

type TargetMode string

const (
	TargetModeDevices    TargetMode = "devices"
	TargetModeThingGroup TargetMode = "thing_group"
)

func ParseTargetMode(raw string) (TargetMode, error) {
	switch TargetMode(strings.ToLower(strings.TrimSpace(raw))) {
	case TargetModeDevices:
		return TargetModeDevices, nil
	case TargetModeThingGroup, "thinggroup", "group":
		return TargetModeThingGroup, nil
	default:
		return "", fmt.Errorf("%w: target mode must be devices or thing_group (got %q)", ErrInvalidArgument, raw)
	}
}

// Target is the destination of a deployment. The only implementations are
// DevicesTarget and ThingGroupTarget; callers switch on the concrete type.
type Target interface {
	Mode() TargetMode
	isTarget()
}

// DevicesTarget addresses an explicit, non-empty list of devices.
type DevicesTarget struct {
	DeviceIDs []string
}

// ThingGroupTarget addresses every device of a named group.
type ThingGroupTarget struct {
	Name string
}

func (DevicesTarget) Mode() TargetMode    { return TargetModeDevices }
func (ThingGroupTarget) Mode() TargetMode { return TargetModeThingGroup }

func (DevicesTarget) isTarget()    {}
func (ThingGroupTarget) isTarget() {}

// NewDevicesTarget trims and deduplicates ids, keeping first-seen order.
func NewDevicesTarget(ids []string) (DevicesTarget, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return DevicesTarget{}, fmt.Errorf("%w: at least one device is required", ErrInvalidArgument)
	}
	return DevicesTarget{DeviceIDs: out}, nil
}

func NewThingGroupTarget(name string) (ThingGroupTarget, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ThingGroupTarget{}, fmt.Errorf("%w: thing group name is required", ErrInvalidArgument)
	}
	return ThingGroupTarget{Name: name}, nil
}

// DescribeTarget renders a target for logs and audit payloads.
func DescribeTarget(t Target) string {
	switch v := t.(type) {
	case DevicesTarget:
		return fmt.Sprintf("devices(%d)", len(v.DeviceIDs))
	case ThingGroupTarget:
		return "thing_group(" + v.Name + ")"
	default:
		return "none"
	}
}
