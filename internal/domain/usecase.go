package domain

import "strings"

type UseCase struct {
	UseCaseID string
	Name      string
	AccountID string
}

type Device struct {
	DeviceID string
	Status   string
	Platform string
}

// Online reports whether the device status means it is reachable.
func (d Device) Online() bool {
	switch strings.ToLower(strings.TrimSpace(d.Status)) {
	case "online", "healthy", "connected", "running":
		return true
	default:
		return false
	}
}

type DeviceList struct {
	Devices []Device
	Count   int
}

// UseCaseDevices is the outcome of one per-use-case fetch in fleet mode.
type UseCaseDevices struct {
	UseCaseID     string `json:"usecase_id" yaml:"usecase_id"`
	DeviceCount   int    `json:"device_count" yaml:"device_count"`
	OnlineDevices int    `json:"online_devices" yaml:"online_devices"`
}

// FleetSummary sums device counts across use cases. Failed lists the use
// cases whose fetch did not succeed; they are excluded from the totals.
type FleetSummary struct {
	UseCases      []UseCaseDevices `json:"usecases" yaml:"usecases"`
	DeviceCount   int              `json:"device_count" yaml:"device_count"`
	OnlineDevices int              `json:"online_devices" yaml:"online_devices"`
	Failed        []string         `json:"failed,omitempty" yaml:"failed,omitempty"`
}
