package bridge

import (
	"time"

	"github.com/dantte-lp/vdabridge/internal/seer"
)

// -------------------------------------------------------------------------
// Operator Status
// -------------------------------------------------------------------------

// VehicleStatus is the operator-facing view of one vehicle, served by the
// admin API.
type VehicleStatus struct {
	Serial       string       `json:"serial"`
	Nickname     string       `json:"nickname,omitempty"`
	Manufacturer string       `json:"manufacturer,omitempty"`
	Host         string       `json:"host,omitempty"`
	Online       bool         `json:"online"`
	Failed       bool         `json:"failed"`
	Connection   string       `json:"connection,omitempty"`
	LastStateAt  time.Time    `json:"lastStateAt,omitzero"`
	Ports        []PortStatus `json:"ports"`
}

// PortStatus is the operator-facing view of one vehicle port session.
type PortStatus struct {
	Role           string    `json:"role"`
	Address        string    `json:"address"`
	State          string    `json:"state"`
	FramesSent     uint64    `json:"framesSent"`
	FramesReceived uint64    `json:"framesReceived"`
	LastFrameAt    time.Time `json:"lastFrameAt,omitzero"`
}

// VehicleStatuses returns the status of every registered vehicle, sorted
// by serial.
func (s *Supervisor) VehicleStatuses() []VehicleStatus {
	snaps := s.manager.Vehicles()
	out := make([]VehicleStatus, 0, len(snaps))
	for _, vs := range snaps {
		out = append(out, s.vehicleStatus(vs))
	}
	return out
}

// VehicleStatusFor returns the status of one vehicle.
func (s *Supervisor) VehicleStatusFor(serial string) (VehicleStatus, bool) {
	vs, ok := s.manager.Vehicle(serial)
	if !ok {
		return VehicleStatus{}, false
	}
	return s.vehicleStatus(vs), true
}

// vehicleStatus merges the manager snapshot with the descriptor and the
// cached fleet-plane view.
func (s *Supervisor) vehicleStatus(vs seer.VehicleSnapshot) VehicleStatus {
	st := VehicleStatus{
		Serial:   vs.Serial,
		Nickname: vs.Nickname,
		Online:   vs.Online,
		Failed:   vs.Failed,
		Ports:    make([]PortStatus, 0, len(vs.Ports)),
	}
	if d, ok := s.descriptor(vs.Serial); ok {
		st.Manufacturer = d.RobotInfo.Manufacturer
		st.Host = d.Network.IPAddress
	}
	if snap, ok := s.cache.Snapshot(vs.Serial); ok {
		st.Connection = string(snap.Connection)
		st.LastStateAt = snap.ReceivedAt
	}
	for _, p := range vs.Ports {
		st.Ports = append(st.Ports, PortStatus{
			Role:           p.Role.String(),
			Address:        p.Address,
			State:          p.State.String(),
			FramesSent:     p.FramesSent,
			FramesReceived: p.FramesReceived,
			LastFrameAt:    p.LastFrameReceived,
		})
	}
	return st
}
