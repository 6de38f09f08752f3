package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yamlv3 "gopkg.in/yaml.v3"
)

// -------------------------------------------------------------------------
// Robot Descriptors
// -------------------------------------------------------------------------
//
// Each robot is described by one YAML file in the fleet directory. The
// files are plain data records, decoded directly with yaml.v3 rather than
// layered through koanf: there is nothing to merge or override per file.

// RobotDescriptor mirrors one fleet YAML file.
type RobotDescriptor struct {
	RobotInfo        RobotInfo         `yaml:"robot_info"`
	Network          NetworkInfo       `yaml:"network"`
	ProtocolAdapters ProtocolAdapters  `yaml:"protocol_adapters"`
	VDA5050          VDA5050Info       `yaml:"vda5050"`
	PublishIntervals *PublishIntervals `yaml:"publish_intervals"`
}

// RobotInfo identifies the robot and carries its factsheet blocks.
type RobotInfo struct {
	// SerialNumber is the unique robot identifier. When absent, the
	// descriptor file stem is used.
	SerialNumber string `yaml:"serial_number"`

	// Manufacturer appears in every VDA topic for this robot.
	Manufacturer string `yaml:"manufacturer"`

	// Nickname overrides the fleet-wide authority claim identity.
	Nickname string `yaml:"nickname"`

	// Optional factsheet source blocks.
	TypeSpecification  *TypeSpecification  `yaml:"type_specification"`
	PhysicalParameters *PhysicalParameters `yaml:"physical_parameters"`
	AGVGeometry        map[string]any      `yaml:"agv_geometry"`
	LoadSpecification  map[string]any      `yaml:"load_specification"`
}

// TypeSpecification describes the robot series for the factsheet.
type TypeSpecification struct {
	SeriesName        string   `yaml:"series_name"`
	SeriesDescription string   `yaml:"series_description"`
	AGVKinematic      string   `yaml:"agv_kinematic"`
	AGVClass          string   `yaml:"agv_class"`
	MaxLoadMass       float64  `yaml:"max_load_mass"`
	LocalizationTypes []string `yaml:"localization_types"`
	NavigationTypes   []string `yaml:"navigation_types"`
}

// PhysicalParameters describes the robot envelope for the factsheet.
type PhysicalParameters struct {
	SpeedMin        float64 `yaml:"speed_min"`
	SpeedMax        float64 `yaml:"speed_max"`
	AccelerationMax float64 `yaml:"acceleration_max"`
	DecelerationMax float64 `yaml:"deceleration_max"`
	HeightMin       float64 `yaml:"height_min"`
	HeightMax       float64 `yaml:"height_max"`
	Width           float64 `yaml:"width"`
	Length          float64 `yaml:"length"`
}

// NetworkInfo holds the robot's address.
type NetworkInfo struct {
	IPAddress string `yaml:"ip_address"`
}

// ProtocolAdapters holds per-vendor protocol settings. Only the seer
// adapter is implemented.
type ProtocolAdapters struct {
	Seer SeerAdapter `yaml:"seer"`
}

// SeerAdapter holds the vendor TCP port assignments.
type SeerAdapter struct {
	TCPPorts TCPPorts `yaml:"tcp_ports"`
}

// TCPPorts maps the five port roles to TCP port numbers. Every robot
// assigns its own numbers; there are no defaults.
type TCPPorts struct {
	StateReporting uint16              `yaml:"state_reporting"`
	CommandControl CommandControlPorts `yaml:"command_control"`
}

// CommandControlPorts holds the four command port numbers.
type CommandControlPorts struct {
	Relocation uint16 `yaml:"relocation"`
	Movement   uint16 `yaml:"movement"`
	Authority  uint16 `yaml:"authority"`
	Safety     uint16 `yaml:"safety"`
}

// VDA5050Info holds protocol-level factsheet blocks.
type VDA5050Info struct {
	ProtocolVersion  string         `yaml:"protocol_version"`
	ProtocolLimits   map[string]any `yaml:"protocol_limits"`
	ProtocolFeatures map[string]any `yaml:"protocol_features"`
}

// PublishIntervals overrides the daemon-wide publish cadence for one
// robot. Zero fields keep the daemon default.
type PublishIntervals struct {
	StateMs         int `yaml:"state_ms"`
	VisualizationMs int `yaml:"visualization_ms"`
	ConnectionMs    int `yaml:"connection_ms"`
	FactsheetMs     int `yaml:"factsheet_ms"`
}

// Serial returns the effective robot serial.
func (d RobotDescriptor) Serial() string {
	return d.RobotInfo.SerialNumber
}

// Intervals resolves the robot's publish cadence against the daemon
// defaults.
func (d RobotDescriptor) Intervals(defaults IntervalsConfig) IntervalsConfig {
	out := defaults
	if d.PublishIntervals == nil {
		return out
	}
	if ms := d.PublishIntervals.StateMs; ms > 0 {
		out.State = time.Duration(ms) * time.Millisecond
	}
	if ms := d.PublishIntervals.VisualizationMs; ms > 0 {
		out.Visualization = time.Duration(ms) * time.Millisecond
	}
	if ms := d.PublishIntervals.ConnectionMs; ms > 0 {
		out.Connection = time.Duration(ms) * time.Millisecond
	}
	if ms := d.PublishIntervals.FactsheetMs; ms > 0 {
		out.Factsheet = time.Duration(ms) * time.Millisecond
	}
	return out
}

// -------------------------------------------------------------------------
// Fleet Loader
// -------------------------------------------------------------------------

// Fleet load errors.
var (
	// ErrNoIPAddress indicates a descriptor without network.ip_address.
	ErrNoIPAddress = errors.New("network.ip_address must be set")

	// ErrNoManufacturer indicates a descriptor without a manufacturer.
	ErrNoManufacturer = errors.New("robot_info.manufacturer must be set")

	// ErrMissingPort indicates a descriptor missing one of the five
	// port role numbers.
	ErrMissingPort = errors.New("all five port roles need a TCP port")

	// ErrDuplicateSerial indicates two descriptors resolve to the same
	// serial.
	ErrDuplicateSerial = errors.New("duplicate robot serial")
)

// LoadFleet reads every YAML descriptor in dir, sorted by file name.
// A malformed descriptor fails the whole load; the bridge must not start
// with a partial view of the fleet. An empty directory yields an empty
// fleet, which is valid.
func LoadFleet(dir string) ([]RobotDescriptor, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read fleet dir: %w", err)
	}

	var fleet []RobotDescriptor
	seen := make(map[string]string)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		d, err := LoadDescriptor(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}

		serial := d.Serial()
		if prev, dup := seen[serial]; dup {
			return nil, fmt.Errorf("descriptor %s: serial %q already defined by %s: %w",
				name, serial, prev, ErrDuplicateSerial)
		}
		seen[serial] = name

		fleet = append(fleet, d)
	}

	return fleet, nil
}

// LoadDescriptor reads and validates one YAML descriptor file. A missing
// serial_number falls back to the file stem.
func LoadDescriptor(path string) (RobotDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RobotDescriptor{}, fmt.Errorf("read descriptor %s: %w", path, err)
	}

	var d RobotDescriptor
	if err := yamlv3.Unmarshal(data, &d); err != nil {
		return RobotDescriptor{}, fmt.Errorf("parse descriptor %s: %w", path, err)
	}

	if d.RobotInfo.SerialNumber == "" {
		name := filepath.Base(path)
		d.RobotInfo.SerialNumber = strings.TrimSuffix(name, filepath.Ext(name))
	}

	if err := validateDescriptor(d); err != nil {
		return RobotDescriptor{}, fmt.Errorf("descriptor %s: %w", path, err)
	}

	return d, nil
}

// validateDescriptor checks the mandatory descriptor fields.
func validateDescriptor(d RobotDescriptor) error {
	if d.Network.IPAddress == "" {
		return ErrNoIPAddress
	}
	if d.RobotInfo.Manufacturer == "" {
		return ErrNoManufacturer
	}

	ports := d.ProtocolAdapters.Seer.TCPPorts
	if ports.StateReporting == 0 ||
		ports.CommandControl.Relocation == 0 ||
		ports.CommandControl.Movement == 0 ||
		ports.CommandControl.Authority == 0 ||
		ports.CommandControl.Safety == 0 {
		return ErrMissingPort
	}

	return nil
}
