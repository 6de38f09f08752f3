// Package bridge connects the fleet plane to the vehicle plane. It
// subscribes to the VDA 5050 downlink topics, translates orders and instant
// actions into vendor packets, buffers translated vehicle state, and drives
// the periodic uplink publishers.
//
// The Supervisor is the package entry point. It owns the broker
// subscriptions and the publish schedule; the vehicle port sessions belong
// to the seer Manager it is handed at construction.
package bridge
