// Package netio provides TCP socket plumbing for vehicle port connections.
//
// Linux-specific implementation uses golang.org/x/sys/unix to arm keepalive
// probes and TCP_USER_TIMEOUT so half-dead vehicle links fail within a
// bounded window instead of lingering in the kernel's default retransmission
// cycle.
package netio
