// Package netx provides a TCP listener whose connections count the bytes
// they move, so that HTTP handlers can report per-connection totals.
package netx
