//go:build !windows

package main

// NewSimConnectAdapter returns nil on platforms without SimConnect;
// callers fall back to the X-Plane adapter.
func NewSimConnectAdapter() SimConnector {
	return nil
}
