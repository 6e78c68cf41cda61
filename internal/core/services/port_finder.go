package services

import (
	"fmt"
	"net"
	"strconv"
)

// FindAvailablePort finds a free TCP port on host in [startPort, endPort].
// An empty host means loopback.
func FindAvailablePort(host string, startPort, endPort int) (int, error) {
	if host == "" {
		host = "127.0.0.1"
	}
	for port := startPort; port <= endPort; port++ {
		listener, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err == nil {
			listener.Close()
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available port in range %d-%d", startPort, endPort)
}

// ResolveListenAddr returns addr unchanged when its port is free, or the
// same host with the next free port within span ports.
func ResolveListenAddr(addr string, span int) (string, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", fmt.Errorf("invalid port in %q: %w", addr, err)
	}
	if port == 0 {
		return addr, nil
	}
	probe := host
	if probe == "" {
		probe = "0.0.0.0"
	}
	free, err := FindAvailablePort(probe, port, port+max(span, 0))
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(host, strconv.Itoa(free)), nil
}
