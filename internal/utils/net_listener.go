package utils

import (
	"fmt"
	"net"
)

// NewListener создаёт TCP listener для metrics endpoint.
func NewListener(bindTo string) (net.Listener, error) {
	listener, err := net.Listen("tcp", bindTo)
	if err != nil {
		return nil, fmt.Errorf("cannot build a base listener: %w", err)
	}

	return listener, nil
}
