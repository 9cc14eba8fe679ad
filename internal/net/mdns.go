package net

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

const serviceType = "_sharedsketch._tcp"

// Service is a host found on the local network.
type Service struct {
	Name string
	Addr string
}

// Advertise announces a host on the local network until the returned
// server is shut down.
func Advertise(device string, port int) (*mdns.Server, error) {
	host := device
	if host == "" {
		host = "sketch"
	}
	info := []string{"SharedSketch", "device=" + device}

	service, err := mdns.NewMDNSService(host, serviceType, "", "", port, nil, info)
	if err != nil {
		return nil, fmt.Errorf("net: mdns service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("net: mdns server: %w", err)
	}
	return server, nil
}

// Browse looks for hosts for up to timeout and calls found for each one.
func Browse(ctx context.Context, timeout time.Duration, found func(Service)) error {
	entries := make(chan *mdns.ServiceEntry, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			if s, ok := serviceOf(e); ok {
				found(s)
			}
		}
	}()

	params := mdns.DefaultParams(serviceType)
	params.Entries = entries
	params.Timeout = timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < params.Timeout {
			params.Timeout = left
		}
	}
	err := mdns.Query(params)
	close(entries)
	<-done
	if err != nil {
		return fmt.Errorf("net: mdns query: %w", err)
	}
	return ctx.Err()
}

// FirstHost browses until one host answers.
func FirstHost(ctx context.Context, timeout time.Duration) (Service, error) {
	var first *Service
	err := Browse(ctx, timeout, func(s Service) {
		if first == nil {
			first = &s
		}
	})
	if err != nil {
		return Service{}, err
	}
	if first == nil {
		return Service{}, fmt.Errorf("net: no host found within %s", timeout)
	}
	return *first, nil
}

func serviceOf(e *mdns.ServiceEntry) (Service, bool) {
	if e == nil || e.AddrV4 == nil || e.Port == 0 {
		return Service{}, false
	}
	name := e.Name
	for _, f := range e.InfoFields {
		if v, ok := strings.CutPrefix(f, "device="); ok && v != "" {
			name = v
		}
	}
	return Service{
		Name: name,
		Addr: net.JoinHostPort(e.AddrV4.String(), strconv.Itoa(e.Port)),
	}, true
}
