// Package discovery advertises a running prediction server on the local network over mDNS.
package discovery

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/hashicorp/mdns"
)

// ServiceType is the DNS-SD service type of the prediction API.
const ServiceType = "_tocsin._tcp"

var errInvalidPort = errors.New("port must be positive")

// Config describes what to advertise.
type Config struct {
	// Instance is the service instance name (default: the host name).
	Instance string
	// Port is the TCP port the API listens on.
	Port int
	// Info becomes the TXT record, as key=value strings.
	Info []string
	// IPs overrides the advertised addresses. Empty means all non loopback IPv4 addresses.
	IPs []net.IP
}

// Advertisement is a running mDNS responder.
type Advertisement struct {
	server *mdns.Server
	once   sync.Once
}

// Service builds the zone record for cfg without starting a responder.
func Service(cfg Config) (*mdns.MDNSService, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("%w: %d", errInvalidPort, cfg.Port)
	}

	ips := cfg.IPs
	if len(ips) == 0 {
		var err error

		ips, err = localIPs()
		if err != nil {
			return nil, fmt.Errorf("listing local addresses: %w", err)
		}
	}

	instance := cfg.Instance
	if instance == "" {
		instance = "tocsin"
	}

	service, err := mdns.NewMDNSService(instance, ServiceType, "", "", cfg.Port, ips, cfg.Info)
	if err != nil {
		return nil, fmt.Errorf("creating mdns service: %w", err)
	}

	return service, nil
}

// Advertise starts answering mDNS queries for cfg until Shutdown.
func Advertise(cfg Config) (*Advertisement, error) {
	service, err := Service(cfg)
	if err != nil {
		return nil, err
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("starting mdns responder: %w", err)
	}

	slog.Info("discovery: advertising", "instance", service.Instance, "service", ServiceType, "port", cfg.Port)

	return &Advertisement{server: server}, nil
}

// Shutdown stops the responder. It is safe to call more than once.
func (a *Advertisement) Shutdown() error {
	var err error

	a.once.Do(func() {
		err = a.server.Shutdown()
	})

	return err
}

// Port extracts the TCP port of a listener address.
func Port(addr net.Addr) int {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.Port
	}

	return 0
}

func localIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}

	return ips, nil
}
