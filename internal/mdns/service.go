// Package mdns advertises the Tagmark HTTP API on the local network through
// the Avahi daemon, so clients can find the server without configuration.
package mdns

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/holoplot/go-avahi"
)

const (
	// ServiceType is the DNS-SD service type for Tagmark servers.
	ServiceType = "_tagmark._tcp"

	// APIVersion is the API version advertised in TXT records.
	APIVersion = "v1"
)

// Advertisement describes what is published.
type Advertisement struct {
	// Name is the instance name; empty uses the hostname.
	Name    string
	Version string
	Port    int
}

// TXT returns the TXT record strings for the advertisement.
func (a Advertisement) TXT() []string {
	txt := []string{
		"api=" + APIVersion,
		"path=/api/v1",
	}
	if a.Version != "" {
		txt = append(txt, "version="+a.Version)
	}
	return txt
}

// publisher registers one service with a DNS-SD responder.
type publisher interface {
	Publish(name string, port uint16, txt []string) error
	Close() error
}

// Service manages mDNS advertisement. Failures are reported to the caller
// but are expected on hosts without Avahi (containers, macOS).
type Service struct {
	logger *slog.Logger
	dial   func() (publisher, error)

	mu  sync.Mutex
	pub publisher
}

// NewService creates a new mDNS service backed by the Avahi daemon.
func NewService(logger *slog.Logger) *Service {
	return &Service{
		logger: logger.With("component", "mdns"),
		dial:   dialAvahi,
	}
}

// Start publishes ad, replacing any previous advertisement.
func (s *Service) Start(ad Advertisement) error {
	if ad.Port <= 0 || ad.Port > 65535 {
		return fmt.Errorf("invalid port %d", ad.Port)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pub != nil {
		_ = s.pub.Close()
		s.pub = nil
	}

	name := ad.Name
	if name == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "tagmark"
		}
		name = "Tagmark on " + host
	}

	pub, err := s.dial()
	if err != nil {
		return fmt.Errorf("connect to avahi: %w", err)
	}
	if err := pub.Publish(name, uint16(ad.Port), ad.TXT()); err != nil {
		_ = pub.Close()
		return fmt.Errorf("publish service: %w", err)
	}
	s.pub = pub

	s.logger.Info("mDNS advertisement started",
		"service", ServiceType,
		"name", name,
		"port", ad.Port,
	)
	return nil
}

// Stop withdraws the advertisement. Safe to call multiple times or if not
// started.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pub != nil {
		if err := s.pub.Close(); err != nil {
			s.logger.Warn("mDNS shutdown failed", "error", err)
		}
		s.pub = nil
		s.logger.Info("mDNS advertisement stopped")
	}
}

// avahiPublisher publishes through the Avahi daemon on the system bus.
type avahiPublisher struct {
	conn   *dbus.Conn
	server *avahi.Server
	group  *avahi.EntryGroup
}

func dialAvahi() (publisher, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, err
	}

	server, err := avahi.ServerNew(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &avahiPublisher{conn: conn, server: server}, nil
}

func (p *avahiPublisher) Publish(name string, port uint16, txt []string) error {
	group, err := p.server.EntryGroupNew()
	if err != nil {
		return err
	}
	p.group = group

	records := make([][]byte, 0, len(txt))
	for _, t := range txt {
		records = append(records, []byte(t))
	}

	if err := group.AddService(
		avahi.InterfaceUnspec,
		avahi.ProtoUnspec,
		0,
		name,
		ServiceType,
		"local",
		"",
		port,
		records,
	); err != nil {
		return err
	}
	return group.Commit()
}

func (p *avahiPublisher) Close() error {
	if p.group != nil {
		p.server.EntryGroupFree(p.group)
		p.group = nil
	}
	p.server.Close()
	return p.conn.Close()
}
