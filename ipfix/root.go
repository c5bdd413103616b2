// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package ipfix simulates IPFIX and NetFlow v9 exporters. Each client
// is an observation domain with its own generators and its own
// collector. Clients are defined by a profile and can be controlled
// through an HTTP API.
package ipfix

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/benbjohnson/clock"

	"ipfixgen/common/helpers"
	"ipfixgen/common/httpserver"
	"ipfixgen/common/reporter"
	"ipfixgen/ipfix/domain"
	"ipfixgen/ipfix/generator"
	"ipfixgen/ipfix/template"
	"ipfixgen/ipfix/transport"
)

// PushClient is the name under which the sessions of the push job
// are reported.
const PushClient = "push"

var (
	// ErrValidation is returned when a definition is malformed.
	ErrValidation = template.ErrValidation
	// ErrUnsupportedFieldKind is returned when a field cannot be
	// encoded with the requested version.
	ErrUnsupportedFieldKind = template.ErrUnsupportedFieldKind
	// ErrTransport is returned when an exporter cannot be created.
	ErrTransport = transport.ErrTransport
	// ErrConfigLoad is returned when a profile cannot be loaded.
	ErrConfigLoad = errors.New("cannot load configuration")
	// ErrUnknownClient is returned when a client does not exist.
	ErrUnknownClient = errors.New("unknown client")
	// ErrUnknownGenerator is returned when a generator does not exist.
	ErrUnknownGenerator = errors.New("unknown generator")
)

// Component represents the IPFIX component.
type Component struct {
	r      *reporter.Reporter
	d      *Dependencies
	config Configuration

	clientsLock sync.Mutex
	clients     map[string]*domain.Domain
	order       []string
	push        *PushJob
	seeds       int64
}

// Dependencies define the dependencies of the IPFIX component.
type Dependencies struct {
	HTTP  *httpserver.Component
	Clock clock.Clock
}

// New creates a new IPFIX component.
func New(r *reporter.Reporter, configuration Configuration, dependencies Dependencies) (*Component, error) {
	if err := helpers.Validate.Struct(configuration); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if dependencies.Clock == nil {
		dependencies.Clock = clock.New()
	}
	c := Component{
		r:       r,
		d:       &dependencies,
		config:  configuration,
		clients: map[string]*domain.Domain{},
	}
	c.r.GaugeFunc(
		reporter.GaugeOpts{
			Name: "clients",
			Help: "Number of simulated clients.",
		},
		func() float64 {
			c.clientsLock.Lock()
			defer c.clientsLock.Unlock()
			return float64(len(c.clients))
		},
	)
	c.r.RegisterHealthcheck("ipfix", c.healthcheck)
	if c.d.HTTP != nil {
		c.registerHTTPHandlers()
	}
	return &c, nil
}

// Start starts the IPFIX component. The profile file is loaded if
// provided.
func (c *Component) Start() error {
	c.r.Info().Msg("starting IPFIX component")
	if c.config.ProfileFile == "" {
		return nil
	}
	if err := c.LoadProfileFile(c.config.ProfileFile); err != nil {
		return fmt.Errorf("cannot load profile %q: %w", c.config.ProfileFile, err)
	}
	return nil
}

// Stop stops all the clients and the push job.
func (c *Component) Stop() error {
	defer c.r.Info().Msg("IPFIX component stopped")
	c.r.Info().Msg("stopping IPFIX component")
	return c.RemoveProfile()
}

func (c *Component) healthcheck(_ context.Context) reporter.HealthcheckResult {
	c.clientsLock.Lock()
	defer c.clientsLock.Unlock()
	return reporter.HealthcheckResult{
		Status: reporter.HealthcheckOK,
		Reason: fmt.Sprintf("%d clients", len(c.clients)),
	}
}

// checkName rejects reserved client names.
func checkName(name string) error {
	if name == "" || name == PushClient {
		return fmt.Errorf("invalid client name %q: %w", name, ErrValidation)
	}
	return nil
}

// newDomain creates a new domain. Nothing is started.
func (c *Component) newDomain(name string, config domain.Configuration) (*domain.Domain, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	options := domain.Options{
		SchedulingInterval: c.config.SchedulingInterval,
		QueueSize:          c.config.QueueSize,
	}
	if c.config.Seed != 0 {
		c.seeds++
		options.Seed = c.config.Seed + c.seeds*1_000_000
	}
	return domain.New(c.r, name, config, options, domain.Dependencies{Clock: c.d.Clock})
}

// LoadProfile replaces the current clients by the ones of the
// profile. When one client cannot be created, the current clients are
// left untouched. Every client is checked before any exporter is
// created.
func (c *Component) LoadProfile(profile Profile) error {
	names := map[string]bool{}
	for _, client := range profile.Clients {
		if err := checkName(client.Name); err != nil {
			return err
		}
		if names[client.Name] {
			return fmt.Errorf("duplicate client %q: %w", client.Name, ErrValidation)
		}
		names[client.Name] = true
		if _, err := domain.Check(client.Name, client.Domain); err != nil {
			return err
		}
	}

	c.clientsLock.Lock()
	domains := []*domain.Domain{}
	for _, client := range profile.Clients {
		dom, err := c.newDomain(client.Name, client.Domain)
		if err != nil {
			c.clientsLock.Unlock()
			for _, other := range domains {
				other.Close()
			}
			return err
		}
		domains = append(domains, dom)
	}
	previous := c.detachClients()
	var err error
	for i, dom := range domains {
		if err = dom.Start(); err != nil {
			for _, other := range domains[i:] {
				other.Close()
			}
			err = fmt.Errorf("cannot start client %q: %w", dom.Name(), err)
			break
		}
		c.clients[dom.Name()] = dom
		c.order = append(c.order, dom.Name())
	}
	c.clientsLock.Unlock()

	if serr := stopClients(previous); serr != nil {
		c.r.Err(serr).Msg("cannot stop previous clients")
	}
	if err != nil {
		return err
	}
	c.r.Info().Int("clients", len(domains)).Msg("profile loaded")
	return nil
}

// LoadProfileFile loads the profile from the provided JSON file.
func (c *Component) LoadProfileFile(path string) error {
	profile, err := ReadProfileFile(path)
	if err != nil {
		return err
	}
	return c.LoadProfile(profile)
}

// RemoveProfile stops all the clients and the push job.
func (c *Component) RemoveProfile() error {
	c.clientsLock.Lock()
	previous := c.detachClients()
	push := c.push
	c.push = nil
	c.clientsLock.Unlock()

	errs := []error{stopClients(previous)}
	if push != nil {
		if err := push.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("cannot stop push job: %w", err))
		}
	}
	return errors.Join(errs...)
}

// detachClients removes all the clients and returns them in creation
// order. They are still running. clientsLock should be held.
func (c *Component) detachClients() []*domain.Domain {
	domains := make([]*domain.Domain, 0, len(c.order))
	for _, name := range c.order {
		domains = append(domains, c.clients[name])
	}
	c.clients = map[string]*domain.Domain{}
	c.order = nil
	return domains
}

// stopClients stops the provided clients. Queued packets are sent
// first, so this should not be called with clientsLock held.
func stopClients(domains []*domain.Domain) error {
	var errs []error
	for _, dom := range domains {
		if err := dom.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("cannot stop client %q: %w", dom.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// AddClient creates and starts a new client.
func (c *Component) AddClient(name string, config domain.Configuration) error {
	c.clientsLock.Lock()
	defer c.clientsLock.Unlock()
	if _, ok := c.clients[name]; ok {
		return fmt.Errorf("client %q already exists: %w", name, ErrValidation)
	}
	dom, err := c.newDomain(name, config)
	if err != nil {
		return err
	}
	if err := dom.Start(); err != nil {
		dom.Close()
		return fmt.Errorf("cannot start client %q: %w", name, err)
	}
	c.clients[name] = dom
	c.order = append(c.order, name)
	return nil
}

// RemoveClient stops and removes a client. Packets already queued are
// still sent.
func (c *Component) RemoveClient(name string) error {
	c.clientsLock.Lock()
	dom, ok := c.clients[name]
	if !ok {
		c.clientsLock.Unlock()
		return fmt.Errorf("%q: %w", name, ErrUnknownClient)
	}
	delete(c.clients, name)
	c.order = slices.DeleteFunc(c.order, func(n string) bool { return n == name })
	c.clientsLock.Unlock()
	return dom.Stop()
}

// Clients returns the names of the clients, in creation order.
func (c *Component) Clients() []string {
	c.clientsLock.Lock()
	defer c.clientsLock.Unlock()
	return append([]string{}, c.order...)
}

func (c *Component) client(name string) (*domain.Domain, error) {
	c.clientsLock.Lock()
	defer c.clientsLock.Unlock()
	dom, ok := c.clients[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownClient)
	}
	return dom, nil
}

func (c *Component) generator(client, name string) (*generator.Generator, error) {
	dom, err := c.client(client)
	if err != nil {
		return nil, err
	}
	g, ok := dom.Generator(name)
	if !ok {
		return nil, fmt.Errorf("%q for client %q: %w", name, client, ErrUnknownGenerator)
	}
	return g, nil
}

// EnableGenerator enables or disables a generator.
func (c *Component) EnableGenerator(client, name string, enable bool) error {
	g, err := c.generator(client, name)
	if err != nil {
		return err
	}
	g.Enable(enable)
	return nil
}

// SetGeneratorRate updates the rates of a generator. A null rate is
// left unchanged.
func (c *Component) SetGeneratorRate(client, name string, templateRate, dataRate float64) error {
	g, err := c.generator(client, name)
	if err != nil {
		return err
	}
	return g.SetRates(templateRate, dataRate)
}

// EnableClient enables or disables all the generators and the
// exporter of a client.
func (c *Component) EnableClient(client string, enable bool) error {
	dom, err := c.client(client)
	if err != nil {
		return err
	}
	dom.EnableAll(enable)
	dom.SetEnabled(enable)
	return nil
}

// Counters returns the counters of a client.
func (c *Component) Counters(client string) (domain.Counters, error) {
	dom, err := c.client(client)
	if err != nil {
		return domain.Counters{}, err
	}
	return dom.Counters(), nil
}

// ClearCounters resets the counters of a client.
func (c *Component) ClearCounters(client string) error {
	dom, err := c.client(client)
	if err != nil {
		return err
	}
	dom.ClearCounters()
	return nil
}

// GeneratorsInfo returns the state of the generators of a client.
func (c *Component) GeneratorsInfo(client string) (map[string]generator.Info, error) {
	dom, err := c.client(client)
	if err != nil {
		return nil, err
	}
	return dom.GeneratorsInfo(), nil
}

// ExporterInfo returns the exporter type and the last sessions of a
// client. The push job is reported as PushClient.
func (c *Component) ExporterInfo(client string) (domain.ExporterInfo, error) {
	if client == PushClient {
		c.clientsLock.Lock()
		defer c.clientsLock.Unlock()
		if c.push == nil {
			return domain.ExporterInfo{}, fmt.Errorf("no push job: %w", ErrUnknownClient)
		}
		return domain.ExporterInfo{
			Type:  c.push.Type(),
			Files: c.push.Tracker().Records(),
		}, nil
	}
	dom, err := c.client(client)
	if err != nil {
		return domain.ExporterInfo{}, err
	}
	return dom.ExporterInfo(), nil
}

// Push starts a job pushing the files of a directory to a collector.
// A previous job is stopped first.
func (c *Component) Push(config PushConfiguration) error {
	if err := helpers.Validate.Struct(config); err != nil {
		return fmt.Errorf("invalid push configuration: %w: %w", ErrValidation, err)
	}
	job, err := NewPushJob(c.r, config, c.d.Clock)
	if err != nil {
		return err
	}

	c.clientsLock.Lock()
	previous := c.push
	c.push = nil
	c.clientsLock.Unlock()
	if previous != nil {
		if err := previous.Stop(); err != nil {
			c.r.Err(err).Msg("cannot stop previous push job")
		}
	}

	if err := job.Start(); err != nil {
		return fmt.Errorf("cannot start push job: %w", err)
	}
	c.clientsLock.Lock()
	previous = c.push
	c.push = job
	c.clientsLock.Unlock()
	if previous != nil {
		// Another push was started concurrently.
		if err := previous.Stop(); err != nil {
			c.r.Err(err).Msg("cannot stop previous push job")
		}
	}
	return nil
}
