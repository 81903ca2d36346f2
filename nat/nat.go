// Copyright 2015 The kadcore Authors
// This file is part of the kadcore library.
//
// The kadcore library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The kadcore library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the kadcore library. If not, see <http://www.gnu.org/licenses/>.

// Package nat provides best-effort UDP port mapping for the engine's
// socket, trying NAT-PMP first and falling back to UPnP IGD, the two
// router-side protocols supported by the teacher's dependency set
// (jackpal/go-nat-pmp, huin/goupnp). Neither the spec nor the original
// implementation mandates NAT traversal; this is a SPEC_FULL addition
// so the engine can be reached from behind a home router without manual
// port forwarding.
package nat

import (
	"fmt"
	"net"
	"time"

	natpmp "github.com/jackpal/go-nat-pmp"
	"github.com/huin/goupnp/dcps/internetgateway1"
)

// Mapper maps an external UDP port to a local one on the gateway it was
// discovered on, and can undo the mapping on shutdown.
type Mapper interface {
	// AddMapping requests that externalPort route to internalPort for
	// lifetime. It returns the external IP the gateway reports, if known.
	AddMapping(internalPort, externalPort int, lifetime time.Duration) (net.IP, error)
	// DeleteMapping removes a previously added mapping.
	DeleteMapping(externalPort int) error
	// String identifies which protocol this mapper is using.
	String() string
}

// Any probes for a NAT-PMP gateway first, then a UPnP IGDv1 gateway,
// returning the first one found. It returns a nil Mapper and an error
// if neither responds; cmd/kad then runs without a mapping.
func Any() (Mapper, error) {
	if m, err := discoverPMP(); err == nil {
		return m, nil
	}
	if m, err := discoverUPnP(); err == nil {
		return m, nil
	}
	return nil, fmt.Errorf("nat: no NAT-PMP or UPnP gateway found")
}

type pmpMapper struct {
	client *natpmp.Client
	gw     net.IP
}

func discoverPMP() (Mapper, error) {
	gw, err := firstGatewayGuess()
	if err != nil {
		return nil, err
	}
	client := natpmp.NewClient(gw)
	if _, err := client.GetExternalAddress(); err != nil {
		return nil, err
	}
	return &pmpMapper{client: client, gw: gw}, nil
}

func (m *pmpMapper) AddMapping(internalPort, externalPort int, lifetime time.Duration) (net.IP, error) {
	_, err := m.client.AddPortMapping("udp", internalPort, externalPort, int(lifetime/time.Second))
	if err != nil {
		return nil, err
	}
	ext, err := m.client.GetExternalAddress()
	if err != nil {
		return nil, err
	}
	ip := net.IPv4(ext.ExternalIPAddress[0], ext.ExternalIPAddress[1], ext.ExternalIPAddress[2], ext.ExternalIPAddress[3])
	return ip, nil
}

func (m *pmpMapper) DeleteMapping(externalPort int) error {
	_, err := m.client.AddPortMapping("udp", externalPort, 0, 0)
	return err
}

func (m *pmpMapper) String() string { return "NAT-PMP(" + m.gw.String() + ")" }

type upnpMapper struct {
	client *internetgateway1.WANIPConnection1
}

func discoverUPnP() (Mapper, error) {
	clients, errs := internetgateway1.NewWANIPConnection1Clients()
	if len(clients) == 0 {
		if len(errs) > 0 {
			return nil, errs[0]
		}
		return nil, fmt.Errorf("nat: no UPnP IGD found")
	}
	return &upnpMapper{client: clients[0]}, nil
}

func (m *upnpMapper) AddMapping(internalPort, externalPort int, lifetime time.Duration) (net.IP, error) {
	localIP, err := localIPv4()
	if err != nil {
		return nil, err
	}
	err = m.client.AddPortMapping("", uint16(externalPort), "UDP", uint16(internalPort), localIP.String(),
		true, "kadcore", uint32(lifetime/time.Second))
	if err != nil {
		return nil, err
	}
	ext, err := m.client.GetExternalIPAddress()
	if err != nil {
		return localIP, nil
	}
	return net.ParseIP(ext), nil
}

func (m *upnpMapper) DeleteMapping(externalPort int) error {
	return m.client.DeletePortMapping("", uint16(externalPort), "UDP")
}

func (m *upnpMapper) String() string { return "UPnP-IGDv1" }

// firstGatewayGuess assumes the default gateway is the first host
// address on the first non-loopback IPv4 interface's /24, the same
// heuristic go-nat-pmp's own examples use when no gateway is supplied
// explicitly.
func firstGatewayGuess() (net.IP, error) {
	ip, err := localIPv4()
	if err != nil {
		return nil, err
	}
	gw := ip.To4()
	if gw == nil {
		return nil, fmt.Errorf("nat: no IPv4 address found")
	}
	guess := net.IPv4(gw[0], gw[1], gw[2], 1)
	return guess, nil
}

func localIPv4() (net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if v4 := ipnet.IP.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, fmt.Errorf("nat: no non-loopback IPv4 address found")
}
