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

// Package netutil classifies peer endpoints and bounds how many of them
// may share a subnet within a single routing bin or the routing tree as a
// whole, so that a single operator cannot stuff a bin with Sybil
// endpoints drawn from one /24. This is an addition over the distilled
// spec (see SPEC_FULL.md §3 "IP diversity"); it is off unless a zone is
// configured with non-zero limits.
package netutil

import (
	"bytes"
	"fmt"
	"net"
	"sort"
)

var lan4, lan6 Netlist

func init() {
	lan4.Add("0.0.0.0/8")
	lan4.Add("10.0.0.0/8")
	lan4.Add("127.0.0.0/8")
	lan4.Add("172.16.0.0/12")
	lan4.Add("192.168.0.0/16")
	lan6.Add("::1/128")
	lan6.Add("fe80::/10")
	lan6.Add("fc00::/7")
}

// Netlist is a list of IP networks.
type Netlist []net.IPNet

// Add parses a CIDR mask and appends it to the list. It panics on an
// invalid mask; only meant for static list setup.
func (l *Netlist) Add(cidr string) {
	_, n, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(err)
	}
	*l = append(*l, *n)
}

// Contains reports whether ip falls within any network in the list.
func (l *Netlist) Contains(ip net.IP) bool {
	if l == nil {
		return false
	}
	for _, n := range *l {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// IsLAN reports whether ip is a loopback or private-use address.
func IsLAN(ip net.IP) bool {
	if ip.IsLoopback() {
		return true
	}
	if v4 := ip.To4(); v4 != nil {
		return lan4.Contains(v4)
	}
	return lan6.Contains(ip)
}

// DistinctNetSet tracks IPs, rejecting an Add once N of them already fall
// within the same network prefix.
type DistinctNetSet struct {
	Subnet uint // number of common prefix bits considered part of the same network
	Limit  uint // maximum members allowed per network

	members map[string]uint
	buf     net.IP
}

// Add admits ip into the set. It returns false, and leaves the set
// unchanged, if doing so would exceed Limit members sharing ip's subnet.
func (s *DistinctNetSet) Add(ip net.IP) bool {
	key := string(s.key(ip))
	n := s.members[key]
	if n < s.Limit {
		s.members[key] = n + 1
		return true
	}
	return false
}

// Remove removes one occurrence of ip from the set.
func (s *DistinctNetSet) Remove(ip net.IP) {
	key := string(s.key(ip))
	if n, ok := s.members[key]; ok {
		if n <= 1 {
			delete(s.members, key)
		} else {
			s.members[key] = n - 1
		}
	}
}

// Len returns the total number of tracked members.
func (s DistinctNetSet) Len() uint {
	n := uint(0)
	for _, v := range s.members {
		n += v
	}
	return n
}

func (s *DistinctNetSet) key(ip net.IP) net.IP {
	if s.members == nil {
		s.members = make(map[string]uint)
		s.buf = make(net.IP, 17)
	}
	typ := byte('6')
	if ip4 := ip.To4(); ip4 != nil {
		typ, ip = '4', ip4
	}
	bits := s.Subnet
	if bits > uint(len(ip)*8) {
		bits = uint(len(ip) * 8)
	}
	nb := int(bits / 8)
	mask := ^byte(0xFF >> (bits % 8))
	s.buf[0] = typ
	buf := append(s.buf[:1], ip[:nb]...)
	if nb < len(ip) && mask != 0 {
		buf = append(buf, ip[nb]&mask)
	}
	return buf
}

// String implements fmt.Stringer, mainly for diagnostics in tests.
func (s DistinctNetSet) String() string {
	var buf bytes.Buffer
	buf.WriteString("{")
	keys := make([]string, 0, len(s.members))
	for k := range s.members {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		var ip net.IP
		if k[0] == '4' {
			ip = make(net.IP, 4)
		} else {
			ip = make(net.IP, 16)
		}
		copy(ip, k[1:])
		fmt.Fprintf(&buf, "%v×%d", ip, s.members[k])
		if i != len(keys)-1 {
			buf.WriteString(" ")
		}
	}
	buf.WriteString("}")
	return buf.String()
}
