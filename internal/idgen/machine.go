package idgen

import (
	"errors"
	"fmt"
	"net"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// ErrMachineID is returned when no machine discriminator can be derived
// from the host's network identity.
var ErrMachineID = errors.New("idgen: unable to determine machine id")

// probeAddr is only used to select the outbound route; UDP "dial" sends
// nothing.
const probeAddr = "8.8.8.8:80"

// ResolveMachineID derives the machine discriminator from the lowest octet
// of the host's outbound IPv4 address. When the host has no route, the
// first non-loopback IPv4 address of an interface that is up is used.
func ResolveMachineID() (uint8, error) {
	id, routeErr := outboundMachineID()
	if routeErr == nil {
		return id, nil
	}

	id, ifaceErr := interfaceMachineID()
	if ifaceErr == nil {
		return id, nil
	}

	return 0, fmt.Errorf("%w: %v; %v", ErrMachineID, routeErr, ifaceErr)
}

func outboundMachineID() (uint8, error) {
	conn, err := net.Dial("udp", probeAddr)
	if err != nil {
		return 0, fmt.Errorf("outbound route: %w", err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return 0, fmt.Errorf("outbound route: unexpected local address %T", conn.LocalAddr())
	}
	return lastOctet(addr.IP)
}

func interfaceMachineID() (uint8, error) {
	ifaces, err := psnet.Interfaces()
	if err != nil {
		return 0, fmt.Errorf("list interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if !hasFlag(iface.Flags, "up") || hasFlag(iface.Flags, "loopback") {
			continue
		}
		for _, a := range iface.Addrs {
			if id, err := lastOctet(parseInterfaceAddr(a.Addr)); err == nil {
				return id, nil
			}
		}
	}
	return 0, errors.New("no usable IPv4 interface address")
}

// parseInterfaceAddr accepts both CIDR ("10.0.0.7/24") and bare addresses.
func parseInterfaceAddr(s string) net.IP {
	if ip, _, err := net.ParseCIDR(s); err == nil {
		return ip
	}
	return net.ParseIP(s)
}

func lastOctet(ip net.IP) (uint8, error) {
	v4 := ip.To4()
	if v4 == nil {
		return 0, fmt.Errorf("%v is not an IPv4 address", ip)
	}
	if v4.IsLoopback() || v4.IsUnspecified() {
		return 0, fmt.Errorf("%v is not routable", ip)
	}
	return v4[3], nil
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}
