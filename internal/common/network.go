package common

import (
	"fmt"
	"net"
)

// LocalIPs returns localhost plus the first IPv4 address of an up,
// non-loopback, non point-to-point interface
func LocalIPs() []string {
	ips := []string{"localhost", "127.0.0.1"}

	interfaces, err := net.Interfaces()
	if err != nil {
		return ips
	}
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagPointToPoint != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.IsLoopback() || ipnet.IP.To4() == nil {
				continue
			}
			return append(ips, ipnet.IP.String())
		}
	}
	return ips
}

// AccessibleURLs lists the base URLs the API can be reached at
func AccessibleURLs(port int) []string {
	ips := LocalIPs()
	urls := make([]string, 0, len(ips))
	for _, ip := range ips {
		urls = append(urls, fmt.Sprintf("http://%s:%d", ip, port))
	}
	return urls
}
