package discovery

import (
	"context"
	"net"

	"github.com/brutella/dnssd"
)

// browse watches for instances of serviceType and invokes onAdded with the
// first resolved IP of each. Grounded on src/dns_sd.go's use of the same
// library (there to announce a service; here to browse for one).
func browse(ctx context.Context, serviceType string, onAdded func(net.IP)) error {
	added := func(entry dnssd.BrowseEntry) {
		for _, ip := range entry.IPs {
			if ip.To4() != nil {
				onAdded(ip)
				return
			}
		}
	}
	removed := func(dnssd.BrowseEntry) {}

	return dnssd.LookupType(ctx, serviceType, added, removed)
}
