package feedback

import "net/netip"

// AnonymizeIP strips the host-identifying part of an address before storage:
// the last octet of an IPv4 address and the last 80 bits of an IPv6 address
// are zeroed. Unparseable input yields the empty string. Idempotent.
func AnonymizeIP(raw string) string {
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return ""
	}

	if addr.Is4() || addr.Is4In6() {
		b := addr.As4()
		b[3] = 0
		return netip.AddrFrom4(b).String()
	}

	b := addr.As16()
	for i := 6; i < 16; i++ {
		b[i] = 0
	}
	return netip.AddrFrom16(b).String()
}
