package feedback

import "testing"

func TestAnonymizeIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "ipv4", in: "192.168.1.100", want: "192.168.1.0"},
		{name: "ipv4 loopback", in: "127.0.0.1", want: "127.0.0.0"},
		{name: "ipv4 already zeroed", in: "10.0.0.0", want: "10.0.0.0"},
		{name: "ipv6", in: "2001:db8:85a3:8d3:1319:8a2e:370:7348", want: "2001:db8:85a3::"},
		{name: "ipv6 loopback", in: "::1", want: "::"},
		{name: "ipv4 mapped ipv6", in: "::ffff:192.168.1.100", want: "192.168.1.0"},
		{name: "garbage", in: "not-an-ip", want: ""},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := AnonymizeIP(tt.in); got != tt.want {
				t.Errorf("AnonymizeIP(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestAnonymizeIPIdempotent(t *testing.T) {
	t.Parallel()

	for _, ip := range []string{"192.168.1.100", "2001:db8:85a3:8d3:1319:8a2e:370:7348"} {
		once := AnonymizeIP(ip)
		if twice := AnonymizeIP(once); twice != once {
			t.Errorf("AnonymizeIP not idempotent: %q -> %q -> %q", ip, once, twice)
		}
	}
}
