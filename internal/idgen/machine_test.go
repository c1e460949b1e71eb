package idgen

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLastOctet(t *testing.T) {
	tests := []struct {
		name    string
		ip      string
		want    uint8
		wantErr bool
	}{
		{"private", "192.168.1.23", 23, false},
		{"ten net", "10.0.0.254", 254, false},
		{"mapped v4", "::ffff:172.16.0.9", 9, false},
		{"loopback", "127.0.0.1", 0, true},
		{"unspecified", "0.0.0.0", 0, true},
		{"ipv6", "2001:db8::1", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := lastOctet(net.ParseIP(tt.ip))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseInterfaceAddr(t *testing.T) {
	assert.Equal(t, "10.0.0.7", parseInterfaceAddr("10.0.0.7/24").String())
	assert.Equal(t, "10.0.0.8", parseInterfaceAddr("10.0.0.8").String())
	assert.Nil(t, parseInterfaceAddr("not-an-ip"))
}

func TestHasFlag(t *testing.T) {
	flags := []string{"up", "broadcast", "multicast"}

	assert.True(t, hasFlag(flags, "up"))
	assert.False(t, hasFlag(flags, "loopback"))
	assert.False(t, hasFlag(nil, "up"))
}
