package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAbbreviate(t *testing.T) {
	tests := []struct {
		name string
		str  string
		n    int
		want string
	}{
		{name: "signature is cut", str: "0x1234567890abcdef", n: 10, want: "0x12345678..."},
		{name: "short string kept", str: "0xsig", n: 10, want: "0xsig"},
		{name: "exact length kept", str: "0123456789", n: 10, want: "0123456789"},
		{name: "empty", str: "", n: 10, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Abbreviate(tt.str, tt.n))
		})
	}
}

func TestDecodeTimeInSnowflake(t *testing.T) {
	// 175928847299117063 is the example id of the Discord API reference.
	ts := DecodeTimeInSnowflake("175928847299117063")
	require.NotNil(t, ts)
	assert.Equal(t, time.Date(2016, 4, 30, 11, 18, 25, 796000000, time.UTC), *ts)

	assert.Nil(t, DecodeTimeInSnowflake("not-a-snowflake"))
}

func TestNewCutUUIDString(t *testing.T) {
	id := NewCutUUIDString()
	assert.Len(t, id, 32)
	assert.NotContains(t, id, "-")
}
