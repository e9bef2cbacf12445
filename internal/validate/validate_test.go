package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carnegiemellonracing/PiDAQ/internal/model"
)

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus([]byte(`{"id": "rpi-7", "status": "online"}`))
	require.NoError(t, err)
	assert.Equal(t, model.DeviceStatus{ID: "rpi-7", Status: "online"}, st)
}

func TestParseStatusRejectsBadPayloads(t *testing.T) {
	cases := map[string]string{
		"not json":       `online`,
		"missing id":     `{"status": "online"}`,
		"empty id":       `{"id": "", "status": "online"}`,
		"missing status": `{"id": "rpi-7"}`,
		"bad status":     `{"id": "rpi-7", "status": "rebooting"}`,
		"wrong type":     `{"id": 7, "status": "online"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseStatus([]byte(payload))
			assert.Error(t, err)
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate([]byte("abc"), 5))
	assert.Equal(t, "ab...", Truncate([]byte("abcdef"), 2))
}
