package media

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

func TestDevicesRegisterCodecs(t *testing.T) {
	d, err := NewDevices()
	require.NoError(t, err)
	require.NoError(t, d.RegisterCodecs(&webrtc.MediaEngine{}))
}
