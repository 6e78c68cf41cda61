package services

import (
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindAvailablePort(t *testing.T) {
	t.Run("skips busy port", func(t *testing.T) {
		busy, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer busy.Close()
		port := busy.Addr().(*net.TCPAddr).Port

		got, err := FindAvailablePort("", port, port+20)

		require.NoError(t, err)
		assert.NotEqual(t, port, got)
		assert.Greater(t, got, port)
	})

	t.Run("no port in range", func(t *testing.T) {
		busy, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer busy.Close()
		port := busy.Addr().(*net.TCPAddr).Port

		_, err = FindAvailablePort("127.0.0.1", port, port)

		assert.ErrorContains(t, err, "no available port")
	})
}

func TestResolveListenAddr(t *testing.T) {
	t.Run("busy port moves", func(t *testing.T) {
		busy, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer busy.Close()
		port := busy.Addr().(*net.TCPAddr).Port

		got, err := ResolveListenAddr("127.0.0.1:"+strconv.Itoa(port), 20)

		require.NoError(t, err)
		assert.NotEqual(t, "127.0.0.1:"+strconv.Itoa(port), got)
	})

	t.Run("port zero unchanged", func(t *testing.T) {
		got, err := ResolveListenAddr(":0", 5)
		require.NoError(t, err)
		assert.Equal(t, ":0", got)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := ResolveListenAddr("nope", 5)
		assert.Error(t, err)
	})
}
