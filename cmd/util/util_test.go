package util

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
	assert.Equal(t, "", WrapString(""))
	assert.Equal(t, "a b", WrapString("  a   b "))
}

func TestParseArgs(t *testing.T) {
	args := ParseArgs([]string{"42", "true", "alice", `"42"`, "null", "1.5"})
	assert.Equal(t, []any{float64(42), true, "alice", "42", nil, 1.5}, args)
	assert.Empty(t, ParseArgs(nil))
}

func TestGetSerializerAndTransport(t *testing.T) {
	defer viper.Reset()

	for _, name := range []string{"json", "gob", "binary"} {
		viper.Set("serializer", name)
		s, err := GetSerializer()
		require.NoError(t, err)
		assert.NotNil(t, s)
	}
	viper.Set("serializer", "xml")
	_, err := GetSerializer()
	assert.Error(t, err)

	for _, name := range []string{"http", "tcp", "unix"} {
		viper.Set("transport", name)
		c, err := GetTransport()
		require.NoError(t, err)
		assert.NotNil(t, c)
		s, err := GetServerTransport(1024)
		require.NoError(t, err)
		assert.NotNil(t, s)
	}
	viper.Set("transport", "carrier-pigeon")
	_, err = GetTransport()
	assert.Error(t, err)
}

func TestGetClientConfig(t *testing.T) {
	defer viper.Reset()

	viper.Set("timeout", 7)
	viper.Set("transport-endpoints", "a:1,b:2")
	viper.Set("transport-read-buffer", 4)
	viper.Set("transport-tcp-nodelay", true)

	conf := GetClientConfig()
	assert.Equal(t, 7, conf.TimeoutSecond)
	assert.Equal(t, []string{"a:1", "b:2"}, conf.Transport.Endpoints)
	assert.Equal(t, 4*1024, conf.Transport.ReadBufferSize)
	assert.True(t, conf.Transport.TCPNoDelay)
}
