package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("debug", &buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	log.WithField("wallet", "0xabc").Info("claimed")
	assert.Contains(t, buf.String(), "wallet=0xabc")
	assert.Contains(t, buf.String(), "msg=claimed")
}

func TestNewDefaultsAndErrors(t *testing.T) {
	log, err := New("", &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())

	_, err = New("chatty", &bytes.Buffer{})
	require.Error(t, err)
}
