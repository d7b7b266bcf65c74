/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package wmlogger

import (
	"bytes"
	"fmt"
	"net/url"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/require"
	"github.com/trustbloc/logutil-go/pkg/log"
)

func TestNew(t *testing.T) {
	logger := New()
	require.NotNil(t, logger)
}

func TestWMLogger(t *testing.T) {
	v2, e := url.Parse("https://example.com")
	require.NoError(t, e)

	fields := watermill.LogFields{"field1": "value1", "field2": v2}

	err := fmt.Errorf("some error")

	t.Run("Debug level", func(t *testing.T) {
		log.SetLevel(Module, log.DEBUG)

		stdOut := newMockWriter()
		stdErr := newMockWriter()

		logger := newWMLogger(log.New(Module, log.WithStdOut(stdOut), log.WithStdErr(stdErr)))
		require.NotNil(t, logger)

		logger.Error("error message", err, fields)
		logger.Info("info message", fields)
		logger.Debug("debug message", fields)
		logger.Trace("trace message", nil)

		require.Contains(t, stdErr.String(), "error message")
		require.Contains(t, stdOut.String(), "info message")
		require.Contains(t, stdOut.String(), "debug message")
		require.Contains(t, stdOut.String(), "trace message")
		require.Contains(t, stdOut.String(), "value1")
	})

	t.Run("Info level", func(t *testing.T) {
		log.SetLevel(Module, log.INFO)

		stdOut := newMockWriter()
		stdErr := newMockWriter()

		logger := newWMLogger(log.New(Module, log.WithStdOut(stdOut), log.WithStdErr(stdErr)))
		require.NotNil(t, logger)

		logger.Error("error message", err, fields)
		logger.Info("info message", fields)
		logger.Debug("debug message", fields)
		logger.Trace("trace message", nil)

		require.Contains(t, stdErr.String(), "error message")
		require.NotContains(t, stdOut.String(), "info message")
		require.NotContains(t, stdOut.String(), "debug message")
		require.NotContains(t, stdOut.String(), "trace message")
	})

	t.Run("With", func(t *testing.T) {
		log.SetLevel(Module, log.DEBUG)

		stdOut := newMockWriter()

		logger := newWMLogger(log.New(Module, log.WithStdOut(stdOut))).
			With(watermill.LogFields{"field3": "value3"})
		require.NotNil(t, logger)

		logger.Debug("debug message", fields)

		require.Contains(t, stdOut.String(), "value3")
		require.Contains(t, stdOut.String(), "value1")
	})
}

type mockWriter struct {
	*bytes.Buffer
}

func (m *mockWriter) Sync() error {
	return nil
}

func newMockWriter() *mockWriter {
	return &mockWriter{Buffer: bytes.NewBuffer(nil)}
}
