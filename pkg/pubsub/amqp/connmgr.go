/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package amqp

import (
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill-amqp/v2/pkg/amqp"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	"github.com/meridianfed/meridian/pkg/pubsub/wmlogger"
)

type connection interface {
	wrapper() *amqp.ConnectionWrapper
	isConnected() bool
	close() error
}

type connMgr interface {
	getConnection(shared bool) (connection, error)
	isConnected() bool
	close() error
}

type createConnectionFunc func(config amqp.ConnectionConfig) (connection, error)

type amqpConnection struct {
	conn *amqp.ConnectionWrapper
}

func (c *amqpConnection) wrapper() *amqp.ConnectionWrapper {
	return c.conn
}

func (c *amqpConnection) isConnected() bool {
	return c.conn.IsConnected()
}

func (c *amqpConnection) close() error {
	return c.conn.Close()
}

// connectionMgr manages the connections to the AMQP server. A connection may be dedicated
// or shared. A shared connection is reused until the maximum number of channels per connection
// has been reserved, after which a new shared connection is created. A dedicated connection is
// not reused.
type connectionMgr struct {
	config           amqp.ConnectionConfig
	maxChannels      int
	createConnection createConnectionFunc
	mutex            sync.Mutex
	connections      []connection
	shared           connection
	sharedChannels   int
}

func newConnectionMgr(config amqp.ConnectionConfig, maxChannelsPerConnection int) *connectionMgr {
	return &connectionMgr{
		config:      config,
		maxChannels: maxChannelsPerConnection,
		createConnection: func(config amqp.ConnectionConfig) (connection, error) {
			conn, err := amqp.NewConnection(config, wmlogger.New())
			if err != nil {
				return nil, err
			}

			return &amqpConnection{conn: conn}, nil
		},
	}
}

// getConnection returns a connection to the AMQP server. If shared is true then an existing
// connection is returned (as long as the maximum number of channels on the connection has not
// been reserved) otherwise a new connection is created.
func (m *connectionMgr) getConnection(shared bool) (connection, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !shared {
		logger.Info("Creating dedicated AMQP connection",
			logfields.WithAddress(extractEndpoint(m.config.AmqpURI)))

		conn, err := m.createConnection(m.config)
		if err != nil {
			return nil, fmt.Errorf("create connection: %w", err)
		}

		m.connections = append(m.connections, conn)

		return conn, nil
	}

	if m.shared == nil || m.sharedChannels >= m.maxChannels {
		logger.Info("Creating shared AMQP connection",
			logfields.WithAddress(extractEndpoint(m.config.AmqpURI)))

		conn, err := m.createConnection(m.config)
		if err != nil {
			return nil, fmt.Errorf("create connection: %w", err)
		}

		m.connections = append(m.connections, conn)
		m.shared = conn
		m.sharedChannels = 0
	}

	m.sharedChannels++

	logger.Debug("Returning shared AMQP connection",
		logfields.WithSize(len(m.connections)), logfields.WithTotal(m.sharedChannels))

	return m.shared, nil
}

func (m *connectionMgr) isConnected() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, conn := range m.connections {
		if !conn.isConnected() {
			return false
		}
	}

	return true
}

func (m *connectionMgr) close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	logger.Info("Closing AMQP connections", logfields.WithSize(len(m.connections)))

	var lastErr error

	for _, conn := range m.connections {
		if err := conn.close(); err != nil {
			lastErr = err
		}
	}

	m.connections = nil
	m.shared = nil
	m.sharedChannels = 0

	return lastErr
}
