/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package nodeinfo implements the NodeInfo protocol (http://nodeinfo.diaspora.software):
// a client that discovers and retrieves NodeInfo documents from remote servers, and a
// service plus REST handlers that publish this server's own NodeInfo data.
package nodeinfo

import (
	"fmt"
	"sync"
	"time"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	"github.com/meridianfed/meridian/pkg/lifecycle"
)

var logger = log.New("nodeinfo")

// Stats holds the usage statistics that are served in the NodeInfo 'usage' object.
type Stats struct {
	TotalUsers    int
	LocalPosts    int
	LocalComments int
}

// StatsRetriever returns the current usage statistics for this server. The
// application supplies an implementation that reflects its own data, since
// actors and objects are not persisted by the framework. Implementations must
// be safe for concurrent use.
type StatsRetriever interface {
	GetStats() (*Stats, error)
}

// StaticStats is a StatsRetriever that always returns the same statistics. It
// suits single-actor servers that don't track their counts.
type StaticStats Stats

// GetStats returns the statistics.
func (s StaticStats) GetStats() (*Stats, error) {
	stats := Stats(s)

	return &stats, nil
}

// Service periodically polls the application's stats retriever and produces NodeInfo data.
type Service struct {
	*lifecycle.Lifecycle

	done           chan struct{}
	interval       time.Duration
	software       Software
	statsRetriever StatsRetriever
	stats          *Stats
	mutex          sync.RWMutex
}

// NewService returns a new NodeInfo service that identifies this server with
// the given software record and refreshes its usage statistics from
// statsRetriever at the given interval. If the software name is empty then the
// framework's own name and repository are used, and an empty software version
// defaults to MeridianVersion.
func NewService(software Software, refreshInterval time.Duration, statsRetriever StatsRetriever) *Service {
	if software.Name == "" {
		software.Name = meridianName
		software.Repository = meridianRepository
	}

	if software.Version == "" {
		software.Version = MeridianVersion
	}

	r := &Service{
		done:           make(chan struct{}),
		interval:       refreshInterval,
		software:       software,
		statsRetriever: statsRetriever,
		stats:          &Stats{},
	}

	r.Lifecycle = lifecycle.New("nodeinfo",
		lifecycle.WithStart(r.start),
		lifecycle.WithStop(r.stop))

	return r
}

// GetNodeInfo returns a NodeInfo struct compatible with the given version.
func (r *Service) GetNodeInfo(version Version) *NodeInfo {
	software := r.software

	// The 'repository' field was added to the 'software' object in version 2.1.
	if version != V2_1 {
		software.Repository = ""
	}

	r.mutex.RLock()

	stats := r.stats

	r.mutex.RUnlock()

	return &NodeInfo{
		Version:   version,
		Protocols: []string{activityPubProtocol},
		Software:  software,
		Services: Services{
			Inbound:  []string{},
			Outbound: []string{},
		},
		OpenRegistrations: false,
		Usage: Usage{
			Users: Users{
				Total: stats.TotalUsers,
			},
			LocalPosts:    stats.LocalPosts,
			LocalComments: stats.LocalComments,
		},
	}
}

func (r *Service) start() {
	go r.refresh()

	logger.Info("Started NodeInfo service")
}

func (r *Service) stop() {
	close(r.done)

	logger.Info("Stopped NodeInfo service")
}

func (r *Service) refresh() {
	if err := r.retrieve(); err != nil {
		logger.Warn("Error updating stats", log.WithError(err))
	}

	for {
		select {
		case <-time.After(r.interval):
			if err := r.retrieve(); err != nil {
				logger.Warn("Error updating stats", log.WithError(err))
			}
		case <-r.done:
			logger.Debug("Exiting stats retriever.")

			return
		}
	}
}

func (r *Service) retrieve() error {
	stats, err := r.statsRetriever.GetStats()
	if err != nil {
		return fmt.Errorf("retrieve stats: %w", err)
	}

	logger.Debug("Updated stats", logfields.WithMetadata(stats))

	r.mutex.Lock()

	r.stats = stats

	r.mutex.Unlock()

	return nil
}
