/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package expiry provides a service that periodically removes expired data from
// registered stores. Every entry eligible for cleanup must be tagged with the
// expiry time expressed in Unix epoch seconds. Multiple instances of this
// service may run against the same database; they coordinate through a permit
// in the coordination store so that only one of them does the sweeping at any
// given time.
package expiry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	ariesstorage "github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	"github.com/meridianfed/meridian/pkg/lifecycle"
)

const (
	loggerModule = "expiry-service"

	permitKey = "expired-data-cleanup-permit"
)

type registeredStore struct {
	store   ariesstorage.Store
	tagName string
	name    string
}

// permit is the cleanup duty marker held in the coordination store. An
// instance may sweep only while it holds the permit. A permit whose update
// time is too far in the past is considered abandoned and may be claimed by
// another instance.
type permit struct {
	CurrentHolder string `json:"currentHolder"`
	TimeLastRun   int64  `json:"timeLastRun"`
}

// Service periodically polls registered stores and deletes expired data.
type Service struct {
	*lifecycle.Lifecycle

	done              chan struct{}
	logger            *log.Log
	registeredStores  []registeredStore
	interval          time.Duration
	coordinationStore ariesstorage.Store
	instanceID        string
	mutex             sync.RWMutex
}

// NewService returns a new expiry Service.
//
// interval is how often the service checks for (and deletes) expired data.
//
// coordinationStore is used to ensure that only one of the service instances
// sharing a database performs the cleanup. Every instance must be given the
// same interval in order for the takeover logic to work reliably.
//
// instanceID identifies this instance within the cluster. It must be unique
// per running server.
//
// Stores must be registered using Register before the service is started.
func NewService(interval time.Duration, coordinationStore ariesstorage.Store, instanceID string) *Service {
	s := &Service{
		done:              make(chan struct{}),
		logger:            log.New(loggerModule),
		interval:          interval,
		coordinationStore: coordinationStore,
		instanceID:        instanceID,
	}

	s.Lifecycle = lifecycle.New("expiry-service",
		lifecycle.WithStart(s.start),
		lifecycle.WithStop(s.stop))

	return s
}

// Register adds a store to the list of stores that are swept for expired data.
// Entries in the given store that are eligible for cleanup must be tagged with
// expiryTagName, with the tag value set to the expiry time in Unix epoch
// seconds. The given store name is used only for logging.
func (s *Service) Register(store ariesstorage.Store, expiryTagName, storeName string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.registeredStores = append(s.registeredStores, registeredStore{
		store:   store,
		tagName: expiryTagName,
		name:    storeName,
	})
}

func (s *Service) start() {
	go s.refresh()

	s.logger.Info("Started expiry service", logfields.WithCheckInterval(s.interval))
}

func (s *Service) stop() {
	close(s.done)

	s.logger.Info("Stopped expiry service")
}

func (s *Service) refresh() {
	for {
		select {
		case <-time.After(s.interval):
			s.runCleanup()
		case <-s.done:
			s.logger.Debug("Stopping expired data cleanup")

			return
		}
	}
}

func (s *Service) runCleanup() {
	if !s.shouldRunCleanup() {
		return
	}

	s.deleteExpiredData()

	if err := s.updatePermit(); err != nil {
		s.logger.Error("Failed to update the permit", logfields.WithError(err))
	}
}

// shouldRunCleanup determines whether this instance currently holds (or may
// claim) the cleanup permit. Failures are logged and treated as "not now";
// the next interval will try again.
func (s *Service) shouldRunCleanup() bool {
	currentPermitBytes, err := s.coordinationStore.Get(permitKey)
	if err != nil {
		if errors.Is(err, ariesstorage.ErrDataNotFound) {
			// No one holds the permit yet. Claim it.
			return true
		}

		s.logger.Error("Unexpected failure while getting the permit", logfields.WithError(err))

		return false
	}

	var currentPermit permit

	if err := json.Unmarshal(currentPermitBytes, &currentPermit); err != nil {
		s.logger.Error("Failed to unmarshal the current permit", logfields.WithError(err))

		return false
	}

	if currentPermit.CurrentHolder == s.instanceID {
		return true
	}

	// The holder updates the permit after every run, so a permit that hasn't
	// been touched for well over an interval means the holder is gone and this
	// instance takes over.
	timeSinceLastRun := time.Since(time.Unix(0, currentPermit.TimeLastRun))

	if timeSinceLastRun > 2*s.interval {
		s.logger.Info("Taking over the expired data cleanup duty",
			logfields.WithPermitHolder(currentPermit.CurrentHolder),
			logfields.WithTimeSinceLastRun(timeSinceLastRun))

		return true
	}

	s.logger.Debug("Another instance holds the cleanup permit",
		logfields.WithPermitHolder(currentPermit.CurrentHolder),
		logfields.WithTimeSinceLastRun(timeSinceLastRun))

	return false
}

func (s *Service) deleteExpiredData() {
	s.mutex.RLock()
	stores := s.registeredStores
	s.mutex.RUnlock()

	for _, r := range stores {
		s.deleteExpiredDataInStore(r)
	}
}

func (s *Service) deleteExpiredDataInStore(r registeredStore) {
	iterator, err := r.store.Query(fmt.Sprintf("%s<=%d", r.tagName, time.Now().Unix()))
	if err != nil {
		s.logger.Error("Failed to query store for expired data",
			logfields.WithStoreName(r.name), logfields.WithError(err))

		return
	}

	defer func() {
		if err := iterator.Close(); err != nil {
			logfields.CloseIteratorError(s.logger, err)
		}
	}()

	var keysToDelete []string

	more, err := iterator.Next()
	if err != nil {
		s.logger.Error("Failed to get next value from iterator",
			logfields.WithStoreName(r.name), logfields.WithError(err))

		return
	}

	for more {
		key, err := iterator.Key()
		if err != nil {
			s.logger.Error("Failed to get key from iterator",
				logfields.WithStoreName(r.name), logfields.WithError(err))

			return
		}

		keysToDelete = append(keysToDelete, key)

		more, err = iterator.Next()
		if err != nil {
			s.logger.Error("Failed to get next value from iterator",
				logfields.WithStoreName(r.name), logfields.WithError(err))

			return
		}
	}

	if len(keysToDelete) == 0 {
		return
	}

	operations := make([]ariesstorage.Operation, len(keysToDelete))

	for i, key := range keysToDelete {
		operations[i] = ariesstorage.Operation{Key: key}
	}

	if err := r.store.Batch(operations); err != nil {
		s.logger.Error("Failed to delete expired data",
			logfields.WithStoreName(r.name), logfields.WithError(err))

		return
	}

	s.logger.Debug("Deleted expired data",
		logfields.WithTotal(len(keysToDelete)), logfields.WithStoreName(r.name))
}

func (s *Service) updatePermit() error {
	p := permit{
		CurrentHolder: s.instanceID,
		TimeLastRun:   time.Now().UnixNano(),
	}

	permitBytes, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal permit: %w", err)
	}

	if err := s.coordinationStore.Put(permitKey, permitBytes); err != nil {
		return fmt.Errorf("store permit: %w", err)
	}

	return nil
}
