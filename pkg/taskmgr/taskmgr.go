/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package taskmgr runs scheduled tasks. Every server instance in a cluster
// runs a task manager, but each task is run by exactly one instance at a time.
// The instances coordinate through per-task permits in the coordination store.
package taskmgr

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	ariesstorage "github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/meridianfed/meridian/internal/pkg/log"
	"github.com/meridianfed/meridian/pkg/lifecycle"
)

const (
	coordinationPermitKey = "task-permit"
	defaultCheckInterval  = 10 * time.Second
)

type status = string

const (
	loggerModule = "task-manager"

	statusIdle    status = "idle"
	statusRunning status = "running"
)

// permit is an entry in the coordination store that marks which server
// instance currently has the duty of running a given task.
//
//nolint:tagliatelle
type permit struct {
	// TaskID is the ID of the task that is being run.
	TaskID string `json:"task_id"`
	// CurrentHolder indicates which instance currently has the duty.
	CurrentHolder string `json:"currentHolder"`
	// Status indicates the current status (idle or running).
	Status string `json:"status"`
	// UpdatedTime indicates when the status was last updated. It is a Unix timestamp.
	UpdatedTime int64 `json:"updateTime"`
}

// Manager runs registered tasks at their configured intervals, ensuring that
// each task is run by exactly one server instance within the cluster.
type Manager struct {
	*lifecycle.Lifecycle

	interval          time.Duration
	tasks             map[string]*registration
	done              chan struct{}
	logger            *log.Log
	coordinationStore ariesstorage.Store
	instanceID        string
	mutex             sync.RWMutex
}

// New returns a new task manager.
//
// coordinationStore ensures that only one instance within a cluster runs a
// given task. Every instance in the cluster must be connected to the same
// database for this to work. When instances start up (or when the instance
// holding a permit goes down) it is possible for multiple instances to briefly
// assign themselves the duty, but only for one round; this resolves itself on
// the next check. Tasks should therefore tolerate the occasional concurrent
// run.
//
// interval is how often this instance checks whether any task is due. Register
// each task with RegisterTask, then call Start. Stop stops the manager.
func New(coordinationStore ariesstorage.Store, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = defaultCheckInterval
	}

	instanceID := uuid.New().String()

	m := &Manager{
		interval:          interval,
		done:              make(chan struct{}),
		logger:            log.New(loggerModule, log.WithFields(logfields.WithTaskMgrInstanceID(instanceID))),
		coordinationStore: coordinationStore,
		instanceID:        instanceID,
		tasks:             make(map[string]*registration),
	}

	m.Lifecycle = lifecycle.New("task-manager",
		lifecycle.WithStart(m.start),
		lifecycle.WithStop(m.stop))

	return m
}

// InstanceID returns the unique ID of this server instance.
func (m *Manager) InstanceID() string {
	return m.instanceID
}

// RegisterTask registers a task to be periodically run at the given interval.
func (m *Manager) RegisterTask(id string, interval time.Duration, task func()) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.tasks[id] = &registration{
		handle:   task,
		id:       id,
		interval: interval,
	}
}

func (m *Manager) getTasks() []*registration {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var tasks []*registration

	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}

	return tasks
}

func (m *Manager) start() {
	go func() {
		m.logger.Info("Started task manager.")

		for {
			select {
			case <-time.After(m.interval):
				for _, t := range m.getTasks() {
					if err := m.run(t); err != nil {
						m.logger.Error("Error running task", logfields.WithError(err), logfields.WithTaskID(t.id))
					}
				}
			case <-m.done:
				m.logger.Debug("Stopped task manager.")

				return
			}
		}
	}()
}

func (m *Manager) stop() {
	close(m.done)
}

func (m *Manager) run(t *registration) error {
	if t.isRunning() {
		m.logger.Debug("Task is still running. Updating timestamp in the permit to tell others that I'm still alive.",
			logfields.WithTaskID(t.id))

		if err := m.updatePermit(t.id, statusRunning); err != nil {
			m.logger.Warn("Error updating status of task", logfields.WithTaskID(t.id), logfields.WithError(err))
		}

		return nil
	}

	ok, err := m.shouldRun(t)
	if err != nil {
		return fmt.Errorf("should run: %w", err)
	}

	if !ok {
		m.logger.Debug("Not running task.", logfields.WithTaskID(t.id))

		return nil
	}

	err = m.updatePermit(t.id, statusRunning)
	if err != nil {
		return fmt.Errorf("update permit for task: %w", err)
	}

	// Run the task in a new Go routine.

	go func(t *registration) {
		m.logger.Debug("Running task", logfields.WithTaskID(t.id))

		t.run()

		err := m.updatePermit(t.id, statusIdle)
		if err != nil {
			m.logger.Error("Failed to update permit for task", logfields.WithTaskID(t.id), logfields.WithError(err))
		}

		m.logger.Debug("Finished running task", logfields.WithTaskID(t.id))
	}(t)

	return nil
}

func (m *Manager) shouldRun(t *registration) (bool, error) {
	currentPermitBytes, err := m.coordinationStore.Get(getPermitKey(t.id))
	if err != nil {
		if errors.Is(err, ariesstorage.ErrDataNotFound) {
			m.logger.Info("No existing permit found for task. I will take on the duty of running the task.",
				logfields.WithTaskID(t.id))

			return true, nil
		}

		return false, fmt.Errorf("get permit from DB for task [%s]: %w", t.id, err)
	}

	var currentPermit permit

	err = json.Unmarshal(currentPermitBytes, &currentPermit)
	if err != nil {
		return false, fmt.Errorf("unmarshal permit for task [%s]: %w", t.id, err)
	}

	timeOfLastUpdate := time.Unix(currentPermit.UpdatedTime, 0)

	// The permit's update time is a Unix timestamp, truncated to the nearest
	// second, so truncate the elapsed time the same way.
	timeSinceLastUpdate := time.Since(timeOfLastUpdate).Truncate(time.Second)

	if currentPermit.CurrentHolder == m.instanceID {
		if timeSinceLastUpdate < t.interval {
			m.logger.Debug("It's currently my duty to run this task but it's not time for it to run.",
				logfields.WithTaskID(t.id), logfields.WithTimeSinceLastRun(timeSinceLastUpdate),
				logfields.WithTaskRunInterval(t.interval))

			return false, nil
		}

		m.logger.Debug("It's currently my duty to run task.", logfields.WithTaskID(t.id),
			logfields.WithTimeSinceLastRun(timeSinceLastUpdate))

		return true, nil
	}

	// Take the duty away from the current permit holder only if it's been an
	// unusually long time since the holder performed a successful run, which
	// indicates that the instance holding the permit is down. "Unusually long"
	// means longer than the manager's check interval plus the task's run
	// interval. All instances within the cluster are assumed to have the same
	// check interval setting.
	maxTime := m.interval + t.interval

	if timeSinceLastUpdate > maxTime {
		m.logger.Info("The current permit holder for this task has not updated the permit in an "+
			"unusually long time. This indicates "+
			"that the permit holder may be down or not responding. I will take over and grab the permit.",
			logfields.WithPermitHolder(currentPermit.CurrentHolder), logfields.WithTaskID(t.id),
			logfields.WithTimeSinceLastRun(timeSinceLastUpdate), logfields.WithMaxTime(maxTime))

		return true, nil
	}

	m.logger.Debug("I will not run this task since I am not the permit holder and it was run recently.",
		logfields.WithTaskID(t.id), logfields.WithPermitHolder(currentPermit.CurrentHolder),
		logfields.WithTimeSinceLastRun(timeSinceLastUpdate))

	return false, nil
}

func (m *Manager) updatePermit(taskID string, status status) error {
	m.logger.Debug("Updating the permit for task with current time and status.",
		logfields.WithTaskID(taskID), logfields.WithStatus(status))

	p := permit{
		TaskID:        taskID,
		CurrentHolder: m.instanceID,
		Status:        status,
		UpdatedTime:   time.Now().Unix(),
	}

	permitBytes, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal permit: %w", err)
	}

	err = m.coordinationStore.Put(getPermitKey(taskID), permitBytes)
	if err != nil {
		return fmt.Errorf("failed to store permit: %w", err)
	}

	m.logger.Debug("Permit successfully updated for task.", logfields.WithTaskID(taskID), logfields.WithStatus(status))

	return nil
}

func getPermitKey(taskID string) string {
	return coordinationPermitKey + "_" + taskID
}

type registration struct {
	handle   func()
	running  uint32
	id       string
	interval time.Duration
}

func (r *registration) run() {
	if !atomic.CompareAndSwapUint32(&r.running, 0, 1) {
		// Already running.
		return
	}

	r.handle()

	atomic.StoreUint32(&r.running, 0)
}

func (r *registration) isRunning() bool {
	return atomic.LoadUint32(&r.running) == 1
}
