// Package sync provides the engine that drains the offline mutation queue
// against the remote pets API.
package sync

import (
	"errors"
	"fmt"
	gosync "sync"

	"github.com/petfolio/shelterq/internal/logger"
	"github.com/petfolio/shelterq/internal/petsapi"
	"github.com/petfolio/shelterq/internal/photo"
	"github.com/petfolio/shelterq/internal/queue"
)

// ErrSyncInFlight is returned when Sync is invoked while a previous pass is
// still running. Overlapping passes would double-drain the same backlog.
var ErrSyncInFlight = errors.New("sync pass already in flight")

// Engine replays buffered operations against the pets API.
type Engine struct {
	store  *queue.Store
	client *petsapi.Client
	online func() bool

	mu      gosync.Mutex
	running bool
}

// Result reports the outcome of one sync pass.
type Result struct {
	Synced int
	Failed int
}

// NewEngine creates a sync engine. online is the connectivity signal read
// once per pass; a nil online treats the device as always connected.
func NewEngine(store *queue.Store, client *petsapi.Client, online func() bool) *Engine {
	return &Engine{
		store:  store,
		client: client,
		online: online,
	}
}

// Sync attempts to drain the queue. Operations are replayed strictly in
// enqueue order, never concurrently: a later operation may depend on an
// earlier one having succeeded. A connectivity failure halts the pass and
// retains the failed operation and everything after it for the next pass; an
// application failure drops the one operation and continues. Per-operation
// failures are absorbed into the tallies; Sync itself only fails when
// another pass is in flight or the remainder cannot be persisted.
func (e *Engine) Sync() (Result, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return Result{}, ErrSyncInFlight
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	if e.online != nil && !e.online() {
		backlog := e.store.Count()
		logger.Info("sync: device offline, keeping %d pending operations", backlog)
		return Result{Failed: backlog}, nil
	}

	ops := e.store.List()
	if len(ops) == 0 {
		return Result{}, nil
	}

	logger.Debug("sync: replaying %d operations", len(ops))

	var res Result
	var remainder []queue.Operation
	for i, op := range ops {
		err := e.replay(op)
		if err == nil {
			res.Synced++
			continue
		}

		if petsapi.IsConnectivity(err) {
			// Retrying later in the same order is correct for transport
			// faults; halting keeps operations after this one from being
			// reordered ahead of it.
			remainder = append(remainder, ops[i:]...)
			res.Failed += len(ops) - i
			logger.Warn("sync: connectivity failure on operation %s, halting pass: %v", op.ID, err)
			break
		}

		// The server rejected the payload; a blind retry would spin forever.
		res.Failed++
		logger.Warn("sync: dropping %s operation %s: %v", op.Kind, op.ID, err)
	}

	if err := e.store.Replace(remainder); err != nil {
		return res, fmt.Errorf("failed to persist queue remainder: %w", err)
	}

	logger.Info("sync: pass complete, %d synced, %d failed", res.Synced, res.Failed)
	return res, nil
}

// replay dispatches a single operation. Malformed operations fail before any
// network call and are classified as application failures by the caller.
func (e *Engine) replay(op queue.Operation) error {
	switch op.Kind {
	case queue.KindCreate:
		if op.Create == nil {
			return fmt.Errorf("create operation %s has no payload", op.ID)
		}
		photos, err := photo.Normalize(e.client, op.Create.Pet.Photos)
		if err != nil {
			return fmt.Errorf("failed to normalize photos: %w", err)
		}
		pet := op.Create.Pet
		pet.Photos = photos
		return e.client.CreatePet(pet, op.ShelterOwner)

	case queue.KindUpdate:
		if op.Update == nil {
			return fmt.Errorf("update operation %s has no payload", op.ID)
		}
		if op.TargetID == "" {
			return fmt.Errorf("update operation %s has no target id", op.ID)
		}
		photos, err := photo.Normalize(e.client, op.Update.Fields.Photos)
		if err != nil {
			return fmt.Errorf("failed to normalize photos: %w", err)
		}
		fields := op.Update.Fields
		fields.Photos = photos
		if err := e.client.UpdatePet(op.TargetID, fields); err != nil {
			return err
		}
		// The status transition only runs after the field edit succeeds.
		if op.Update.StatusChanged {
			return e.client.UpdatePetStatus(op.TargetID, op.Update.Status)
		}
		return nil

	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}
