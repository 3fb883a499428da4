/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomoncle/entitygate/database"
	"github.com/tomoncle/entitygate/types"
)

// Provider owns one persistence Context and the transaction boundary around
// it. It is the transaction scope handed to every repository that should
// commit together, and like the Context it is not safe for concurrent use.
type Provider struct {
	store    StoreClient
	pc       *Context
	buffered bool
	disposed bool
	log      database.Logger
}

type Option func(*Provider)

// WithTransactionBuffered makes mutations accumulate until SaveChanges
// instead of committing one by one.
func WithTransactionBuffered(buffered bool) Option {
	return func(p *Provider) { p.buffered = buffered }
}

func WithLogger(log database.Logger) Option {
	return func(p *Provider) {
		if log != nil {
			p.log = log
		}
	}
}

// NewProvider returns a provider over store. The store is opened on first
// use.
func NewProvider(store StoreClient, opts ...Option) *Provider {
	p := &Provider{store: store, log: database.GetLogger()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Store returns the underlying client.
func (p *Provider) Store() StoreClient { return p.store }

// TransactionBuffered reports whether mutations wait for SaveChanges.
func (p *Provider) TransactionBuffered() bool { return p.buffered }

// Disposed reports whether Dispose has run.
func (p *Provider) Disposed() bool { return p.disposed }

// Get returns the context, opening the store connection if needed.
func (p *Provider) Get(ctx context.Context) (*Context, error) {
	if p.disposed {
		return nil, types.ErrDisposed
	}
	if !p.store.IsOpen() {
		if err := p.store.Open(ctx); err != nil {
			return nil, fmt.Errorf("open store: %w", database.ClassifyError(err))
		}
		p.log.Debug("store connection opened")
	}
	if p.pc == nil {
		p.pc = newContext(p.store)
	}
	return p.pc, nil
}

// BeginTransaction starts a transaction unless one is already active.
func (p *Provider) BeginTransaction(ctx context.Context) error {
	if _, err := p.Get(ctx); err != nil {
		return err
	}
	if p.store.InTransaction() {
		return nil
	}
	if err := p.store.Begin(ctx); err != nil {
		return fmt.Errorf("%w: begin: %w", types.ErrTransactionFailure, database.ClassifyError(err))
	}
	p.log.Debug("transaction started")
	return nil
}

// Commit commits the active transaction. Without one it does nothing.
func (p *Provider) Commit(ctx context.Context) error {
	if p.disposed {
		return types.ErrDisposed
	}
	if !p.store.IsOpen() || !p.store.InTransaction() {
		return nil
	}
	if err := p.store.Commit(ctx); err != nil {
		return failure("commit", err)
	}
	p.log.Debug("transaction committed")
	return nil
}

// Rollback rolls back the active transaction. Tracked states are kept.
func (p *Provider) Rollback(ctx context.Context) error {
	if p.disposed {
		return types.ErrDisposed
	}
	if !p.store.IsOpen() || !p.store.InTransaction() {
		return nil
	}
	if err := p.store.Rollback(ctx); err != nil {
		return fmt.Errorf("%w: rollback: %w", types.ErrTransactionFailure, database.ClassifyError(err))
	}
	p.log.Debug("transaction rolled back")
	return nil
}

// Flush writes pending changes on the auto-commit path. Inside an active
// transaction the writes join it and are committed by the caller; otherwise
// they run in a transaction of their own. On failure that transaction is
// rolled back and the entries stay pending.
func (p *Provider) Flush(ctx context.Context) error {
	pc, err := p.Get(ctx)
	if err != nil {
		return err
	}
	if !pc.HasChanges() {
		return nil
	}
	if p.store.InTransaction() {
		if err := pc.apply(ctx); err != nil {
			return database.ClassifyError(err)
		}
		pc.acceptChanges()
		return nil
	}
	if err := p.BeginTransaction(ctx); err != nil {
		return err
	}
	if err := pc.apply(ctx); err != nil {
		p.rollbackQuietly(ctx)
		return database.ClassifyError(err)
	}
	if err := p.Commit(ctx); err != nil {
		p.rollbackQuietly(ctx)
		return err
	}
	pc.acceptChanges()
	return nil
}

// SaveChanges writes every pending change of every repository sharing this
// provider inside one transaction and commits it. On any failure the
// transaction is rolled back, the connection closed and the error returned;
// it wraps types.ErrTransactionFailure unless the store reported a
// concurrency conflict.
func (p *Provider) SaveChanges(ctx context.Context) error {
	pc, err := p.Get(ctx)
	if err != nil {
		return err
	}
	if err := p.BeginTransaction(ctx); err != nil {
		p.abort(ctx)
		return err
	}
	if err := pc.apply(ctx); err != nil {
		p.abort(ctx)
		return failure("save changes", err)
	}
	if err := p.store.Commit(ctx); err != nil {
		p.abort(ctx)
		return failure("commit", err)
	}
	pc.acceptChanges()
	p.log.Debug("changes saved")
	return nil
}

// Dispose flushes pending changes while the connection is still open, then
// releases the context and closes the connection. Calling it again does
// nothing.
func (p *Provider) Dispose(ctx context.Context) error {
	if p.disposed {
		return nil
	}
	var errs []error
	if p.store.IsOpen() {
		if p.pc != nil && p.pc.HasChanges() {
			if p.store.InTransaction() {
				errs = append(errs, p.SaveChanges(ctx))
			} else {
				errs = append(errs, p.Flush(ctx))
			}
		}
		if p.store.IsOpen() {
			if p.store.InTransaction() {
				p.rollbackQuietly(ctx)
			}
			errs = append(errs, p.store.Close())
		}
	}
	if p.pc != nil {
		p.pc.clear()
		p.pc = nil
	}
	p.disposed = true
	p.log.Debug("provider disposed")
	return errors.Join(errs...)
}

// Discard is Dispose without the flush: pending changes are dropped, an open
// transaction is rolled back and the connection closed.
func (p *Provider) Discard(ctx context.Context) error {
	if p.disposed {
		return nil
	}
	var err error
	if p.store.IsOpen() {
		p.rollbackQuietly(ctx)
		err = p.store.Close()
	}
	if p.pc != nil {
		p.pc.clear()
		p.pc = nil
	}
	p.disposed = true
	p.log.Debug("provider discarded")
	return err
}

// abort rolls back and closes the connection after a failed SaveChanges.
func (p *Provider) abort(ctx context.Context) {
	p.rollbackQuietly(ctx)
	if p.store.IsOpen() {
		if err := p.store.Close(); err != nil {
			p.log.Warn("close store after failure", "error", err)
		}
	}
}

func (p *Provider) rollbackQuietly(ctx context.Context) {
	if !p.store.IsOpen() || !p.store.InTransaction() {
		return
	}
	if err := p.store.Rollback(ctx); err != nil {
		p.log.Warn("rollback failed", "error", err)
	}
}

func failure(op string, err error) error {
	err = database.ClassifyError(err)
	if errors.Is(err, types.ErrConcurrencyConflict) || errors.Is(err, types.ErrTransactionFailure) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", types.ErrTransactionFailure, op, err)
}
