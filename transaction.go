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

package entitygate

import (
	"context"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/tomoncle/entitygate/database"
	"github.com/tomoncle/entitygate/metadata"
	"github.com/tomoncle/entitygate/persistence"
	"github.com/tomoncle/entitygate/repository"
	"github.com/tomoncle/entitygate/types"
)

// Tx is the scope handed to a Transaction callback. Repositories taken from
// it share one buffered provider and are committed together.
type Tx struct {
	provider *persistence.Provider
	resolver *metadata.Resolver
}

// Provider returns the shared provider.
func (tx *Tx) Provider() *persistence.Provider { return tx.provider }

// Repo returns a repository of T on tx.
func Repo[T any](tx *Tx, opts ...repository.Option[T]) (*repository.Repository[T], error) {
	return repository.New[T](tx.provider, tx.resolver, opts...)
}

// NewProvider returns a provider over the global database, buffered when the
// gateway configuration says so; opts are applied after that default.
func NewProvider(opts ...persistence.Option) (*persistence.Provider, error) {
	db := database.GetDB()
	if db == nil {
		return nil, fmt.Errorf("%w: database not initialized", types.ErrConfiguration)
	}
	cfg := database.GetConfig().GatewayConfig
	opts = append([]persistence.Option{persistence.WithTransactionBuffered(cfg.TransactionBuffered)}, opts...)
	return persistence.NewProvider(persistence.NewBunStore(db), opts...), nil
}

// Transaction runs fn inside one database transaction on the global
// database and commits everything tracked through tx when fn returns nil.
// When fn fails nothing is written.
func Transaction(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	return TransactionOn(ctx, database.GetDB(), fn)
}

// TransactionOn is Transaction on an explicit database.
func TransactionOn(ctx context.Context, db *bun.DB, fn func(ctx context.Context, tx *Tx) error) error {
	if db == nil {
		return fmt.Errorf("%w: database not initialized", types.ErrConfiguration)
	}
	store := persistence.NewBunStore(db)
	tx := &Tx{
		provider: persistence.NewProvider(store, persistence.WithTransactionBuffered(true)),
		resolver: metadata.NewResolver(store),
	}
	if err := tx.provider.BeginTransaction(ctx); err != nil {
		return errors.Join(err, tx.provider.Discard(ctx))
	}
	if err := fn(ctx, tx); err != nil {
		return errors.Join(err, tx.provider.Discard(ctx))
	}
	if err := tx.provider.SaveChanges(ctx); err != nil {
		return errors.Join(err, tx.provider.Discard(ctx))
	}
	return tx.provider.Dispose(ctx)
}
