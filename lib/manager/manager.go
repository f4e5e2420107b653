// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manager

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/secmgr/lib/config"
	"github.com/bureau-foundation/secmgr/lib/permcheck"
	"github.com/bureau-foundation/secmgr/lib/policyadmin"
	"github.com/bureau-foundation/secmgr/lib/policystore"
	"github.com/bureau-foundation/secmgr/lib/privilegedb"
	"github.com/bureau-foundation/secmgr/lib/reconcile"
)

// Config holds the parameters for opening a Manager.
type Config struct {
	// Settings is the loaded configuration. Required.
	Settings *config.Config

	// AdminAPI is the store's administrative handle. Required. Open
	// takes ownership: the handle is finished by Close, or before Open
	// returns an error.
	AdminAPI policystore.AdminAPI

	// AsyncDial opens the store's asynchronous handle. Required.
	AsyncDial policystore.AsyncDialer

	// Logger is passed to every component. If nil, a no-op logger is
	// used.
	Logger *slog.Logger

	// Registerer receives the permission client's metrics. If nil,
	// they are not registered.
	Registerer prometheus.Registerer
}

// Manager owns the components of the policy core.
type Manager struct {
	logger      *slog.Logger
	db          *privilegedb.DB
	admin       *policyadmin.Client
	reconciler  *reconcile.Reconciler
	permissions *permcheck.Client
}

// Open validates cfg.Settings and builds every component. If any step
// fails, the components built so far are closed.
func Open(cfg Config) (*Manager, error) {
	if cfg.Settings == nil {
		return nil, errors.New("manager: Settings is required")
	}
	if cfg.AdminAPI == nil {
		return nil, errors.New("manager: AdminAPI is required")
	}
	if cfg.AsyncDial == nil {
		return nil, errors.New("manager: AsyncDial is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	m := &Manager{logger: logger}
	success := false
	defer func() {
		if !success {
			if err := m.Close(); err != nil {
				logger.Warn("cleanup after failed open", "error", err)
			}
		}
	}()

	admin, err := policyadmin.New(policyadmin.Config{
		API:    cfg.AdminAPI,
		Logger: logger.With("component", "policyadmin"),
	})
	if err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}
	m.admin = admin

	settings := cfg.Settings
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("manager: invalid configuration: %w", err)
	}
	if err := settings.EnsurePaths(); err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}

	db, err := privilegedb.Open(privilegedb.Config{
		Path:   settings.Database.Path,
		Logger: logger.With("component", "privilegedb"),
	})
	if err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}
	m.db = db

	if settings.Policy.FetchDescriptionsOnStart {
		if err := admin.FetchPolicyDescriptions(true); err != nil {
			return nil, fmt.Errorf("manager: loading policy descriptions: %w", err)
		}
	}

	reconciler, err := reconcile.New(reconcile.Config{
		DB:           db,
		Admin:        admin,
		Logger:       logger.With("component", "reconcile"),
		PackageLabel: reconcile.PrefixLabel(settings.Policy.PackageLabelPrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}
	m.reconciler = reconciler

	permissions, err := permcheck.New(permcheck.Config{
		Dial:       cfg.AsyncDial,
		Logger:     logger.With("component", "permcheck"),
		Registerer: cfg.Registerer,
	})
	if err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}
	m.permissions = permissions

	logger.Info("policy core opened",
		"database", settings.Database.Path,
		"package_label_prefix", settings.Policy.PackageLabelPrefix,
	)
	success = true
	return m, nil
}

// Reconciler returns the lifecycle reconciler.
func (m *Manager) Reconciler() *reconcile.Reconciler { return m.reconciler }

// Admin returns the administrative policy client.
func (m *Manager) Admin() *policyadmin.Client { return m.admin }

// Permissions returns the asynchronous permission client.
func (m *Manager) Permissions() *permcheck.Client { return m.permissions }

// DB returns the privilege database.
func (m *Manager) DB() *privilegedb.DB { return m.db }

// Close releases every component in reverse order of construction and
// reports all failures. Calling Close more than once is a no-op.
func (m *Manager) Close() error {
	var errs []error
	if m.permissions != nil {
		if err := m.permissions.Close(); err != nil {
			errs = append(errs, err)
		}
		m.permissions = nil
	}
	m.reconciler = nil
	if m.db != nil {
		if err := m.db.Close(); err != nil {
			errs = append(errs, err)
		}
		m.db = nil
	}
	if m.admin != nil {
		if err := m.admin.Close(); err != nil {
			errs = append(errs, err)
		}
		m.admin = nil
	}
	return errors.Join(errs...)
}
