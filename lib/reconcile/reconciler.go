// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/secmgr/lib/policyadmin"
	"github.com/bureau-foundation/secmgr/lib/policystore"
)

// ErrInvalidRequest reports a lifecycle request missing a required
// identifier.
var ErrInvalidRequest = errors.New("reconcile: invalid request")

// DefaultPackageLabelPrefix is prepended to a package id to form the
// client label its rules are stored under.
const DefaultPackageLabelPrefix = "User::Pkg::"

// PrivilegeStore is the subset of the privilege database the
// reconciler uses. *privilegedb.DB implements it.
type PrivilegeStore interface {
	BeginTransaction() error
	CommitTransaction() error
	RollbackTransaction() error
	AddApplication(appID, pkgID string) (pkgIDIsNew bool, err error)
	RemoveApplication(appID, pkgID string) (pkgIDIsNoMore bool, err error)
	GetPkgPrivileges(pkgID string) ([]string, error)
	GetAppPkgID(appID string) (pkgID string, found bool, err error)
	RemoveAppPrivileges(appID string) error
	UpdateAppPrivileges(appID string, privileges []string) error
}

// PolicyAdmin is the subset of the administrative client the
// reconciler uses. *policyadmin.Client implements it.
type PolicyAdmin interface {
	UpdateAppPolicy(label, user string, oldPrivileges, newPrivileges []string) error
	UserInit(uid uint32, userType policyadmin.UserType) error
	UserRemove(uid uint32) error
}

// Config holds the parameters for creating a Reconciler.
type Config struct {
	// DB is the privilege database. Required.
	DB PrivilegeStore

	// Admin is the administrative client. Required.
	Admin PolicyAdmin

	// Logger receives operational messages. If nil, a no-op logger is
	// used.
	Logger *slog.Logger

	// PackageLabel maps a package id to the client label of its rules.
	// If nil, DefaultPackageLabelPrefix is prepended.
	PackageLabel func(pkgID string) string
}

// Reconciler applies lifecycle events. It is safe for concurrent use;
// operations run one at a time.
type Reconciler struct {
	mu           sync.Mutex
	db           PrivilegeStore
	admin        PolicyAdmin
	logger       *slog.Logger
	packageLabel func(string) string
}

// New creates a Reconciler.
func New(cfg Config) (*Reconciler, error) {
	if cfg.DB == nil {
		return nil, errors.New("reconcile: DB is required")
	}
	if cfg.Admin == nil {
		return nil, errors.New("reconcile: Admin is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	packageLabel := cfg.PackageLabel
	if packageLabel == nil {
		packageLabel = PrefixLabel(DefaultPackageLabelPrefix)
	}

	return &Reconciler{
		db:           cfg.DB,
		admin:        cfg.Admin,
		logger:       logger,
		packageLabel: packageLabel,
	}, nil
}

// PrefixLabel returns a PackageLabel function that prepends prefix.
func PrefixLabel(prefix string) func(string) string {
	return func(pkgID string) string { return prefix + pkgID }
}

// InstallRequest describes an application being installed.
type InstallRequest struct {
	AppID string
	PkgID string

	// Privileges is the complete set the application declares. It
	// replaces whatever the application held before.
	Privileges []string
}

// InstallResult reports what an install changed.
type InstallResult struct {
	// PkgIDIsNew is true when the application is the first of its
	// package.
	PkgIDIsNew bool
}

// UninstallRequest describes an application being removed.
type UninstallRequest struct {
	AppID string

	// PkgID may be empty, in which case the package is looked up from
	// the database. When set, it must match the registered package.
	PkgID string
}

// UninstallResult reports what an uninstall changed.
type UninstallResult struct {
	// PkgID is the package the application belonged to.
	PkgID string

	// PkgIDIsNoMore is true when the application was the last of its
	// package.
	PkgIDIsNoMore bool
}

// withTransaction runs fn inside a database transaction, committing
// when fn succeeds and rolling back otherwise.
func (r *Reconciler) withTransaction(operation string, fn func() error) error {
	if err := r.db.BeginTransaction(); err != nil {
		return fmt.Errorf("reconcile: %s: %w", operation, err)
	}

	if err := fn(); err != nil {
		if rollbackErr := r.db.RollbackTransaction(); rollbackErr != nil {
			r.logger.Error("rollback failed", "operation", operation, "error", rollbackErr)
			err = errors.Join(err, rollbackErr)
		}
		return fmt.Errorf("reconcile: %s: %w", operation, err)
	}

	if err := r.db.CommitTransaction(); err != nil {
		// The store already holds the batch and keeps it.
		r.logger.Error("commit failed after policy update", "operation", operation, "error", err)
		// A failed COMMIT can leave the transaction open, which would
		// make every later BEGIN fail.
		if rollbackErr := r.db.RollbackTransaction(); rollbackErr != nil {
			r.logger.Error("rollback after failed commit", "operation", operation, "error", rollbackErr)
		}
		return fmt.Errorf("reconcile: %s: %w", operation, err)
	}
	return nil
}

// InstallApp registers the application and grants its privileges. An
// application already registered under another package is rejected
// with ErrInvalidRequest.
func (r *Reconciler) InstallApp(request InstallRequest) (InstallResult, error) {
	if request.AppID == "" || request.PkgID == "" {
		return InstallResult{}, fmt.Errorf("%w: install needs both app and package ids", ErrInvalidRequest)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var result InstallResult
	err := r.withTransaction("install "+request.AppID, func() error {
		registeredPkgID, found, err := r.db.GetAppPkgID(request.AppID)
		if err != nil {
			return err
		}
		if found && registeredPkgID != request.PkgID {
			return fmt.Errorf("%w: application %s belongs to package %s, not %s",
				ErrInvalidRequest, request.AppID, registeredPkgID, request.PkgID)
		}

		pkgIDIsNew, err := r.db.AddApplication(request.AppID, request.PkgID)
		if err != nil {
			return err
		}
		result.PkgIDIsNew = pkgIDIsNew

		oldPrivileges, err := r.db.GetPkgPrivileges(request.PkgID)
		if err != nil {
			return err
		}
		if err := r.db.UpdateAppPrivileges(request.AppID, request.Privileges); err != nil {
			return err
		}
		newPrivileges, err := r.db.GetPkgPrivileges(request.PkgID)
		if err != nil {
			return err
		}

		return r.admin.UpdateAppPolicy(r.packageLabel(request.PkgID), policystore.Wildcard,
			oldPrivileges, newPrivileges)
	})
	if err != nil {
		return InstallResult{}, err
	}

	r.logger.Info("application installed",
		"app", request.AppID,
		"pkg", request.PkgID,
		"privileges", len(request.Privileges),
		"pkg_is_new", result.PkgIDIsNew,
	)
	return result, nil
}

// UninstallApp unregisters the application and revokes the privileges
// no remaining application of its package declares.
func (r *Reconciler) UninstallApp(request UninstallRequest) (UninstallResult, error) {
	if request.AppID == "" {
		return UninstallResult{}, fmt.Errorf("%w: uninstall needs an app id", ErrInvalidRequest)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var result UninstallResult
	err := r.withTransaction("uninstall "+request.AppID, func() error {
		pkgID, found, err := r.db.GetAppPkgID(request.AppID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: application %s is not installed", ErrInvalidRequest, request.AppID)
		}
		if request.PkgID != "" && request.PkgID != pkgID {
			return fmt.Errorf("%w: application %s belongs to package %s, not %s",
				ErrInvalidRequest, request.AppID, pkgID, request.PkgID)
		}
		result.PkgID = pkgID

		oldPrivileges, err := r.db.GetPkgPrivileges(result.PkgID)
		if err != nil {
			return err
		}
		if err := r.db.RemoveAppPrivileges(request.AppID); err != nil {
			return err
		}
		pkgIDIsNoMore, err := r.db.RemoveApplication(request.AppID, result.PkgID)
		if err != nil {
			return err
		}
		result.PkgIDIsNoMore = pkgIDIsNoMore

		newPrivileges, err := r.db.GetPkgPrivileges(result.PkgID)
		if err != nil {
			return err
		}

		return r.admin.UpdateAppPolicy(r.packageLabel(result.PkgID), policystore.Wildcard,
			oldPrivileges, newPrivileges)
	})
	if err != nil {
		return UninstallResult{}, err
	}

	r.logger.Info("application uninstalled",
		"app", request.AppID,
		"pkg", result.PkgID,
		"pkg_is_no_more", result.PkgIDIsNoMore,
	)
	return result, nil
}

// UserAdd points uid at the privilege template of userType.
func (r *Reconciler) UserAdd(uid uint32, userType policyadmin.UserType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.admin.UserInit(uid, userType); err != nil {
		return fmt.Errorf("reconcile: adding user %d: %w", uid, err)
	}
	r.logger.Info("user added", "uid", uid, "type", userType.String())
	return nil
}

// UserRemove erases the policy rules of uid. Database rows keyed by
// uid are not this package's concern.
func (r *Reconciler) UserRemove(uid uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.admin.UserRemove(uid); err != nil {
		return fmt.Errorf("reconcile: removing user %d: %w", uid, err)
	}
	r.logger.Info("user removed", "uid", uid)
	return nil
}
