// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"errors"
	"slices"
	"testing"

	"github.com/bureau-foundation/secmgr/lib/policyadmin"
	"github.com/bureau-foundation/secmgr/lib/policystore"
	"github.com/bureau-foundation/secmgr/lib/privilegedb"
	"github.com/bureau-foundation/secmgr/lib/testutil"
)

type harness struct {
	reconciler *Reconciler
	db         *privilegedb.DB
	store      *policystore.FakeAdmin
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := privilegedb.Open(privilegedb.Config{Path: testutil.DatabasePath(t, "privilege.db")})
	if err != nil {
		t.Fatalf("privilegedb.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := policystore.NewFakeAdmin()
	admin, err := policyadmin.New(policyadmin.Config{API: store})
	if err != nil {
		t.Fatalf("policyadmin.New: %v", err)
	}
	t.Cleanup(func() { admin.Close() })

	reconciler, err := New(Config{DB: db, Admin: admin})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{reconciler: reconciler, db: db, store: store}
}

// manifestGrants returns the privileges allowed for label in MANIFESTS,
// sorted.
func (h *harness) manifestGrants(label string) []string {
	var privileges []string
	for _, rule := range h.store.Rules("MANIFESTS") {
		if rule.Client == label && rule.Result.Type == policystore.ResultAllow {
			privileges = append(privileges, rule.Privilege)
		}
	}
	slices.Sort(privileges)
	return privileges
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{Admin: &policyadmin.Client{}}); err == nil {
		t.Error("New without DB succeeded")
	}
	if _, err := New(Config{DB: &privilegedb.DB{}}); err == nil {
		t.Error("New without Admin succeeded")
	}
}

func TestInstallGrantsPackagePrivileges(t *testing.T) {
	h := newHarness(t)

	result, err := h.reconciler.InstallApp(InstallRequest{
		AppID:      "app1",
		PkgID:      "pkg",
		Privileges: []string{"net", "camera"},
	})
	if err != nil {
		t.Fatalf("InstallApp app1: %v", err)
	}
	if !result.PkgIDIsNew {
		t.Error("first app: PkgIDIsNew = false, want true")
	}

	result, err = h.reconciler.InstallApp(InstallRequest{
		AppID:      "app2",
		PkgID:      "pkg",
		Privileges: []string{"location", "net"},
	})
	if err != nil {
		t.Fatalf("InstallApp app2: %v", err)
	}
	if result.PkgIDIsNew {
		t.Error("second app: PkgIDIsNew = true, want false")
	}

	if got, want := h.manifestGrants("User::Pkg::pkg"), []string{"camera", "location", "net"}; !slices.Equal(got, want) {
		t.Errorf("MANIFESTS grants = %v, want %v", got, want)
	}

	// The second install only sends what the package did not already
	// hold.
	batches := h.store.Batches()
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(batches))
	}
	second := batches[1]
	if len(second) != 1 || second[0].Privilege != "location" || second[0].User != "*" {
		t.Errorf("second batch = %v, want a single allow of location for *", second)
	}
}

func TestInstallWithoutChangeSendsNothing(t *testing.T) {
	h := newHarness(t)

	request := InstallRequest{AppID: "app", PkgID: "pkg", Privileges: []string{"camera"}}
	if _, err := h.reconciler.InstallApp(request); err != nil {
		t.Fatalf("first InstallApp: %v", err)
	}
	if _, err := h.reconciler.InstallApp(request); err != nil {
		t.Fatalf("second InstallApp: %v", err)
	}
	if calls := h.store.Calls("SetPolicies"); calls != 1 {
		t.Errorf("SetPolicies called %d times, want 1", calls)
	}
}

func TestInstallRollsBackOnStoreFailure(t *testing.T) {
	h := newHarness(t)
	h.store.Fail("SetPolicies", policystore.StatusOperationFailed)

	_, err := h.reconciler.InstallApp(InstallRequest{AppID: "app", PkgID: "pkg", Privileges: []string{"camera"}})
	if !policystore.IsStatus(err, policystore.StatusOperationFailed) {
		t.Fatalf("err = %v, want operation failed", err)
	}

	exists, err := h.db.PkgIDExists("pkg")
	if err != nil {
		t.Fatalf("PkgIDExists: %v", err)
	}
	if exists {
		t.Error("package was committed despite the store failure")
	}
	if privileges, _ := h.db.GetAppPrivileges("app"); len(privileges) != 0 {
		t.Errorf("privileges were committed despite the store failure: %v", privileges)
	}

	// The database is usable again once the store recovers.
	h.store.Fail("SetPolicies", policystore.StatusSuccess)
	result, err := h.reconciler.InstallApp(InstallRequest{AppID: "app", PkgID: "pkg", Privileges: []string{"camera"}})
	if err != nil {
		t.Fatalf("InstallApp after recovery: %v", err)
	}
	if !result.PkgIDIsNew {
		t.Error("after rollback the package should be new again")
	}
}

func TestUninstallRevokesExclusivePrivileges(t *testing.T) {
	h := newHarness(t)

	for _, request := range []InstallRequest{
		{AppID: "app1", PkgID: "pkg", Privileges: []string{"camera", "net"}},
		{AppID: "app2", PkgID: "pkg", Privileges: []string{"net"}},
	} {
		if _, err := h.reconciler.InstallApp(request); err != nil {
			t.Fatalf("InstallApp %s: %v", request.AppID, err)
		}
	}

	// No package id: resolved from the database.
	result, err := h.reconciler.UninstallApp(UninstallRequest{AppID: "app1"})
	if err != nil {
		t.Fatalf("UninstallApp app1: %v", err)
	}
	if result.PkgID != "pkg" {
		t.Errorf("resolved PkgID = %q, want pkg", result.PkgID)
	}
	if result.PkgIDIsNoMore {
		t.Error("app2 remains, but PkgIDIsNoMore = true")
	}
	if got, want := h.manifestGrants("User::Pkg::pkg"), []string{"net"}; !slices.Equal(got, want) {
		t.Errorf("after app1 removal: grants = %v, want %v", got, want)
	}

	result, err = h.reconciler.UninstallApp(UninstallRequest{AppID: "app2", PkgID: "pkg"})
	if err != nil {
		t.Fatalf("UninstallApp app2: %v", err)
	}
	if !result.PkgIDIsNoMore {
		t.Error("last app removed, but PkgIDIsNoMore = false")
	}
	if got := h.manifestGrants("User::Pkg::pkg"); len(got) != 0 {
		t.Errorf("after last removal: grants = %v, want none", got)
	}
}

func TestUninstallRollsBackOnStoreFailure(t *testing.T) {
	h := newHarness(t)

	if _, err := h.reconciler.InstallApp(InstallRequest{AppID: "app", PkgID: "pkg", Privileges: []string{"camera"}}); err != nil {
		t.Fatalf("InstallApp: %v", err)
	}

	h.store.Fail("SetPolicies", policystore.StatusServiceNotAvailable)
	if _, err := h.reconciler.UninstallApp(UninstallRequest{AppID: "app"}); err == nil {
		t.Fatal("UninstallApp succeeded with the store down")
	}

	pkgID, found, err := h.db.GetAppPkgID("app")
	if err != nil {
		t.Fatalf("GetAppPkgID: %v", err)
	}
	if !found || pkgID != "pkg" {
		t.Errorf("application lost despite rollback: %q, %v", pkgID, found)
	}
	if got, _ := h.db.GetAppPrivileges("app"); !slices.Equal(got, []string{"camera"}) {
		t.Errorf("privileges lost despite rollback: %v", got)
	}
}

func TestInvalidRequests(t *testing.T) {
	h := newHarness(t)

	if _, err := h.reconciler.InstallApp(InstallRequest{AppID: "app"}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("install without package: err = %v", err)
	}
	if _, err := h.reconciler.InstallApp(InstallRequest{PkgID: "pkg"}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("install without app: err = %v", err)
	}
	if _, err := h.reconciler.UninstallApp(UninstallRequest{}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("uninstall without app: err = %v", err)
	}
	if _, err := h.reconciler.UninstallApp(UninstallRequest{AppID: "ghost"}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("uninstall of unknown app: err = %v", err)
	}
	if calls := h.store.Calls("SetPolicies"); calls != 0 {
		t.Errorf("invalid requests reached the store %d times", calls)
	}
}

func TestCustomPackageLabel(t *testing.T) {
	h := newHarness(t)
	reconciler, err := New(Config{
		DB:           h.db,
		Admin:        mustAdmin(t, h.store),
		PackageLabel: PrefixLabel("pkg:"),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := reconciler.InstallApp(InstallRequest{AppID: "app", PkgID: "maps", Privileges: []string{"location"}}); err != nil {
		t.Fatalf("InstallApp: %v", err)
	}
	if got := h.manifestGrants("pkg:maps"); !slices.Equal(got, []string{"location"}) {
		t.Errorf("grants under custom label = %v", got)
	}
}

func mustAdmin(t *testing.T, store policystore.AdminAPI) *policyadmin.Client {
	t.Helper()
	admin, err := policyadmin.New(policyadmin.Config{API: store})
	if err != nil {
		t.Fatalf("policyadmin.New: %v", err)
	}
	return admin
}

func TestUserLifecycle(t *testing.T) {
	h := newHarness(t)

	if err := h.reconciler.UserAdd(1000, policyadmin.UserTypeAdmin); err != nil {
		t.Fatalf("UserAdd: %v", err)
	}
	found := false
	for _, rule := range h.store.Rules("MAIN") {
		if rule.User == "1000" && rule.Result == policystore.RedirectTo("USER_TYPE_ADMIN") {
			found = true
		}
	}
	if !found {
		t.Error("UserAdd did not redirect the user to USER_TYPE_ADMIN")
	}

	err := h.reconciler.UserAdd(1001, policyadmin.UserTypeAny)
	if !policystore.IsStatus(err, policystore.StatusInvalidParam) {
		t.Errorf("UserAdd(any): err = %v, want invalid param", err)
	}

	if err := h.reconciler.UserRemove(1000); err != nil {
		t.Fatalf("UserRemove: %v", err)
	}
	if calls := h.store.Calls("Erase"); calls != 1 {
		t.Errorf("Erase called %d times, want 1", calls)
	}
}

func TestInstallRejectsPackageChange(t *testing.T) {
	h := newHarness(t)

	if _, err := h.reconciler.InstallApp(InstallRequest{AppID: "app", PkgID: "pkgA", Privileges: []string{"camera"}}); err != nil {
		t.Fatalf("InstallApp into pkgA: %v", err)
	}

	_, err := h.reconciler.InstallApp(InstallRequest{AppID: "app", PkgID: "pkgB", Privileges: []string{"location"}})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("reinstall into pkgB: err = %v, want ErrInvalidRequest", err)
	}

	pkgID, found, err := h.db.GetAppPkgID("app")
	if err != nil || !found || pkgID != "pkgA" {
		t.Errorf("GetAppPkgID = %q, %v, %v; want pkgA", pkgID, found, err)
	}
	if got, _ := h.db.GetPkgPrivileges("pkgA"); !slices.Equal(got, []string{"camera"}) {
		t.Errorf("pkgA privileges = %v, want [camera]", got)
	}
	if got := h.manifestGrants("User::Pkg::pkgA"); !slices.Equal(got, []string{"camera"}) {
		t.Errorf("pkgA grants = %v, want [camera]", got)
	}
	if got := h.manifestGrants("User::Pkg::pkgB"); len(got) != 0 {
		t.Errorf("pkgB grants = %v, want none", got)
	}
	if calls := h.store.Calls("SetPolicies"); calls != 1 {
		t.Errorf("SetPolicies called %d times, want 1", calls)
	}
}

func TestUninstallRejectsWrongPackage(t *testing.T) {
	h := newHarness(t)

	if _, err := h.reconciler.InstallApp(InstallRequest{AppID: "app", PkgID: "pkgA", Privileges: []string{"camera"}}); err != nil {
		t.Fatalf("InstallApp: %v", err)
	}

	_, err := h.reconciler.UninstallApp(UninstallRequest{AppID: "app", PkgID: "pkgB"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("UninstallApp from pkgB: err = %v, want ErrInvalidRequest", err)
	}

	if got, _ := h.db.GetPkgPrivileges("pkgA"); !slices.Equal(got, []string{"camera"}) {
		t.Errorf("pkgA privileges = %v, want [camera]", got)
	}
	if got := h.manifestGrants("User::Pkg::pkgA"); !slices.Equal(got, []string{"camera"}) {
		t.Errorf("pkgA grants = %v, want [camera]", got)
	}

	// The matching package id is accepted.
	result, err := h.reconciler.UninstallApp(UninstallRequest{AppID: "app", PkgID: "pkgA"})
	if err != nil {
		t.Fatalf("UninstallApp from pkgA: %v", err)
	}
	if result.PkgID != "pkgA" || !result.PkgIDIsNoMore {
		t.Errorf("result = %+v, want pkgA with PkgIDIsNoMore", result)
	}
}

// commitFailingDB fails the next COMMIT the way a busy database would,
// leaving the transaction open.
type commitFailingDB struct {
	*privilegedb.DB
	failNextCommit bool
	rollbacks      int
}

func (d *commitFailingDB) CommitTransaction() error {
	if d.failNextCommit {
		d.failNextCommit = false
		return errors.New("database is locked")
	}
	return d.DB.CommitTransaction()
}

func (d *commitFailingDB) RollbackTransaction() error {
	d.rollbacks++
	return d.DB.RollbackTransaction()
}

func TestCommitFailureClosesTransaction(t *testing.T) {
	h := newHarness(t)
	db := &commitFailingDB{DB: h.db, failNextCommit: true}
	reconciler, err := New(Config{DB: db, Admin: mustAdmin(t, h.store)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := reconciler.InstallApp(InstallRequest{AppID: "app", PkgID: "pkg", Privileges: []string{"camera"}}); err == nil {
		t.Fatal("InstallApp succeeded although COMMIT failed")
	}
	if db.rollbacks != 1 {
		t.Errorf("rollbacks after failed commit = %d, want 1", db.rollbacks)
	}

	// A new transaction can start.
	if _, err := reconciler.InstallApp(InstallRequest{AppID: "other", PkgID: "pkg2", Privileges: []string{"net"}}); err != nil {
		t.Fatalf("InstallApp after failed commit: %v", err)
	}
}
