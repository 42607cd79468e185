package vault

import (
	"os"
	"path/filepath"
	"testing"
)

// setTestHome points the convault directory at a temp dir for the test.
func setTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CONVAULT_PROFILE", "")
	ClearUserConfigCache()
	t.Cleanup(ClearUserConfigCache)
	return home
}

func TestProfileLifecycle(t *testing.T) {
	setTestHome(t)

	profiles, err := ListProfiles()
	if err != nil {
		t.Fatalf("ListProfiles failed: %v", err)
	}
	if len(profiles) != 0 {
		t.Fatalf("fresh home lists %v, want none", profiles)
	}

	if err := CreateProfile("work"); err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}
	if err := CreateProfile("work"); err == nil {
		t.Error("expected error creating duplicate profile")
	}

	exists, err := ProfileExists("work")
	if err != nil || !exists {
		t.Fatalf("ProfileExists(work) = %v, %v", exists, err)
	}

	profiles, err = ListProfiles()
	if err != nil {
		t.Fatalf("ListProfiles failed: %v", err)
	}
	if len(profiles) != 1 || profiles[0] != "work" {
		t.Errorf("ListProfiles = %v, want [work]", profiles)
	}

	if err := SetDefaultProfile("work"); err != nil {
		t.Fatalf("SetDefaultProfile failed: %v", err)
	}
	if got := GetEffectiveProfile(""); got != "work" {
		t.Errorf("GetEffectiveProfile = %q, want work", got)
	}

	if err := DeleteProfile("work"); err != nil {
		t.Fatalf("DeleteProfile failed: %v", err)
	}
	if exists, _ := ProfileExists("work"); exists {
		t.Error("profile still exists after delete")
	}
	// Default falls back once the configured default is gone
	if got := GetEffectiveProfile(""); got != DefaultProfile {
		t.Errorf("GetEffectiveProfile after delete = %q, want %q", got, DefaultProfile)
	}
}

func TestDeleteProfileGuards(t *testing.T) {
	setTestHome(t)

	if err := DeleteProfile("ghost"); err == nil {
		t.Error("expected error deleting a profile that does not exist")
	}

	if err := CreateProfile(DefaultProfile); err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}
	if err := DeleteProfile(DefaultProfile); err == nil {
		t.Error("expected error deleting the only remaining profile")
	}
}

func TestGetEffectiveProfilePrecedence(t *testing.T) {
	setTestHome(t)

	if got := GetEffectiveProfile("explicit"); got != "explicit" {
		t.Errorf("explicit profile = %q", got)
	}

	t.Setenv("CONVAULT_PROFILE", "from-env")
	if got := GetEffectiveProfile(""); got != "from-env" {
		t.Errorf("env profile = %q", got)
	}
	if got := GetEffectiveProfile("explicit"); got != "explicit" {
		t.Errorf("explicit should beat env, got %q", got)
	}

	t.Setenv("CONVAULT_PROFILE", "")
	if got := GetEffectiveProfile(""); got != DefaultProfile {
		t.Errorf("fallback profile = %q, want %q", got, DefaultProfile)
	}
}

func TestGetProfileDirRejectsTraversal(t *testing.T) {
	setTestHome(t)

	if _, err := GetProfileDir(".."); err == nil {
		t.Error("expected error for .. profile name")
	}

	dir, err := GetProfileDir("nested/evil")
	if err != nil {
		t.Fatalf("GetProfileDir failed: %v", err)
	}
	if filepath.Base(dir) != "evil" {
		t.Errorf("traversal not stripped: %s", dir)
	}
}

func TestOpenProfileStore(t *testing.T) {
	setTestHome(t)
	ctx := t.Context()

	s, err := OpenProfileStore(ctx, "scratch")
	if err != nil {
		t.Fatalf("OpenProfileStore failed: %v", err)
	}
	defer s.Close()

	body := testBody(t, "c1", "First", "hello")
	if _, err := s.Save(ctx, "c1", body, ""); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	dir, err := GetProfileDir("scratch")
	if err != nil {
		t.Fatalf("GetProfileDir failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, indexFileName)); err != nil {
		t.Errorf("profile index not persisted: %v", err)
	}
}
