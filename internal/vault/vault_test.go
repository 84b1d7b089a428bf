package vault

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestEnvKey(t *testing.T) {
	if got := EnvKey("my-work-vpn"); got != "VLESSLINK_UUID_MY_WORK_VPN" {
		t.Errorf("EnvKey = %q", got)
	}
}

func TestEnvVaultLookup(t *testing.T) {
	id := uuid.New()
	t.Setenv("VLESSLINK_UUID_WORK", id.String())

	got, err := EnvVault{}.Credential("work")
	if err != nil {
		t.Fatalf("credential: %v", err)
	}
	if got != id {
		t.Errorf("credential = %s, want %s", got, id)
	}
}

func TestEnvVaultMissing(t *testing.T) {
	_, err := EnvVault{}.Credential("nonexistent-profile")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestEnvVaultCorruptValueNotEchoed(t *testing.T) {
	const raw = "deadbeef-not-a-real-uuid-value"
	t.Setenv("VLESSLINK_UUID_BROKEN", raw)

	_, err := EnvVault{}.Credential("broken")
	if err == nil {
		t.Fatal("corrupt credential accepted")
	}
	if strings.Contains(err.Error(), raw) {
		t.Errorf("error %q echoes the stored value", err)
	}
}

func TestStaticVault(t *testing.T) {
	id := uuid.New()
	v := Static{"p1": id}

	got, err := v.Credential("p1")
	if err != nil || got != id {
		t.Fatalf("credential = (%s, %v)", got, err)
	}
	if _, err := v.Credential("p2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
