package env

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindDotEnvWalksUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(root, ".env")
	if err := os.WriteFile(want, []byte("X=1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := findDotEnv(nested)
	if err != nil {
		t.Fatalf("findDotEnv() error = %v", err)
	}
	if got != want {
		t.Errorf("findDotEnv() = %q, want %q", got, want)
	}
}

func TestFindDotEnvIgnoresDirectory(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, ".env"), 0o755); err != nil {
		t.Fatal(err)
	}
	got, err := findDotEnv(root)
	if err != nil {
		t.Fatal(err)
	}
	if got == filepath.Join(root, ".env") {
		t.Error("a .env directory should be skipped")
	}
}

func TestLoadFromDoesNotOverride(t *testing.T) {
	root := t.TempDir()
	content := "LOCALOTA_TEST_A=from-file\nLOCALOTA_TEST_B=from-file\n"
	if err := os.WriteFile(filepath.Join(root, ".env"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LOCALOTA_TEST_A", "from-env")
	t.Setenv("LOCALOTA_TEST_B", "")
	os.Unsetenv("LOCALOTA_TEST_B")
	t.Cleanup(func() { os.Unsetenv("LOCALOTA_TEST_B") })

	path, err := loadFrom(root)
	if err != nil {
		t.Fatalf("loadFrom() error = %v", err)
	}
	if path == "" {
		t.Fatal("expected a .env to be loaded")
	}
	if got := os.Getenv("LOCALOTA_TEST_A"); got != "from-env" {
		t.Errorf("LOCALOTA_TEST_A = %q, existing values must win", got)
	}
	if got := os.Getenv("LOCALOTA_TEST_B"); got != "from-file" {
		t.Errorf("LOCALOTA_TEST_B = %q", got)
	}
}

func TestEnsureSkippedUnderTest(t *testing.T) {
	t.Setenv("GOTEST_LOAD_DOTENV", "")
	if err := Ensure(); err != nil {
		t.Errorf("Ensure() error = %v", err)
	}
	if LoadedPath() != "" {
		t.Error("nothing should load under go test")
	}
}

func TestStringAndInt(t *testing.T) {
	t.Setenv(Device, "  10.0.0.9 ")
	t.Setenv(Port, "8123")
	t.Setenv(Profile, "")

	if got := String(Device, "x"); got != "10.0.0.9" {
		t.Errorf("String() = %q", got)
	}
	if got := String(Profile, "default"); got != "default" {
		t.Errorf("String() blank = %q", got)
	}
	if got := Int(Port, 8000); got != 8123 {
		t.Errorf("Int() = %d", got)
	}

	t.Setenv(Port, "eighty")
	if got := Int(Port, 8000); got != 8000 {
		t.Errorf("Int() non-numeric = %d, want default", got)
	}
}
