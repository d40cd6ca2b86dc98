package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestGetConfigDir(t *testing.T) {
	t.Setenv(ConfigDirEnv, "")
	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}

	if configDir == "" {
		t.Error("GetConfigDir() returned empty string")
	}

	if !strings.Contains(configDir, "batchpair") {
		t.Errorf("GetConfigDir() = %v, should contain 'batchpair'", configDir)
	}

	switch runtime.GOOS {
	case "windows":
		if !strings.Contains(configDir, "AppData") && !strings.Contains(configDir, "Local") {
			t.Errorf("Windows config dir should contain 'AppData' or 'Local', got: %v", configDir)
		}
	case "darwin", "linux":
		if os.Getenv("XDG_CONFIG_HOME") == "" && !strings.Contains(configDir, ".config") {
			t.Errorf("Unix config dir should contain '.config', got: %v", configDir)
		}
	}
}

func TestGetConfigDir_XDG(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG_CONFIG_HOME is only honoured on linux")
	}
	tmpDir := t.TempDir()
	t.Setenv(ConfigDirEnv, "")
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if want := filepath.Join(tmpDir, "batchpair"); configDir != want {
		t.Errorf("GetConfigDir() = %v, want %v", configDir, want)
	}
}

func TestGetConfigDir_Override(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "custom")
	t.Setenv(ConfigDirEnv, dir)

	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if configDir != dir {
		t.Errorf("GetConfigDir() = %v, want %v", configDir, dir)
	}
}

func TestGetConfigPath(t *testing.T) {
	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}

	if filepath.Base(configPath) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", configPath)
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()

	if reg.Version != CurrentVersion {
		t.Errorf("NewRegistry().Version = %v, want %v", reg.Version, CurrentVersion)
	}

	if reg.Devices == nil {
		t.Error("NewRegistry().Devices should not be nil")
	}

	if reg.Preferences == nil {
		t.Fatal("NewRegistry().Preferences should not be nil")
	}

	if reg.Preferences.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", reg.Preferences.PollInterval)
	}

	if reg.Preferences.DiscoverTimeout != 10*time.Second {
		t.Errorf("DiscoverTimeout = %v, want 10s", reg.Preferences.DiscoverTimeout)
	}
}

func TestRegistryEnsureDevice(t *testing.T) {
	reg := NewRegistry()

	device1 := reg.EnsureDevice("SN-000001")
	if device1 == nil {
		t.Fatal("EnsureDevice() returned nil")
	}

	device2 := reg.EnsureDevice("SN-000001")
	if device1 != device2 {
		t.Error("EnsureDevice() should return same instance for same serial")
	}

	device3 := reg.EnsureDevice("SN-000002")
	if device1 == device3 {
		t.Error("EnsureDevice() should create new instance for different serial")
	}

	var empty Registry
	if empty.EnsureDevice("SN-000003") == nil {
		t.Error("EnsureDevice() on a zero Registry should initialise the map")
	}
}

func TestRegistryRecordPairing(t *testing.T) {
	reg := NewRegistry()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	groups := []string{"home", "lab"}
	reg.RecordPairing("SN-000001", "Hall sensor", groups, "sensor", at)
	groups[0] = "mutated"

	device := reg.GetDevice("SN-000001")
	if device == nil {
		t.Fatal("Device should exist after RecordPairing()")
	}
	if device.Name != "Hall sensor" {
		t.Errorf("Name = %v, want 'Hall sensor'", device.Name)
	}
	if len(device.Groups) != 2 || device.Groups[0] != "home" {
		t.Errorf("Groups = %v, want [home lab]", device.Groups)
	}
	if !device.LastPaired.Equal(at) {
		t.Errorf("LastPaired = %v, want %v", device.LastPaired, at)
	}

	// An empty type keeps the one already known
	reg.RecordPairing("SN-000001", "Hall", nil, "", at.Add(time.Hour))
	if device.DeviceType != "sensor" {
		t.Errorf("DeviceType = %v, want 'sensor'", device.DeviceType)
	}
}

func TestRegistrySuggest(t *testing.T) {
	reg := NewRegistry()
	reg.Preferences.DefaultGroups = []string{"default"}
	reg.RecordPairing("SN-000001", "Kitchen", []string{"home"}, "gateway", time.Now())

	name, groups := reg.Suggest("SN-000001")
	if name != "Kitchen" || len(groups) != 1 || groups[0] != "home" {
		t.Errorf("Suggest(known) = %q %v, want Kitchen [home]", name, groups)
	}

	name, groups = reg.Suggest("SN-000009")
	if name != "" || len(groups) != 1 || groups[0] != "default" {
		t.Errorf("Suggest(unknown) = %q %v, want \"\" [default]", name, groups)
	}

	groups[0] = "mutated"
	if reg.Preferences.DefaultGroups[0] != "default" {
		t.Error("Suggest() should return a copy of the default groups")
	}
}

func TestRegistrySerialsAndForget(t *testing.T) {
	reg := NewRegistry()
	reg.EnsureDevice("SN-000002")
	reg.EnsureDevice("SN-000001")

	serials := reg.Serials()
	if len(serials) != 2 || serials[0] != "SN-000001" {
		t.Errorf("Serials() = %v, want sorted", serials)
	}

	if !reg.Forget("SN-000001") {
		t.Error("Forget() should report a removed device")
	}
	if reg.Forget("SN-000001") {
		t.Error("Forget() of an unknown device should return false")
	}
}

func TestRegistrySaveAndLoad(t *testing.T) {
	testConfigPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	reg := NewRegistry()
	reg.Preferences.ServiceURL = "https://pairing.example.net"
	reg.Preferences.PollInterval = 2 * time.Second
	reg.Preferences.DefaultGroups = []string{"home"}
	reg.RecordPairing("SN-000001", "Test Device", []string{"lab"}, "camera",
		time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	if err := reg.SaveTo(testConfigPath); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}

	info, err := os.Stat(testConfigPath)
	if err != nil {
		t.Fatalf("config file missing: %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}
	entries, err := os.ReadDir(filepath.Dir(testConfigPath))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}

	data, err := os.ReadFile(testConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# batchpair configuration") {
		t.Error("saved file should start with the header comment")
	}
	if !strings.Contains(string(data), "poll_interval: 2s") {
		t.Errorf("durations should be written human readable, got:\n%s", data)
	}

	loadedReg, err := LoadFile(testConfigPath)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	device := loadedReg.GetDevice("SN-000001")
	if device == nil {
		t.Fatal("Device should exist in loaded registry")
	}
	if device.Name != "Test Device" || device.DeviceType != "camera" {
		t.Errorf("Loaded device = %+v", device)
	}
	if loadedReg.Preferences.ServiceURL != "https://pairing.example.net" {
		t.Errorf("Loaded service URL = %v", loadedReg.Preferences.ServiceURL)
	}
	if loadedReg.Preferences.PollInterval != 2*time.Second {
		t.Errorf("Loaded poll interval = %v, want 2s", loadedReg.Preferences.PollInterval)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	reg, err := LoadFile(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if reg.Preferences == nil || reg.Devices == nil {
		t.Error("missing file should load as a default registry")
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad yaml", "version: [", "failed to parse"},
		{"wrong version", "version: 2\n", "unsupported config version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			_, err := LoadFile(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadFile() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFile_FillsMissingSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("version: 1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	reg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if reg.Devices == nil {
		t.Error("Devices should be initialised")
	}
	if reg.Preferences == nil || reg.Preferences.ServiceURL != DefaultServiceURL {
		t.Errorf("Preferences = %+v, want defaults", reg.Preferences)
	}
}

func TestCreateDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := CreateDefaultConfig(path, false); err != nil {
		t.Fatalf("CreateDefaultConfig() error = %v", err)
	}
	if err := CreateDefaultConfig(path, false); err == nil {
		t.Error("CreateDefaultConfig() should refuse to overwrite")
	}
	if err := CreateDefaultConfig(path, true); err != nil {
		t.Errorf("CreateDefaultConfig(force) error = %v", err)
	}
}

func BenchmarkGetConfigDir(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = GetConfigDir()
	}
}

func BenchmarkEnsureDevice(b *testing.B) {
	reg := NewRegistry()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.EnsureDevice("SN-000001")
	}
}
