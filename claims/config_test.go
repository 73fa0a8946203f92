package claims

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
store:
  driver: sqlite
  path: /var/lib/claimmesh/claims.db
worlds:
  - world
  - world_nether
snapshots:
  dir: /var/lib/claimmesh/snapshots
mqtt:
  broker: tcp://broker:1883
  username: admin
http:
  port: 9090
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "/var/lib/claimmesh/claims.db", cfg.Store.Path)
	assert.Equal(t, []string{"world", "world_nether"}, cfg.Worlds)
	assert.Equal(t, "/var/lib/claimmesh/snapshots", cfg.Snapshots.Dir)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, "admin", cfg.MQTT.Username)
	assert.Equal(t, DefaultPublishPrefix, cfg.MQTT.PublishPrefix)
	assert.Equal(t, 9090, cfg.HTTP.Port)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "store:\n  path: claims.db\nworlds: [world]\n"))
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, DefaultHTTPPort, cfg.HTTP.Port)
	assert.Empty(t, cfg.MQTT.Broker)
	assert.Empty(t, cfg.Snapshots.Dir)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("CLAIMMESH_STORE_DRIVER", "memory")
	t.Setenv("CLAIMMESH_HTTP_PORT", "7070")
	t.Setenv("MQTT_BROKER", "tcp://env-broker:1883")
	t.Setenv("MQTT_PUBLISH_PREFIX", "servers/survival")

	cfg, err := LoadConfig(writeConfig(t, `
store:
  driver: sqlite
  path: claims.db
worlds: [world]
mqtt:
  broker: tcp://file-broker:1883
`))
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, "claims.db", cfg.Store.Path, "unset variables leave the file value")
	assert.Equal(t, 7070, cfg.HTTP.Port)
	assert.Equal(t, "tcp://env-broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, "servers/survival", cfg.MQTT.PublishPrefix)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"bad yaml", "worlds: [", "parsing config YAML"},
		{"no worlds", "store:\n  path: claims.db\n", "at least one world"},
		{"empty world", "store:\n  path: claims.db\nworlds: ['']\n", "worlds[0] is empty"},
		{"sqlite without path", "worlds: [world]\n", "store.path is required"},
		{"unknown driver", "store:\n  driver: postgres\nworlds: [world]\n", "store.driver must be"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "config file not found")
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	in := &Config{
		Store:  StoreConfig{Driver: DriverMemory},
		Worlds: []string{"world"},
		HTTP:   HTTPConfig{Port: 8181},
	}

	require.NoError(t, SaveConfig(path, in))
	out, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, out.Store.Driver)
	assert.Equal(t, []string{"world"}, out.Worlds)
	assert.Equal(t, 8181, out.HTTP.Port)
}

func TestOpenHost(t *testing.T) {
	h, closeFn, err := OpenHost(&Config{Store: StoreConfig{Driver: DriverMemory}, Worlds: []string{"world"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"world"}, h.Worlds())
	assert.NoError(t, closeFn())

	path := filepath.Join(t.TempDir(), "claims.db")
	h, closeFn, err = OpenHost(&Config{Store: StoreConfig{Driver: DriverSQLite, Path: path}, Worlds: []string{"world"}})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteHost{}, h)
	assert.NoError(t, closeFn())

	_, _, err = OpenHost(&Config{Store: StoreConfig{Driver: "bogus"}})
	assert.Error(t, err)
}
