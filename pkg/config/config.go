package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"

	"github.com/zdbg/zdb/pkg/logflags"
)

const (
	configDir  string = "zdb"
	configFile string = "config.yml"
)

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// Listen is the address the server listens on.
	Listen string `yaml:"listen,omitempty"`

	// Backend selects the machine breakpoints are set on: "sim" for the
	// built in simulated memory, "gdb" for a gdb stub.
	Backend string `yaml:"backend,omitempty"`
	// GdbAddress is the address of the gdb stub.
	GdbAddress string `yaml:"gdb-address,omitempty"`
	// GdbPCRegnum is the register number of the program counter for the
	// stub's 'p' packet.
	GdbPCRegnum int `yaml:"gdb-pc-regnum,omitempty"`
	// GdbAddr64 makes addresses sent to the stub sign extended to 64 bits.
	GdbAddr64 bool `yaml:"gdb-addr64,omitempty"`

	// TablesFile is a YAML file overriding the overlay tables, it is
	// reloaded when it changes.
	TablesFile string `yaml:"tables-file,omitempty"`
	// TableBases are the overlay table locations used until a client sends
	// its own: actor, particle, gamestate and kaleido.
	TableBases []uint32 `yaml:"table-bases,omitempty"`

	// BufferSize is the largest request accepted from clients.
	BufferSize int `yaml:"buffer-size,omitempty"`

	// MapFile is the linker map file used by the terminal to find
	// functions.
	MapFile string `yaml:"map-file,omitempty"`

	// Commands aliases.
	Aliases map[string][]string `yaml:"aliases,omitempty"`
}

// LoadConfig attempts to populate a Config object from the config.yml file,
// creating a default one if it does not exist.
func LoadConfig() (*Config, error) {
	err := createConfigPath()
	if err != nil {
		return &Config{}, fmt.Errorf("could not create config directory: %v", err)
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return &Config{}, fmt.Errorf("unable to get config file path: %v", err)
	}

	f, err := os.Open(fullConfigFile)
	if err != nil {
		f, err = createDefaultConfig(fullConfigFile)
		if err != nil {
			return &Config{}, fmt.Errorf("error creating default config file: %v", err)
		}
	}
	defer func() {
		err := f.Close()
		if err != nil {
			logflags.ConfigLogger().Errorf("Closing config file failed: %v.", err)
		}
	}()

	data, err := io.ReadAll(f)
	if err != nil {
		return &Config{}, fmt.Errorf("unable to read config data: %v", err)
	}

	c, err := Parse(data)
	if err != nil {
		return &Config{}, fmt.Errorf("unable to decode config file %s: %v", fullConfigFile, err)
	}
	return c, nil
}

// Parse decodes a configuration document.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if len(c.TableBases) != 0 && len(c.TableBases) != 4 {
		return nil, fmt.Errorf("table-bases must have 4 entries, not %d", len(c.TableBases))
	}
	return &c, nil
}

// SaveConfig will marshal and save the config struct
// to disk.
func SaveConfig(conf *Config) error {
	if err := createConfigPath(); err != nil {
		return err
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}

	f, err := os.Create(fullConfigFile)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(out)
	return err
}

func createDefaultConfig(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create config file: %v", err)
	}
	err = writeDefaultConfig(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("unable to write default configuration: %v", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	logflags.ConfigLogger().Infof("created default configuration file %s", path)
	return f, nil
}

func writeDefaultConfig(f *os.File) error {
	_, err := f.WriteString(
		`# Configuration file for the zdb breakpoint server.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# Address the server listens on.
# listen: 127.0.0.1:7340

# Machine breakpoints are set on, "sim" or "gdb".
# backend: sim

# Address of the emulator's gdb stub, used by the gdb backend.
# gdb-address: 127.0.0.1:9123

# Register number of the program counter in the stub's register layout.
# gdb-pc-regnum: 0x25

# Uncomment if the stub expects 64 bit sign extended addresses.
# gdb-addr64: true

# YAML file overriding the overlay name tables, reloaded when it changes.
# tables-file: ~/oot/tables.yml

# Overlay table locations used until the client sends its own:
# actor, particle, gamestate, kaleido.
# table-bases: [0x800e8530, 0x800e7c40, 0x800f1280, 0x800f1340]

# Largest request accepted from a client, in bytes.
# buffer-size: 16777216

# Linker map file used by "zdb connect" to find functions.
# map-file: ~/oot/build/z64.map

# Provided aliases will be added to the default aliases for a given command.
aliases:
  # command: ["alias1", "alias2"]
`)
	return err
}

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userConfigDir, configDir, file), nil
}
