package overlay

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v2"

	"github.com/zdbg/zdb/pkg/logflags"
)

// tablesFile is the on-disk format of an overlay tables file. Categories
// left out of the file keep their default names.
type tablesFile struct {
	Actor     []string `yaml:"actor"`
	Particle  []string `yaml:"particle"`
	Gamestate []string `yaml:"gamestate"`
	Kaleido   []string `yaml:"kaleido"`
}

// ParseTables decodes a YAML tables document on top of DefaultTables.
func ParseTables(data []byte) (Tables, error) {
	var f tablesFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return Tables{}, err
	}
	t := DefaultTables()
	for c, names := range [NumCategories][]string{f.Actor, f.Particle, f.Gamestate, f.Kaleido} {
		if names != nil {
			t[c] = names
		}
	}
	return t, nil
}

// LoadTables reads the tables file at path.
func LoadTables(path string) (Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, err
	}
	t, err := ParseTables(data)
	if err != nil {
		return Tables{}, fmt.Errorf("could not decode overlay tables %s: %v", path, err)
	}
	return t, nil
}

// Reloader keeps a Resolver in sync with a tables file, reloading it every
// time the file is written or replaced.
type Reloader struct {
	path     string
	resolver *Resolver
	watcher  *fsnotify.Watcher
	done     chan struct{}
	log      logflags.Logger
	reloaded chan<- error
}

// WatchTables starts watching path. The parent directory is watched rather
// than the file itself so that editors replacing the file are noticed.
// If reloaded is not nil it receives the outcome of every reload attempt.
func WatchTables(path string, resolver *Resolver, reloaded chan<- error) (*Reloader, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}
	rl := &Reloader{
		path:     filepath.Clean(path),
		resolver: resolver,
		watcher:  w,
		done:     make(chan struct{}),
		log:      logflags.ConfigLogger(),
		reloaded: reloaded,
	}
	go rl.loop()
	return rl, nil
}

func (rl *Reloader) loop() {
	defer close(rl.done)
	for {
		select {
		case ev, ok := <-rl.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != rl.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			rl.reload()
		case err, ok := <-rl.watcher.Errors:
			if !ok {
				return
			}
			rl.log.Errorf("watching %s: %v", rl.path, err)
		}
	}
}

func (rl *Reloader) reload() {
	t, err := LoadTables(rl.path)
	if err != nil {
		rl.log.Errorf("keeping previous overlay tables: %v", err)
	} else {
		rl.resolver.SetTables(t)
		rl.log.Infof("reloaded overlay tables from %s", rl.path)
	}
	if rl.reloaded != nil {
		select {
		case rl.reloaded <- err:
		default:
		}
	}
}

// Close stops watching the file.
func (rl *Reloader) Close() error {
	err := rl.watcher.Close()
	<-rl.done
	return err
}
