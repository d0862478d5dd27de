package file

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jsphweid/pianobot/util"
	"github.com/pkg/errors"
)

// Dir stores published files in a local directory.
type Dir struct {
	root string
}

func NewDir(root string) *Dir {
	return &Dir{root: root}
}

func (d *Dir) Name() string {
	return "dir:" + d.root
}

func (d *Dir) Put(_ context.Context, name, _ string, data []byte) error {
	if err := util.EnsureDir(d.root); err != nil {
		return err
	}
	if name != filepath.Base(name) {
		return errors.Errorf("refusing to write %q outside of %v", name, d.root)
	}
	path := filepath.Join(d.root, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrapf(err, "could not write %v", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, path), "could not move %v into place", name)
}

// Takes lists the stored take names, oldest first.
func (d *Dir) Takes() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "could not read %v", d.root)
	}
	var res []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".mid") {
			res = append(res, strings.TrimSuffix(e.Name(), ".mid"))
		}
	}
	sort.Strings(res)
	return res, nil
}

func (d *Dir) Path(name string) string {
	return filepath.Join(d.root, name)
}
