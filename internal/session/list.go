package session

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Info describes one session directory for administrative listing.
type Info struct {
	ID       string
	Path     string
	Created  string
	Retained bool
	Size     uint64
}

// List enumerates session directories under the store root, newest
// first.
func (s *Store) List() ([]Info, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var infos []Info
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "session_") {
			continue
		}
		dir := filepath.Join(s.Root, e.Name())
		info := Info{
			ID:       e.Name(),
			Path:     dir,
			Created:  manifestCreated(filepath.Join(dir, manifestName)),
			Retained: s.Open(e.Name()).Retained(),
			Size:     dirSize(dir),
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Created > infos[j].Created })
	return infos, nil
}

func manifestCreated(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if v, ok := strings.CutPrefix(sc.Text(), "Created: "); ok {
			return v
		}
	}
	return ""
}

func dirSize(dir string) uint64 {
	var total uint64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			total += uint64(fi.Size())
		}
		return nil
	})
	return total
}
