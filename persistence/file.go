package persistence

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"

	"github.com/hupe1980/balltree"
	"github.com/hupe1980/balltree/internal/mmap"
)

// SaveToFile writes a snapshot to filename. The write goes to a temp
// file in the same directory and is published with an atomic rename, so
// readers never observe a partial snapshot.
func SaveToFile(filename string, t *balltree.Tree, optFns ...func(*Options)) error {
	dir := filepath.Dir(filename)
	base := filepath.Base(filename)

	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	_ = tmp.Chmod(0o644)

	buf := bufio.NewWriterSize(tmp, 256*1024)
	if err := Save(buf, t, optFns...); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, filename)
}

// LoadFromFile reads a snapshot from filename. The file is accessed
// through a read-only memory mapping, which avoids double buffering for
// large uncompressed snapshots.
func LoadFromFile(filename string, optFns ...func(*balltree.Options)) (*balltree.Tree, error) {
	m, err := mmap.Open(filename)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	return Load(bytes.NewReader(m.Bytes()), optFns...)
}
