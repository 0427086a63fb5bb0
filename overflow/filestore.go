// Copyright The Telemetry Channel Authors
// SPDX-License-Identifier: Apache-2.0

package overflow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	log "github.com/sirupsen/logrus"

	"github.com/openmonitor/telemetry-channel/telemetry"
)

// spillFileSuffix marks complete files owned by the store. Anything else in
// the directory is ignored.
const spillFileSuffix = ".batch.zst"

// spillTempSuffix marks files still being written. Spills land under this
// name first and are renamed once complete, so Drain never observes a
// partially written batch.
const spillTempSuffix = ".batch.zst.tmp"

// FileStore persists one batch per file: zstd-compressed CBOR of the events.
// Capacity is accounted in compressed bytes. The on-disk layout is private
// to this implementation and may change between versions; files surviving a
// restart are picked up by the next Drain.
type FileStore struct {
	mu        sync.Mutex
	dir       string
	capacity  int64
	usedBytes int64

	// sizes records the reserved quota per finalized file, so draining
	// releases exactly what Spill reserved even when the on-disk file was
	// damaged in between.
	sizes map[string]int64

	enc *zstd.Encoder
	dec *zstd.Decoder

	discarded atomic.Uint64
}

// Compile time check that FileStore satisfies Store.
var _ Store = (*FileStore)(nil)

// NewFileStore creates a store rooted at dir with the given capacity in MB.
func NewFileStore(dir string, capacityMB int) (*FileStore, error) {
	if capacityMB < 1 {
		return nil, fmt.Errorf("overflow capacity must be at least 1 MB, got %d", capacityMB)
	}
	return newFileStore(dir, int64(capacityMB)<<20)
}

// newFileStore is the byte-granular constructor, split out for tests.
func newFileStore(dir string, capacityBytes int64) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("overflow directory %s: %w", dir, err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	s := &FileStore{
		dir:      dir,
		capacity: capacityBytes,
		sizes:    make(map[string]int64),
		enc:      enc,
		dec:      dec,
	}
	s.usedBytes = s.scanExisting()
	return s, nil
}

// scanExisting seeds the quota from spill files left by a previous run and
// removes temporary files orphaned by an interrupted write.
func (s *FileStore) scanExisting() int64 {
	var used int64
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.Errorf("Cannot scan overflow directory %s: %v", s.dir, err)
		return 0
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), spillTempSuffix) {
			name := filepath.Join(s.dir, entry.Name())
			if err := os.Remove(name); err != nil {
				log.Warnf("Cannot remove orphaned spill file %s: %v", name, err)
			}
			continue
		}
		if !strings.HasSuffix(entry.Name(), spillFileSuffix) {
			continue
		}
		if info, err := entry.Info(); err == nil {
			s.sizes[entry.Name()] = info.Size()
			used += info.Size()
		}
	}
	if used > 0 {
		log.Infof("Found %d bytes of spilled telemetry in %s", used, s.dir)
	}
	return used
}

// Spill persists the batch if the quota allows it. The quota is reserved
// under the lock but the disk write happens outside of it. The batch is
// written under a temporary name and renamed once complete, so a concurrent
// Drain only ever sees whole files.
func (s *FileStore) Spill(batch *telemetry.Batch) bool {
	payload, err := cbor.Marshal(batch.Events())
	if err != nil {
		log.Errorf("Cannot encode batch %s for spilling: %v", batch.ID(), err)
		return false
	}
	compressed := s.enc.EncodeAll(payload, nil)
	size := int64(len(compressed))

	s.mu.Lock()
	if s.usedBytes+size > s.capacity {
		s.mu.Unlock()
		return false
	}
	s.usedBytes += size
	s.mu.Unlock()

	base := filepath.Join(s.dir, uuid.NewString())
	tmp := base + spillTempSuffix
	if err := os.WriteFile(tmp, compressed, 0o600); err != nil {
		log.Errorf("Cannot write spill file %s: %v", tmp, err)
		s.release(size)
		return false
	}
	final := base + spillFileSuffix
	if err := os.Rename(tmp, final); err != nil {
		log.Errorf("Cannot finalize spill file %s: %v", tmp, err)
		_ = os.Remove(tmp)
		s.release(size)
		return false
	}
	s.mu.Lock()
	s.sizes[filepath.Base(final)] = size
	s.mu.Unlock()
	return true
}

// Drain removes and decodes all stored batches. Corrupt files are deleted
// and skipped so a single bad entry cannot wedge the retry path.
func (s *FileStore) Drain() []*telemetry.Batch {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.Errorf("Cannot scan overflow directory %s: %v", s.dir, err)
		return nil
	}

	var batches []*telemetry.Batch
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), spillFileSuffix) {
			continue
		}
		name := filepath.Join(s.dir, entry.Name())
		compressed, err := os.ReadFile(name)
		if err != nil {
			log.Errorf("Cannot read spill file %s: %v", name, err)
			continue
		}
		if err := os.Remove(name); err != nil {
			// Leave the quota as is; the file is still there.
			log.Errorf("Cannot remove spill file %s: %v", name, err)
			continue
		}
		s.releaseFile(entry.Name(), int64(len(compressed)))

		events, err := s.decode(compressed)
		if err != nil {
			s.discarded.Add(1)
			log.Warnf("Discarding corrupt spill file %s: %v", name, err)
			continue
		}
		if len(events) > 0 {
			batches = append(batches, telemetry.NewBatch(events))
		}
	}
	return batches
}

func (s *FileStore) decode(compressed []byte) ([]*telemetry.Event, error) {
	payload, err := s.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, err
	}
	var events []*telemetry.Event
	if err := cbor.Unmarshal(payload, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *FileStore) release(size int64) {
	s.mu.Lock()
	s.usedBytes -= size
	if s.usedBytes < 0 {
		s.usedBytes = 0
	}
	s.mu.Unlock()
}

// releaseFile frees the quota reserved for a finalized file. The recorded
// reservation wins over the byte count actually read, so a file damaged on
// disk cannot leave its unread bytes stuck in the quota.
func (s *FileStore) releaseFile(name string, read int64) {
	s.mu.Lock()
	size, ok := s.sizes[name]
	if ok {
		delete(s.sizes, name)
	} else {
		size = read
	}
	s.usedBytes -= size
	if s.usedBytes < 0 {
		s.usedBytes = 0
	}
	s.mu.Unlock()
}

// DiscardedFiles returns how many undecodable spill files Drain has deleted.
func (s *FileStore) DiscardedFiles() uint64 {
	return s.discarded.Load()
}

// UsedBytes returns the current quota usage.
func (s *FileStore) UsedBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usedBytes
}

// Close releases the compression codecs.
func (s *FileStore) Close() error {
	err := s.enc.Close()
	s.dec.Close()
	return err
}
