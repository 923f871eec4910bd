// Copyright (c) 2025 dogwoodfire
// MouseEye - timelapse deploy orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package remote

import (
	"fmt"
	"path"
	"time"

	"github.com/klauspost/compress/zstd"
)

// backupDirName is the directory under the remote checkout where hard-pull
// backups are placed.
const backupDirName = ".mousectl-backups"

// BackupName builds the filename for a hard-pull diff backup. The hostname is
// the one the remote host itself reported over the channel, and the timestamp
// is UTC, so the name is unambiguous no matter which machine ran the deploy.
func BackupName(hostname string, now time.Time) string {
	return fmt.Sprintf("%s-%s.diff.zst", hostname, now.UTC().Format("20060102-150405"))
}

// BackupPath joins the backup directory and filename under the remote
// checkout.
func BackupPath(remoteDir, name string) string {
	return path.Join(remoteDir, backupDirName, name)
}

// CompressDiff encodes a captured diff with zstd for storage on the remote
// host's SD card.
func CompressDiff(diff []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd writer: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(diff, nil), nil
}

// DecompressDiff is the inverse of CompressDiff, used when a fetched backup
// needs inspecting locally.
func DecompressDiff(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decode backup: %w", err)
	}
	return out, nil
}
