package report

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/DrSkyle/faultline/pkg/engine/impact"
	"github.com/DrSkyle/faultline/pkg/engine/spof"
	"github.com/DrSkyle/faultline/pkg/storage"
)

// SnapshotKey names a snapshot export, e.g. spofs/20240304T100000Z.csv.
func SnapshotKey(snap spof.Snapshot, f Format) string {
	return "spofs/" + snap.Timestamp.UTC().Format("20060102T150405Z") + f.Extension()
}

// PublishSnapshot renders the snapshot and stores it. It returns the key written.
func PublishSnapshot(ctx context.Context, store storage.BlobStore, f Format, snap spof.Snapshot) (string, error) {
	data, err := Render(f, snap)
	if err != nil {
		return "", err
	}
	key := SnapshotKey(snap, f)
	if err := store.Put(ctx, key, data); err != nil {
		return "", fmt.Errorf("store %s: %w", key, err)
	}
	return key, nil
}

// PublishBlastRadii stores a batch of blast radius results under blast/.
func PublishBlastRadii(ctx context.Context, store storage.BlobStore, f Format, radii []impact.BlastRadius, at time.Time) (string, error) {
	var buf bytes.Buffer
	if err := WriteBlastRadii(&buf, f, radii); err != nil {
		return "", err
	}
	key := "blast/" + at.UTC().Format("20060102T150405Z") + f.Extension()
	if err := store.Put(ctx, key, buf.Bytes()); err != nil {
		return "", fmt.Errorf("store %s: %w", key, err)
	}
	return key, nil
}
