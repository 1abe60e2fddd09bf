package archive

import (
	"context"
	"fmt"

	"dlfi/internal/types"
)

// DoctorReport is a health snapshot of an open archive: object counts,
// storage mode, encryption state, and anything the checks flagged as
// needing attention.
type DoctorReport struct {
	Root string `json:"root"`

	Vaults        int   `json:"vaults"`
	Records       int   `json:"records"`
	Tags          int   `json:"tags"`
	Relations     int   `json:"relation_labels"`
	Blobs         int   `json:"blobs"`
	ZeroRefBlobs  int   `json:"zero_ref_blobs"`
	Partitions    int   `json:"partitions"`
	LooseBlobs    int   `json:"loose_blobs"`
	TotalBlobSize int64 `json:"total_blob_size"`

	Encrypted          bool     `json:"encrypted"`
	PartitionSizeBytes int64    `json:"partition_size_bytes"`
	Warnings           []string `json:"warnings,omitempty"`
}

// Doctor inspects the archive and returns a report. It is read-only:
// nothing it finds is repaired here (vacuum reclaims zero-ref blobs,
// and the encryption commands fix key-state drift).
func (a *Archive) Doctor(ctx context.Context) (*DoctorReport, error) {
	settings, err := loadSettings(ctx, a.store)
	if err != nil {
		return nil, err
	}

	report := &DoctorReport{
		Root:               a.root,
		Encrypted:          settings.Encryption.Enabled,
		PartitionSizeBytes: settings.partitionSizeBytes(),
	}

	vaults, err := a.store.NodesByType(ctx, types.Vault)
	if err != nil {
		return nil, fmt.Errorf("count vaults: %w", err)
	}
	records, err := a.store.NodesByType(ctx, types.Record)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	report.Vaults = len(vaults)
	report.Records = len(records)

	tagFreq, err := a.store.TagFrequency(ctx)
	if err != nil {
		return nil, fmt.Errorf("count tags: %w", err)
	}
	report.Tags = len(tagFreq)

	labels, err := a.store.RelationLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("count relation labels: %w", err)
	}
	report.Relations = len(labels)

	blobs, err := a.store.AllBlobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	partitions := map[int]bool{}
	for _, b := range blobs {
		report.Blobs++
		report.TotalBlobSize += b.Size
		if b.RefCount == 0 {
			report.ZeroRefBlobs++
		}
		if b.Location != "" {
			report.LooseBlobs++
			continue
		}
		loc, err := a.store.PartitionLocation(ctx, b.Hash)
		if err != nil {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("blob %s has neither a loose location nor a partition entry", b.Hash))
			continue
		}
		partitions[loc.PartitionID] = true
	}
	report.Partitions = len(partitions)

	if report.ZeroRefBlobs > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d zero-ref blobs pending reclamation; run vacuum", report.ZeroRefBlobs))
	}
	if settings.Encryption.Enabled && a.vlt == nil {
		report.Warnings = append(report.Warnings,
			"settings say encryption is enabled but no key material is loaded")
	}
	return report, nil
}
