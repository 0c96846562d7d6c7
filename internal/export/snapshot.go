// Package export writes a JSON snapshot of the read path for static hosting
// and optionally uploads it to S3-compatible object storage.
package export

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"

	"draftgap/internal/matchup"
	"draftgap/internal/store"
)

const (
	DataFile     = "data.json"
	ManifestFile = "manifest.json"
)

// Snapshot is the exported document.
type Snapshot struct {
	Patch       string             `json:"patch"`
	GeneratedAt string             `json:"generatedAt"`
	Tiers       []string           `json:"tiers,omitempty"`
	Patches     []store.PatchStat  `json:"patches"`
	Roles       []store.RoleStat   `json:"roles"`
	Matchups    []ChampionMatchups `json:"matchups"`
}

// ChampionMatchups lists the opponents of a champion in its primary role.
type ChampionMatchups struct {
	Champion  string               `json:"champion"`
	Role      matchup.Role         `json:"role"`
	Opponents []store.OpponentStat `json:"opponents"`
}

// Manifest points clients at the current snapshot.
type Manifest struct {
	Version   string `json:"version"`
	DataURL   string `json:"dataUrl"`
	SHA256    string `json:"sha256"`
	UpdatedAt string `json:"updatedAt"`
}

// Options narrows what Build reads.
type Options struct {
	Tiers    []string // nil means every tier
	Patch    string   // empty means every patch
	MinGames int
	Now      func() time.Time
}

// Build reads the store into a snapshot. Champions without any opponent
// above the sample threshold are left out.
func Build(ctx context.Context, st store.Store, opts Options) (*Snapshot, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	patches, err := st.Patches(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list patches: %w", err)
	}
	roles, err := st.PrimaryRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}

	snap := &Snapshot{
		Patch:       opts.Patch,
		GeneratedAt: now().UTC().Format(time.RFC3339),
		Tiers:       opts.Tiers,
		Patches:     patches,
		Roles:       roles,
		Matchups:    make([]ChampionMatchups, 0, len(roles)),
	}
	if snap.Patch == "" && len(patches) > 0 {
		snap.Patch = patches[0].Patch
	}

	for _, r := range roles {
		stats, err := st.OpponentStats(ctx, store.OpponentQuery{
			Champion: r.Champion,
			Role:     r.Role,
			Tiers:    opts.Tiers,
			Patch:    snap.Patch,
			MinGames: opts.MinGames,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to read matchups for %s: %w", r.Champion, err)
		}
		if len(stats) == 0 {
			continue
		}
		snap.Matchups = append(snap.Matchups, ChampionMatchups{
			Champion:  r.Champion,
			Role:      r.Role,
			Opponents: stats,
		})
	}
	return snap, nil
}

// Encode writes the snapshot as indented JSON and returns its SHA-256.
func (s *Snapshot) Encode(w io.Writer) (string, error) {
	hasher := sha256.New()
	encoder := json.NewEncoder(io.MultiWriter(w, hasher))
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s); err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// WriteFiles writes data.json and manifest.json into dir.
func WriteFiles(dir string, snap *Snapshot, dataURL string) (Manifest, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Manifest{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	dataFile, err := os.Create(filepath.Join(dir, DataFile))
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to create %s: %w", DataFile, err)
	}
	sum, err := snap.Encode(dataFile)
	if cerr := dataFile.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return Manifest{}, err
	}

	manifest := Manifest{
		Version:   snap.Patch,
		DataURL:   dataURL,
		SHA256:    sum,
		UpdatedAt: snap.GeneratedAt,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), append(data, '\n'), 0644); err != nil {
		return Manifest{}, fmt.Errorf("failed to write %s: %w", ManifestFile, err)
	}
	return manifest, nil
}
