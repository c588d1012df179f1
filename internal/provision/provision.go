// Package provision guarantees the deterministic two-level remote folder
// hierarchy (owner folder, then dependent-entity sub-folder) exists before
// any upload. Creation is idempotent: an already-exists response from the
// provider is success, not an error.
package provision

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harbordocs/docdrive/internal/dropbox"
	"github.com/harbordocs/docdrive/internal/metastore"
)

// Remote is the slice of the provider client the provisioner needs.
// Implemented by dropbox.Client.
type Remote interface {
	CreateFolder(ctx context.Context, path string) (*dropbox.Entry, error)
	GetMetadata(ctx context.Context, path string) (*dropbox.Entry, error)
}

// MappingStore records provisioned folder pairs.
// Implemented by metastore.Store.
type MappingStore interface {
	Mapping(ctx context.Context, ownerPath string) (*metastore.Mapping, error)
	SaveMapping(ctx context.Context, ownerPath, dependentPath string) error
}

// Provisioner performs idempotent create-if-absent folder operations.
type Provisioner struct {
	remote Remote
	store  MappingStore
	logger *slog.Logger
}

// New creates a Provisioner.
func New(remote Remote, store MappingStore, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Provisioner{remote: remote, store: store, logger: logger}
}

// EnsureFolder creates the folder at path if it does not already exist.
// A conflict ("path already exists") from the provider is success; any
// other provider error propagates.
func (p *Provisioner) EnsureFolder(ctx context.Context, path string) error {
	_, err := p.remote.CreateFolder(ctx, path)
	if err == nil {
		p.logger.Info("folder created", slog.String("path", path))

		return nil
	}

	if dropbox.Classify(err) == dropbox.ClassConflict {
		p.logger.Debug("folder already exists", slog.String("path", path))

		return nil
	}

	return fmt.Errorf("provision: ensuring folder %s: %w", path, err)
}

// EnsureOwnerThenDependent provisions ownerPath first, then dependentPath.
// The dependent folder is never provisioned when owner provisioning failed,
// so a recorded dependent path always implies its owner exists.
//
// When a mapping was recorded earlier, the remote is checked for drift
// before trusting it: a recorded folder that no longer exists remotely is
// recreated rather than assumed present.
func (p *Provisioner) EnsureOwnerThenDependent(ctx context.Context, ownerPath, dependentPath string) error {
	if ownerPath == "" {
		return fmt.Errorf("provision: owner path must not be empty")
	}

	mapping, err := p.store.Mapping(ctx, ownerPath)
	if err != nil {
		return fmt.Errorf("provision: loading mapping for %s: %w", ownerPath, err)
	}

	if mapping != nil {
		intact, checkErr := p.mappingIntact(ctx, mapping, dependentPath)
		if checkErr != nil {
			return checkErr
		}

		if intact {
			p.logger.Debug("recorded folders verified remotely",
				slog.String("owner", ownerPath),
				slog.String("dependent", dependentPath),
			)

			return nil
		}

		p.logger.Warn("recorded folder mapping drifted from remote, re-provisioning",
			slog.String("owner", ownerPath),
		)
	}

	if err := p.EnsureFolder(ctx, ownerPath); err != nil {
		return err
	}

	if dependentPath != "" {
		if err := p.EnsureFolder(ctx, dependentPath); err != nil {
			return err
		}
	}

	if err := p.store.SaveMapping(ctx, ownerPath, dependentPath); err != nil {
		return fmt.Errorf("provision: recording mapping for %s: %w", ownerPath, err)
	}

	return nil
}

// mappingIntact verifies the recorded folders still exist remotely.
// Returns false on a not-found (drift); other metadata errors propagate.
func (p *Provisioner) mappingIntact(ctx context.Context, mapping *metastore.Mapping, dependentPath string) (bool, error) {
	paths := []string{mapping.OwnerPath}
	if dependentPath != "" && mapping.DependentPath == dependentPath {
		paths = append(paths, dependentPath)
	} else if dependentPath != "" {
		// A dependent path not covered by the recorded mapping still needs
		// provisioning.
		return false, nil
	}

	for _, path := range paths {
		_, err := p.remote.GetMetadata(ctx, path)
		if err == nil {
			continue
		}

		if dropbox.Classify(err) == dropbox.ClassNotFound {
			return false, nil
		}

		return false, fmt.Errorf("provision: checking %s: %w", path, err)
	}

	return true, nil
}
