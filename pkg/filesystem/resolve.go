// Package filesystem composes the buffer cache, inode layer, and
// directory layer into the top-level entry points: create, open, remove,
// mkdir, init, shutdown. Path resolution is grounded on
// original_source/filesys/directory.c's retrieve_dir_from_location/
// trace_path pair, generalized per the specification's explicit 8-step
// algorithm.
package filesystem

import (
	"fmt"
	"strings"

	"github.com/weberc2/blockfs/pkg/directory"
	"github.com/weberc2/blockfs/pkg/inode"
	"github.com/weberc2/blockfs/pkg/types"
)

const (
	EmptyPathErr types.ConstError = "path is empty"
	RemovedErr   types.ConstError = "directory has been removed"
)

// CurrentDir is the external collaborator supplying the calling thread's
// current-directory sector for relative path resolution.
type CurrentDir interface {
	Sector() types.Sector
}

// RootCurrentDir is a CurrentDir that always resolves relative paths
// against the file system root, suitable for single-threaded callers like
// the demonstration CLI.
type RootCurrentDir struct{}

func (RootCurrentDir) Sector() types.Sector { return types.RootDirSector }

func splitComponents(path string) []string {
	raw := strings.Split(path, "/")
	components := make([]string, 0, len(raw))
	for _, c := range raw {
		if c != "" {
			components = append(components, c)
		}
	}
	return components
}

// resolve implements the specification's 8-step path resolution
// algorithm. When wantParent is true and the path has at least one
// component, it stops at the penultimate component and returns that
// directory inode plus the final component name via leaf, without
// consuming a reference on the leaf's own inode. When wantParent is
// false, it resolves all the way through and returns the final inode with
// leaf == "".
//
// The caller owns the returned *inode.Inode and must Close it.
func resolve(
	fs *FileSystem,
	cwd CurrentDir,
	path string,
	wantParent bool,
) (dir *inode.Inode, leaf string, err error) {
	if path == "" {
		return nil, "", EmptyPathErr
	}

	var startSector types.Sector
	if path[0] == '/' {
		startSector = types.RootDirSector
	} else {
		startSector = cwd.Sector()
	}

	current, err := fs.Inodes.Open(startSector)
	if err != nil {
		return nil, "", fmt.Errorf("resolving `%s`: %w", path, err)
	}

	components := splitComponents(path)
	for i, component := range components {
		if len(component) > types.NameMax {
			fs.Inodes.Close(current)
			return nil, "", fmt.Errorf(
				"resolving `%s`: %w",
				path,
				directory.NameTooLongErr,
			)
		}
		if fs.Inodes.IsRemoved(current) {
			fs.Inodes.Close(current)
			return nil, "", fmt.Errorf("resolving `%s`: %w", path, RemovedErr)
		}
		if !fs.Inodes.IsDir(current) {
			fs.Inodes.Close(current)
			return nil, "", fmt.Errorf("resolving `%s`: %w", path, directory.NotADirErr)
		}

		last := i == len(components)-1
		if wantParent && last {
			return current, component, nil
		}

		sector, lookupErr := directory.Lookup(fs.Inodes, current, component)
		if lookupErr != nil {
			fs.Inodes.Close(current)
			return nil, "", fmt.Errorf("resolving `%s`: %w", path, lookupErr)
		}
		next, openErr := fs.Inodes.Open(sector)
		fs.Inodes.Close(current)
		if openErr != nil {
			return nil, "", fmt.Errorf("resolving `%s`: %w", path, openErr)
		}
		current = next
	}

	if wantParent {
		fs.Inodes.Close(current)
		return nil, "", fmt.Errorf(
			"resolving `%s`: %w",
			path,
			directory.NotFoundErr,
		)
	}
	return current, "", nil
}
