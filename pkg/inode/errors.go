package inode

import "github.com/weberc2/blockfs/pkg/types"

const (
	// OutOfSectorsErr surfaces a free-map exhaustion during allocation.
	OutOfSectorsErr types.ConstError = "out of sectors"

	// SizeLimitErr surfaces an offset at or beyond MaxFileSize.
	SizeLimitErr types.ConstError = "offset exceeds maximum file size"
)
