package domain

import "errors"

var (
	// ErrNotFound is returned when a catalog link, item or asset lookup yields nothing.
	ErrNotFound = errors.New("not found")

	// ErrNoOutputs is returned when a run produced no corrected raster to publish.
	ErrNoOutputs = errors.New("no successful outputs to publish")

	// ErrEmptyArchive is returned when an archive contains no entries.
	ErrEmptyArchive = errors.New("archive contains no entries")

	// ErrInvalidBBox is returned for malformed bounding boxes.
	ErrInvalidBBox = errors.New("invalid bounding box")

	// ErrAssetMissing is returned when an item has no asset under the requested name.
	ErrAssetMissing = errors.New("asset missing on item")
)
