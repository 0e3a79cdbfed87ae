package mmdb

import (
	"bytes"

	"github.com/haldane-io/mmdb/internal/decoder"
	"github.com/haldane-io/mmdb/internal/mmdberrors"
	"github.com/haldane-io/mmdb/internal/stream"
	"github.com/mitchellh/mapstructure"
)

// metadataMarker separates the data section from the metadata section
// near the end of the file.
var metadataMarker = []byte("\xAB\xCD\xEF" + "MaxMind.com")

// metadataSearchWindow bounds how far from end-of-file the marker scan
// looks, per the format's placement guarantee.
const metadataSearchWindow = 128 * 1024

// Metadata describes an open database, decoded once at Open time from
// the trailing metadata map and cached for the reader's lifetime.
type Metadata struct {
	BinaryFormatMajorVersion uint              `mmdb:"binary_format_major_version"`
	BinaryFormatMinorVersion uint              `mmdb:"binary_format_minor_version"`
	BuildEpoch               uint64            `mmdb:"build_epoch"`
	DatabaseType             string            `mmdb:"database_type"`
	Description              map[string]string `mmdb:"description"`
	IPVersion                uint              `mmdb:"ip_version"`
	Languages                []string          `mmdb:"languages"`
	NodeCount                uint              `mmdb:"node_count"`
	RecordSize               uint              `mmdb:"record_size"`

	// Extra carries any additional metadata keys verbatim, preserving
	// the format's "opaque additional keys" allowance.
	Extra map[string]any `mmdb:",remain"`
}

// searchForMetadataOffset scans the final metadataSearchWindow bytes of
// src for the metadata marker, scanning backward in marker-length-sized
// chunks and reading a double-length window at each position so a match
// straddling a chunk boundary is still found. It returns the offset of
// the first byte after the marker, which is where the metadata map
// begins.
func searchForMetadataOffset(src stream.Source) (uint, error) {
	size := src.Len()
	markerLen := uint(len(metadataMarker))
	if size < markerLen {
		return 0, mmdberrors.NewInvalidDatabaseError("database is too small to contain a metadata marker")
	}

	windowStart := uint(0)
	if size > metadataSearchWindow+markerLen {
		windowStart = size - metadataSearchWindow - markerLen
	}

	pos := size - markerLen
	for {
		readLen := 2 * markerLen
		if pos+readLen > size {
			readLen = size - pos
		}
		buf, err := src.ReadAt(pos, readLen, false)
		if err != nil {
			return 0, err
		}
		if idx := bytes.Index(buf, metadataMarker); idx >= 0 {
			return pos + uint(idx) + markerLen, nil
		}
		if pos <= windowStart {
			break
		}
		if pos < markerLen {
			pos = 0
		} else {
			pos -= markerLen
		}
	}

	return 0, mmdberrors.MetadataNotFoundError{}
}

// loadMetadata locates and decodes the metadata map into the typed
// Metadata, using a decoder whose pointer base is the metadata section
// (metadata pointers are relative to the metadata section, distinct
// from the data section's base).
func loadMetadata(src stream.Source) (Metadata, error) {
	offset, err := searchForMetadataOffset(src)
	if err != nil {
		return Metadata{}, err
	}

	dec := decoder.New(src, offset)
	raw, _, err := dec.Decode(offset)
	if err != nil {
		return Metadata{}, err
	}
	rawMap, ok := raw.(*decoder.OrderedMap)
	if !ok {
		return Metadata{}, mmdberrors.NewInvalidDatabaseError("metadata section does not contain a map")
	}

	var meta Metadata
	cfg := &mapstructure.DecoderConfig{
		TagName: "mmdb",
		Result:  &meta,
	}
	dm, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return Metadata{}, err
	}
	if err := dm.Decode(toPlain(rawMap)); err != nil {
		return Metadata{}, err
	}

	if meta.RecordSize != 24 && meta.RecordSize != 28 && meta.RecordSize != 32 {
		return Metadata{}, mmdberrors.NewInvalidDatabaseError("unknown record size: %d", meta.RecordSize)
	}
	if meta.IPVersion != 4 && meta.IPVersion != 6 {
		return Metadata{}, mmdberrors.UnsupportedIPVersionError{IPVersion: meta.IPVersion}
	}
	searchTreeSize := meta.NodeCount * (2 * meta.RecordSize / 8)
	if searchTreeSize > src.Len() {
		return Metadata{}, mmdberrors.NewInvalidDatabaseError(
			"the search tree (%d bytes) is larger than the database file (%d bytes)", searchTreeSize, src.Len())
	}

	return meta, nil
}
