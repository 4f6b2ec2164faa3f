// Package bundle reads and writes skin bundle containers holding serialized
// stylesheet assets next to opaque entities that are carried through
// untouched.
package bundle

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/amazon-ion/ion-go/ion"

	"fmskin/uss"
)

// Container format constants
const (
	ContainerSignature = "SKNB"
	EntitySignature    = "ENTY"
	ContainerVersion   = 1
	EntityVersion      = 1
	MinContainerLen    = 18 // fixed header
	MinEntityLen       = 10 // fixed entity header
	DirEntrySize       = 24
)

// EntityType tells how entity payload is encoded.
type EntityType uint32

const (
	// EntityOpaque payload is stored and written back byte for byte.
	EntityOpaque EntityType = iota
	// EntityStylesheet payload is Ion encoded uss.Sheet.
	EntityStylesheet
)

func (t EntityType) String() string {
	switch t {
	case EntityStylesheet:
		return "stylesheet"
	default:
		return "opaque"
	}
}

// containerHeader is the fixed-size container header.
type containerHeader struct {
	Signature  [4]byte
	Version    uint16
	Size       uint32
	InfoOffset uint32
	InfoSize   uint32
}

func (c *containerHeader) Validate() error {
	if !bytes.Equal(c.Signature[:], []byte(ContainerSignature)) {
		return fmt.Errorf("wrong signature for bundle: % X", c.Signature[:])
	}
	if c.Version > ContainerVersion {
		return fmt.Errorf("unsupported bundle version: %d", c.Version)
	}
	if c.Size < MinContainerLen {
		return fmt.Errorf("invalid bundle header size: %d", c.Size)
	}
	return nil
}

// containerInfo is the Ion struct at info offset.
type containerInfo struct {
	ContainerID string `ion:"container_id"`
	Generator   string `ion:"generator"`
	DirOffset   int    `ion:"dir_offset"`
	DirLength   int    `ion:"dir_length"`
	PayloadSHA1 string `ion:"payload_sha1"`
}

func (c *containerInfo) Validate(headerSize uint32) error {
	if c.DirLength%DirEntrySize != 0 {
		return fmt.Errorf("invalid entity directory length: %d", c.DirLength)
	}
	if c.DirOffset < MinContainerLen || uint64(c.DirOffset)+uint64(c.DirLength) > uint64(headerSize) {
		return fmt.Errorf("entity directory out of bounds: offset=%d length=%d", c.DirOffset, c.DirLength)
	}
	return nil
}

// entityHeader is the fixed-size entity header.
type entityHeader struct {
	Signature [4]byte
	Version   uint16
	Size      uint32
}

func (e *entityHeader) Validate() error {
	if !bytes.Equal(e.Signature[:], []byte(EntitySignature)) {
		return fmt.Errorf("wrong signature for bundle entity: % X", e.Signature[:])
	}
	if e.Version > EntityVersion {
		return fmt.Errorf("unsupported bundle entity version: %d", e.Version)
	}
	if e.Size < MinEntityLen {
		return fmt.Errorf("invalid bundle entity header size: %d", e.Size)
	}
	return nil
}

// dirEntry is a single entity directory entry. Offset is relative to the end
// of container header.
type dirEntry struct {
	ID, Type     uint32
	Offset, Size uint64
}

func (e *dirEntry) readFrom(r io.Reader) error {
	return binary.Read(r, binary.LittleEndian, e)
}

// Entity is a single container record. For stylesheets Sheet holds decoded
// asset and Data is its last serialized form.
type Entity struct {
	ID    uint32
	Type  EntityType
	Data  []byte
	Sheet *uss.Sheet
}

// Container is a parsed bundle.
type Container struct {
	Version     uint16
	ContainerID string
	Generator   string
	Entities    []*Entity
}

// ReadContainer parses bundle from bytes. Stylesheet entities are decoded,
// every other entity keeps its raw payload.
func ReadContainer(data []byte) (*Container, error) {
	if len(data) < MinContainerLen {
		return nil, fmt.Errorf("bundle too small: %d bytes", len(data))
	}

	var header containerHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("read bundle header: %w", err)
	}
	if err := header.Validate(); err != nil {
		return nil, err
	}
	if header.InfoSize == 0 {
		return nil, errors.New("no container info in bundle")
	}
	if uint64(header.InfoOffset)+uint64(header.InfoSize) > uint64(header.Size) || uint64(header.Size) > uint64(len(data)) {
		return nil, fmt.Errorf("container info out of bounds: offset=%d size=%d", header.InfoOffset, header.InfoSize)
	}

	var info containerInfo
	if err := ion.Unmarshal(data[header.InfoOffset:header.InfoOffset+header.InfoSize], &info); err != nil {
		return nil, fmt.Errorf("decode container info: %w", err)
	}
	if err := info.Validate(header.Size); err != nil {
		return nil, err
	}

	c := &Container{
		Version:     header.Version,
		ContainerID: info.ContainerID,
		Generator:   info.Generator,
	}

	payloads := data[header.Size:]
	if info.PayloadSHA1 != "" {
		sum := sha1.Sum(payloads)
		if hex.EncodeToString(sum[:]) != info.PayloadSHA1 {
			return nil, errors.New("bundle payload checksum mismatch")
		}
	}

	dirReader := bytes.NewReader(data[info.DirOffset : info.DirOffset+info.DirLength])
	for {
		var entry dirEntry
		if err := entry.readFrom(dirReader); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read entity directory entry: %w", err)
		}

		end := entry.Offset + entry.Size
		if end > uint64(len(payloads)) || end < entry.Offset {
			return nil, fmt.Errorf("entity out of bounds: offset=%d size=%d", entry.Offset, entry.Size)
		}

		ent, err := parseEntity(payloads[entry.Offset:end], EntityType(entry.Type), entry.ID)
		if err != nil {
			return nil, fmt.Errorf("parse entity type=%d id=%d: %w", entry.Type, entry.ID, err)
		}
		c.Entities = append(c.Entities, ent)
	}
	return c, nil
}

// parseEntity parses a single entity record.
func parseEntity(data []byte, typ EntityType, id uint32) (*Entity, error) {
	if len(data) < MinEntityLen {
		return nil, fmt.Errorf("entity too small: %d bytes", len(data))
	}

	var header entityHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("read entity header: %w", err)
	}
	if err := header.Validate(); err != nil {
		return nil, err
	}
	if uint64(header.Size) > uint64(len(data)) {
		return nil, fmt.Errorf("entity header size %d exceeds entity length %d", header.Size, len(data))
	}

	payload := data[header.Size:]
	ent := &Entity{ID: id, Type: typ, Data: bytes.Clone(payload)}
	if typ != EntityStylesheet {
		return ent, nil
	}

	var sheet uss.Sheet
	if err := ion.Unmarshal(payload, &sheet); err != nil {
		return nil, fmt.Errorf("decode stylesheet: %w", err)
	}
	if sheet.Name == "" {
		return nil, errors.New("stylesheet without name")
	}
	ent.Sheet = &sheet
	return ent, nil
}

// EncodeSheet serializes asset to stylesheet entity payload.
func EncodeSheet(sheet *uss.Sheet) ([]byte, error) {
	data, err := ion.MarshalBinary(sheet)
	if err != nil {
		return nil, fmt.Errorf("encode stylesheet %s: %w", sheet.Name, err)
	}
	return data, nil
}

// WriteContainer serializes container:
// header -> entity directory -> container info -> entity data
func (c *Container) WriteContainer() ([]byte, error) {
	var (
		dir      bytes.Buffer
		payloads bytes.Buffer
	)
	for _, ent := range c.Entities {
		offset := payloads.Len()
		if err := writeEntity(&payloads, ent.Data); err != nil {
			return nil, fmt.Errorf("serialize entity %d: %w", ent.ID, err)
		}
		entry := dirEntry{
			ID:     ent.ID,
			Type:   uint32(ent.Type),
			Offset: uint64(offset),
			Size:   uint64(payloads.Len() - offset),
		}
		if err := binary.Write(&dir, binary.LittleEndian, &entry); err != nil {
			return nil, fmt.Errorf("write entity directory entry: %w", err)
		}
	}

	sum := sha1.Sum(payloads.Bytes())
	info := containerInfo{
		ContainerID: c.ContainerID,
		Generator:   c.Generator,
		DirOffset:   MinContainerLen,
		DirLength:   dir.Len(),
		PayloadSHA1: hex.EncodeToString(sum[:]),
	}
	infoBlob, err := ion.MarshalBinary(&info)
	if err != nil {
		return nil, fmt.Errorf("build container info: %w", err)
	}

	infoOffset := uint32(MinContainerLen + dir.Len())
	header := containerHeader{
		Version:    ContainerVersion,
		Size:       infoOffset + uint32(len(infoBlob)),
		InfoOffset: infoOffset,
		InfoSize:   uint32(len(infoBlob)),
	}
	copy(header.Signature[:], ContainerSignature)

	var buf bytes.Buffer
	buf.Grow(int(header.Size) + payloads.Len())
	if err := binary.Write(&buf, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("write bundle header: %w", err)
	}
	buf.Write(dir.Bytes())
	buf.Write(infoBlob)
	buf.Write(payloads.Bytes())
	return buf.Bytes(), nil
}

func writeEntity(w *bytes.Buffer, payload []byte) error {
	header := entityHeader{Version: EntityVersion, Size: MinEntityLen}
	copy(header.Signature[:], EntitySignature)
	if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
		return err
	}
	w.Write(payload)
	return nil
}
