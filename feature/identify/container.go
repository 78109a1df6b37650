package identify

import (
	"bytes"
	"encoding/binary"
	"strings"
)

// Sector geometry for ISO9660-derived disc images. Raw rips carry a 16-byte
// sync/address header (plus an 8-byte subheader on mode 2 form 1) in front of
// every 2048-byte user data block.
const (
	cookedSectorLen      = 2048
	rawSectorLen         = 2352
	rawSectorHeaderLen   = 16
	rawMode2SubheaderLen = 8
	pvdSector            = 16
)

var rawSyncPattern = []byte{
	0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00,
}

// discImage reads user data sectors out of either a cooked or raw image.
type discImage struct {
	data       []byte
	sectorLen  int
	userOffset int
}

func openDiscImage(data []byte) (*discImage, bool) {
	if len(data) < cookedSectorLen {
		return nil, false
	}

	if len(data) >= rawSectorLen && bytes.HasPrefix(data, rawSyncPattern) {
		offset := rawSectorHeaderLen
		// Mode 2 sectors carry a subheader before user data.
		if data[15] == 2 {
			offset += rawMode2SubheaderLen
		}
		return &discImage{data: data, sectorLen: rawSectorLen, userOffset: offset}, true
	}

	return &discImage{data: data, sectorLen: cookedSectorLen, userOffset: 0}, true
}

// sector returns the 2048 user data bytes of one sector.
func (d *discImage) sector(n int) ([]byte, bool) {
	start := n*d.sectorLen + d.userOffset
	if start < 0 || start+cookedSectorLen > len(d.data) {
		return nil, false
	}
	return d.data[start : start+cookedSectorLen], true
}

// read copies size bytes starting at the given sector, crossing sector
// boundaries as needed.
func (d *discImage) read(startSector int, size int) ([]byte, bool) {
	out := make([]byte, 0, size)
	for n := startSector; len(out) < size; n++ {
		sec, ok := d.sector(n)
		if !ok {
			return nil, false
		}
		remaining := size - len(out)
		if remaining < len(sec) {
			sec = sec[:remaining]
		}
		out = append(out, sec...)
	}
	return out, true
}

// dirEntry is one ISO9660 directory record.
type dirEntry struct {
	lba  int
	size int
	name string
}

// bootExecutableRegion locates the boot executable of an ISO9660 disc image
// and returns the bytes whose digest is the disc's identity: the normalized
// executable path followed by the executable content. Any missing landmark
// (sync pattern, volume descriptor, boot config, executable record) returns
// ok=false and the caller degrades to the whole-file digest.
func bootExecutableRegion(data []byte) ([]byte, bool) {
	img, ok := openDiscImage(data)
	if !ok {
		return nil, false
	}

	// Primary volume descriptor: type 1, signature "CD001".
	pvd, ok := img.sector(pvdSector)
	if !ok || pvd[0] != 1 || string(pvd[1:6]) != "CD001" {
		return nil, false
	}

	// Root directory record lives at a fixed offset inside the PVD.
	rootLBA := int(binary.LittleEndian.Uint32(pvd[156+2 : 156+6]))
	rootSize := int(binary.LittleEndian.Uint32(pvd[156+10 : 156+14]))

	root, ok := img.read(rootLBA, rootSize)
	if !ok {
		return nil, false
	}
	entries := parseDirEntries(root)

	// The boot config names the executable.
	cnf, ok := findEntry(entries, "SYSTEM.CNF")
	if !ok {
		return nil, false
	}
	cnfData, ok := img.read(cnf.lba, cnf.size)
	if !ok {
		return nil, false
	}

	exePath, ok := parseBootPath(string(cnfData))
	if !ok {
		return nil, false
	}

	exe, ok := findEntry(entries, exePath)
	if !ok {
		return nil, false
	}
	exeData, ok := img.read(exe.lba, exe.size)
	if !ok {
		return nil, false
	}

	region := make([]byte, 0, len(exePath)+len(exeData))
	region = append(region, []byte(exePath)...)
	region = append(region, exeData...)
	return region, true
}

// parseDirEntries walks the variable-length directory records of one
// directory extent. A zero length byte pads to the next sector boundary.
func parseDirEntries(dir []byte) []dirEntry {
	var entries []dirEntry
	offset := 0
	for offset < len(dir) {
		recLen := int(dir[offset])
		if recLen == 0 {
			// Records never span sectors; skip the padding.
			next := (offset/cookedSectorLen + 1) * cookedSectorLen
			if next <= offset {
				break
			}
			offset = next
			continue
		}
		if offset+recLen > len(dir) || recLen < 34 {
			break
		}
		rec := dir[offset : offset+recLen]
		nameLen := int(rec[32])
		if 33+nameLen <= len(rec) {
			entries = append(entries, dirEntry{
				lba:  int(binary.LittleEndian.Uint32(rec[2:6])),
				size: int(binary.LittleEndian.Uint32(rec[10:14])),
				name: normalizeEntryName(string(rec[33 : 33+nameLen])),
			})
		}
		offset += recLen
	}
	return entries
}

// normalizeEntryName strips the ISO9660 version suffix (";1").
func normalizeEntryName(name string) string {
	if idx := strings.IndexByte(name, ';'); idx >= 0 {
		name = name[:idx]
	}
	return strings.ToUpper(name)
}

func findEntry(entries []dirEntry, name string) (dirEntry, bool) {
	name = strings.ToUpper(name)
	for _, e := range entries {
		if e.name == name {
			return e, true
		}
	}
	return dirEntry{}, false
}

// parseBootPath extracts the executable name from a boot config, e.g.
// "BOOT = cdrom:\SLUS_123.45;1" yields "SLUS_123.45".
func parseBootPath(cnf string) (string, bool) {
	for _, line := range strings.Split(cnf, "\n") {
		line = strings.TrimSpace(line)
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(strings.ToUpper(key))
		if key != "BOOT" && key != "BOOT2" {
			continue
		}

		value = strings.TrimSpace(value)
		// Strip the device prefix and any directory components.
		if idx := strings.Index(value, ":"); idx >= 0 {
			value = value[idx+1:]
		}
		value = strings.Trim(value, "\\/")
		if idx := strings.LastIndexAny(value, "\\/"); idx >= 0 {
			value = value[idx+1:]
		}
		value = normalizeEntryName(value)
		if value == "" {
			continue
		}
		return value, true
	}
	return "", false
}
