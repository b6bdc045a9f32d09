// Package permafrost freezes resolved module records into a platform-native
// stub binary: the records become a single self-contained blob appended to
// (or spliced into) the stub, and a locator header pointing at the blob is
// patched over the stub's exported symbol so the loader can boot without
// module files on disk.
package permafrost

import (
	"encoding/binary"
	"os"

	"github.com/pkg/errors"

	"github.com/lowtemp/permafrost/blob"
	"github.com/lowtemp/permafrost/models"
	"github.com/lowtemp/permafrost/stub"
)

// Pack builds the blob for records and freezes it into a copy of stubData,
// returning the finished image. The record order is preserved in the module
// tables. stubData itself is never modified.
func Pack(records []models.Record, stubData []byte, cfg *models.Config) ([]byte, error) {
	if cfg == nil {
		cfg = &models.Config{}
	}
	cfg.Init()
	for name := range cfg.Fields {
		if !models.KnownField(name) {
			return nil, errors.Errorf("Unknown loader field %q.", name)
		}
	}

	data := make([]byte, len(stubData))
	copy(data, stubData)
	img, err := stub.Open(data)
	if err != nil {
		return nil, err
	}
	bitnesses := img.Bitnesses()

	// Seed the pool longest first with every name and field value so short
	// strings fold into the suffix of longer ones, then lay payloads behind
	// them.
	var strs []string
	for i := range records {
		strs = append(strs, records[i].Name)
	}
	for _, name := range models.FieldNames {
		if value, ok := cfg.Fields[name]; ok {
			strs = append(strs, value)
		}
	}
	pool := blob.NewPool()
	for _, s := range blob.PoolOrder(strs) {
		pool.Add(s)
	}
	entries, err := blob.BuildEntries(records, pool)
	if err != nil {
		return nil, err
	}

	align := cfg.Align
	if align == 0 {
		align = img.DefaultBlobAlign()
	}
	layout := blob.NewLayout(bitnesses, len(records), pool, align)
	fieldPtrs, err := layout.FieldPointers(pool, cfg.Fields)
	if err != nil {
		return nil, err
	}

	// A Mach-O stub that reserved a placeholder segment gets the blob
	// spliced into it; appending would fall outside the segments and break
	// code signing. Everything else gets the blob appended on an alignment
	// boundary.
	embed := img.Format == stub.MachO && img.HasSegment(cfg.Segment)
	var blobOffset uint64
	if embed {
		blobOffset, err = img.SlideForInsert(cfg.Segment, layout.BlobSize)
		if err != nil {
			return nil, err
		}
	} else {
		if pad := uint64(len(img.Data)) % align; align > 1 && pad != 0 {
			img.Data = append(img.Data, make([]byte, align-pad)...)
		}
		blobOffset = uint64(len(img.Data))
	}

	body, err := layout.Emit(entries, pool)
	if err != nil {
		return nil, err
	}

	patchedAny := false
	var missed []int
	for i, bits := range bitnesses {
		header := layout.Header(i, blobOffset, cfg.Flags(), fieldPtrs)
		value, err := header.Pack(bits)
		if err != nil {
			return nil, err
		}
		patched, err := img.PatchSymbol(cfg.Symbol, value, bits)
		if err != nil {
			return nil, err
		}
		if patched {
			patchedAny = true
		} else {
			missed = append(missed, bits)
		}
	}

	if embed {
		if !patchedAny {
			return nil, errors.Errorf("Symbol %q not found; an embedded blob has no fallback.", cfg.Symbol)
		}
		copy(img.Data[blobOffset:], body)
		return img.Data, nil
	}

	out := append(img.Data, body...)
	if !patchedAny {
		cfg.Diag.Warnf("symbol %q not found in any slice, appending the legacy trailing pointer", cfg.Symbol)
		var trailer [8]byte
		binary.LittleEndian.PutUint64(trailer[:], blobOffset)
		out = append(out, trailer[:]...)
	} else {
		for _, bits := range missed {
			cfg.Diag.Warnf("symbol %q not found in any %d-bit slice, that architecture cannot boot", cfg.Symbol, bits)
		}
	}
	return out, nil
}

// PackFile reads the stub, packs records into it, and writes the finished
// binary with executable permissions. Nothing is written on error.
func PackFile(stubPath, outPath string, records []models.Record, cfg *models.Config) error {
	stubData, err := os.ReadFile(stubPath)
	if err != nil {
		return errors.Wrap(err, "failed to read stub")
	}
	out, err := Pack(records, stubData, cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, out, 0755); err != nil {
		return errors.Wrap(err, "failed to write output")
	}
	// WriteFile only applies the mode on create.
	return errors.Wrap(os.Chmod(outPath, 0755), "failed to chmod output")
}
