package extract

import (
	"encoding/hex"
	"io"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/zeebo/blake3"

	"github.com/dicomtk/conquestdb/internal/conquest/dcm"
	"github.com/dicomtk/conquestdb/internal/conquest/schema"
)

// deriveColumns computes the modality-specific derived columns of the image
// table. Absence of the inspected structures is not an error; the columns
// are simply left out.
func deriveColumns(src dcm.Source, opts Options) []Column {
	modality, _ := src.String(0x0008, 0x0060)
	var cols []Column

	switch modality {
	case "RTSTRUCT":
		cols = append(cols, structureSetColumns(src, opts.ROIFilter)...)
	case "RTPLAN":
		cols = append(cols, planColumns(src)...)
	}

	if opts.ComputeHash {
		switch modality {
		case "RTSTRUCT", "RTPLAN", "RTDOSE":
			if digest := hashFile(src.Path()); digest != "" {
				cols = append(cols, Column{Name: "hash", Value: schema.TextValue(digest)})
			}
		}
	}
	return cols
}

// structureSetColumns records the named regions of an RTSTRUCT, its unique
// frame-of-reference UID, and the series UID of the image series the
// structures were drawn on. The referenced series UID is found by walking
// ReferencedFrameOfReferenceSequence -> RTReferencedStudySequence ->
// RTReferencedSeriesSequence, not read from a flat tag.
func structureSetColumns(src dcm.Source, filter *ROIFilter) []Column {
	var cols []Column

	if items, ok := src.Sequence(0x3006, 0x0020); ok {
		var names []string
		var forUIDs []string
		for _, item := range items {
			if name, ok := item.String(0x3006, 0x0026); ok {
				names = append(names, name)
			}
			if forUID, ok := item.String(0x3006, 0x0024); ok {
				forUIDs = append(forUIDs, forUID)
			}
		}
		if filter != nil {
			names = filter.Filter(names)
		}
		cols = append(cols,
			Column{Name: "ElementList", Value: schema.TextValue(joinConquest(names))},
			Column{Name: "ElementCount", Value: schema.IntValue(int64(len(names)))},
		)

		unique := uniqueStrings(forUIDs)
		forUID := ""
		if len(unique) == 1 {
			forUID = unique[0]
		}
		cols = append(cols, Column{Name: "UniqueFOR_UID", Value: schema.TextValue(forUID)})
	}

	if refSeries := referencedSeriesUID(src); refSeries != "" {
		cols = append(cols, Column{Name: "ReferencedSeriesUID", Value: schema.TextValue(refSeries)})
	}
	return cols
}

func referencedSeriesUID(src dcm.Source) string {
	refFrames, ok := src.Sequence(0x3006, 0x0010)
	if !ok || len(refFrames) == 0 {
		return ""
	}
	studies, ok := refFrames[0].Sequence(0x3006, 0x0012)
	if !ok || len(studies) == 0 {
		return ""
	}
	series, ok := studies[0].Sequence(0x3006, 0x0014)
	if !ok || len(series) == 0 {
		return ""
	}
	uid, _ := series[0].String(0x0020, 0x000e)
	return uid
}

// planColumns records the fraction and beam counts of an RTPLAN. A plan with
// one fraction group stores plain numbers, multiple groups store a
// backslash-joined list (the conquest rendering).
func planColumns(src dcm.Source) []Column {
	groups, ok := src.Sequence(0x300a, 0x0070)
	if !ok || len(groups) == 0 {
		return nil
	}
	var fractions, beams []int
	for _, g := range groups {
		if v, ok := g.String(0x300a, 0x0078); ok {
			if n, err := strconv.Atoi(v); err == nil {
				fractions = append(fractions, n)
			}
		}
		if v, ok := g.String(0x300a, 0x0080); ok {
			if n, err := strconv.Atoi(v); err == nil {
				beams = append(beams, n)
			}
		}
	}
	var cols []Column
	if len(fractions) > 0 {
		cols = append(cols, Column{Name: "Nfractions", Value: formatCount(fractions)})
	}
	if len(beams) > 0 {
		cols = append(cols, Column{Name: "ElementCount", Value: formatCount(beams)})
	}
	return cols
}

// hashFile returns the hex blake3 digest of the file's raw bytes, or empty
// when the file cannot be read (in-memory sources have no file).
func hashFile(path string) string {
	if path == "" {
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("content hash skipped")
		return ""
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		log.Debug().Err(err).Str("path", path).Msg("content hash skipped")
		return ""
	}
	return hex.EncodeToString(h.Sum(nil))
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
