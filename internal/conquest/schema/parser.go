package schema

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Load reads a conquest-style column definition file and returns the schema
// it describes. When the file does not exist the built-in default schema is
// returned. Malformed lines and unknown table markers are skipped with a
// warning; loading never fails on content.
//
// The format is line oriented:
//
//	*Series                        table marker
//	{                              table body open
//	    { 0x0020, 0x000e, "SeriesInst" }       one column per line
//	    { 0x0020, 0x0011, "SeriesNumb", int }  optional value kind
//	}                              table body close
//
// Lines starting with '#', '/*' or '*/' are comments.
func Load(path string, truncateNames bool) (*TableSchema, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", path).Msg("no schema definition file, using default layout")
			return Default(), nil
		}
		return nil, fmt.Errorf("error reading schema definition: %w", err)
	}
	defer f.Close()

	s := &TableSchema{tables: map[string][]ColumnDescriptor{}}
	var table string
	var columns []ColumnDescriptor

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "" || strings.HasPrefix(line, "#") ||
			strings.HasPrefix(line, "/*") || strings.HasPrefix(line, "*/"):
			continue

		case strings.HasPrefix(line, "*"):
			role := strings.TrimPrefix(line, "*")
			name, ok := roleToTable[role]
			if !ok {
				s.warn(fmt.Sprintf("line %d: unknown table role %q", lineNo, role))
				table = ""
				continue
			}
			table = name
			columns = nil

		case line == "{":
			continue

		case strings.HasPrefix(line, "}"):
			if table != "" {
				s.tables[table] = columns
				log.Debug().Str("table", table).Int("columns", len(columns)).Msg("loaded table definition")
				table = ""
			}

		case strings.HasPrefix(line, "{"):
			if table == "" {
				continue
			}
			d, err := parseColumnLine(line, truncateNames)
			if err != nil {
				s.warn(fmt.Sprintf("line %d: %v", lineNo, err))
				continue
			}
			columns = append(columns, d)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading schema definition: %w", err)
	}

	for _, w := range s.warnings {
		log.Warn().Str("path", path).Msg("schema definition: " + w)
	}
	return s, nil
}

func (s *TableSchema) warn(msg string) {
	s.warnings = append(s.warnings, msg)
}

// parseColumnLine parses one `{ 0xgggg, 0xeeee, "Name"[, kind] }` line.
func parseColumnLine(line string, truncateNames bool) (ColumnDescriptor, error) {
	body := strings.TrimSpace(line)
	body = strings.TrimPrefix(body, "{")
	body = strings.TrimSuffix(body, "}")
	parts := strings.Split(body, ",")
	if len(parts) < 3 {
		return ColumnDescriptor{}, fmt.Errorf("malformed column line: %q", line)
	}

	group, err := parseTagComponent(parts[0])
	if err != nil {
		return ColumnDescriptor{}, fmt.Errorf("bad tag group in %q: %v", line, err)
	}
	element, err := parseTagComponent(parts[1])
	if err != nil {
		return ColumnDescriptor{}, fmt.Errorf("bad tag element in %q: %v", line, err)
	}

	name := strings.TrimSpace(parts[2])
	name = strings.Trim(name, `"`)
	name = strings.ReplaceAll(name, " ", "")
	if name == "" {
		return ColumnDescriptor{}, fmt.Errorf("empty column name in %q", line)
	}
	if truncateNames && len(name) > 10 {
		name = name[:10]
	}

	kind := KindText
	if len(parts) > 3 {
		kind = ParseKind(parts[3])
	}

	return ColumnDescriptor{
		Group:   group,
		Element: element,
		Column:  name,
		Kind:    kind,
	}, nil
}

func parseTagComponent(s string) (uint16, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}
