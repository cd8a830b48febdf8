package agent

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"checkengine/internal/domain"
)

const maxLineBytes = 4 << 20

// header is one parsed `<<<name:opt(...)>>>` line.
type header struct {
	name      domain.SectionName
	separator *rune
	cached    *domain.CacheInfo
	persistTo int64
	noStrip   bool
}

// Parse splits agent output into raw sections and piggyback blocks.
// Params: agent payload and fetch time (used for persisted sections).
// Returns: host sections or header error.
func Parse(payload []byte, fetchedAt time.Time) (domain.HostSections, error) {
	out := domain.HostSections{
		Sections:    make(map[domain.SectionName][][]string),
		CacheInfo:   make(map[domain.SectionName]domain.CacheInfo),
		Piggybacked: make(map[domain.HostName][]string),
	}

	scanner := bufio.NewScanner(bytes.NewReader(payload))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var (
		current   *header
		piggyback domain.HostName
		lineNo    int
	)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")

		if host, ok := piggybackHeader(line); ok {
			piggyback = host
			current = nil
			continue
		}
		if piggyback != "" {
			out.Piggybacked[piggyback] = append(out.Piggybacked[piggyback], line)
			continue
		}

		if name, ok := sectionHeader(line); ok {
			if name == "" {
				current = nil
				continue
			}
			h, err := parseHeader(name)
			if err != nil {
				return domain.HostSections{}, fmt.Errorf("line %d: %w", lineNo, err)
			}
			current = &h
			if _, seen := out.Sections[h.name]; !seen {
				out.Sections[h.name] = [][]string{}
			}
			if info, ok := h.cacheInfo(fetchedAt); ok {
				out.CacheInfo[h.name] = info
			}
			continue
		}
		if current == nil {
			continue
		}
		out.Sections[current.name] = append(out.Sections[current.name], current.split(line))
	}
	if err := scanner.Err(); err != nil {
		return domain.HostSections{}, fmt.Errorf("read agent output: %w", err)
	}
	return out, nil
}

// sectionHeader detects `<<<...>>>`; an empty name is a footer.
func sectionHeader(line string) (string, bool) {
	if !strings.HasPrefix(line, "<<<") || !strings.HasSuffix(line, ">>>") || len(line) < 6 {
		return "", false
	}
	if strings.HasPrefix(line, "<<<<") {
		return "", false
	}
	return line[3 : len(line)-3], true
}

// piggybackHeader detects `<<<<host>>>>`; an empty host ends the block.
func piggybackHeader(line string) (domain.HostName, bool) {
	if !strings.HasPrefix(line, "<<<<") || !strings.HasSuffix(line, ">>>>") || len(line) < 8 {
		return "", false
	}
	return domain.HostName(strings.TrimSpace(line[4 : len(line)-4])), true
}

func parseHeader(raw string) (header, error) {
	parts := strings.Split(raw, ":")
	h := header{name: domain.SectionName(strings.TrimSpace(parts[0]))}
	if h.name == "" {
		return header{}, fmt.Errorf("section header %q has no name", raw)
	}
	for _, opt := range parts[1:] {
		key, args, err := splitOption(opt)
		if err != nil {
			return header{}, fmt.Errorf("section %q: %w", h.name, err)
		}
		switch key {
		case "sep":
			code, err := strconv.Atoi(args)
			if err != nil || code < 0 {
				return header{}, fmt.Errorf("section %q: invalid separator %q", h.name, args)
			}
			sep := rune(code)
			h.separator = &sep
		case "cached":
			fields := strings.Split(args, ",")
			if len(fields) != 2 {
				return header{}, fmt.Errorf("section %q: invalid cached option %q", h.name, args)
			}
			at, err1 := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
			interval, err2 := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64)
			if err1 != nil || err2 != nil {
				return header{}, fmt.Errorf("section %q: invalid cached option %q", h.name, args)
			}
			h.cached = &domain.CacheInfo{CachedAt: at, Interval: interval}
		case "persist":
			until, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
			if err != nil {
				return header{}, fmt.Errorf("section %q: invalid persist option %q", h.name, args)
			}
			h.persistTo = until
		case "nostrip":
			h.noStrip = true
		default:
			// encoding(...) and unknown options do not affect parsing
		}
	}
	return h, nil
}

func splitOption(opt string) (string, string, error) {
	open := strings.IndexByte(opt, '(')
	if open < 0 {
		return strings.TrimSpace(opt), "", nil
	}
	if !strings.HasSuffix(opt, ")") {
		return "", "", fmt.Errorf("unterminated option %q", opt)
	}
	return strings.TrimSpace(opt[:open]), opt[open+1 : len(opt)-1], nil
}

// cacheInfo derives section freshness; cached() wins over persist().
func (h header) cacheInfo(fetchedAt time.Time) (domain.CacheInfo, bool) {
	if h.cached != nil {
		return *h.cached, true
	}
	if h.persistTo > 0 {
		at := fetchedAt.Unix()
		return domain.CacheInfo{CachedAt: at, Interval: h.persistTo - at}, true
	}
	return domain.CacheInfo{}, false
}

func (h header) split(line string) []string {
	if !h.noStrip {
		line = strings.TrimSpace(line)
	}
	if h.separator == nil {
		return strings.Fields(line)
	}
	return strings.Split(line, string(*h.separator))
}
