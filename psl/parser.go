package psl

import (
	"bufio"
	"io"
	"strings"

	"golang.org/x/net/idna"
)

// section tracks which half of the Mozilla PSL-format file the parser is
// currently reading, so that ICANN ("registry") rules and PRIVATE DOMAINS
// rules land in separate tries.
type section int

const (
	sectionRegistry section = iota
	sectionPrivate
)

const (
	beginPrivateMarker = "===BEGIN PRIVATE DOMAINS==="
	endPrivateMarker   = "===END PRIVATE DOMAINS==="
)

// parse reads a Mozilla PSL-format suffix list from r and inserts every rule
// into the engine's five tries, in both its as-written form and its
// IDNA-ASCII form (the PSL file mixes Unicode and punycode rules; spec §4.1
// requires both encodings to be queryable).
func parse(r io.Reader, e *Engine) error {
	scanner := bufio.NewScanner(r)
	sec := sectionRegistry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "//") {
			comment := strings.TrimSpace(strings.TrimPrefix(line, "//"))
			if strings.Contains(comment, beginPrivateMarker) {
				sec = sectionPrivate
			} else if strings.Contains(comment, endPrivateMarker) {
				sec = sectionRegistry
			}
			continue
		}
		insertRule(e, sec, line)
	}
	return scanner.Err()
}

func insertRule(e *Engine, sec section, rule string) {
	exception := false
	wildcard := false
	body := rule

	if strings.HasPrefix(body, "!") {
		exception = true
		body = body[1:]
	} else if strings.HasPrefix(body, "*.") {
		wildcard = true
		body = body[2:]
	}
	if body == "" {
		return
	}

	forms := []string{body}
	if ascii, err := idna.ToASCII(body); err == nil && ascii != body {
		forms = append(forms, ascii)
	}

	for _, form := range forms {
		labels := strings.Split(form, ".")
		switch {
		case exception:
			e.registryException.insert(labels)
		case sec == sectionPrivate && wildcard:
			e.privateWildcard.insert(labels)
		case sec == sectionPrivate:
			e.privateExact.insert(labels)
		case wildcard:
			e.registryWildcard.insert(labels)
		default:
			e.registryExact.insert(labels)
		}
	}
}
