// Package main implements the genconfig tool that writes config.default.toml
// from config.DefaultConfig(), annotated with config.Docs.
//
// It is invoked by go generate via the directive in internal/config/config.go.
package main

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"tools.zach/dev/sigrelay/internal/config"
)

func main() {
	result, err := render(config.DefaultConfig(), config.Docs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "render: %v\n", err)
		os.Exit(1)
	}

	// go generate runs from internal/config/; ../../ is the repo root where
	// configdata.go embeds config.default.toml.
	outPath := "../../config.default.toml"
	if err := os.WriteFile(outPath, []byte(result), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", outPath, err)
		os.Exit(1)
	}
	fmt.Printf("wrote config.default.toml\n")
}

// render encodes cfg as TOML and injects comments from docs. Each documented
// key is commented once, so repeated [[rules]] entries stay compact.
func render(cfg *config.Config, docs map[string]config.FieldDoc) (string, error) {
	var raw bytes.Buffer
	if err := toml.NewEncoder(&raw).Encode(cfg); err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	out := []string{
		"# ///////////////////////////////////////////////",
		"# sigrelay Configuration",
		"# ///////////////////////////////////////////////",
		"",
	}

	// Track current TOML section path for field lookup
	var sectionStack []string
	// Track which doc keys we've emitted so each is documented once and
	// omitted fields can be injected
	emittedKeys := map[string]bool{}

	for _, line := range strings.Split(raw.String(), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		// Section headers: [foo], [foo.bar] or [[foo]]
		if strings.HasPrefix(trimmed, "[") {
			injectOmitted(&out, sectionStack, emittedKeys, docs)

			section := strings.Trim(trimmed, "[] ")
			sectionStack = parseSectionPath(section)
			out = append(out, "")

			if !emittedKeys[section] {
				emittedKeys[section] = true
				out = append(out, fmt.Sprintf("# ///// %s /////", sectionName(section)), "")
				out = appendComment(out, docs[section].Comment)
			}
			out = append(out, trimmed)
			continue
		}

		// Non key=value lines pass through unchanged
		if !strings.Contains(trimmed, "=") || strings.HasPrefix(trimmed, "#") {
			out = append(out, trimmed)
			continue
		}

		key := strings.TrimSpace(strings.SplitN(trimmed, "=", 2)[0])
		fullPath := key
		if len(sectionStack) > 0 {
			fullPath = strings.Join(sectionStack, ".") + "." + key
		}

		doc, ok := docs[fullPath]
		if !ok || emittedKeys[fullPath] {
			emittedKeys[fullPath] = true
			out = append(out, trimmed)
			continue
		}
		emittedKeys[fullPath] = true
		out = appendComment(out, doc.Comment)
		out = append(out, trimmed)
		for _, alt := range doc.Alternatives {
			out = append(out, "# "+alt)
		}
	}

	injectOmitted(&out, sectionStack, emittedKeys, docs)

	result := strings.Join(out, "\n")
	return strings.TrimRight(result, "\n") + "\n", nil
}

func appendComment(out []string, comment string) []string {
	if comment == "" {
		return out
	}
	for _, cl := range strings.Split(comment, "\n") {
		out = append(out, "# "+cl)
	}
	return out
}

// injectOmitted appends commented-out entries for documented keys of the
// current section that the encoder did not emit, typically omitempty fields
// holding their zero value. Keys are sorted for deterministic ordering.
func injectOmitted(out *[]string, sectionStack []string, emitted map[string]bool, docs map[string]config.FieldDoc) {
	if len(sectionStack) == 0 {
		return
	}
	prefix := strings.Join(sectionStack, ".") + "."

	var omitted []string
	for path := range docs {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		rest := strings.TrimPrefix(path, prefix)
		if strings.Contains(rest, ".") || emitted[path] {
			continue
		}
		omitted = append(omitted, path)
	}
	sort.Strings(omitted)

	for _, path := range omitted {
		doc := docs[path]
		*out = append(*out, "")
		*out = appendComment(*out, doc.Comment)
		for _, alt := range doc.Alternatives {
			*out = append(*out, "# "+alt)
		}
		emitted[path] = true
	}
}

// parseSectionPath splits a dotted TOML section header ("log.file") into its
// path segments.
func parseSectionPath(section string) []string {
	return strings.Split(section, ".")
}

// sectionName returns a display name for a section header: its last dotted
// segment with the first letter capitalized.
func sectionName(section string) string {
	parts := strings.Split(section, ".")
	last := parts[len(parts)-1]
	if len(last) == 0 {
		return ""
	}
	return strings.ToUpper(last[:1]) + last[1:]
}
