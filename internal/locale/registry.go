// Package locale resolves the reply language: the system instruction given
// to the model and the fixed fallback text sent when completion fails.
package locale

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Locale holds the per-language text the relay needs.
type Locale struct {
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
	Fallback     string `json:"fallback"`
	Path         string `json:"path,omitempty"`
}

var builtin = []Locale{
	{
		Name:         "th",
		SystemPrompt: "You are a helpful assistant. Respond in Thai.",
		Fallback:     "ขออภัยค่ะ เกิดข้อผิดพลาดบางอย่าง โปรดลองอีกครั้งในภายหลัง",
	},
	{
		Name:         "en",
		SystemPrompt: "You are a helpful assistant. Respond in English.",
		Fallback:     "Sorry, something went wrong. Please try again later.",
	},
}

// Registry holds built-in locales plus any discovered from LOCALE.md files.
type Registry struct {
	locales map[string]Locale
}

// NewRegistry returns a Registry preloaded with the built-in locales.
func NewRegistry() *Registry {
	r := &Registry{locales: make(map[string]Locale, len(builtin))}
	for _, l := range builtin {
		r.locales[l.Name] = l
	}
	return r
}

// frontmatter holds the YAML fields parsed from LOCALE.md front matter.
type frontmatter struct {
	Name     string `yaml:"name"`
	Fallback string `yaml:"fallback"`
}

// Scan walks each directory in dirs looking for LOCALE.md files. The YAML
// frontmatter gives the name and fallback text; the body after it is the
// system prompt. A discovered locale overrides a built-in of the same name.
func (r *Registry) Scan(dirs []string) error {
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil // skip inaccessible paths
			}
			if d.IsDir() || d.Name() != "LOCALE.md" {
				return nil
			}

			l, err := parseLocaleFile(path)
			if err != nil {
				return nil // skip malformed files
			}
			r.locales[l.Name] = l
			return nil
		})
		if err != nil {
			return fmt.Errorf("scanning %s: %w", dir, err)
		}
	}
	return nil
}

// Lookup returns the locale registered under name.
func (r *Registry) Lookup(name string) (Locale, error) {
	l, ok := r.locales[name]
	if !ok {
		return Locale{}, fmt.Errorf("unknown locale %q (available: %s)", name, strings.Join(r.Names(), ", "))
	}
	return l, nil
}

// Names returns the registered locale names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.locales))
	for name := range r.locales {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func parseLocaleFile(path string) (Locale, error) {
	f, err := os.Open(path)
	if err != nil {
		return Locale{}, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)

	if !scanner.Scan() || strings.TrimSpace(scanner.Text()) != "---" {
		return Locale{}, fmt.Errorf("%s: missing opening frontmatter delimiter", path)
	}

	var head []string
	closed := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "---" {
			closed = true
			break
		}
		head = append(head, line)
	}
	if !closed || len(head) == 0 {
		return Locale{}, fmt.Errorf("%s: empty or unterminated frontmatter", path)
	}

	var body []string
	for scanner.Scan() {
		body = append(body, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return Locale{}, fmt.Errorf("%s: %w", path, err)
	}

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(strings.Join(head, "\n")), &fm); err != nil {
		return Locale{}, fmt.Errorf("%s: parsing frontmatter: %w", path, err)
	}
	if fm.Name == "" {
		return Locale{}, fmt.Errorf("%s: frontmatter missing name", path)
	}
	if strings.TrimSpace(fm.Fallback) == "" {
		return Locale{}, fmt.Errorf("%s: frontmatter missing fallback", path)
	}

	prompt := strings.TrimSpace(strings.Join(body, "\n"))
	if prompt == "" {
		return Locale{}, fmt.Errorf("%s: empty system prompt", path)
	}

	return Locale{
		Name:         fm.Name,
		SystemPrompt: prompt,
		Fallback:     strings.TrimSpace(fm.Fallback),
		Path:         path,
	}, nil
}
