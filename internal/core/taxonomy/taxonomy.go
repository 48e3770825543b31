package taxonomy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

const (
	// Fallbacks used whenever a category or subcategory falls outside the
	// allowed set.
	FallbackCategory    = "uncategorized"
	FallbackSubcategory = "other"
)

// Category is one taxonomy category with its allowed subcategories.
type Category struct {
	Name          string   `yaml:"name"`
	Subcategories []string `yaml:"subcategories"`
}

// TagDef defines one canonical tag.
type TagDef struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Group string `yaml:"group"`
}

// Taxonomy is the fixed classification vocabulary loaded once per run.
type Taxonomy struct {
	Categories []Category `yaml:"categories"`
	Tags       []string   `yaml:"tags"`
	TagDefs    []TagDef   `yaml:"tag_defs"`

	categoryMap map[string][]string
	tagSet      map[string]struct{}
	tagNameToID map[string]string
	tagIDToName map[string]string
}

// Load reads and indexes a taxonomy YAML file.
func Load(path string) (*Taxonomy, error) {
	if path == "" {
		return nil, fmt.Errorf("taxonomy path is not set")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read taxonomy file: %w", err)
	}
	var tax Taxonomy
	if err := yaml.Unmarshal(data, &tax); err != nil {
		return nil, fmt.Errorf("failed to parse taxonomy file: %w", err)
	}
	tax.index()
	return &tax, nil
}

// New builds a taxonomy from already-parsed parts. Used by tests.
func New(categories []Category, tags []string, defs []TagDef) *Taxonomy {
	tax := &Taxonomy{Categories: categories, Tags: tags, TagDefs: defs}
	tax.index()
	return tax
}

func (t *Taxonomy) index() {
	t.categoryMap = make(map[string][]string, len(t.Categories))
	for _, c := range t.Categories {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		t.categoryMap[name] = c.Subcategories
	}

	t.tagSet = make(map[string]struct{}, len(t.Tags))
	for _, tag := range t.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			t.tagSet[tag] = struct{}{}
		}
	}

	t.tagNameToID = make(map[string]string)
	t.tagIDToName = make(map[string]string)
	for _, def := range t.TagDefs {
		id := strings.TrimSpace(def.ID)
		if id == "" {
			continue
		}
		name := strings.TrimSpace(def.Name)
		if name == "" {
			name = id
		}
		if _, dup := t.tagIDToName[id]; dup {
			continue
		}
		t.tagIDToName[id] = name
		t.tagNameToID[normalizeToken(name)] = id
		t.tagNameToID[normalizeToken(id)] = id
	}
	// Legacy taxonomies list tags without defs; derive identity defs so tag
	// id normalization still resolves them.
	if len(t.TagDefs) == 0 {
		for _, tag := range t.Tags {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			t.tagIDToName[tag] = tag
			t.tagNameToID[normalizeToken(tag)] = tag
		}
	}
}

func normalizeToken(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// HasCategory reports whether name is an allowed category.
func (t *Taxonomy) HasCategory(name string) bool {
	_, ok := t.categoryMap[name]
	return ok
}

// ClampPair clamps a category/subcategory pair to the allowed set. Unknown
// categories fall back to uncategorized; a subcategory not listed under the
// clamped category falls back to "other" when allowed, else the category's
// first subcategory.
func (t *Taxonomy) ClampPair(category, subcategory string) (string, string) {
	if !t.HasCategory(category) {
		category = FallbackCategory
	}
	allowedSubs := t.categoryMap[category]
	if !contains(allowedSubs, subcategory) {
		switch {
		case contains(allowedSubs, FallbackSubcategory):
			subcategory = FallbackSubcategory
		case len(allowedSubs) > 0:
			subcategory = allowedSubs[0]
		default:
			subcategory = FallbackSubcategory
		}
	}
	return category, subcategory
}

// TagName resolves a tag id to its display name, falling back to the id.
func (t *Taxonomy) TagName(id string) string {
	if name, ok := t.tagIDToName[id]; ok {
		return name
	}
	return id
}

// NormalizeTagIDs maps a mixed list of tag ids and names to deduplicated
// canonical ids, returning the tokens that did not resolve.
func (t *Taxonomy) NormalizeTagIDs(values []string) (ids []string, unknown []string) {
	seen := make(map[string]struct{})
	for _, value := range values {
		token := normalizeToken(value)
		if token == "" {
			continue
		}
		id, ok := t.tagNameToID[token]
		if !ok {
			unknown = append(unknown, strings.TrimSpace(value))
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, unknown
}

// FormatForPrompt renders the category tree as a list the model can follow.
func (t *Taxonomy) FormatForPrompt() string {
	var lines []string
	for _, c := range t.Categories {
		if c.Name == "" {
			continue
		}
		if len(c.Subcategories) > 0 {
			lines = append(lines, fmt.Sprintf("- %s: %s", c.Name, strings.Join(c.Subcategories, ", ")))
		} else {
			lines = append(lines, fmt.Sprintf("- %s: (no subcategories)", c.Name))
		}
	}
	return strings.Join(lines, "\n")
}

// AllowedTags returns the flat tag pool.
func (t *Taxonomy) AllowedTags() []string {
	return t.Tags
}
