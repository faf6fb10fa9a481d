package homepage

// Entry is a single bookmark entry in bookmarks.yaml
type Entry struct {
	Icon        string `yaml:"icon,omitempty"`
	Abbr        string `yaml:"abbr,omitempty"`
	Href        string `yaml:"href"`
	Description string `yaml:"description,omitempty"`
}

// Category maps a category name to its bookmarks.
// The YAML structure is: - CategoryName: [ - BookmarkName: [{ icon, abbr, href }] ]
// Each bookmark name maps to a list with a single entry holding the properties.
type Category map[string][]map[string][]Entry

// Config is the root structure of bookmarks.yaml
type Config []Category
