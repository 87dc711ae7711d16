package mining

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"
)

// Detected lists the frameworks and UI libraries found in a project.
type Detected struct {
	Frameworks  []string `json:"frameworks"`
	UILibraries []string `json:"uiLibraries"`
}

// All returns frameworks followed by UI libraries.
func (d Detected) All() []string {
	out := make([]string, 0, len(d.Frameworks)+len(d.UILibraries))
	out = append(out, d.Frameworks...)
	return append(out, d.UILibraries...)
}

var frameworkPackages = map[string]string{
	"react":         "react",
	"react-dom":     "react",
	"next":          "next",
	"vue":           "vue",
	"nuxt":          "nuxt",
	"nuxt3":         "nuxt",
	"@angular/core": "angular",
	"svelte":        "svelte",
	"@sveltejs/kit": "svelte",
}

var uiLibraryPackages = map[string]string{
	"@mui/material":         "mui",
	"@material-ui/core":     "mui",
	"@mui/x-data-grid":      "mui",
	"antd":                  "antd",
	"ag-grid-community":     "ag-grid",
	"ag-grid-enterprise":    "ag-grid",
	"ag-grid-react":         "ag-grid",
	"ag-grid-angular":       "ag-grid",
	"ag-grid-vue3":          "ag-grid",
	"@tanstack/react-table": "tanstack-table",
	"@tanstack/vue-table":   "tanstack-table",
	"@tanstack/table-core":  "tanstack-table",
	"@chakra-ui/react":      "chakra",
	"@angular/material":     "angular-material",
	"vuetify":               "vuetify",
	"element-plus":          "element-plus",
	"primereact":            "primereact",
	"bootstrap":             "bootstrap",
	"react-bootstrap":       "bootstrap",
}

type packageManifest struct {
	Dependencies     map[string]string `json:"dependencies"`
	DevDependencies  map[string]string `json:"devDependencies"`
	PeerDependencies map[string]string `json:"peerDependencies"`
}

// DetectFrameworks reads package.json at the project root through the cache
// and falls back to file extensions for single-file-component frameworks.
// A missing or malformed manifest yields whatever the extensions show.
func (s *Scanner) DetectFrameworks(files []SourceFile) Detected {
	frameworks := make(map[string]bool)
	libraries := make(map[string]bool)

	if content, ok := s.cache.Get(filepath.Join(s.root, "package.json")); ok {
		var manifest packageManifest
		if err := json.Unmarshal([]byte(content), &manifest); err != nil {
			s.logger.Debug("package.json unreadable", "error", err)
		} else {
			for _, deps := range []map[string]string{manifest.Dependencies, manifest.DevDependencies, manifest.PeerDependencies} {
				for name := range deps {
					if fw, ok := frameworkPackages[name]; ok {
						frameworks[fw] = true
					}
					if lib, ok := uiLibraryPackages[name]; ok {
						libraries[lib] = true
					}
				}
			}
		}
	}

	for _, f := range files {
		switch f.Ext {
		case ".vue":
			frameworks["vue"] = true
		case ".svelte":
			frameworks["svelte"] = true
		}
	}
	// Meta-frameworks imply their base.
	if frameworks["next"] {
		frameworks["react"] = true
	}
	if frameworks["nuxt"] {
		frameworks["vue"] = true
	}

	return Detected{Frameworks: setKeys(frameworks), UILibraries: setKeys(libraries)}
}

// ClassifyFrameworks splits user-supplied names into frameworks and UI
// libraries. Names may be canonical ("mui") or package names
// ("@mui/material"); unknown names are taken as frameworks.
func ClassifyFrameworks(names []string) Detected {
	frameworks := make(map[string]bool)
	libraries := make(map[string]bool)
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if fw, ok := frameworkPackages[name]; ok {
			frameworks[fw] = true
			continue
		}
		if lib, ok := uiLibraryPackages[name]; ok {
			libraries[lib] = true
			continue
		}
		if isValue(uiLibraryPackages, name) {
			libraries[name] = true
			continue
		}
		frameworks[name] = true
	}
	return Detected{Frameworks: setKeys(frameworks), UILibraries: setKeys(libraries)}
}

func isValue(m map[string]string, v string) bool {
	for _, x := range m {
		if x == v {
			return true
		}
	}
	return false
}

func setKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
