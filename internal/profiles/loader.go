package profiles

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/dramascope/internal/errors"
)

//go:embed builtin/*.yaml
var builtinProfiles embed.FS

const (
	// SchemaPrefix is the accepted prefix of the schema field.
	SchemaPrefix = "dramascope.profiles/v"

	// UserFile is read from the user config directory (~/.dramascope).
	UserFile = "profiles.yaml"

	// ProjectFile is read from the project directory.
	ProjectFile = "dramascope.profiles.yaml"

	// DefaultProfile is used when no profile is named.
	DefaultProfile = "default"
)

// collection is one profiles file. Entries stay as YAML nodes so they can be
// decoded on top of a base profile, leaving unset fields untouched.
type collection struct {
	Schema   string               `yaml:"schema"`
	Profiles map[string]yaml.Node `yaml:"profiles"`
}

// Loader resolves profiles from the embedded built-ins and the optional
// user and project files.
type Loader struct {
	projectDir string
	userDir    string
	cache      map[string]*Profile
}

// NewLoader creates a new profile loader.
func NewLoader() *Loader {
	homeDir, _ := os.UserHomeDir()
	return &Loader{
		projectDir: ".",
		userDir:    filepath.Join(homeDir, ".dramascope"),
		cache:      make(map[string]*Profile),
	}
}

// SetProjectDir sets the directory searched for the project file.
func (l *Loader) SetProjectDir(dir string) {
	l.projectDir = dir
}

// SetUserDir sets the directory searched for the user file.
func (l *Loader) SetUserDir(dir string) {
	l.userDir = dir
}

// Load loads a profile by name.
//
// Resolution order (highest to lowest precedence):
// 1. Project-level profile (./dramascope.profiles.yaml)
// 2. User-level profile (~/.dramascope/profiles.yaml)
// 3. Built-in profile of the same name, or "default" for custom names
func (l *Loader) Load(name string) (*Profile, error) {
	if name == "" {
		name = DefaultProfile
	}
	cacheKey := l.projectDir + ":" + l.userDir + ":" + name
	if cached, ok := l.cache[cacheKey]; ok {
		copied := *cached
		return &copied, nil
	}

	user, err := l.readFile(filepath.Join(l.userDir, UserFile))
	if err != nil {
		return nil, err
	}
	project, err := l.readFile(filepath.Join(l.projectDir, ProjectFile))
	if err != nil {
		return nil, err
	}

	base, err := loadBuiltin(name)
	if err != nil {
		_, inUser := user.Profiles[name]
		_, inProject := project.Profiles[name]
		if !inUser && !inProject {
			return nil, errors.New(errors.ErrCodeProfileNotFound, fmt.Sprintf("profile %q not found", name)).
				WithSuggestion("Run 'dramascope run --help' to see the built-in profiles: default, quick, robust")
		}
		if base, err = loadBuiltin(DefaultProfile); err != nil {
			return nil, err
		}
	}

	for _, c := range []*collection{user, project} {
		node, ok := c.Profiles[name]
		if !ok {
			continue
		}
		if err := node.Decode(base); err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfigInvalid, fmt.Sprintf("failed to decode profile %q", name), err)
		}
	}
	base.Name = name

	if err := base.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigInvalid, fmt.Sprintf("invalid profile %q", name), err)
	}

	l.cache[cacheKey] = base
	copied := *base
	return &copied, nil
}

// List returns available profile names from all sources, sorted.
func (l *Loader) List() ([]string, error) {
	names := make(map[string]bool)

	entries, err := builtinProfiles.ReadDir("builtin")
	if err != nil {
		return nil, fmt.Errorf("failed to read built-in profiles: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".yaml") {
			names[strings.TrimSuffix(entry.Name(), ".yaml")] = true
		}
	}

	for _, path := range []string{
		filepath.Join(l.userDir, UserFile),
		filepath.Join(l.projectDir, ProjectFile),
	} {
		c, err := l.readFile(path)
		if err != nil {
			return nil, err
		}
		for name := range c.Profiles {
			names[name] = true
		}
	}

	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// loadBuiltin loads a built-in profile from embedded files.
func loadBuiltin(name string) (*Profile, error) {
	data, err := builtinProfiles.ReadFile("builtin/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("built-in profile not found: %w", err)
	}

	c, err := parse(data, "builtin/"+name+".yaml")
	if err != nil {
		return nil, err
	}
	node, ok := c.Profiles[name]
	if !ok {
		return nil, fmt.Errorf("profile %q not found in built-in file", name)
	}

	var profile Profile
	if err := node.Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to parse built-in profile: %w", err)
	}
	profile.Name = name
	return &profile, nil
}

// readFile parses a profiles file. A missing file yields an empty collection.
func (l *Loader) readFile(path string) (*collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &collection{}, nil
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to read profile file", err)
	}
	// Environment variables are expanded before parsing
	return parse([]byte(os.ExpandEnv(string(data))), path)
}

func parse(data []byte, path string) (*collection, error) {
	var c collection
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.NewFileUnmarshalError(path, "YAML", err)
	}
	if c.Schema != "" && !strings.HasPrefix(c.Schema, SchemaPrefix) {
		return nil, errors.New(errors.ErrCodeConfigInvalid, fmt.Sprintf("unsupported schema version %q in %s", c.Schema, path))
	}
	return &c, nil
}

// Builtin returns a built-in profile without consulting user or project files.
func Builtin(name string) (*Profile, error) {
	p, err := loadBuiltin(name)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeProfileNotFound, fmt.Sprintf("built-in profile %q not found", name), err)
	}
	return p, nil
}
