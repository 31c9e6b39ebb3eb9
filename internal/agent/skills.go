package agent

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Skill is one skill definition discovered under the skills directory:
// YAML front matter (name, description, triggers) over a markdown body
// of instructions.
type Skill struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Triggers     []string `yaml:"triggers"`
	Instructions string   `yaml:"-"`
}

const frontMatterDelim = "---"

// LoadSkills scans dir for "*.md" skill files, rebuilding the skill
// list from scratch every call.
// A missing directory is not an error: it simply yields no skills.
func LoadSkills(dir string) ([]Skill, error) {
	if dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var skills []Skill
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		skill, ok := parseSkill(string(raw))
		if !ok {
			continue
		}
		skills = append(skills, skill)
	}
	return skills, nil
}

// parseSkill splits a skill file into its YAML front matter and
// markdown body. A file with no front-matter block is skipped.
func parseSkill(raw string) (Skill, bool) {
	raw = strings.TrimLeft(raw, "\ufeff \t\r\n")
	if !strings.HasPrefix(raw, frontMatterDelim) {
		return Skill{}, false
	}
	rest := raw[len(frontMatterDelim):]
	end := strings.Index(rest, "\n"+frontMatterDelim)
	if end < 0 {
		return Skill{}, false
	}

	header := rest[:end]
	body := strings.TrimSpace(rest[end+len(frontMatterDelim)+1:])

	var skill Skill
	if err := yaml.Unmarshal([]byte(header), &skill); err != nil {
		return Skill{}, false
	}
	if skill.Name == "" {
		return Skill{}, false
	}
	skill.Instructions = body
	return skill, true
}

// MatchingSkills returns the skills whose triggers appear as a
// case-insensitive substring of message.
func MatchingSkills(skills []Skill, message string) []Skill {
	lower := strings.ToLower(message)
	var matched []Skill
	for _, s := range skills {
		for _, trigger := range s.Triggers {
			if trigger == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(trigger)) {
				matched = append(matched, s)
				break
			}
		}
	}
	return matched
}
